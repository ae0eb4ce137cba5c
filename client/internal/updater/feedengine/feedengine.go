// Package feedengine implements the generic download engine driven by the
// update coordinator. It locates a platform manifest on the configured feed,
// compares its version against the running client and streams the matching
// artifact to disk while emitting lifecycle events.
package feedengine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	goversion "github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"

	"github.com/driftdeskio/driftdesk/client/internal/updater"
	"github.com/driftdeskio/driftdesk/version"
)

const (
	userAgent       = "DriftDesk updater/%s"
	checkDeadline   = 5 * time.Minute
	retryMaxElapsed = 30 * time.Second
	progressChunk   = 256 * 1024
)

// Engine is a generic-feed implementation of the coordinator's engine
// contract. One instance serves the whole process lifetime.
type Engine struct {
	mu         sync.Mutex
	cfg        updater.EngineConfig
	configured bool
	handler    func(updater.Event)

	// pending is the manifest announced by the last check when auto-download
	// is off, waiting for an explicit DownloadUpdate
	pending        *Manifest
	pendingVersion string

	downloadedPath    string
	downloadedVersion string

	currentVersion *goversion.Version
	manifestName   string
	httpClient     *http.Client

	// installFn and quitFn are seams for the host process and tests
	installFn func(ctx context.Context, artifactPath string) error
	quitFn    func()

	wg sync.WaitGroup
}

// New builds an engine for the running client version and host platform.
func New(currentVersion string) (*Engine, error) {
	current, err := goversion.NewVersion(currentVersion)
	if err != nil {
		log.Warnf("running version %q is not a semantic version, treating as 0.0.0", currentVersion)
		current, _ = goversion.NewVersion("0.0.0")
	}

	manifestName, err := updater.ManifestName(updater.CurrentPlatformKey())
	if err != nil {
		return nil, err
	}

	return &Engine{
		currentVersion: current,
		manifestName:   manifestName,
		httpClient:     &http.Client{Timeout: time.Minute},
		installFn:      launchInstaller,
	}, nil
}

// SetQuitHandler registers the callback asking the host process to exit once
// the installer has been launched.
func (e *Engine) SetQuitHandler(quitFn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.quitFn = quitFn
}

// Configure implements updater.Engine.
func (e *Engine) Configure(cfg updater.EngineConfig) error {
	if cfg.FeedURL == "" {
		return fmt.Errorf("engine config has no feed URL")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	e.configured = true
	return nil
}

// SetEventHandler implements updater.Engine.
func (e *Engine) SetEventHandler(handler func(updater.Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = handler
}

// CheckForUpdates implements updater.Engine. The check runs asynchronously,
// results arrive as events.
func (e *Engine) CheckForUpdates() {
	e.mu.Lock()
	cfg := e.cfg
	configured := e.configured
	e.mu.Unlock()

	if !configured {
		e.emitError("check requested before engine was configured")
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(checkDeadline))
		defer cancel()
		e.check(ctx, cfg)
	}()
}

// DownloadUpdate implements updater.Engine. It transfers the update the last
// check announced while auto-download was off. Without a pending update the
// call is ignored with a log entry.
func (e *Engine) DownloadUpdate() {
	e.mu.Lock()
	cfg := e.cfg
	manifest := e.pending
	targetVersion := e.pendingVersion
	e.pending = nil
	e.mu.Unlock()

	if manifest == nil {
		log.Warnf("ignoring download request, no update is pending")
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(checkDeadline))
		defer cancel()
		e.download(ctx, cfg, manifest, targetVersion)
	}()
}

// QuitAndInstall implements updater.Engine. Without a downloaded update the
// call is rejected with a log entry.
func (e *Engine) QuitAndInstall() {
	e.mu.Lock()
	artifactPath := e.downloadedPath
	targetVersion := e.downloadedVersion
	installFn := e.installFn
	quitFn := e.quitFn
	e.mu.Unlock()

	if artifactPath == "" {
		log.Warnf("ignoring install request, no update has been downloaded")
		return
	}
	log.Infof("installing update %s from %s", targetVersion, artifactPath)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := installFn(ctx, artifactPath); err != nil {
		e.emitError(fmt.Sprintf("launch installer: %v", err))
		return
	}

	if quitFn != nil {
		quitFn()
	}
}

// InstallOnQuit launches the installer for a downloaded update during process
// shutdown when the auto-install-on-quit policy asks for it. The quit
// callback is skipped, the caller is already exiting.
func (e *Engine) InstallOnQuit() {
	e.mu.Lock()
	autoInstall := e.cfg.AutoInstallOnQuit
	artifactPath := e.downloadedPath
	targetVersion := e.downloadedVersion
	installFn := e.installFn
	e.mu.Unlock()

	if !autoInstall || artifactPath == "" {
		return
	}
	log.Infof("installing update %s from %s on shutdown", targetVersion, artifactPath)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := installFn(ctx, artifactPath); err != nil {
		log.Errorf("update engine: launch installer: %v", err)
	}
}

// Wait blocks until in-flight checks and downloads finished, used on shutdown.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) check(ctx context.Context, cfg updater.EngineConfig) {
	// a fresh check invalidates whatever the previous one announced
	e.mu.Lock()
	e.pending = nil
	e.mu.Unlock()

	e.emit(updater.Event{Kind: updater.EventChecking})

	manifest, err := e.fetchManifest(ctx, cfg)
	if err != nil {
		e.emitError(fmt.Sprintf("fetch manifest: %v", err))
		return
	}

	target, err := goversion.NewVersion(manifest.Version)
	if err != nil {
		e.emitError(fmt.Sprintf("manifest carries unparsable version %q: %v", manifest.Version, err))
		return
	}

	if target.Prerelease() != "" && !cfg.AllowPrerelease {
		log.Debugf("manifest version %s is a pre-release, not allowed by policy", target)
		e.emit(updater.Event{Kind: updater.EventNotAvailable})
		return
	}

	if !cfg.AllowDowngrade && !target.GreaterThan(e.currentVersion) {
		e.emit(updater.Event{Kind: updater.EventNotAvailable})
		return
	}

	e.emit(updater.Event{Kind: updater.EventAvailable, Version: target.String()})

	if !cfg.AutoDownload {
		e.mu.Lock()
		e.pending = manifest
		e.pendingVersion = target.String()
		e.mu.Unlock()
		return
	}

	e.download(ctx, cfg, manifest, target.String())
}

func (e *Engine) fetchManifest(ctx context.Context, cfg updater.EngineConfig) (*Manifest, error) {
	manifestURL := cfg.FeedURL + "/" + e.manifestName

	var body []byte
	operation := func() error {
		data, err := e.fetchOnce(ctx, manifestURL)
		if err != nil {
			log.Debugf("manifest fetch attempt failed: %v", err)
			return err
		}
		body = data
		return nil
	}

	expBackOff := backoff.WithContext(&backoff.ExponentialBackOff{
		InitialInterval:     time.Second,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      retryMaxElapsed,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}, ctx)

	if err := backoff.Retry(operation, expBackOff); err != nil {
		return nil, err
	}

	manifest, err := parseManifest(body)
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", manifestURL, err)
	}
	if manifest.artifactPath() == "" {
		return nil, fmt.Errorf("manifest %s lists no artifact", manifestURL)
	}
	return manifest, nil
}

func (e *Engine) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", fmt.Sprintf(userAgent, version.DriftdeskVersion()))

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		// a definite feed answer won't change between retries
		return nil, backoff.Permanent(fmt.Errorf("unexpected HTTP status %d for %s", resp.StatusCode, url))
	}

	return io.ReadAll(resp.Body)
}

func (e *Engine) download(ctx context.Context, cfg updater.EngineConfig, manifest *Manifest, targetVersion string) {
	artifactURL := cfg.FeedURL + "/" + manifest.artifactPath()

	tempDir, err := os.MkdirTemp("", "driftdesk-update-*")
	if err != nil {
		e.emitError(fmt.Sprintf("create temporary directory: %v", err))
		return
	}
	dstFile := filepath.Join(tempDir, filepath.Base(manifest.artifactPath()))

	operation := func() error {
		if err := e.downloadOnce(ctx, artifactURL, dstFile, manifest.artifactSize()); err != nil {
			log.Warnf("artifact download attempt failed: %v", err)
			return err
		}
		return nil
	}

	expBackOff := backoff.WithContext(&backoff.ExponentialBackOff{
		InitialInterval:     3 * time.Second,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      retryMaxElapsed,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}, ctx)

	if err := backoff.Retry(operation, expBackOff); err != nil {
		e.emitError(fmt.Sprintf("download %s: %v", artifactURL, err))
		return
	}

	e.mu.Lock()
	e.downloadedPath = dstFile
	e.downloadedVersion = targetVersion
	e.mu.Unlock()

	log.Infof("downloaded update artifact to %s", dstFile)
	e.emit(updater.Event{Kind: updater.EventDownloaded, Version: targetVersion})

	if cfg.AutoInstallOnQuit {
		log.Debugf("update will be installed when the application quits")
	}
}

func (e *Engine) downloadOnce(ctx context.Context, url, dstFile string, expectedSize int64) error {
	out, err := os.Create(dstFile)
	if err != nil {
		return fmt.Errorf("create destination file %q: %w", dstFile, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil {
			log.Warnf("error closing file %q: %v", dstFile, cerr)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", fmt.Sprintf(userAgent, version.DriftdeskVersion()))

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return backoff.Permanent(fmt.Errorf("unexpected HTTP status %d for %s", resp.StatusCode, url))
	}

	total := resp.ContentLength
	if total <= 0 {
		total = expectedSize
	}

	var transferred int64
	buf := make([]byte, progressChunk)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("write artifact: %w", writeErr)
			}
			transferred += int64(n)
			e.emitProgress(transferred, total)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("read artifact: %w", readErr)
		}
	}

	return nil
}

func (e *Engine) emitProgress(transferred, total int64) {
	var percent float64
	if total > 0 {
		percent = float64(transferred) / float64(total) * 100
	}
	e.emit(updater.Event{
		Kind:        updater.EventProgress,
		Percent:     percent,
		Transferred: transferred,
		Total:       total,
	})
}

func (e *Engine) emitError(message string) {
	log.Errorf("update engine: %s", message)
	e.emit(updater.Event{Kind: updater.EventError, Message: message})
}

func (e *Engine) emit(ev updater.Event) {
	e.mu.Lock()
	handler := e.handler
	e.mu.Unlock()

	if handler == nil {
		log.Debugf("no event handler registered, dropping %s", ev.Kind)
		return
	}
	handler(ev)
}

// launchInstaller starts the platform installer for the downloaded artifact.
// The process is detached, the host is expected to quit right after.
func launchInstaller(ctx context.Context, artifactPath string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.CommandContext(ctx, artifactPath, "/S")
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", artifactPath)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", artifactPath)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start installer %s: %w", artifactPath, err)
	}
	return nil
}
