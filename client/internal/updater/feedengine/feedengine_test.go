package feedengine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftdeskio/driftdesk/client/internal/updater"
)

const testArtifact = "this is the update artifact payload"

// newFeedServer serves a manifest for the host platform plus the artifact it
// points at under /feed/.
func newFeedServer(t *testing.T, manifestVersion string, artifactHits *atomic.Int32) *httptest.Server {
	t.Helper()

	manifest := fmt.Sprintf(
		"version: %s\npath: driftdesk-%s.zip\nfiles:\n  - url: driftdesk-%s.zip\n    size: %d\n",
		manifestVersion, manifestVersion, manifestVersion, len(testArtifact))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, ".yml"):
			_, _ = w.Write([]byte(manifest))
		case strings.HasSuffix(r.URL.Path, ".zip"):
			if artifactHits != nil {
				artifactHits.Add(1)
			}
			_, _ = w.Write([]byte(testArtifact))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestEngine(t *testing.T, currentVersion string) (*Engine, chan updater.Event) {
	t.Helper()
	engine, err := New(currentVersion)
	require.NoError(t, err)

	events := make(chan updater.Event, 64)
	engine.SetEventHandler(func(ev updater.Event) { events <- ev })
	return engine, events
}

func waitForEvent(t *testing.T, events chan updater.Event, kind updater.EventKind) updater.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == updater.EventError && kind != updater.EventError {
				t.Fatalf("engine failed while waiting for %s: %s", kind, ev.Message)
			}
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for engine event %s", kind)
		}
	}
}

func TestEngine_CheckAndDownload(t *testing.T) {
	var artifactHits atomic.Int32
	server := newFeedServer(t, "9.9.9", &artifactHits)

	engine, events := newTestEngine(t, "1.0.0")
	require.NoError(t, engine.Configure(updater.EngineConfig{
		Provider:     "generic",
		FeedURL:      server.URL + "/feed",
		AutoDownload: true,
	}))

	engine.CheckForUpdates()

	available := waitForEvent(t, events, updater.EventAvailable)
	assert.Equal(t, "9.9.9", available.Version)

	progress := waitForEvent(t, events, updater.EventProgress)
	assert.Equal(t, int64(len(testArtifact)), progress.Total)

	downloaded := waitForEvent(t, events, updater.EventDownloaded)
	assert.Equal(t, "9.9.9", downloaded.Version)
	assert.Equal(t, int32(1), artifactHits.Load())

	engine.Wait()
	require.NotEmpty(t, engine.downloadedPath)

	// the downloaded artifact can now be installed
	var installedPath string
	var quit atomic.Bool
	engine.installFn = func(ctx context.Context, artifactPath string) error {
		installedPath = artifactPath
		return nil
	}
	engine.SetQuitHandler(func() { quit.Store(true) })

	engine.QuitAndInstall()
	assert.Equal(t, engine.downloadedPath, installedPath)
	assert.True(t, quit.Load())
}

func TestEngine_ManualDownload(t *testing.T) {
	var artifactHits atomic.Int32
	server := newFeedServer(t, "9.9.9", &artifactHits)

	engine, events := newTestEngine(t, "1.0.0")
	require.NoError(t, engine.Configure(updater.EngineConfig{
		Provider: "generic",
		FeedURL:  server.URL + "/feed",
	}))

	engine.CheckForUpdates()

	available := waitForEvent(t, events, updater.EventAvailable)
	assert.Equal(t, "9.9.9", available.Version)

	engine.Wait()
	assert.Equal(t, int32(0), artifactHits.Load(), "no transfer before the explicit request")

	engine.DownloadUpdate()

	downloaded := waitForEvent(t, events, updater.EventDownloaded)
	assert.Equal(t, "9.9.9", downloaded.Version)
	assert.Equal(t, int32(1), artifactHits.Load())

	// the announcement is consumed, a repeated request transfers nothing
	engine.DownloadUpdate()
	engine.Wait()
	assert.Equal(t, int32(1), artifactHits.Load())
}

func TestEngine_DownloadWithoutPendingUpdate(t *testing.T) {
	engine, events := newTestEngine(t, "1.0.0")

	engine.DownloadUpdate()
	engine.Wait()

	select {
	case ev := <-events:
		t.Fatalf("expected no events, got %s", ev.Kind)
	default:
	}
}

func TestEngine_InstallOnQuit(t *testing.T) {
	var artifactHits atomic.Int32
	server := newFeedServer(t, "9.9.9", &artifactHits)

	engine, events := newTestEngine(t, "1.0.0")
	var installedPath string
	var quit atomic.Bool
	engine.installFn = func(ctx context.Context, artifactPath string) error {
		installedPath = artifactPath
		return nil
	}
	engine.SetQuitHandler(func() { quit.Store(true) })

	require.NoError(t, engine.Configure(updater.EngineConfig{
		Provider:          "generic",
		FeedURL:           server.URL + "/feed",
		AutoDownload:      true,
		AutoInstallOnQuit: true,
	}))

	engine.CheckForUpdates()
	waitForEvent(t, events, updater.EventDownloaded)
	engine.Wait()

	engine.InstallOnQuit()
	assert.Equal(t, engine.downloadedPath, installedPath)
	assert.False(t, quit.Load(), "shutdown install must not fire the quit callback")
}

func TestEngine_InstallOnQuitRequiresPolicy(t *testing.T) {
	var artifactHits atomic.Int32
	server := newFeedServer(t, "9.9.9", &artifactHits)

	engine, events := newTestEngine(t, "1.0.0")
	var installed atomic.Bool
	engine.installFn = func(ctx context.Context, artifactPath string) error {
		installed.Store(true)
		return nil
	}

	require.NoError(t, engine.Configure(updater.EngineConfig{
		Provider:     "generic",
		FeedURL:      server.URL + "/feed",
		AutoDownload: true,
	}))

	engine.CheckForUpdates()
	waitForEvent(t, events, updater.EventDownloaded)
	engine.Wait()

	engine.InstallOnQuit()
	assert.False(t, installed.Load(), "installer must not run without the auto-install policy")
}

func TestEngine_NotAvailableForOlderManifest(t *testing.T) {
	var artifactHits atomic.Int32
	server := newFeedServer(t, "1.0.0", &artifactHits)

	engine, events := newTestEngine(t, "2.0.0")
	require.NoError(t, engine.Configure(updater.EngineConfig{
		FeedURL:      server.URL + "/feed",
		AutoDownload: true,
	}))

	engine.CheckForUpdates()
	waitForEvent(t, events, updater.EventNotAvailable)
	engine.Wait()

	assert.Equal(t, int32(0), artifactHits.Load(), "no artifact transfer without a newer version")
}

func TestEngine_PrereleaseGate(t *testing.T) {
	server := newFeedServer(t, "3.0.0-beta.1", nil)

	engine, events := newTestEngine(t, "1.0.0")
	require.NoError(t, engine.Configure(updater.EngineConfig{FeedURL: server.URL + "/feed"}))

	engine.CheckForUpdates()
	waitForEvent(t, events, updater.EventNotAvailable)
	engine.Wait()

	require.NoError(t, engine.Configure(updater.EngineConfig{
		FeedURL:         server.URL + "/feed",
		AllowPrerelease: true,
	}))

	engine.CheckForUpdates()
	available := waitForEvent(t, events, updater.EventAvailable)
	assert.Equal(t, "3.0.0-beta.1", available.Version)
	engine.Wait()
}

func TestEngine_DowngradeRequiresPolicy(t *testing.T) {
	server := newFeedServer(t, "1.5.0", nil)

	engine, events := newTestEngine(t, "2.0.0")
	require.NoError(t, engine.Configure(updater.EngineConfig{
		FeedURL:        server.URL + "/feed",
		AllowDowngrade: true,
	}))

	engine.CheckForUpdates()
	available := waitForEvent(t, events, updater.EventAvailable)
	assert.Equal(t, "1.5.0", available.Version)
	engine.Wait()
}

func TestEngine_MissingManifestEmitsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	engine, events := newTestEngine(t, "1.0.0")
	require.NoError(t, engine.Configure(updater.EngineConfig{FeedURL: server.URL + "/feed"}))

	engine.CheckForUpdates()
	ev := waitForEvent(t, events, updater.EventError)
	assert.Contains(t, ev.Message, "fetch manifest")
	engine.Wait()
}

func TestEngine_CheckBeforeConfigure(t *testing.T) {
	engine, events := newTestEngine(t, "1.0.0")
	engine.CheckForUpdates()
	waitForEvent(t, events, updater.EventError)
}

func TestEngine_QuitAndInstallWithoutDownload(t *testing.T) {
	engine, _ := newTestEngine(t, "1.0.0")

	var installed, quit bool
	engine.installFn = func(ctx context.Context, artifactPath string) error {
		installed = true
		return nil
	}
	engine.SetQuitHandler(func() { quit = true })

	engine.QuitAndInstall()

	assert.False(t, installed, "install must be rejected without a downloaded update")
	assert.False(t, quit)
}

func TestParseManifest(t *testing.T) {
	data := []byte("version: 2.3.4\npath: driftdesk-2.3.4.dmg\nreleaseDate: '2026-08-01T10:00:00.000Z'\nfiles:\n  - url: driftdesk-2.3.4.dmg\n    size: 1024\n")
	m, err := parseManifest(data)
	require.NoError(t, err)
	assert.Equal(t, "2.3.4", m.Version)
	assert.Equal(t, "driftdesk-2.3.4.dmg", m.artifactPath())
	assert.Equal(t, int64(1024), m.artifactSize())
}

func TestParseManifest_Invalid(t *testing.T) {
	_, err := parseManifest([]byte("\tnot yaml"))
	assert.Error(t, err)
}
