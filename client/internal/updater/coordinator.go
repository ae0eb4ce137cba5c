package updater

import (
	"context"
	"errors"
	"sync"
	"syscall"
	"time"

	goversion "github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"
)

const eventQueueSize = 16

// Coordinator owns the update lifecycle of the running client. It polls the
// release feed, picks the artifact for the host platform, hands the resolved
// feed location to the download engine and maps engine events to lifecycle
// state and host notifications. There is exactly one per running application.
type Coordinator struct {
	cfg            Config
	currentVersion *goversion.Version
	platform       PlatformKey
	fetcher        *Fetcher
	engine         Engine
	notifier       Notifier

	// events is the single inbound queue fed by the engine's callbacks. The
	// run loop consumes it one event at a time, it is the only goroutine
	// applying state transitions.
	events   chan Event
	checkNow chan struct{}

	statusMu sync.Mutex
	status   Status

	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewCoordinator builds a coordinator for the given policy. currentVersion is
// the version of the running client, engine the download/install collaborator
// and notifier the host UI sink (nil falls back to the process log).
func NewCoordinator(cfg Config, currentVersion string, engine Engine, notifier Notifier) (*Coordinator, error) {
	current, err := goversion.NewVersion(currentVersion)
	if err != nil {
		// development builds carry no release version
		log.Warnf("running version %q is not a semantic version, treating as 0.0.0", currentVersion)
		current, _ = goversion.NewVersion("0.0.0")
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}

	c := &Coordinator{
		cfg:            cfg.withDefaults(),
		currentVersion: current,
		platform:       CurrentPlatformKey(),
		fetcher:        NewFetcher(cfg.FeedURL),
		engine:         engine,
		notifier:       notifier,
		events:         make(chan Event, eventQueueSize),
		checkNow:       make(chan struct{}, 1),
		done:           make(chan struct{}),
		status:         StatusIdle,
	}
	engine.SetEventHandler(c.enqueue)
	return c, nil
}

// Start launches the run loop. The first poll fires after the configured
// initial delay, subsequent polls on the recurring interval while the
// lifecycle is Idle.
func (c *Coordinator) Start(ctx context.Context) {
	if c.cancel != nil {
		log.Errorf("update coordinator already started")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.run(ctx)
}

// Stop terminates the run loop and waits for it to drain.
func (c *Coordinator) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.wg.Wait()
}

// Status returns the current lifecycle state.
func (c *Coordinator) Status() Status {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return c.status
}

// TriggerCheck requests a poll outside the regular cadence. It is coalesced
// with any already pending request and ignored while a cycle is in flight.
func (c *Coordinator) TriggerCheck() {
	select {
	case c.checkNow <- struct{}{}:
	default:
	}
}

// DownloadUpdate asks the engine to transfer the update announced by the
// last check. This is the explicit counterpart to the auto-download policy;
// without a pending update the engine ignores the call.
func (c *Coordinator) DownloadUpdate() {
	log.Infof("download requested in state %s", c.Status())
	c.engine.DownloadUpdate()
}

// InstallUpdate instructs the engine to quit the host process and apply the
// previously downloaded update. Only meaningful once the lifecycle reached
// Downloaded, in any other state the engine rejects or no-ops the call.
func (c *Coordinator) InstallUpdate() {
	log.Infof("install requested in state %s", c.Status())
	c.engine.QuitAndInstall()
}

// enqueue feeds an engine callback into the inbound queue. Progress events
// are lossy, any dropped tick is superseded by the next one. All other kinds
// decide lifecycle transitions and must reach the run loop, so the engine's
// goroutine blocks until there is room or the coordinator stopped.
func (c *Coordinator) enqueue(ev Event) {
	if ev.Kind == EventProgress {
		select {
		case c.events <- ev:
		default:
		}
		return
	}

	select {
	case c.events <- ev:
	case <-c.done:
		log.Warnf("coordinator stopped, dropping engine event %s", ev.Kind)
	}
}

func (c *Coordinator) run(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.done)

	initialDelay := time.NewTimer(c.cfg.InitialDelay)
	defer initialDelay.Stop()
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-initialDelay.C:
			c.poll(ctx)
		case <-ticker.C:
			c.poll(ctx)
		case <-c.checkNow:
			c.poll(ctx)
		case ev := <-c.events:
			c.handleEngineEvent(ev)
		}
	}
}

// poll runs one check cycle. A cycle already in flight (state not Idle)
// suppresses the new poll, at most one check runs at a time.
func (c *Coordinator) poll(ctx context.Context) {
	if status := c.Status(); status != StatusIdle {
		log.Debugf("skipping update poll, cycle in flight (state %s)", status)
		return
	}

	c.transition(StatusChecking)
	c.notifier.Checking()

	feedURL, release, err := c.resolve(ctx)
	if err != nil {
		var downgrade *DowngradeRejectedError
		if errors.As(err, &downgrade) {
			log.Infof("no update: %v", downgrade)
			c.transition(StatusNotAvailable)
			c.transition(StatusIdle)
			return
		}
		c.logCheckFailure(err)
		c.transition(StatusFailed)
		c.transition(StatusIdle)
		return
	}

	engineCfg := EngineConfig{
		Provider:          "generic",
		FeedURL:           feedURL,
		AllowPrerelease:   c.cfg.IncludePreReleases,
		AllowDowngrade:    c.cfg.AllowDowngrade,
		AutoDownload:      c.cfg.AutoDownload,
		AutoInstallOnQuit: c.cfg.AutoInstallOnQuit,
	}
	if err := c.engine.Configure(engineCfg); err != nil {
		c.logCheckFailure(&EngineError{Message: err.Error()})
		c.transition(StatusFailed)
		c.transition(StatusIdle)
		return
	}

	log.Infof("update %s available for %s (running %s), feed %s",
		release.Version(), c.platform, c.currentVersion, feedURL)
	c.transition(StatusAvailable)
	c.engine.CheckForUpdates()
}

// resolve runs fetch, select, downgrade check and asset resolution
// synchronously and returns the feed base URL for the engine.
func (c *Coordinator) resolve(ctx context.Context) (string, ReleaseRecord, error) {
	records, err := c.fetcher.FetchReleases(ctx, c.cfg.IncludePreReleases)
	if err != nil {
		return "", ReleaseRecord{}, err
	}

	release, err := SelectLatest(records)
	if err != nil {
		return "", ReleaseRecord{}, err
	}

	if !c.cfg.AllowDowngrade && !release.Version().GreaterThan(c.currentVersion) {
		return "", ReleaseRecord{}, &DowngradeRejectedError{
			Candidate: release.Version().String(),
			Current:   c.currentVersion.String(),
		}
	}

	assetURL, err := ResolveAsset(release, c.platform)
	if err != nil {
		return "", ReleaseRecord{}, err
	}

	return FeedBaseURL(assetURL), release, nil
}

func (c *Coordinator) handleEngineEvent(ev Event) {
	switch ev.Kind {
	case EventChecking:
		log.Debugf("engine started its own feed check")
	case EventAvailable:
		// the coordinator already decided availability during the poll, the
		// engine's own verdict is a confirmation
		if c.Status() == StatusChecking {
			c.transition(StatusAvailable)
		}
		log.Infof("engine confirmed update %s", ev.Version)
		// without auto-download the check cycle ends here, the pending
		// update waits in the engine for an explicit DownloadUpdate and
		// the polling cadence keeps running
		if !c.cfg.AutoDownload && c.Status() == StatusAvailable {
			c.transition(StatusIdle)
		}
	case EventNotAvailable:
		log.Infof("engine reports no update for the configured feed")
		c.transition(StatusNotAvailable)
		c.transition(StatusIdle)
	case EventProgress:
		c.transition(StatusDownloading)
		log.Debugf("downloading update: %.1f%% (%d/%d bytes)", ev.Percent, ev.Transferred, ev.Total)
	case EventDownloaded:
		c.transition(StatusDownloaded)
		log.Infof("update %s downloaded, awaiting install", ev.Version)
		c.notifier.UpdateDownloaded(ev.Version)
	case EventError:
		err := &EngineError{Message: ev.Message}
		log.Errorf("update cycle failed: %v", err)
		// failures are silent to the user except after a successful
		// download, when the install can no longer proceed quietly
		if c.Status() == StatusDownloaded {
			c.notifier.UpdateFailed(ev.Message)
		}
		c.transition(StatusFailed)
		c.transition(StatusIdle)
	default:
		log.Warnf("ignoring unknown engine event %d", ev.Kind)
	}
}

// transition applies a lifecycle state change. Callers run on the run loop
// goroutine, the mutex only guards concurrent Status readers.
func (c *Coordinator) transition(next Status) {
	c.statusMu.Lock()
	prev := c.status
	c.status = next
	c.statusMu.Unlock()

	if prev != next {
		log.Infof("update lifecycle %s -> %s", prev, next)
	}
}

func (c *Coordinator) logCheckFailure(err error) {
	if errors.Is(err, syscall.ECONNREFUSED) {
		log.Debugf("update server unreachable, will retry: %v", err)
		return
	}
	log.Errorf("update check failed: %v", err)
}
