package updater

import (
	log "github.com/sirupsen/logrus"
)

// EventKind classifies lifecycle events emitted by the download engine.
type EventKind int

const (
	EventChecking EventKind = iota
	EventAvailable
	EventNotAvailable
	EventProgress
	EventDownloaded
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventChecking:
		return "checking"
	case EventAvailable:
		return "update-available"
	case EventNotAvailable:
		return "update-not-available"
	case EventProgress:
		return "download-progress"
	case EventDownloaded:
		return "update-downloaded"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a single lifecycle notification from the download engine.
type Event struct {
	Kind        EventKind
	Version     string
	Percent     float64
	Transferred int64
	Total       int64
	Message     string
}

// EngineConfig is handed to the download engine before asking it to check.
type EngineConfig struct {
	// Provider names the feed protocol the engine should speak.
	Provider string
	// FeedURL is the base URL the engine appends the platform manifest
	// filename to, see FeedBaseURL.
	FeedURL string

	AllowPrerelease   bool
	AllowDowngrade    bool
	AutoDownload      bool
	AutoInstallOnQuit bool
}

// Engine is the external download/install collaborator. Its event callbacks
// may fire from any goroutine; the coordinator serializes them through its
// inbound queue.
type Engine interface {
	// Configure hands the engine the resolved feed location and policy flags.
	Configure(cfg EngineConfig) error
	// SetEventHandler registers the lifecycle event callback. Must be called
	// before CheckForUpdates.
	SetEventHandler(handler func(Event))
	// CheckForUpdates asks the engine to verify the configured feed and,
	// depending on policy, start the transfer. Asynchronous, results arrive
	// as events.
	CheckForUpdates()
	// DownloadUpdate starts the transfer of the update announced by the last
	// check. Only meaningful when auto-download is off; without a pending
	// update the call is a no-op. Asynchronous, results arrive as events.
	DownloadUpdate()
	// QuitAndInstall quits the host process and applies a previously
	// downloaded update. The engine rejects or no-ops the call when nothing
	// was downloaded.
	QuitAndInstall()
}

// Notifier is the host UI notification sink. Calls are one-way and
// fire-and-forget, no acknowledgment is expected.
type Notifier interface {
	Checking()
	UpdateDownloaded(version string)
	UpdateFailed(message string)
}

// LogNotifier is the default sink for hosts without a UI surface, it writes
// notifications to the process log.
type LogNotifier struct{}

func (LogNotifier) Checking() {
	log.Infof("checking for client updates")
}

func (LogNotifier) UpdateDownloaded(version string) {
	log.Infof("update %s downloaded and ready to install", version)
}

func (LogNotifier) UpdateFailed(message string) {
	log.Errorf("update failed: %s", message)
}
