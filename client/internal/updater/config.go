package updater

import (
	"fmt"
	"time"

	"github.com/driftdeskio/driftdesk/util"
)

const (
	DefaultPollInterval = 10 * time.Minute
	DefaultInitialDelay = 30 * time.Second
)

// Config controls the coordinator's polling cadence and release policy. It is
// immutable for the coordinator's lifetime, build a new coordinator to change
// policy.
type Config struct {
	// FeedURL overrides the production release feed. Empty means production.
	FeedURL string

	IncludePreReleases bool
	AllowDowngrade     bool
	AutoDownload       bool
	AutoInstallOnQuit  bool

	// DevMode marks non-production builds whose feed settings come from a
	// local override file instead of the built-in production feed.
	DevMode bool

	PollInterval time.Duration
	InitialDelay time.Duration
}

// DevFeedConfig is the on-disk shape of the development feed override.
type DevFeedConfig struct {
	FeedURL            string `json:"feed_url"`
	IncludePreReleases bool   `json:"include_pre_releases"`
}

// WithDevConfig returns a copy of the config with the feed settings replaced
// by the development override file at path.
func (c Config) WithDevConfig(path string) (Config, error) {
	var dev DevFeedConfig
	if _, err := util.ReadJson(path, &dev); err != nil {
		return c, fmt.Errorf("read dev feed config %s: %w", path, err)
	}
	if dev.FeedURL == "" {
		return c, fmt.Errorf("dev feed config %s has no feed_url", path)
	}

	c.FeedURL = dev.FeedURL
	c.IncludePreReleases = c.IncludePreReleases || dev.IncludePreReleases
	return c, nil
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultInitialDelay
	}
	return c
}
