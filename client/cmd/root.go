package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftdeskio/driftdesk/client/internal/updater"
	"github.com/driftdeskio/driftdesk/util"
)

const (
	feedURLFlag            = "feed-url"
	includePreReleasesFlag = "include-pre-releases"
	allowDowngradeFlag     = "allow-downgrade"
	autoDownloadFlag       = "auto-download"
	autoInstallFlag        = "auto-install-on-quit"
	devModeFlag            = "dev"
	pollIntervalFlag       = "poll-interval"
	initialDelayFlag       = "initial-delay"
)

var (
	configPath         string
	defaultConfigPath  string
	logLevel           string
	logFile            string
	defaultLogFile     string
	feedURL            string
	includePreReleases bool
	allowDowngrade     bool
	autoDownload       bool
	autoInstallOnQuit  bool
	devMode            bool
	pollInterval       time.Duration
	initialDelay       time.Duration

	rootCmd = &cobra.Command{
		Use:          "driftdesk-updater",
		Short:        "DriftDesk client update service",
		SilenceUsage: true,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	configDir := "/etc/driftdesk"
	logDir := "/var/log/driftdesk"
	if runtime.GOOS == "windows" {
		configDir = filepath.Join(os.Getenv("PROGRAMDATA"), "Driftdesk")
		logDir = configDir
	}
	defaultConfigPath = filepath.Join(configDir, "dev-feed.json")
	defaultLogFile = filepath.Join(logDir, "updater.log")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Development feed override file location")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "sets DriftDesk updater log level")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "console", fmt.Sprintf("sets DriftDesk updater log path. If console is specified the log will be output to stdout (file default \"%s\")", defaultLogFile))
	rootCmd.PersistentFlags().StringVar(&feedURL, feedURLFlag, "", "Release feed URL (default is the production feed)")
	rootCmd.PersistentFlags().BoolVar(&includePreReleases, includePreReleasesFlag, false, "Consider pre-release versions as update candidates")
	rootCmd.PersistentFlags().BoolVar(&allowDowngrade, allowDowngradeFlag, false, "Allow installing a version older than the running one")
	rootCmd.PersistentFlags().BoolVar(&autoDownload, autoDownloadFlag, true, "Download an available update without user action")
	rootCmd.PersistentFlags().BoolVar(&autoInstallOnQuit, autoInstallFlag, false, "Apply a downloaded update when the application quits")
	rootCmd.PersistentFlags().BoolVar(&devMode, devModeFlag, false, "Read the feed configuration from the development override file")
	rootCmd.PersistentFlags().DurationVar(&pollInterval, pollIntervalFlag, updater.DefaultPollInterval, "Interval between update checks")
	rootCmd.PersistentFlags().DurationVar(&initialDelay, initialDelayFlag, updater.DefaultInitialDelay, "Delay before the first update check after startup")

	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(versionCmd)
}

func setupLog() error {
	return util.InitLog(logLevel, logFile)
}

// buildUpdaterConfig assembles the immutable coordinator policy from the CLI
// flags, applying the development override when requested.
func buildUpdaterConfig() (updater.Config, error) {
	cfg := updater.Config{
		FeedURL:            feedURL,
		IncludePreReleases: includePreReleases,
		AllowDowngrade:     allowDowngrade,
		AutoDownload:       autoDownload,
		AutoInstallOnQuit:  autoInstallOnQuit,
		DevMode:            devMode,
		PollInterval:       pollInterval,
		InitialDelay:       initialDelay,
	}

	if !devMode {
		return cfg, nil
	}

	devCfg, err := cfg.WithDevConfig(configPath)
	if err != nil {
		return updater.Config{}, err
	}
	return devCfg, nil
}
