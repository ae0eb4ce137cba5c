package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftdeskio/driftdesk/client/internal/updater"
	"github.com/driftdeskio/driftdesk/client/internal/updater/feedengine"
	"github.com/driftdeskio/driftdesk/util"
	"github.com/driftdeskio/driftdesk/version"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "download the latest update and launch its installer",
	RunE: func(cmd *cobra.Command, args []string) error {
		util.SetFlagsFromEnvVars(rootCmd)
		if err := setupLog(); err != nil {
			return err
		}

		cfg, err := buildUpdaterConfig()
		if err != nil {
			return err
		}

		fetcher := updater.NewFetcher(cfg.FeedURL)
		records, err := fetcher.FetchReleases(cmd.Context(), cfg.IncludePreReleases)
		if err != nil {
			return err
		}

		release, err := updater.SelectLatest(records)
		if err != nil {
			return err
		}

		assetURL, err := updater.ResolveAsset(release, updater.CurrentPlatformKey())
		if err != nil {
			return err
		}

		engine, err := feedengine.New(version.DriftdeskVersion())
		if err != nil {
			return err
		}

		events := make(chan updater.Event, 16)
		engine.SetEventHandler(func(ev updater.Event) { events <- ev })

		err = engine.Configure(updater.EngineConfig{
			Provider:        "generic",
			FeedURL:         updater.FeedBaseURL(assetURL),
			AllowPrerelease: cfg.IncludePreReleases,
			AllowDowngrade:  cfg.AllowDowngrade,
			AutoDownload:    true,
		})
		if err != nil {
			return err
		}

		engine.CheckForUpdates()
		defer engine.Wait()

		for {
			select {
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			case ev := <-events:
				switch ev.Kind {
				case updater.EventAvailable:
					cmd.Printf("downloading update %s\n", ev.Version)
				case updater.EventNotAvailable:
					cmd.Printf("already running the latest version\n")
					return nil
				case updater.EventDownloaded:
					cmd.Printf("downloaded %s, launching installer\n", ev.Version)
					engine.QuitAndInstall()
					return nil
				case updater.EventError:
					return fmt.Errorf("update failed: %s", ev.Message)
				}
			}
		}
	},
}
