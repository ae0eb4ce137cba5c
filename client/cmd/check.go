package cmd

import (
	"github.com/spf13/cobra"

	"github.com/driftdeskio/driftdesk/client/internal/updater"
	"github.com/driftdeskio/driftdesk/util"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "query the release feed once and print the best update candidate",
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

		platform := updater.CurrentPlatformKey()
		assetURL, err := updater.ResolveAsset(release, platform)
		if err != nil {
			return err
		}

		cmd.Printf("latest release: %s (pre-release: %v)\n", release.TagName, release.Prerelease)
		cmd.Printf("platform:       %s\n", platform)
		cmd.Printf("asset:          %s\n", assetURL)
		cmd.Printf("feed base:      %s\n", updater.FeedBaseURL(assetURL))
		return nil
	},
}
