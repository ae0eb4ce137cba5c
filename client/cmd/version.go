package cmd

import (
	"github.com/spf13/cobra"

	"github.com/driftdeskio/driftdesk/version"
)

var (
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "prints driftdesk updater version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version.DriftdeskVersion())
		},
	}
)
