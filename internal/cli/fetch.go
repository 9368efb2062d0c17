package cli

import (
	"github.com/spf13/cobra"
)

var fetchLoop bool

var fetchCmd = &cobra.Command{
	Use:   "fetch-schedule",
	Short: "Ingest the broadcast schedule and resolve product prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().FetchSchedule(cmd.Context(), fetchLoop)
	},
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchLoop, "loop", false, "Keep running on the scheduler interval")
}
