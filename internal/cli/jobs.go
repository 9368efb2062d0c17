package cli

import (
	"github.com/spf13/cobra"
)

var syncStreamsCmd = &cobra.Command{
	Use:   "sync-streams",
	Short: "Discover live stream playlists and store them on channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SyncStreams(cmd.Context())
	},
}

var sendAlertsCmd = &cobra.Command{
	Use:   "send-alerts",
	Short: "Notify alert subscribers about upcoming matching broadcasts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SendAlerts(cmd.Context())
	},
}
