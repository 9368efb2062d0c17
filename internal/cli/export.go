package cli

import (
	"github.com/spf13/cobra"

	"broadcast-board/internal/app"
)

var (
	exportSlotID   int64
	exportCSVPath  string
	exportPNGPath  string
	exportXLSXPath string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export one slot's price history as CSV, PNG chart and/or XLSX",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			SlotID:   exportSlotID,
			CSVPath:  exportCSVPath,
			PNGPath:  exportPNGPath,
			XLSXPath: exportXLSXPath,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().Int64Var(&exportSlotID, "slot", 0, "Slot id whose price history is exported")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportXLSXPath, "xlsx", "", "Path to write XLSX workbook")
	_ = exportCmd.MarkFlagRequired("slot")
}
