package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lhildreth66/Routecast2-sub001/internal/app"
)

var (
	exportLat       float64
	exportLon       float64
	exportFrom      string
	exportHours     int
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the hourly risk timeline for a location as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			Lat:       exportLat,
			Lon:       exportLon,
			Hours:     exportHours,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}

		if exportFrom != "" {
			from, err := time.Parse(time.RFC3339, exportFrom)
			if err != nil {
				return fmt.Errorf("invalid --from value: %w", err)
			}
			opts.From = &from
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().Float64Var(&exportLat, "lat", 39.7392, "Latitude")
	exportCmd.Flags().Float64Var(&exportLon, "lon", -104.9903, "Longitude")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "First hour (RFC3339, defaults to the current hour)")
	exportCmd.Flags().IntVar(&exportHours, "hours", 48, "Number of forecast hours")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
}
