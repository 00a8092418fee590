package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lhildreth66/Routecast2-sub001/internal/app"
)

var (
	showTripID string
	showLimit  int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent notifications for a trip",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showTripID == "" {
			return fmt.Errorf("--trip must be provided")
		}
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			TripID: showTripID,
			Limit:  showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showTripID, "trip", "", "Trip identifier")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of notifications to display")
}
