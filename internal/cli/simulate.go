package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lhildreth66/Routecast2-sub001/internal/app"
)

var (
	simulateLat       float64
	simulateLon       float64
	simulateDeparture string
	simulateLive      bool
	simulateTimezone  string
	simulateToken     string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Score a departure window and print the advisory it would produce",
	RunE: func(cmd *cobra.Command, args []string) error {
		departure := time.Now().UTC().Add(time.Hour)
		if simulateDeparture != "" {
			parsed, err := time.Parse(time.RFC3339, simulateDeparture)
			if err != nil {
				return fmt.Errorf("invalid --departure value: %w", err)
			}
			departure = parsed
		}
		if simulateLat < -90 || simulateLat > 90 || simulateLon < -180 || simulateLon > 180 {
			return fmt.Errorf("--lat/--lon out of range")
		}

		opts := app.SimulateOptions{
			Lat:       simulateLat,
			Lon:       simulateLon,
			Departure: departure,
			Live:      simulateLive,
			Timezone:  simulateTimezone,
			Token:     simulateToken,
		}
		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateLat, "lat", 39.7392, "Origin latitude")
	simulateCmd.Flags().Float64Var(&simulateLon, "lon", -104.9903, "Origin longitude")
	simulateCmd.Flags().StringVar(&simulateDeparture, "departure", "", "Planned departure (RFC3339, defaults to one hour from now)")
	simulateCmd.Flags().BoolVar(&simulateLive, "live", false, "Use the live forecast instead of a synthetic storm")
	simulateCmd.Flags().StringVar(&simulateTimezone, "tz", "", "IANA timezone for the suggested departure time")
	simulateCmd.Flags().StringVar(&simulateToken, "token", "", "Deliver the composed push to this token")
}
