package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var checkTripID string

var checkNowCmd = &cobra.Command{
	Use:   "check-now",
	Short: "Evaluate one registered trip immediately",
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(checkTripID) == "" {
			return fmt.Errorf("--trip must be provided")
		}
		return getApp().CheckNow(cmd.Context(), checkTripID)
	},
}

func init() {
	checkNowCmd.Flags().StringVar(&checkTripID, "trip", "", "Trip identifier")
}
