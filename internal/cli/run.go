package cli

import (
	"github.com/spf13/cobra"
)

var (
	runListen string
	runNoAPI  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the advisory scheduler and registration API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		if cmd.Flags().Changed("listen") {
			a.Config.API.Addr = runListen
		}
		if runNoAPI {
			a.Config.API.Enabled = false
		}
		return a.Run(cmd.Context())
	},
}

func init() {
	runCmd.Flags().StringVar(&runListen, "listen", "", "Override the registration API listen address")
	runCmd.Flags().BoolVar(&runNoAPI, "no-api", false, "Run the scheduler without the registration API")
}
