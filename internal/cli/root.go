package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lhildreth66/Routecast2-sub001/internal/app"
	"github.com/lhildreth66/Routecast2-sub001/internal/config"
	"github.com/lhildreth66/Routecast2-sub001/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:   "routecast-advisor",
	Short: "Suggest safer departure times for planned trips",
	Long: `routecast-advisor watches registered trips shortly before departure,
scores the hourly forecast at each origin and pushes a delay suggestion
when leaving later clearly avoids hazardous weather.

Settings come from --config, a .env file and ROUTECAST_* variables.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadApp,
}

// loadApp builds the application once per process from config and flags.
func loadApp(cmd *cobra.Command, _ []string) error {
	if appHandle != nil {
		return nil
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	appHandle = app.NewApp(cfg, logging.NewLogger(cfg.Logging))
	appHandle.Out = cmd.OutOrStdout()
	return nil
}

// Execute runs the root command until it returns or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "routecast-advisor:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")

	rootCmd.AddCommand(runCmd, checkNowCmd, simulateCmd, showCmd, exportCmd, versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
