// Homefleet Core - MQTT device fleet manager
//
// This is the main entry point for the homefleet binary. The same binary runs
// the long-lived service (homefleet serve) and the one-shot operator commands
// that dispatch, schedule and inspect devices against the same database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnv names the environment variable that overrides the config path.
const configEnv = "HOMEFLEET_CONFIG"

func main() {
	// Cancel on Ctrl+C and SIGTERM so serve can shut down gracefully.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// options carries the persistent flags shared by every subcommand.
type options struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "homefleet",
		Short: "Manage an MQTT device fleet",
		Long: `homefleet subscribes to device topics on an MQTT broker, keeps a registry
of devices and their sensors, and sends commands now or on a schedule.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"path to config.yaml (default $"+configEnv+" or "+defaultConfigPath+")")

	root.AddCommand(
		newServeCmd(opts),
		newDispatchCmd(opts),
		newScheduleCmd(opts),
		newInterpretCmd(opts),
		newDevicesCmd(opts),
		newLogsCmd(opts),
		newVersionCmd(),
	)
	return root
}

// getConfigPath returns the config file path: the --config flag, then the
// HOMEFLEET_CONFIG environment variable, then the default.
func getConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd, map[string]string{
				"version":    version,
				"commit":     commit,
				"build_date": date,
			})
		},
	}
}
