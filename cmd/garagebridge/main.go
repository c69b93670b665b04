// Gray Logic Garage Bridge
//
// Exposes an HTTP-controlled garage door, and its optional light, as a
// HomeKit accessory, an MQTT device and a small REST API. Door state is
// reconciled from commands and from polling the device.
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

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCommand builds the CLI. The root command runs the bridge.
func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "garagebridge",
		Short:         "Bridge an HTTP garage door controller to HomeKit, MQTT and REST",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), resolveConfigPath(configPath))
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"configuration file (default $GARAGE_CONFIG or "+defaultConfigPath+")")

	root.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "garagebridge %s (commit %s, built %s)\n", version, commit, date)
			},
		},
		&cobra.Command{
			Use:   "check-config",
			Short: "Validate the configuration and print the resolved device profile",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return checkConfig(cmd.Context(), cmd.OutOrStdout(), resolveConfigPath(configPath))
			},
		},
	)

	return root
}

// resolveConfigPath returns the flag value, then GARAGE_CONFIG, then the default.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("GARAGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
