// Command edge is the feature-flag edge proxy: it wires the composition
// root (internal/edgeapp) to a downstream HTTP listener and a handful of
// operational subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Unleash/unleash-edge/pkg/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "unleash-edge",
	Short: "Feature-flag evaluation edge proxy",
	Long: `edge terminates SDK traffic close to clients, serves flag
configurations and evaluated flag states from an in-memory cache, and
forwards usage metrics upstream in aggregated batches.`,
	Version:       version.FullVersion(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("unleash-edge {{.Version}}\n")

	rootCmd.PersistentFlags().String("config", "", "path to a YAML configuration file (overrides CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("host", "", "HTTP listen host (overrides server.host / SERVER_HOST)")
	rootCmd.PersistentFlags().Int("port", 0, "HTTP listen port (overrides server.port / SERVER_PORT)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")

	rootCmd.AddCommand(edgeCmd)
	rootCmd.AddCommand(offlineCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(readyCmd)
}

// exitCode is implemented by errors that carry a specific process exit code,
// distinguishing a probe failure / fatal misconfiguration (1) from an
// unrecoverable runtime fault during startup (2).
type exitCode interface {
	ExitCode() int
}

func exitCodeFor(err error) int {
	if ec, ok := err.(exitCode); ok {
		return ec.ExitCode()
	}
	return 1
}
