package main

import (
	"github.com/spf13/cobra"

	"github.com/Unleash/unleash-edge/pkg/config"
)

var edgeStrict bool

var edgeCmd = &cobra.Command{
	Use:   "edge",
	Short: "Run as an online edge instance, contacting upstream",
	Long: `edge runs the proxy in EdgeDynamic mode by default: it contacts
upstream, admits any token that validates, and refreshes its feature cache
on a timer. Pass --strict to run in EdgeStrict mode instead, admitting only
the tokens declared at startup via auth.trusted_tokens / auth.strict_tokens.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := config.ModeEdgeDynamic
		if edgeStrict {
			mode = config.ModeEdgeStrict
		}
		cfg, err := loadConfig(cmd, mode)
		if err != nil {
			return misconfigured("load configuration: %v", err)
		}
		if err := cfg.Validate(); err != nil {
			return misconfigured("%v", err)
		}
		return serve(cfg)
	},
}

func init() {
	edgeCmd.Flags().BoolVar(&edgeStrict, "strict", false, "run in EdgeStrict mode: admit only pre-declared tokens (overrides EDGE_MODE)")
}
