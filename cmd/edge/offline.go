package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Unleash/unleash-edge/pkg/config"
)

var offlineBootstrapFile string

var offlineCmd = &cobra.Command{
	Use:   "offline",
	Short: "Run without contacting upstream, serving a bootstrap file",
	Long: `offline never dials upstream: it loads its entire feature set once
from --bootstrap-file at startup and serves every token declared in
auth.trusted_tokens as already Trusted. There is no refresh loop and no
metrics forwarding.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, config.ModeOffline)
		if err != nil {
			return misconfigured("load configuration: %v", err)
		}
		if path := strings.TrimSpace(offlineBootstrapFile); path != "" {
			cfg.BootstrapFile = path
		}
		if err := cfg.Validate(); err != nil {
			return misconfigured("%v", err)
		}
		return serve(cfg)
	},
}

func init() {
	offlineCmd.Flags().StringVar(&offlineBootstrapFile, "bootstrap-file", "", "path to the bootstrap feature file (overrides bootstrap_file / EDGE_BOOTSTRAP_FILE)")
}
