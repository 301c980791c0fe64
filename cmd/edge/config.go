package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Unleash/unleash-edge/pkg/config"
)

// loadConfig loads configuration the same way for every subcommand: an
// optional --config file (falling back to config.Load's own CONFIG_FILE /
// ./config.yaml / environment-variable resolution), with command-line flags
// applied last so they take precedence over both. It does not call
// cfg.Validate — callers that have subcommand-specific overrides left to
// apply (e.g. offline's --bootstrap-file) must apply those first and
// validate once every override is in.
func loadConfig(cmd *cobra.Command, mode config.Mode) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if path, _ := cmd.Flags().GetString("config"); strings.TrimSpace(path) != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	cfg.Mode = mode
	applyFlagOverrides(cmd, cfg)
	return cfg, nil
}

func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
}
