package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// probeTimeout bounds how long a health/ready subcommand waits for a
// response before treating the probe itself as failed.
const probeTimeout = 5 * time.Second

var probeURL string

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe a running instance's /internal-backstage/health endpoint",
	Long: `health is meant for container HEALTHCHECK directives and liveness
probes: it queries a running instance and exits 0 only on HTTP 200.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProbe(cmd, "/internal-backstage/health")
	},
}

var readyCmd = &cobra.Command{
	Use:   "ready",
	Short: "Probe a running instance's /internal-backstage/ready endpoint",
	Long: `ready is meant for readiness probes: it exits 0 only once the
instance reports every environment required by a startup-declared token has
received at least one applied commit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProbe(cmd, "/internal-backstage/ready")
	},
}

func init() {
	for _, cmd := range []*cobra.Command{healthCmd, readyCmd} {
		cmd.Flags().StringVar(&probeURL, "url", "http://localhost:3063", "base URL of the running instance to probe")
	}
}

func runProbe(cmd *cobra.Command, path string) error {
	base := strings.TrimRight(strings.TrimSpace(probeURL), "/")
	if base == "" {
		return misconfigured("--url must not be empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return misconfigured("build probe request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return misconfigured("probe %s: %v", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return misconfigured("probe %s returned HTTP %d", path, resp.StatusCode)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", path)
	return nil
}
