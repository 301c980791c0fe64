package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Unleash/unleash-edge/pkg/config"
)

// testCommand mirrors the root command's persistent flags as local flags, so
// loadConfig/applyFlagOverrides can be exercised without going through
// cobra's Execute() (which is what actually merges a parent's persistent
// flags into a child's FlagSet).
func testCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", "", "")
	cmd.Flags().String("host", "", "")
	cmd.Flags().Int("port", 0, "")
	cmd.Flags().String("log-level", "", "")
	return cmd
}

func TestLoadConfig_FlagsOverrideFileAndSetMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  host: 0.0.0.0\n  port: 4000\n"), 0o644))

	cmd := testCommand()
	require.NoError(t, cmd.Flags().Set("config", path))
	require.NoError(t, cmd.Flags().Set("host", "127.0.0.1"))
	require.NoError(t, cmd.Flags().Set("port", "9999"))

	cfg, err := loadConfig(cmd, config.ModeEdgeStrict)
	require.NoError(t, err)

	assert.Equal(t, config.ModeEdgeStrict, cfg.Mode)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestLoadConfig_FileValuesSurviveWithoutFlagOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  host: 0.0.0.0\n  port: 4000\n"), 0o644))

	cmd := testCommand()
	require.NoError(t, cmd.Flags().Set("config", path))

	cfg, err := loadConfig(cmd, config.ModeEdgeDynamic)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 4000, cfg.Server.Port)
}

func TestLoadConfig_MissingFileIsNotAnError(t *testing.T) {
	cmd := testCommand()
	require.NoError(t, cmd.Flags().Set("config", filepath.Join(t.TempDir(), "absent.yaml")))

	cfg, err := loadConfig(cmd, config.ModeOffline)
	require.NoError(t, err)
	assert.Equal(t, config.ModeOffline, cfg.Mode)
}
