package cmd

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/codereview/internal/config"
	"github.com/joescharf/codereview/internal/output"
)

// testEnv sets up isolated config dir, viper, and output for testing.
func testEnv(t *testing.T) (string, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()

	// Override configDirFunc for tests
	origFunc := configDirFunc
	configDirFunc = func() (string, error) { return dir, nil }
	t.Cleanup(func() { configDirFunc = origFunc })

	// Reset viper
	viper.Reset()
	config.SetDefaults(viper.GetViper())
	viper.Set("output_dir", filepath.Join(dir, "reviews"))
	viper.Set("workspace.root", filepath.Join(dir, "workspaces"))
	viper.Set("cache.path", filepath.Join(dir, "cache.db"))
	viper.Set("llm.provider", "none")
	viper.Set("tools.python", filepath.Join(dir, "no-python"))
	t.Cleanup(viper.Reset)

	// Initialize output
	var out bytes.Buffer
	ui = output.New()
	ui.Out = &out
	ui.ErrOut = &out
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	return dir, &out
}

func TestConfigInit_CreatesFile(t *testing.T) {
	dir, _ := testEnv(t)

	err := configInitRun()
	require.NoError(t, err)

	cfgPath := filepath.Join(dir, "config.yaml")
	_, err = os.Stat(cfgPath)
	assert.NoError(t, err, "config file should exist")

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "codereview configuration")
	assert.Contains(t, string(data), `provider: "none"`)
	assert.Contains(t, string(data), "max_attempts: 3")
}

func TestConfigInit_TemplateIsLoadable(t *testing.T) {
	dir, _ := testEnv(t)
	require.NoError(t, configInitRun())

	v := viper.New()
	config.SetDefaults(v)
	v.SetConfigFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, v.ReadInConfig())

	cfg, err := config.FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "none", cfg.LLM.Provider)
	assert.Equal(t, filepath.Join(dir, "reviews"), cfg.OutputDir)
}

func TestConfigInit_RefusesOverwrite(t *testing.T) {
	dir, _ := testEnv(t)

	// Create existing file
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = false
	err := configInitRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestConfigInit_ForceOverwrite(t *testing.T) {
	dir, _ := testEnv(t)

	// Create existing file
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = true
	t.Cleanup(func() { configForce = false })
	err := configInitRun()
	require.NoError(t, err)

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "codereview configuration")
}

func TestConfigShow_NoFile(t *testing.T) {
	_, out := testEnv(t)

	err := configShowRun()
	assert.NoError(t, err)
	assert.Contains(t, out.String(), "llm.provider")
	assert.Contains(t, out.String(), "telemetry.otlp_endpoint")
}

func TestConfigShow_WithFile(t *testing.T) {
	testEnv(t)

	// Create config first
	require.NoError(t, configInitRun())

	err := configShowRun()
	assert.NoError(t, err)
}

func TestConfigEdit_NoEditor(t *testing.T) {
	testEnv(t)
	t.Setenv("EDITOR", "")
	t.Setenv("VISUAL", "")

	err := configEditRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "$EDITOR is not set")
}

func TestConfigEdit_NoConfigFile(t *testing.T) {
	testEnv(t)
	t.Setenv("EDITOR", "echo") // harmless command

	err := configEditRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestDetectSource(t *testing.T) {
	fileValues := map[string]bool{"key_a": true}

	// From env
	t.Setenv("CODEREVIEW_TEST_KEY", "val")
	assert.Contains(t, detectSource("test_key", "CODEREVIEW_TEST_KEY", fileValues), "env")

	// From file
	assert.Contains(t, detectSource("key_a", "CODEREVIEW_KEY_A_NONEXISTENT", fileValues), "file")

	// Default
	assert.Contains(t, detectSource("key_b", "CODEREVIEW_KEY_B_NONEXISTENT", fileValues), "default")
}

func TestConfigKeys_EnvNames(t *testing.T) {
	for _, k := range configKeys {
		assert.Regexp(t, `^CODEREVIEW_[A-Z_]+$`, k.EnvVar, k.Key)
	}
}

func TestFlattenKeys(t *testing.T) {
	input := map[string]any{
		"top": "val",
		"nested": map[string]any{
			"a": "1",
			"b": "2",
		},
	}

	result := make(map[string]bool)
	flattenKeys("", input, result)

	assert.True(t, result["top"])
	assert.True(t, result["nested.a"])
	assert.True(t, result["nested.b"])
	assert.False(t, result["nested"])
}

func TestConfigInit_DryRun(t *testing.T) {
	dir, _ := testEnv(t)
	dryRun = true
	ui.DryRun = true
	defer func() { dryRun = false }()

	err := configInitRun()
	require.NoError(t, err)

	// File should NOT have been created
	cfgPath := filepath.Join(dir, "config.yaml")
	_, err = os.Stat(cfgPath)
	assert.True(t, os.IsNotExist(err), "config file should not exist in dry-run mode")
}
