package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/qloop/internal/config"
)

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	return cfg
}

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func mockExit(t *testing.T) *int {
	t.Helper()
	code := -1
	original := exitFunc
	exitFunc = func(c int) { code = c }
	t.Cleanup(func() { exitFunc = original })
	return &code
}

func TestRootCmdFlags(t *testing.T) {
	flags := rootCmd.PersistentFlags()

	for _, name := range []string{"quiet", "verbose", "format", "output", "reports"} {
		assert.NotNil(t, flags.Lookup(name), "flag %s should exist", name)
	}
}

func TestRootCmdSubcommands(t *testing.T) {
	commandNames := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		commandNames[cmd.Name()] = true
	}

	for _, name := range []string{"score", "loop", "signals", "summary"} {
		assert.True(t, commandNames[name], "subcommand %s should be registered", name)
	}
}

func TestRootCmdVersion(t *testing.T) {
	assert.Equal(t, Version, rootCmd.Version)
}

func TestExecute_Help(t *testing.T) {
	code := mockExit(t)

	oldArgs := os.Args
	os.Args = []string{"qloop", "--help"}
	defer func() { os.Args = oldArgs }()

	Execute()

	assert.Equal(t, -1, *code, "help should not call exit")
}

func TestExecute_UnknownFlag(t *testing.T) {
	code := mockExit(t)

	oldArgs := os.Args
	os.Args = []string{"qloop", "--no-such-flag"}
	defer func() { os.Args = oldArgs }()

	Execute()

	assert.Equal(t, 1, *code)
}

func TestInitConfig(t *testing.T) {
	resetViper(t)

	tmpDir := t.TempDir()
	originalWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	defer func() { _ = os.Chdir(originalWd) }()

	tests := []struct {
		name       string
		configFile string
		content    string
	}{
		{
			name: "no config file",
		},
		{
			name:       "json config",
			configFile: ".qlooprc.json",
			content:    `{"quiet": true}`,
		},
		{
			name:       "yaml config",
			configFile: ".qlooprc.yaml",
			content:    "quiet: true\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, name := range []string{".qlooprc.json", ".qlooprc.yaml", ".qlooprc.yml"} {
				_ = os.Remove(filepath.Join(tmpDir, name))
			}
			if tt.configFile != "" {
				require.NoError(t, os.WriteFile(filepath.Join(tmpDir, tt.configFile), []byte(tt.content), 0644))
			}

			assert.NotPanics(t, initConfig)
		})
	}
}

func TestLoadInputsMergesDiscoveredReports(t *testing.T) {
	resetViper(t)

	tmpDir := t.TempDir()
	artifactPath := filepath.Join(tmpDir, "artifact.json")
	require.NoError(t, os.WriteFile(artifactPath, []byte(`{"success": true}`), 0644))

	contextPath := filepath.Join(tmpDir, "context.yaml")
	require.NoError(t, os.WriteFile(contextPath, []byte("test_results:\n  total: 5\n  failed: 0\n"), 0644))

	reportsDir := filepath.Join(tmpDir, "reports")
	require.NoError(t, os.MkdirAll(reportsDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(reportsDir, "test-report.json"),
		[]byte(`{"kind": "test", "total": 9, "failed": 3}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(reportsDir, "lint-report.json"),
		[]byte(`{"kind": "lint", "errors": 0}`), 0644))

	viper.Set("reports", reportsDir)
	cfg := loadTestConfig(t)

	artifact, ctx, err := loadInputs(cfg, artifactPath, contextPath)
	require.NoError(t, err)
	assert.Equal(t, true, artifact["success"])

	// Explicit context wins over the discovered test report.
	testResults, ok := ctx["test_results"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 5, testResults["total"])

	// Lint report only exists via discovery.
	assert.Contains(t, ctx, "lint_results")
}

func TestLoadInputsMissingArtifact(t *testing.T) {
	resetViper(t)
	viper.Set("reports", t.TempDir())
	cfg := loadTestConfig(t)

	_, _, err := loadInputs(cfg, filepath.Join(t.TempDir(), "absent.json"), "")
	assert.Error(t, err)
}
