package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolveWithArgs(t *testing.T, args ...string) Config {
	t.Helper()
	var got Config
	cmd := BuildRootCommand(func(cfg Config) error {
		got = cfg
		return nil
	})
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return got
}

func TestResolveDefaults(t *testing.T) {
	cfg := resolveWithArgs(t, "--models-dir", t.TempDir())
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8000, cfg.Port)
	assert.True(t, cfg.AutoStart)
}

func TestResolveFlagOverridesDefault(t *testing.T) {
	cfg := resolveWithArgs(t, "--models-dir", t.TempDir(), "--port", "9000")
	assert.Equal(t, 9000, cfg.Port)
}

func TestResolveEnvOverridesDefault(t *testing.T) {
	t.Setenv("JARVIS_CORE_TOKEN", "from-env")
	cfg := resolveWithArgs(t, "--models-dir", t.TempDir())
	assert.Equal(t, "from-env", cfg.Token)
}

func TestResolveFlagOverridesEnv(t *testing.T) {
	t.Setenv("JARVIS_CORE_TOKEN", "from-env")
	cfg := resolveWithArgs(t, "--models-dir", t.TempDir(), "--token", "from-flag")
	assert.Equal(t, "from-flag", cfg.Token)
}

func TestNoAutoStartFlagDisablesAutoStart(t *testing.T) {
	cfg := resolveWithArgs(t, "--models-dir", t.TempDir(), "--no-auto-start")
	assert.False(t, cfg.AutoStart)
}

func TestMaskedHidesToken(t *testing.T) {
	cfg := Config{Token: "secret"}
	assert.Equal(t, "***", cfg.Masked().Token)
}

func TestSandboxRootsDefaultsToCwdAndModelsDir(t *testing.T) {
	dir := t.TempDir()
	cfg := resolveWithArgs(t, "--models-dir", dir)
	cwd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, []string{cwd, dir}, cfg.SandboxRoots)
}

func TestResolveRejectsMissingModelsDir(t *testing.T) {
	cmd := BuildRootCommand(func(cfg Config) error { return nil })
	cmd.SetArgs([]string{"--models-dir", "/does/not/exist/anywhere"})
	require.Error(t, cmd.Execute())
}

func init() {
	// cobra persists no global state across tests, but guard against
	// stray JARVIS_CORE_* vars leaking in from the host environment.
	for _, key := range []string{"JARVIS_CORE_TOKEN", "JARVIS_CORE_PORT", "JARVIS_CORE_HOST", "JARVIS_CORE_MODELS_DIR"} {
		os.Unsetenv(key)
	}
}
