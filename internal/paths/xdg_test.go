package paths

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXDGEnvOverrides(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/cfg")
	t.Setenv("XDG_DATA_HOME", "/tmp/data")
	t.Setenv("XDG_STATE_HOME", "/tmp/state")

	assert.Equal(t, filepath.Join("/tmp/cfg", "tmcli"), ConfigDir())
	assert.Equal(t, filepath.Join("/tmp/cfg", "tmcli", "config.toml"), ConfigFile())
	assert.Equal(t, filepath.Join("/tmp/cfg", "tmcli", "token.json"), TokenPath())
	assert.Equal(t, filepath.Join("/tmp/data", "tmcli", "exercises"), ExercisesDir())
	assert.Equal(t, filepath.Join("/tmp/state", "tmcli", "legacy-output"), LegacyOutputDir())
}

func TestXDGHomeFallback(t *testing.T) {
	t.Setenv("HOME", "/home/learner")
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_DATA_HOME", "")

	assert.Equal(t, filepath.Join("/home/learner", ".config", "tmcli"), ConfigDir())
	assert.Equal(t, filepath.Join("/home/learner", ".local", "share", "tmcli"), DataDir())
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir))
	require.NoError(t, EnsureDir(dir))
}
