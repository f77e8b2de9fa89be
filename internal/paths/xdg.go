package paths

import (
	"os"
	"path/filepath"
)

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	h, _ := os.UserHomeDir()
	return h
}

func xdgDir(envVar, fallbackSuffix string) string {
	if v := os.Getenv(envVar); v != "" {
		return filepath.Join(v, "tmcli")
	}
	return filepath.Join(homeDir(), fallbackSuffix, "tmcli")
}

// ConfigDir returns the tmcli config directory ($XDG_CONFIG_HOME/tmcli).
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns the tmcli data directory ($XDG_DATA_HOME/tmcli).
func DataDir() string {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// StateDir returns the tmcli state directory ($XDG_STATE_HOME/tmcli).
func StateDir() string {
	return xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

// ConfigFile returns the path to config.toml.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// ExercisesDir returns the root directory for downloaded exercises.
func ExercisesDir() string {
	return filepath.Join(DataDir(), "exercises")
}

// WorkspaceIndexPath returns the path of the exercise-id to path index.
func WorkspaceIndexPath() string {
	return filepath.Join(DataDir(), "exercises.json")
}

// TokenPath returns the path of the persisted OAuth token.
func TokenPath() string {
	return filepath.Join(ConfigDir(), "token.json")
}

// LegacyOutputDir returns the directory holding the rotating output files
// used by the deprecated JVM helper bridge.
func LegacyOutputDir() string {
	return filepath.Join(StateDir(), "legacy-output")
}

// LogFile returns the path of the rotating log file.
func LogFile() string {
	return filepath.Join(StateDir(), "tmcli.log")
}

// EnsureDir creates a directory and parents if needed.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0700)
}
