package config

// Config is the top-level tmcli configuration.
type Config struct {
	// Insider selects the helper-driven backend instead of the legacy
	// HTTP path.
	Insider bool `toml:"insider"`

	Helper HelperConfig `toml:"helper"`
	API    APIConfig    `toml:"api"`
	Legacy LegacyConfig `toml:"legacy"`
	Log    LogConfig    `toml:"log"`
}

// HelperConfig describes the external helper binary and invocation policy.
type HelperConfig struct {
	// Path is the helper executable. Required in insider mode.
	Path string `toml:"path"`
	// Timeout is the fixed wall-clock limit per invocation, e.g. "2m".
	Timeout string `toml:"timeout"`
	// Env holds extra environment variables merged into every invocation.
	Env map[string]string `toml:"env"`
}

// APIConfig describes the remote coursework API.
type APIConfig struct {
	BaseURL       string `toml:"base_url"`
	TokenURL      string `toml:"token_url"`
	ClientID      string `toml:"client_id"`
	ClientSecret  string `toml:"client_secret"`
	ClientName    string `toml:"client_name"`
	ClientVersion string `toml:"client_version"`
}

// LegacyConfig describes the deprecated JVM helper used by the HTTP path
// for archive extraction and compression.
type LegacyConfig struct {
	Java string `toml:"java"`
	Jar  string `toml:"jar"`
}

// LogConfig controls logging output.
type LogConfig struct {
	// Level is a logrus level name; empty means "info".
	Level string `toml:"level"`
	// File enables rotating file output when set.
	File string `toml:"file"`
}
