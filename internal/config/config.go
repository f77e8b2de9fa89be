package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jkorri/tmcli/internal/paths"
)

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// DefaultHelperTimeout applies when the config does not set one.
const DefaultHelperTimeout = 2 * time.Minute

// Load reads the config file and returns the parsed Config.
// If the config file does not exist, it returns a default Config (no error).
func Load() (*Config, error) {
	return LoadFrom(paths.ConfigFile())
}

// LoadFrom reads and parses a config file at the given path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	expandConfigEnvVars(&cfg)
	return &cfg, nil
}

// HelperTimeout returns the parsed helper timeout or the default.
func (c *Config) HelperTimeout() time.Duration {
	if c.Helper.Timeout == "" {
		return DefaultHelperTimeout
	}
	d, err := time.ParseDuration(c.Helper.Timeout)
	if err != nil || d <= 0 {
		return DefaultHelperTimeout
	}
	return d
}

// ExampleConfigPath returns the default config file path (for help messages).
func ExampleConfigPath() string {
	return paths.ConfigFile()
}

func expandConfigEnvVars(cfg *Config) {
	if cfg == nil {
		return
	}

	cfg.Helper.Path = expandEnvVars(cfg.Helper.Path)
	for k, v := range cfg.Helper.Env {
		cfg.Helper.Env[k] = expandEnvVars(v)
	}

	cfg.API.BaseURL = expandEnvVars(cfg.API.BaseURL)
	cfg.API.TokenURL = expandEnvVars(cfg.API.TokenURL)
	cfg.API.ClientID = expandEnvVars(cfg.API.ClientID)
	cfg.API.ClientSecret = expandEnvVars(cfg.API.ClientSecret)

	cfg.Legacy.Java = expandEnvVars(cfg.Legacy.Java)
	cfg.Legacy.Jar = expandEnvVars(cfg.Legacy.Jar)
}

// expandEnvVars replaces ${VAR_NAME} with the value of the environment variable.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarRe.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match // leave unresolved vars as-is
	})
}
