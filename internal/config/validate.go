package config

import (
	"fmt"
	"time"
)

// Validate checks the parts of the config the selected backend will need.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Helper.Timeout != "" {
		d, err := time.ParseDuration(cfg.Helper.Timeout)
		if err != nil {
			return fmt.Errorf("invalid helper timeout %q: %w", cfg.Helper.Timeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("helper timeout must be positive, got %q", cfg.Helper.Timeout)
		}
	}

	if cfg.Insider {
		if cfg.Helper.Path == "" {
			return fmt.Errorf("insider mode requires helper.path")
		}
	} else {
		if cfg.API.BaseURL == "" {
			return fmt.Errorf("legacy mode requires api.base_url")
		}
		if cfg.API.TokenURL == "" {
			return fmt.Errorf("legacy mode requires api.token_url")
		}
	}

	if cfg.API.ClientName == "" {
		return fmt.Errorf("api.client_name is required")
	}
	if cfg.API.ClientVersion == "" {
		return fmt.Errorf("api.client_version is required")
	}
	return nil
}
