package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration for errors.
//
// Struct-level constraints are enforced through validator tags on the
// Config types. Cross-field rules that tags cannot express (duplicate
// share names, TLS file pairing) are checked explicitly.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry is enabled but no endpoint is configured")
	}

	if cfg.Telemetry.Profiling.Enabled && cfg.Telemetry.Profiling.Endpoint == "" {
		return fmt.Errorf("profiling is enabled but no endpoint is configured")
	}

	seen := make(map[string]struct{}, len(cfg.Shares))
	for _, share := range cfg.Shares {
		if _, dup := seen[share.Name]; dup {
			return fmt.Errorf("duplicate share name: %q", share.Name)
		}
		seen[share.Name] = struct{}{}
	}

	for _, l := range cfg.Listeners {
		if (l.CertFile == "") != (l.KeyFile == "") {
			return fmt.Errorf("listener %s:%d: cert_file and key_file must be set together", l.Address, l.Port)
		}
	}

	return nil
}
