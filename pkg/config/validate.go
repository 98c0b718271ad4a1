package config

import (
	"fmt"

	"meridian-hq/vesta/pkg/telemetry/logging"
)

// Validate checks the configuration for errors that would make the
// process misbehave at runtime. It is called by the loaders after
// defaults and after environment overrides.
func Validate(cfg *Config) error {
	if cfg.Cluster.BasePort <= 0 || cfg.Cluster.BasePort > 65535 {
		return fmt.Errorf("cluster.base_port must be in 1..65535, got %d", cfg.Cluster.BasePort)
	}

	offset, ok := cfg.Cluster.Groups[cfg.Cluster.Worker]
	if !ok {
		return fmt.Errorf("cluster.groups has no entry for worker %q", cfg.Cluster.Worker)
	}
	if port := cfg.Cluster.BasePort + offset; port <= 0 || port > 65535 {
		return fmt.Errorf("worker %q would listen on invalid port %d", cfg.Cluster.Worker, port)
	}
	for group, off := range cfg.Cluster.Groups {
		if port := cfg.Cluster.BasePort + off; port <= 0 || port > 65535 {
			return fmt.Errorf("cluster group %q maps to invalid port %d", group, port)
		}
	}

	switch cfg.Cluster.OnMismatch {
	case "serve", "fail":
	default:
		return fmt.Errorf("cluster.on_mismatch must be \"serve\" or \"fail\", got %q", cfg.Cluster.OnMismatch)
	}

	if cfg.Dispatch.DefaultTimeout < 0 {
		return fmt.Errorf("dispatch.default_timeout must not be negative")
	}

	if _, err := logging.ParseLevel(cfg.Telemetry.Logging.Level); err != nil {
		return fmt.Errorf("telemetry.logging.level: %w", err)
	}
	switch cfg.Telemetry.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("telemetry.logging.format must be \"json\" or \"text\", got %q", cfg.Telemetry.Logging.Format)
	}

	if cfg.Server.TLS.Enabled {
		if cfg.Server.TLS.CertFile == "" {
			return fmt.Errorf("server.tls.cert_file is required when TLS is enabled")
		}
		if cfg.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls.key_file is required when TLS is enabled")
		}
	}

	if cfg.Journal.Enabled && cfg.Journal.Path == "" {
		return fmt.Errorf("journal.path is required when the journal is enabled")
	}
	if cfg.Journal.RetentionDays < 0 {
		return fmt.Errorf("journal.retention_days must not be negative")
	}

	return nil
}
