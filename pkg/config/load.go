package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// seedConfig returns the config the YAML document is unmarshaled over.
// Toggles that default to true must be set here: absent YAML fields leave
// the struct untouched, so this is where "on unless disabled" lives.
func seedConfig() *Config {
	cfg := &Config{}
	cfg.Cluster.ProxyEnabled = true
	cfg.Dispatch.CORS.Enabled = true
	cfg.Telemetry.Logging.Redact = true
	cfg.Telemetry.Metrics.Enabled = true
	cfg.Journal.Enabled = true
	return cfg
}

// LoadConfig loads configuration from a YAML file, applies defaults, and
// validates. Environment overrides are not applied; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := seedConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides. Variables follow the naming
// convention VESTA_SECTION_FIELD (e.g. VESTA_CLUSTER_WORKER) and always
// take precedence over file values.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies VESTA_* environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("VESTA_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("VESTA_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("VESTA_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if val := os.Getenv("VESTA_SERVER_BASE_DOMAIN"); val != "" {
		cfg.Server.BaseDomain = val
	}

	if val := os.Getenv("VESTA_CLUSTER_WORKER"); val != "" {
		cfg.Cluster.Worker = val
	}
	if val := os.Getenv("VESTA_CLUSTER_PROXY_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Cluster.ProxyEnabled = b
		}
	}
	if val := os.Getenv("VESTA_CLUSTER_BASE_PORT"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Cluster.BasePort = i
		}
	}
	if val := os.Getenv("VESTA_CLUSTER_ON_MISMATCH"); val != "" {
		cfg.Cluster.OnMismatch = val
	}

	if val := os.Getenv("VESTA_DISPATCH_DEFAULT_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Dispatch.DefaultTimeout = d
		}
	}

	if val := os.Getenv("VESTA_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("VESTA_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}

	if val := os.Getenv("VESTA_JOURNAL_PATH"); val != "" {
		cfg.Journal.Path = val
	}
}

// Lookup resolves a dotted configuration key ("cluster.base_port") to its
// current value, for diagnostic surfaces that want a stringly view
// without access to the typed struct. Returns false for unknown keys.
//
// The table below is maintained by hand; the typed accessors on Reader
// are the supported programmatic surface.
func (c *Config) Lookup(key string) (any, bool) {
	switch strings.ToLower(key) {
	case "server.listen_address":
		return c.Server.ListenAddress, true
	case "server.read_timeout":
		return c.Server.ReadTimeout, true
	case "server.write_timeout":
		return c.Server.WriteTimeout, true
	case "server.base_domain":
		return c.Server.BaseDomain, true
	case "cluster.worker":
		return c.Cluster.Worker, true
	case "cluster.proxy_enabled":
		return c.Cluster.ProxyEnabled, true
	case "cluster.base_port":
		return c.Cluster.BasePort, true
	case "cluster.utility_group":
		return c.Cluster.UtilityGroup, true
	case "cluster.on_mismatch":
		return c.Cluster.OnMismatch, true
	case "cluster.groups":
		return c.Cluster.Groups, true
	case "dispatch.default_timeout":
		return c.Dispatch.DefaultTimeout, true
	case "telemetry.logging.level":
		return c.Telemetry.Logging.Level, true
	case "telemetry.metrics.enabled":
		return c.Telemetry.Metrics.Enabled, true
	case "journal.enabled":
		return c.Journal.Enabled, true
	case "journal.path":
		return c.Journal.Path, true
	default:
		return nil, false
	}
}
