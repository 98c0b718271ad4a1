// Package config provides Vesta's configuration: a typed YAML schema with
// defaults, validation, VESTA_* environment overrides, an optional
// fsnotify-driven hot reload, and the narrow read-only view the dispatcher
// consumes.
package config

import "time"

// Config is the root configuration structure for Vesta.
type Config struct {
	// Server contains HTTP server configuration: listen address, protocol
	// timeouts, and TLS settings.
	Server ServerConfig `yaml:"server"`

	// Cluster contains worker-topology configuration: this worker's
	// identity, the proxy toggle, and per-group port offsets.
	Cluster ClusterConfig `yaml:"cluster"`

	// Dispatch contains request-dispatch configuration: the default
	// handler timeout and the CORS policy.
	Dispatch DispatchConfig `yaml:"dispatch"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Journal contains the failure-journal configuration.
	Journal JournalConfig `yaml:"journal"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the host the server binds; the port comes from the
	// cluster section (base port plus this worker's group offset).
	// Default: "127.0.0.1"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out response
	// writes. Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle limit. Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown. Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header parsing. Default: 1MB
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// BaseDomain, when set, enables subdomain capture: host labels left
	// of it are exposed to handlers as subdomains.
	BaseDomain string `yaml:"base_domain"`

	// TLS contains the TLS listener settings.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig contains TLS listener settings.
type TLSConfig struct {
	// Enabled turns the TLS listener on.
	Enabled bool `yaml:"enabled"`

	// CertFile is the path to the PEM certificate bundle.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM private key.
	KeyFile string `yaml:"key_file"`

	// Passphrase decrypts the private key when it is stored encrypted.
	Passphrase string `yaml:"passphrase"`
}

// ClusterConfig contains worker-topology configuration.
type ClusterConfig struct {
	// Worker is this process's cluster-group identity (e.g. "web",
	// "utility"). Default: "web"
	Worker string `yaml:"worker"`

	// ProxyEnabled globally toggles cross-worker forwarding.
	// Default: true
	ProxyEnabled bool `yaml:"proxy_enabled"`

	// BasePort is the port the zero-offset group listens on; each group
	// listens on BasePort plus its offset. Default: 8000
	BasePort int `yaml:"base_port"`

	// Groups maps cluster-group names to port offsets.
	Groups map[string]int `yaml:"groups"`

	// UtilityGroup names the worker group that owns protocol-upgrade
	// traffic; cluster workers wire upgrade forwarding to it.
	// Default: "utility"
	UtilityGroup string `yaml:"utility_group"`

	// OnMismatch selects the behavior when proxying is disabled but a
	// route requires a different cluster group: "serve" (serve locally
	// with a warning) or "fail" (reject with 503). Default: "serve"
	OnMismatch string `yaml:"on_mismatch"`
}

// DispatchConfig contains request-dispatch configuration.
type DispatchConfig struct {
	// DefaultTimeout is the handler deadline for routes without their
	// own. Zero disables the timeout guard. Default: 30s
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// CORS contains the CORS policy applied by the built-in middleware.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains the CORS policy.
type CORSConfig struct {
	Enabled          bool     `yaml:"enabled"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	ExposedHeaders   []string `yaml:"exposed_headers"`
	MaxAge           int      `yaml:"max_age"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum severity: severe, warning, info, fine,
	// verbose, or debug. Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text". Default: "json"
	Format string `yaml:"format"`

	// Redact enables credential redaction in log attributes.
	// Default: true
	Redact bool `yaml:"redact"`
}

// MetricsConfig contains metrics configuration.
type MetricsConfig struct {
	// Enabled turns the Prometheus collector and /metrics route on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Namespace is the Prometheus namespace. Default: "vesta"
	Namespace string `yaml:"namespace"`

	// SummarySchedule is the cron schedule for the dispatch summary log
	// line; empty disables it. Default: "0 * * * *"
	SummarySchedule string `yaml:"summary_schedule"`
}

// JournalConfig contains the failure-journal configuration.
type JournalConfig struct {
	// Enabled turns failure persistence on. Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the SQLite database file. Default: "data/journal.db"
	Path string `yaml:"path"`

	// RetentionDays prunes journal entries older than this many days;
	// zero keeps everything. Default: 30
	RetentionDays int `yaml:"retention_days"`
}
