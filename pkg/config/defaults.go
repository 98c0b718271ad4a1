package config

import "time"

// Default values for configuration fields.
const (
	DefaultListenAddress   = "127.0.0.1"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	DefaultWorker       = "web"
	DefaultBasePort     = 8000
	DefaultUtilityGroup = "utility"
	DefaultOnMismatch   = "serve"

	DefaultDispatchTimeout = 30 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsNamespace = "vesta"
	DefaultSummarySchedule  = "0 * * * *"

	DefaultJournalPath          = "data/journal.db"
	DefaultJournalRetentionDays = 30

	DefaultCORSMaxAge = 3600
)

// NewDefaultConfig returns a configuration with every default applied.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills unset fields with default values. Boolean toggles
// that default to true are handled by the YAML loader, which applies
// defaults before unmarshaling over them.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	if cfg.Cluster.Worker == "" {
		cfg.Cluster.Worker = DefaultWorker
	}
	if cfg.Cluster.BasePort == 0 {
		cfg.Cluster.BasePort = DefaultBasePort
	}
	if cfg.Cluster.UtilityGroup == "" {
		cfg.Cluster.UtilityGroup = DefaultUtilityGroup
	}
	if cfg.Cluster.OnMismatch == "" {
		cfg.Cluster.OnMismatch = DefaultOnMismatch
	}
	if cfg.Cluster.Groups == nil {
		cfg.Cluster.Groups = map[string]int{
			DefaultWorker:       0,
			DefaultUtilityGroup: 10,
		}
	}

	if cfg.Dispatch.DefaultTimeout == 0 {
		cfg.Dispatch.DefaultTimeout = DefaultDispatchTimeout
	}
	if cfg.Dispatch.CORS.AllowedOrigins == nil {
		cfg.Dispatch.CORS.AllowedOrigins = []string{"*"}
	}
	if cfg.Dispatch.CORS.AllowedMethods == nil {
		cfg.Dispatch.CORS.AllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if cfg.Dispatch.CORS.AllowedHeaders == nil {
		cfg.Dispatch.CORS.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-ID"}
	}
	if cfg.Dispatch.CORS.ExposedHeaders == nil {
		cfg.Dispatch.CORS.ExposedHeaders = []string{"X-Request-ID"}
	}
	if cfg.Dispatch.CORS.MaxAge == 0 {
		cfg.Dispatch.CORS.MaxAge = DefaultCORSMaxAge
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.SummarySchedule == "" {
		cfg.Telemetry.Metrics.SummarySchedule = DefaultSummarySchedule
	}

	if cfg.Journal.Path == "" {
		cfg.Journal.Path = DefaultJournalPath
	}
	if cfg.Journal.RetentionDays == 0 {
		cfg.Journal.RetentionDays = DefaultJournalRetentionDays
	}
}
