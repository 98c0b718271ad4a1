package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"meridian-hq/vesta/pkg/config"
	"meridian-hq/vesta/pkg/dispatch"
	"meridian-hq/vesta/pkg/dispatch/middleware"
	"meridian-hq/vesta/pkg/journal"
	"meridian-hq/vesta/pkg/proxy"
	"meridian-hq/vesta/pkg/routing"
	"meridian-hq/vesta/pkg/server"
	"meridian-hq/vesta/pkg/telemetry/logging"
	"meridian-hq/vesta/pkg/telemetry/metrics"
)

var runFlags struct {
	worker        string
	listenAddress string
	logLevel      string
	watchConfig   bool
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a Vesta worker",
	Long: `Start a Vesta worker with the specified configuration.

The worker listens on the cluster base port plus its group offset and
dispatches requests through the middleware pipeline, forwarding routes
owned by other groups to their loopback peers.

Examples:
  # Start with default config
  vesta run

  # Start with custom config
  vesta run --config /etc/vesta/config.yaml

  # Start as the utility worker
  vesta run --worker utility

  # Validate config without starting
  vesta run --dry-run`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.worker, "worker", "w", "", "override cluster worker group")
	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (severe, warning, info, fine, verbose, debug)")
	runCmd.Flags().BoolVar(&runFlags.watchConfig, "watch-config", true, "reload configuration on file change")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the worker")
}

func runWorker(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Apply flag overrides
	if runFlags.worker != "" {
		cfg.Cluster.Worker = runFlags.worker
	}
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	// Initialize logging
	logger, err := logging.New(logging.Config{
		Level:  cfg.Telemetry.Logging.Level,
		Format: logging.LogFormat(cfg.Telemetry.Logging.Format),
		Redact: cfg.Telemetry.Logging.Redact,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logging.SetDefault(logger)

	printBanner(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Shared read view plus optional hot reload
	reader := config.NewReader(cfg)
	if runFlags.watchConfig {
		watcher, err := config.NewWatcher(cfgFile, reader, logger)
		if err != nil {
			logger.Warning("config watcher unavailable", "error", err)
		} else {
			go func() {
				if err := watcher.Watch(ctx); err != nil {
					logger.Warning("config watcher stopped", "error", err)
				}
			}()
			defer watcher.Stop()
		}
	}

	// Metrics
	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(metrics.Config{
			Namespace: cfg.Telemetry.Metrics.Namespace,
		}, nil)

		if schedule := cfg.Telemetry.Metrics.SummarySchedule; schedule != "" {
			reporter, err := metrics.NewSummaryReporter(collector, logger, schedule)
			if err != nil {
				logger.Warning("summary reporter disabled", "error", err, "schedule", schedule)
			} else {
				reporter.Start()
				defer reporter.Stop()
			}
		}
		fmt.Println("✓ Metrics collector initialized")
	}

	// Failure journal
	var jrnl *journal.Journal
	if cfg.Journal.Enabled {
		jrnl, err = journal.Open(journal.Config{
			Path:          cfg.Journal.Path,
			RetentionDays: cfg.Journal.RetentionDays,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to open failure journal: %w", err)
		}
		defer jrnl.Close()
		fmt.Printf("✓ Failure journal open (%s)\n", cfg.Journal.Path)
	}

	// Route table with the built-in diagnostic routes
	table := routing.NewTable(cfg.Server.BaseDomain)
	if err := registerDiagnosticRoutes(table, cfg, collector, jrnl); err != nil {
		return fmt.Errorf("failed to register routes: %w", err)
	}
	table.Seal()

	// Dispatcher
	transport := proxy.NewTransport(logger)
	dispatcher := dispatch.New(reader.DispatchConfig(), table, transport, logger, collector)
	if jrnl != nil {
		dispatcher.SetReporter(jrnl)
	}

	corsConfig := corsFromConfig(cfg.Dispatch.CORS)
	if err := dispatcher.Use(middleware.Recover(), middleware.RequestID(), middleware.AccessLog(logger)); err != nil {
		return fmt.Errorf("failed to register server middleware: %w", err)
	}
	if err := dispatcher.RegisterGlobal([]dispatch.Middleware{middleware.CORS(corsConfig)}); err != nil {
		return fmt.Errorf("failed to register global middleware: %w", err)
	}
	if err := dispatcher.RegisterNamed("throttle", middleware.Throttle()); err != nil {
		return fmt.Errorf("failed to register named middleware: %w", err)
	}

	// HTTP server
	srv := server.NewClusterServer(cfg, dispatcher, transport, logger)

	fmt.Println()
	fmt.Printf("✓ Worker %q listening on %s\n", cfg.Cluster.Worker, srv.Addr())
	fmt.Printf("✓ Health endpoint: http://%s/healthz\n", srv.Addr())
	if collector != nil {
		fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", srv.Addr())
	}
	fmt.Println("\nPress Ctrl+C to stop")

	return srv.Start(ctx)
}

// registerDiagnosticRoutes adds the worker's built-in routes: liveness,
// Prometheus metrics, and the recent-failures view. The journal route is
// pinned to the utility group so it exercises cluster affinity on web
// workers.
func registerDiagnosticRoutes(table *routing.Table, cfg *config.Config, collector *metrics.Collector, jrnl *journal.Journal) error {
	err := table.Add(&dispatch.Route{
		Method:  http.MethodGet,
		Pattern: "/healthz",
		Handler: func(c *dispatch.Context) (any, error) {
			return map[string]any{
				"status": "ok",
				"worker": cfg.Cluster.Worker,
				"time":   time.Now().UTC().Format(time.RFC3339),
			}, nil
		},
	})
	if err != nil {
		return err
	}

	if collector != nil {
		promHandler := collector.Handler()
		err = table.Add(&dispatch.Route{
			Method:  http.MethodGet,
			Pattern: "/metrics",
			Handler: func(c *dispatch.Context) (any, error) {
				promHandler.ServeHTTP(c.Response.Writer(), c.Request)
				c.Response.MarkEnded()
				return nil, nil
			},
		})
		if err != nil {
			return err
		}
	}

	if jrnl != nil {
		err = table.Add(&dispatch.Route{
			Method:       http.MethodGet,
			Pattern:      "/journal/recent",
			ClusterGroup: cfg.Cluster.UtilityGroup,
			Handler: func(c *dispatch.Context) (any, error) {
				limit := 50
				if raw := c.Request.URL.Query().Get("limit"); raw != "" {
					if n, err := strconv.Atoi(raw); err == nil && n > 0 {
						limit = n
					}
				}
				entries, err := jrnl.Recent(limit)
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"entries": entries,
					"dropped": jrnl.Dropped(),
				}, nil
			},
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func corsFromConfig(cfg config.CORSConfig) *middleware.CORSConfig {
	if !cfg.Enabled {
		return &middleware.CORSConfig{}
	}
	out := &middleware.CORSConfig{
		Enabled:          true,
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		ExposedHeaders:   cfg.ExposedHeaders,
		MaxAge:           cfg.MaxAge,
		AllowCredentials: cfg.AllowCredentials,
	}
	if len(out.AllowedOrigins) == 0 {
		defaults := middleware.DefaultCORSConfig()
		out.AllowedOrigins = defaults.AllowedOrigins
		out.AllowedMethods = defaults.AllowedMethods
		out.AllowedHeaders = defaults.AllowedHeaders
		out.ExposedHeaders = defaults.ExposedHeaders
		out.MaxAge = defaults.MaxAge
	}
	return out
}

func printBanner(cfg *config.Config) {
	fmt.Printf("Vesta v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")
	fmt.Printf("✓ Cluster worker: %s (proxy %s)\n", cfg.Cluster.Worker, onOff(cfg.Cluster.ProxyEnabled))
}

func onOff(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
