// Package server provides Vesta's HTTP listening surface: plain HTTP,
// TLS-terminated HTTPS, and the cluster-worker variant that forwards
// protocol upgrades to the utility peer.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"meridian-hq/vesta/pkg/config"
	"meridian-hq/vesta/pkg/proxy"
	"meridian-hq/vesta/pkg/telemetry/logging"
)

// HotSwapError reports an attempt to replace an already-initialized
// server transport. This is fatal at setup time and is never recovered
// per-request.
type HotSwapError struct {
	Op string
}

func (e *HotSwapError) Error() string {
	return fmt.Sprintf("cannot %s: server transport already initialized", e.Op)
}

// Server is Vesta's HTTP server for one worker process. It binds the
// worker's port (cluster base port plus this worker's group offset),
// serves requests through the dispatcher, and optionally tunnels
// protocol-upgrade requests to the utility peer.
type Server struct {
	cfg     *config.Config
	handler http.Handler
	logger  *logging.Logger

	// upgradeTarget, when non-nil, receives every protocol-upgrade
	// request instead of the local dispatcher.
	upgradeTarget *url.URL
	transport     *proxy.Transport

	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates a server for the given configuration and dispatch
// handler.
func NewServer(cfg *config.Config, handler http.Handler, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Default()
	}
	return &Server{
		cfg:          cfg,
		handler:      handler,
		logger:       logger,
		shutdownChan: make(chan struct{}),
	}
}

// NewClusterServer creates a server wired for cluster operation: when
// proxying is enabled and this worker is not itself the utility worker,
// protocol-upgrade requests are tunneled to the utility peer instead of
// being dispatched locally.
func NewClusterServer(cfg *config.Config, handler http.Handler, transport *proxy.Transport, logger *logging.Logger) *Server {
	s := NewServer(cfg, handler, logger)
	s.transport = transport

	cluster := cfg.Cluster
	if cluster.ProxyEnabled && cluster.Worker != cluster.UtilityGroup && transport != nil {
		if offset, ok := cluster.Groups[cluster.UtilityGroup]; ok {
			s.upgradeTarget = &url.URL{
				Scheme: "http",
				Host:   net.JoinHostPort("127.0.0.1", strconv.Itoa(cluster.BasePort+offset)),
			}
		} else {
			logger.Warning("utility group has no port offset; upgrade forwarding disabled",
				"utility_group", cluster.UtilityGroup)
		}
	}
	return s
}

// Addr returns the address this worker binds: the configured listen host
// and the worker's cluster port.
func (s *Server) Addr() string {
	offset := s.cfg.Cluster.Groups[s.cfg.Cluster.Worker]
	return net.JoinHostPort(s.cfg.Server.ListenAddress, strconv.Itoa(s.cfg.Cluster.BasePort+offset))
}

// Start starts the server and blocks until shutdown. Starting a server
// that is already running is a HotSwapError.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return &HotSwapError{Op: "start"}
	}
	s.isRunning = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:           s.Addr(),
		Handler:        s.rootHandler(),
		ReadTimeout:    s.cfg.Server.ReadTimeout,
		WriteTimeout:   s.cfg.Server.WriteTimeout,
		IdleTimeout:    s.cfg.Server.IdleTimeout,
		MaxHeaderBytes: s.cfg.Server.MaxHeaderBytes,
	}

	tlsEnabled := s.cfg.Server.TLS.Enabled
	if tlsEnabled {
		tlsConfig, err := buildTLSConfig(s.cfg.Server.TLS)
		if err != nil {
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
		s.httpServer.TLSConfig = tlsConfig
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"address", s.httpServer.Addr,
			"worker", s.cfg.Cluster.Worker,
			"proxy_enabled", s.cfg.Cluster.ProxyEnabled,
			"tls_enabled", tlsEnabled,
			"upgrade_forwarding", s.upgradeTarget != nil,
		)

		var err error
		if tlsEnabled {
			// Certificates are already loaded into the TLS config.
			err = s.httpServer.ListenAndServeTLS("", "")
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully stops the server, waiting up to the configured
// shutdown timeout for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown", "timeout", s.cfg.Server.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Severe("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("server stopped")
	})

	return shutdownErr
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// rootHandler wraps the dispatch handler with upgrade forwarding when
// this worker delegates upgrades to the utility peer.
func (s *Server) rootHandler() http.Handler {
	if s.upgradeTarget == nil {
		return s.handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isUpgradeRequest(r) {
			s.forwardUpgrade(w, r)
			return
		}
		s.handler.ServeHTTP(w, r)
	})
}

// forwardUpgrade hijacks the client connection and tunnels the upgrade
// handshake to the utility peer.
func (s *Server) forwardUpgrade(w http.ResponseWriter, r *http.Request) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "upgrade not supported", http.StatusBadGateway)
		return
	}
	conn, rw, err := hj.Hijack()
	if err != nil {
		s.logger.Warning("failed to hijack upgrade connection", "error", err)
		return
	}
	var head []byte
	if rw != nil && rw.Reader.Buffered() > 0 {
		head, _ = rw.Reader.Peek(rw.Reader.Buffered())
	}
	if err := s.transport.ForwardUpgrade(r, conn, head, s.upgradeTarget); err != nil {
		s.logger.Warning("upgrade forward to utility peer failed",
			"target", s.upgradeTarget.Host, "error", err)
	}
}

// isUpgradeRequest reports whether the request asks for a protocol
// upgrade.
func isUpgradeRequest(r *http.Request) bool {
	if r.Header.Get("Upgrade") == "" {
		return false
	}
	for _, v := range r.Header.Values("Connection") {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), "upgrade") {
				return true
			}
		}
	}
	return false
}
