// Package proxy implements the cross-worker forward transport. When a
// route's cluster group does not match the current worker, the dispatcher
// hands the request here to be relayed to the sibling worker's loopback
// port; plain requests go through a reverse proxy, protocol upgrades
// through a hijacked bidirectional tunnel.
package proxy

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"

	"meridian-hq/vesta/pkg/telemetry/logging"
)

// Transport forwards requests to sibling workers. It implements
// dispatch.Transport. A Transport is safe for concurrent use; reverse
// proxies are built once per target and reused.
type Transport struct {
	logger *logging.Logger

	// DialTimeout bounds the upgrade-tunnel dial to the peer.
	DialTimeout time.Duration

	// FlushInterval is passed through to the reverse proxy; negative
	// flushes immediately, which streaming responses need.
	FlushInterval time.Duration

	mu      sync.Mutex
	proxies map[string]*httputil.ReverseProxy
}

// NewTransport creates a forward transport.
func NewTransport(logger *logging.Logger) *Transport {
	if logger == nil {
		logger = logging.Default()
	}
	return &Transport{
		logger:        logger,
		DialTimeout:   5 * time.Second,
		FlushInterval: -1,
		proxies:       make(map[string]*httputil.ReverseProxy),
	}
}

// Forward relays r to the target origin and the origin's response back to
// w. The forward is attempted exactly once; a downstream failure is
// written to w as a 502 and returned, never retried.
func (t *Transport) Forward(w http.ResponseWriter, r *http.Request, target *url.URL) error {
	rp := t.proxyFor(target)

	// The error handler runs before ServeHTTP returns, so capturing the
	// downstream error through the wrapper is safe.
	rw := &errorCapturingWriter{ResponseWriter: w}
	rp.ServeHTTP(rw, withForwardedHeaders(r))
	return rw.err
}

// errorCapturingWriter carries the downstream error from the reverse
// proxy's ErrorHandler back to Forward.
type errorCapturingWriter struct {
	http.ResponseWriter
	err error
}

// Unwrap exposes the underlying writer to http.ResponseController, so
// the reverse proxy can still flush streamed responses through the
// wrapper.
func (w *errorCapturingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// proxyFor returns the cached reverse proxy for target, building it on
// first use.
func (t *Transport) proxyFor(target *url.URL) *httputil.ReverseProxy {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rp, ok := t.proxies[target.String()]; ok {
		return rp
	}

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.Host = pr.In.Host
			pr.SetXForwarded()
		},
		FlushInterval: t.FlushInterval,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			t.logger.Warning("downstream peer failed",
				"target", target.String(), "path", r.URL.Path, "error", err)
			if cw, ok := w.(*errorCapturingWriter); ok {
				cw.err = err
			}
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":{"message":"cluster peer unavailable","code":"proxy_failure","status":502}}`))
		},
	}
	t.proxies[target.String()] = rp
	return rp
}

// ForwardUpgrade relays a protocol-upgrade handshake over the already
// hijacked client connection: it dials the peer, replays the original
// request line and headers plus any bytes the client sent ahead, then
// copies both directions until either side closes.
func (t *Transport) ForwardUpgrade(r *http.Request, conn net.Conn, head []byte, target *url.URL) error {
	defer conn.Close()

	peer, err := net.DialTimeout("tcp", target.Host, t.DialTimeout)
	if err != nil {
		return fmt.Errorf("failed to reach cluster peer %s: %w", target.Host, err)
	}
	defer peer.Close()

	if err := r.Write(peer); err != nil {
		return fmt.Errorf("failed to replay upgrade handshake: %w", err)
	}
	if len(head) > 0 {
		if _, err := peer.Write(head); err != nil {
			return fmt.Errorf("failed to replay buffered client bytes: %w", err)
		}
	}

	t.logger.Verbose("upgrade tunnel established", "target", target.Host, "path", r.URL.Path)

	// Tunnel until either side closes; the first error (or EOF) tears the
	// tunnel down.
	errc := make(chan error, 2)
	go pipe(peer, conn, errc)
	go pipe(conn, peer, errc)
	if err := <-errc; err != nil && err != io.EOF {
		return err
	}
	return nil
}

func pipe(dst io.WriteCloser, src io.Reader, errc chan<- error) {
	_, err := io.Copy(dst, src)
	// Half-close so the peer's copy loop sees EOF promptly.
	if tc, ok := dst.(interface{ CloseWrite() error }); ok {
		_ = tc.CloseWrite()
	}
	errc <- err
}

// withForwardedHeaders annotates the outbound request so the peer can
// tell it was relayed.
func withForwardedHeaders(r *http.Request) *http.Request {
	out := r.Clone(r.Context())
	out.Header.Set("X-Vesta-Forwarded", "1")
	return out
}
