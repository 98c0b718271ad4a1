package proxy

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse %q: %v", raw, err)
	}
	return u
}

func TestForward(t *testing.T) {
	var seen *http.Request
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Clone(r.Context())
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("from peer"))
	}))
	defer backend.Close()

	tr := NewTransport(nil)
	target := mustParseURL(t, backend.URL)

	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "http://app.example.com/widgets", strings.NewReader("payload"))
	if err := tr.Forward(w, r, target); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", w.Code)
	}
	if got := w.Body.String(); got != "from peer" {
		t.Errorf("body = %q, want %q", got, "from peer")
	}
	if seen == nil {
		t.Fatal("backend never saw the request")
	}
	if got := seen.Header.Get("X-Vesta-Forwarded"); got != "1" {
		t.Errorf("X-Vesta-Forwarded = %q, want 1", got)
	}
	if seen.Host != "app.example.com" {
		t.Errorf("Host = %q, want the original host preserved", seen.Host)
	}
	if seen.Header.Get("X-Forwarded-For") == "" {
		t.Error("X-Forwarded-For missing on the relayed request")
	}
}

func TestForwardDoesNotMutateOriginalRequest(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer backend.Close()

	tr := NewTransport(nil)
	r := httptest.NewRequest("GET", "http://app.example.com/", nil)
	if err := tr.Forward(httptest.NewRecorder(), r, mustParseURL(t, backend.URL)); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if got := r.Header.Get("X-Vesta-Forwarded"); got != "" {
		t.Errorf("original request grew header X-Vesta-Forwarded = %q", got)
	}
}

func TestForwardDownstreamFailure(t *testing.T) {
	// A listener that is immediately closed gives a connection refusal.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	deadTarget := "http://" + l.Addr().String()
	l.Close()

	tr := NewTransport(nil)
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/widgets", nil)

	err = tr.Forward(w, r, mustParseURL(t, deadTarget))
	if err == nil {
		t.Fatal("Forward() error = nil for unreachable peer")
	}
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
	if !strings.Contains(w.Body.String(), "proxy_failure") {
		t.Errorf("body = %q, want the structured proxy_failure payload", w.Body.String())
	}
}

func TestProxyCachePerTarget(t *testing.T) {
	tr := NewTransport(nil)
	a := mustParseURL(t, "http://127.0.0.1:8010")
	b := mustParseURL(t, "http://127.0.0.1:8020")

	if tr.proxyFor(a) != tr.proxyFor(a) {
		t.Error("same target built two reverse proxies")
	}
	if tr.proxyFor(a) == tr.proxyFor(b) {
		t.Error("different targets share one reverse proxy")
	}
}

func TestForwardUpgrade(t *testing.T) {
	// A raw TCP peer standing in for the utility worker: it consumes the
	// replayed handshake, then answers with a 101 and one frame.
	peerListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer peerListener.Close()

	peerReceived := make(chan []byte, 1)
	go func() {
		conn, err := peerListener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		br := bufio.NewReader(conn)
		req, err := http.ReadRequest(br)
		if err != nil {
			return
		}
		head := make([]byte, 5)
		_, _ = io.ReadFull(br, head)
		peerReceived <- append([]byte(req.Header.Get("Upgrade")+" "), head...)

		_, _ = conn.Write([]byte("HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\nframe"))
	}()

	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Upgrade", "websocket")
	r.Header.Set("Connection", "Upgrade")

	tr := NewTransport(nil)
	target := mustParseURL(t, "http://"+peerListener.Addr().String())

	done := make(chan error, 1)
	go func() {
		done <- tr.ForwardUpgrade(r, serverSide, []byte("early"), target)
	}()

	// Everything the peer wrote must arrive on the client side of the
	// hijacked connection.
	relayed, _ := io.ReadAll(clientSide)
	if !bytes.Contains(relayed, []byte("101 Switching Protocols")) {
		t.Errorf("relayed = %q, want the 101 response", relayed)
	}
	if !bytes.HasSuffix(relayed, []byte("frame")) {
		t.Errorf("relayed = %q, want the peer's frame at the end", relayed)
	}

	select {
	case got := <-peerReceived:
		if string(got) != "websocket early" {
			t.Errorf("peer received %q, want the handshake and buffered bytes", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("peer never received the handshake")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ForwardUpgrade() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ForwardUpgrade() never returned")
	}
}

func TestForwardUpgradeUnreachablePeer(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	deadTarget := "http://" + l.Addr().String()
	l.Close()

	_, serverSide := net.Pipe()
	r := httptest.NewRequest("GET", "/ws", nil)

	tr := NewTransport(nil)
	tr.DialTimeout = 500 * time.Millisecond
	if err := tr.ForwardUpgrade(r, serverSide, nil, mustParseURL(t, deadTarget)); err == nil {
		t.Error("ForwardUpgrade() error = nil for unreachable peer")
	}
}
