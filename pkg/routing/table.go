// Package routing provides the route table consumed by the dispatcher.
//
// Path matching is delegated to julienschmidt/httprouter, which gives
// longest/most-specific matching with named parameters and catch-alls.
// The table layers Vesta's route metadata (named-middleware lists,
// cluster-group tags, per-route timeouts) and subdomain capture on top.
//
// The table is read-mostly process state: Add is safe only during setup;
// Match may run concurrently afterwards.
package routing

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/julienschmidt/httprouter"

	"meridian-hq/vesta/pkg/dispatch"
)

// Table is an httprouter-backed implementation of dispatch.Resolver.
type Table struct {
	mu sync.RWMutex

	// router holds one tree per method; Lookup returns the matched handle
	// and parameters without serving anything.
	router *httprouter.Router

	// registered tracks method+pattern pairs for duplicate detection.
	registered map[string]bool

	// baseDomain, when set, is stripped from the request host; the labels
	// left of it become the request's subdomain captures.
	baseDomain string

	sealed bool
}

// NewTable creates an empty route table. baseDomain may be "" when
// subdomain capture is not needed.
func NewTable(baseDomain string) *Table {
	r := httprouter.New()
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.HandleMethodNotAllowed = false
	return &Table{
		router:     r,
		registered: make(map[string]bool),
		baseDomain: strings.TrimPrefix(baseDomain, "."),
	}
}

// routeCapture receives the matched descriptor when a registered handle
// runs. It doubles as the http.ResponseWriter the handle is invoked with
// during Lookup-based matching; nothing is ever written through it.
type routeCapture struct {
	route *dispatch.Route
}

func (rc *routeCapture) Header() http.Header       { return http.Header{} }
func (rc *routeCapture) Write([]byte) (int, error) { return 0, nil }
func (rc *routeCapture) WriteHeader(int)           {}

// Add registers a route descriptor. Patterns use httprouter syntax
// (":param" segments, "*rest" catch-alls). Registering a duplicate or
// conflicting pattern, or registering after Seal, is an error.
func (t *Table) Add(route *dispatch.Route) error {
	if route == nil {
		return fmt.Errorf("route must not be nil")
	}
	if route.Method == "" || route.Pattern == "" {
		return fmt.Errorf("route requires a method and a pattern")
	}
	if route.Handler == nil {
		return fmt.Errorf("route %s %s requires a handler", route.Method, route.Pattern)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed {
		return fmt.Errorf("route table is sealed; routes can be added only during setup")
	}

	key := route.Method + " " + route.Pattern
	if t.registered[key] {
		return fmt.Errorf("route %s %s already registered", route.Method, route.Pattern)
	}

	// The registered handle only hands the descriptor back through the
	// capture writer; it never serves a request itself.
	r := route
	handle := func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		if rc, ok := w.(*routeCapture); ok {
			rc.route = r
		}
	}

	// httprouter panics on conflicting patterns; surface that as an error.
	var regErr error
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				regErr = fmt.Errorf("route %s %s conflicts with an existing pattern: %v", route.Method, route.Pattern, rec)
			}
		}()
		t.router.Handle(route.Method, route.Pattern, handle)
	}()
	if regErr != nil {
		return regErr
	}

	t.registered[key] = true
	return nil
}

// Seal freezes the table against further registration.
func (t *Table) Seal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sealed = true
}

// Match resolves method+path+host to the most specific registered route.
// It implements dispatch.Resolver.
func (t *Table) Match(method, path, host string) (*dispatch.Match, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	handle, params, _ := t.router.Lookup(method, path)
	if handle == nil {
		return nil, false
	}

	capture := &routeCapture{}
	handle(capture, nil, params)
	if capture.route == nil {
		return nil, false
	}

	pm := make(map[string]string, len(params))
	for _, p := range params {
		pm[p.Key] = strings.TrimPrefix(p.Value, "/")
	}

	return &dispatch.Match{
		Route:      capture.route,
		Params:     pm,
		Subdomains: t.subdomains(host),
	}, true
}

// subdomains returns the host labels left of the base domain, outermost
// first. Without a configured base domain no captures are made.
func (t *Table) subdomains(host string) []string {
	if t.baseDomain == "" || host == "" {
		return nil
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == t.baseDomain {
		return nil
	}
	suffix := "." + t.baseDomain
	if !strings.HasSuffix(host, suffix) {
		return nil
	}
	return strings.Split(strings.TrimSuffix(host, suffix), ".")
}
