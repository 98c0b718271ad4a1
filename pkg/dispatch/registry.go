package dispatch

import (
	"strings"
	"sync"
)

// Registry holds the three middleware sources a chain can be composed
// from: server-level middleware (run unconditionally), global middleware
// (run for every routed request), and named middleware (run when a route
// references them by id).
//
// Registration is additive: registering again concatenates to the
// existing list, never replaces it. Registries are read-mostly process
// state: registration is safe only during setup or under the registry's
// own lock; composition and execution may run concurrently afterwards.
type Registry struct {
	mu     sync.RWMutex
	server []Middleware
	global []Middleware
	named  map[string]NamedFactory
}

// NewRegistry returns an empty middleware registry.
func NewRegistry() *Registry {
	return &Registry{named: make(map[string]NamedFactory)}
}

// Use appends server-level middleware, run unconditionally for every
// request before route middleware. Nil entries are a configuration
// failure reported here, at registration time.
func (reg *Registry) Use(mws ...Middleware) error {
	if err := validate("server", mws); err != nil {
		return err
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.server = append(reg.server, mws...)
	return nil
}

// RegisterGlobal appends middleware run for every routed request, before
// any route-named middleware. Nil entries are a configuration failure
// reported here, at registration time.
func (reg *Registry) RegisterGlobal(mws []Middleware) error {
	if err := validate("global", mws); err != nil {
		return err
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.global = append(reg.global, mws...)
	return nil
}

// RegisterNamed registers a middleware factory under a stable id that
// routes reference in their middleware lists. The factory receives the
// colon-delimited parameter suffix of the reference ("auth:basic" resolves
// the "auth" factory with arg "basic") when the chain is composed.
func (reg *Registry) RegisterNamed(name string, factory NamedFactory) error {
	if name == "" {
		return &RegistrationError{Kind: "named", Reason: "name must not be empty"}
	}
	if strings.Contains(name, ":") {
		return &RegistrationError{Kind: "named", Name: name, Reason: "name must not contain a parameter separator"}
	}
	if factory == nil {
		return &RegistrationError{Kind: "named", Name: name, Reason: "factory must not be nil"}
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.named[name]; exists {
		return &RegistrationError{Kind: "named", Name: name, Reason: "already registered"}
	}
	reg.named[name] = factory
	return nil
}

// ComposeServer returns the chain of server-level middleware, in
// registration order.
func (reg *Registry) ComposeServer() Chain {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	chain := make(Chain, len(reg.server))
	copy(chain, reg.server)
	return chain
}

// ComposeGlobalAndNamed returns the chain for a routed request: all
// global middleware in registration order, followed by the route's named
// references resolved through the registry in the order listed. Named ids
// are resolved here, at composition time; an unregistered id fails the
// composition.
func (reg *Registry) ComposeGlobalAndNamed(ids []string) (Chain, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	chain := make(Chain, 0, len(reg.global)+len(ids))
	chain = append(chain, reg.global...)

	for _, id := range ids {
		name, arg, _ := strings.Cut(id, ":")
		factory, ok := reg.named[name]
		if !ok {
			return nil, &UnknownMiddlewareError{ID: id}
		}
		mw := factory(arg)
		if mw == nil {
			return nil, &RegistrationError{Kind: "named", Name: id, Reason: "factory produced nil middleware"}
		}
		chain = append(chain, mw)
	}
	return chain, nil
}

func validate(kind string, mws []Middleware) error {
	if len(mws) == 0 {
		return &RegistrationError{Kind: kind, Reason: "no middleware supplied"}
	}
	for _, mw := range mws {
		if mw == nil {
			return &RegistrationError{Kind: kind, Reason: "middleware must not be nil"}
		}
	}
	return nil
}

// Chain is an ordered, immutable sequence of middleware. Once composed
// for a request it never mutates during execution.
type Chain []Middleware

// Run executes the chain in order. Each link receives the shared context
// and a next continuation; a link that returns without calling next halts
// the chain. When final is non-nil it is appended as the last link,
// invoked only if every prior link called next; its return value is
// staged on the response under the set-if-unset rule.
//
// The first failure from any link aborts the chain immediately and is
// returned to the caller; there is no partial retry.
func (ch Chain) Run(c *Context, final Handler) error {
	var run func(i int) error
	run = func(i int) error {
		if i < len(ch) {
			return ch[i](c, func() error { return run(i + 1) })
		}
		if final == nil {
			return nil
		}
		out, err := final(c)
		if err != nil {
			return err
		}
		return stageResult(c, out)
	}
	return run(0)
}

// stageResult applies the set-if-unset rule to a handler return value.
func stageResult(c *Context, out any) error {
	if out == nil {
		return nil
	}
	switch v := out.(type) {
	case []byte:
		c.Response.StageIfUnset(v)
	case string:
		c.Response.StageIfUnset([]byte(v))
	default:
		if c.Response.State() != StatePending {
			return nil
		}
		return c.Response.JSON(200, v)
	}
	return nil
}
