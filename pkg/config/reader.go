package config

import (
	"sync"
	"time"

	"meridian-hq/vesta/pkg/dispatch"
)

// Reader is the narrow, read-only accessor surface request-handling code
// sees. It holds the current configuration behind a lock so a hot reload
// can swap it atomically; callers never read ambient process state.
type Reader struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewReader wraps cfg in a Reader.
func NewReader(cfg *Config) *Reader {
	return &Reader{cfg: cfg}
}

// Swap replaces the underlying configuration. Used by the hot-reload
// watcher; in-flight requests keep the snapshot they started with.
func (r *Reader) Swap(cfg *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
}

// Current returns the live configuration.
func (r *Reader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// Worker returns this process's cluster-group identity.
func (r *Reader) Worker() string {
	return r.Current().Cluster.Worker
}

// ProxyEnabled reports whether cross-worker forwarding is on.
func (r *Reader) ProxyEnabled() bool {
	return r.Current().Cluster.ProxyEnabled
}

// GroupOffset returns the port offset for a cluster group.
func (r *Reader) GroupOffset(group string) (int, bool) {
	off, ok := r.Current().Cluster.Groups[group]
	return off, ok
}

// DefaultTimeout returns the default handler deadline.
func (r *Reader) DefaultTimeout() time.Duration {
	return r.Current().Dispatch.DefaultTimeout
}

// Lookup resolves a dotted key against the live configuration.
func (r *Reader) Lookup(key string) (any, bool) {
	return r.Current().Lookup(key)
}

// DispatchConfig builds the dispatcher's configuration snapshot from the
// live configuration. The snapshot is immutable; dispatchers built from
// it do not observe later reloads.
func (r *Reader) DispatchConfig() dispatch.Config {
	cfg := r.Current()
	groups := make(map[string]int, len(cfg.Cluster.Groups))
	for g, off := range cfg.Cluster.Groups {
		groups[g] = off
	}
	return dispatch.Config{
		Worker:         cfg.Cluster.Worker,
		ProxyEnabled:   cfg.Cluster.ProxyEnabled,
		BasePort:       cfg.Cluster.BasePort,
		GroupOffsets:   groups,
		DefaultTimeout: cfg.Dispatch.DefaultTimeout,
		OnMismatch:     dispatch.MismatchPolicy(cfg.Cluster.OnMismatch),
	}
}
