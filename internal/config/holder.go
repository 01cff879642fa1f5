package config

import (
	"slices"
	"sync/atomic"
)

// Holder is the live configuration of a running serve process. Each upgrade
// request reads allowed_origins through it, and a reload publishes a new
// snapshot with Swap. Snapshots are never mutated after publishing.
type Holder struct {
	path string
	cur  atomic.Pointer[Config]
	gen  atomic.Uint64
}

// NewHolder publishes cfg, loaded from path, as generation 0.
func NewHolder(cfg *Config, path string) *Holder {
	h := &Holder{path: path}
	h.cur.Store(cfg)

	return h
}

// Config returns the current snapshot.
func (h *Holder) Config() *Config {
	return h.cur.Load()
}

// Path returns the file the snapshots are loaded from; empty when serve runs
// without a config file.
func (h *Holder) Path() string {
	return h.path
}

// Generation counts successful reloads.
func (h *Holder) Generation() uint64 {
	return h.gen.Load()
}

// AllowedOrigins returns a copy of the current allowed_origins.
func (h *Holder) AllowedOrigins() []string {
	return slices.Clone(h.cur.Load().AllowedOrigins)
}

// Swap publishes cfg and returns the snapshot it replaced together with the
// new generation.
func (h *Holder) Swap(cfg *Config) (*Config, uint64) {
	prev := h.cur.Swap(cfg)

	return prev, h.gen.Add(1)
}
