package transport

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"

	errspkg "github.com/drblury/protowire/internal/runtime/errors"
)

type registration struct {
	builder Builder
	caps    *Capabilities
}

// Registry maps PubSubSystem names to connection builders. Names are matched
// case-insensitively.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registration
}

// DefaultRegistry is filled by the init functions of the transport packages.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds or replaces the builder for name.
func (r *Registry) Register(name string, builder Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := normalizeName(name)
	entry := r.entries[key]
	entry.builder = builder
	r.entries[key] = entry
}

// RegisterWithCapabilities is Register plus the static capabilities of the
// backend, reported by GetCapabilities without opening a connection.
func (r *Registry) RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[normalizeName(name)] = registration{builder: builder, caps: &caps}
}

// GetCapabilities returns the capabilities registered for name. Unknown names
// and builders registered without capabilities report nothing but the name.
func (r *Registry) GetCapabilities(name string) Capabilities {
	key := normalizeName(name)
	r.mu.RLock()
	entry, ok := r.entries[key]
	r.mu.RUnlock()
	if ok && entry.caps != nil {
		return *entry.caps
	}
	return Capabilities{Name: key}
}

// Build opens a connection with the builder registered for
// cfg.GetPubSubSystem().
func (r *Registry) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Connection, error) {
	if cfg == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	name := normalizeName(cfg.GetPubSubSystem())
	r.mu.RLock()
	entry, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok || entry.builder == nil {
		return nil, fmt.Errorf("unknown transport: %q (registered: %v)", name, r.Names())
	}

	conn, err := entry.builder(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if conn == nil {
		return nil, fmt.Errorf("%s: %w", name, errspkg.ErrConnectionRequired)
	}
	return conn, nil
}

// Names returns the registered transport names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[normalizeName(name)]
	return ok
}

// Register adds a builder to DefaultRegistry.
func Register(name string, builder Builder) {
	DefaultRegistry.Register(name, builder)
}

func RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	DefaultRegistry.RegisterWithCapabilities(name, builder, caps)
}

// Build opens a connection through DefaultRegistry.
func Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Connection, error) {
	return DefaultRegistry.Build(ctx, cfg, logger)
}
