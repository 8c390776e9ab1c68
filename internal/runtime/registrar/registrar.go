// Package registrar binds manifest entries to handler values and hands each
// one to the dispatcher of its kind.
package registrar

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/drblury/protowire/internal/runtime/dispatch"
	errspkg "github.com/drblury/protowire/internal/runtime/errors"
	"github.com/drblury/protowire/internal/runtime/logging"
	"github.com/drblury/protowire/internal/runtime/manifest"
)

// Lookup resolves the handler declared under an identifier.
type Lookup interface {
	Resolve(identifier string) (any, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(identifier string) (any, error)

func (f LookupFunc) Resolve(identifier string) (any, error) {
	return f(identifier)
}

// Handlers is a map-backed Lookup. It is safe for concurrent use.
type Handlers struct {
	mu       sync.RWMutex
	handlers map[string]any
}

func NewHandlers() *Handlers {
	return &Handlers{handlers: make(map[string]any)}
}

// Register stores handler under identifier. Identifiers are unique.
func (h *Handlers) Register(identifier string, handler any) error {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return errspkg.ErrHandlerNameRequired
	}
	if handler == nil {
		return fmt.Errorf("%w: %q", errspkg.ErrHandlerRequired, identifier)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.handlers[identifier]; exists {
		return fmt.Errorf("%w: %q", errspkg.ErrAlreadyRegistered, identifier)
	}
	h.handlers[identifier] = handler
	return nil
}

// MustRegister is Register that panics on error.
func (h *Handlers) MustRegister(identifier string, handler any) *Handlers {
	if err := h.Register(identifier, handler); err != nil {
		panic(err)
	}
	return h
}

func (h *Handlers) Resolve(identifier string) (any, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	handler, ok := h.handlers[identifier]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errspkg.ErrHandlerNotFound, identifier)
	}
	return handler, nil
}

// Identifiers returns the registered identifiers in lexical order.
func (h *Handlers) Identifiers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.handlers))
	for id := range h.handlers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Dispatchers holds one dispatcher per handler kind.
type Dispatchers struct {
	Consumer       *dispatch.ConsumerDispatcher
	Function       *dispatch.FunctionDispatcher
	FunctionFanout *dispatch.FunctionFanoutDispatcher
	Supplier       *dispatch.SupplierDispatcher
	SupplierFanout *dispatch.SupplierFanoutDispatcher
}

// Shutdown stops the pull dispatchers first so suppliers stop producing,
// then drains the push subscriptions.
func (d Dispatchers) Shutdown() {
	if d.Supplier != nil {
		d.Supplier.Shutdown()
	}
	if d.SupplierFanout != nil {
		d.SupplierFanout.Shutdown()
	}
	if d.Consumer != nil {
		d.Consumer.Shutdown()
	}
	if d.Function != nil {
		d.Function.Shutdown()
	}
	if d.FunctionFanout != nil {
		d.FunctionFanout.Shutdown()
	}
}

// Registration describes a bound manifest entry.
type Registration struct {
	Identifier  string                  `json:"handler"`
	Kind        manifest.HandlerKind    `json:"handlerType"`
	HandlerType string                  `json:"handlerGoType"`
	ReadTopics  []manifest.TopicBinding `json:"readTopics,omitempty"`
	WriteTopics []manifest.TopicBinding `json:"writeTopics,omitempty"`
}

// Registrar binds manifest entries through the strategy table.
type Registrar struct {
	dispatchers Dispatchers
	lookup      Lookup
	logger      logging.ServiceLogger

	mu            sync.RWMutex
	registrations []Registration
}

func New(dispatchers Dispatchers, lookup Lookup, logger logging.ServiceLogger) *Registrar {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registrar{dispatchers: dispatchers, lookup: lookup, logger: logger}
}

// RegisterAll binds every enabled entry of m in order and stops at the first
// failure.
func (r *Registrar) RegisterAll(ctx context.Context, m manifest.Manifest) error {
	for _, entry := range m.Enabled().Components {
		if err := r.Register(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// Register resolves the handler of entry and binds it to the dispatcher of
// its kind. Every failure is a *RegistrationError.
func (r *Registrar) Register(ctx context.Context, entry manifest.ComponentEntry) error {
	fail := func(err error) error {
		return &errspkg.RegistrationError{Identifier: entry.HandlerIdentifier, Kind: entry.HandlerKind.String(), Err: err}
	}

	s, ok := strategies[entry.HandlerKind]
	if !ok {
		return fail(errspkg.ErrUnknownHandlerKind)
	}
	if r.lookup == nil {
		return fail(errspkg.ErrHandlerNotFound)
	}
	handler, err := r.lookup.Resolve(entry.HandlerIdentifier)
	if err != nil {
		return fail(err)
	}
	if handler == nil {
		return fail(errspkg.ErrHandlerNotFound)
	}
	if err := s.bind(ctx, r.dispatchers, entry, handler); err != nil {
		return fail(err)
	}

	reg := Registration{
		Identifier:  entry.HandlerIdentifier,
		Kind:        entry.HandlerKind,
		HandlerType: fmt.Sprintf("%T", handler),
		ReadTopics:  entry.ReadTopics,
		WriteTopics: entry.WriteTopics,
	}
	r.mu.Lock()
	r.registrations = append(r.registrations, reg)
	r.mu.Unlock()

	r.logger.Info("Handler registered", logging.LogFields{
		"handler":      reg.Identifier,
		"kind":         reg.Kind.String(),
		"handler_type": reg.HandlerType,
	})
	return nil
}

// Registrations returns the bound entries in registration order.
func (r *Registrar) Registrations() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Registration(nil), r.registrations...)
}
