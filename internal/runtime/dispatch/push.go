package dispatch

import (
	"context"

	errspkg "github.com/drblury/protowire/internal/runtime/errors"
	"github.com/drblury/protowire/internal/runtime/manifest"
)

// ConsumerDispatcher subscribes Consumers to their read topics.
type ConsumerDispatcher struct {
	*base
}

func NewConsumerDispatcher(m manifest.Manifest, opts Options) (*ConsumerDispatcher, error) {
	b, err := newBase(manifest.Consumer, m, opts)
	if err != nil {
		return nil, err
	}
	return &ConsumerDispatcher{base: b}, nil
}

// Register subscribes h to every read binding of entry, using the binding's
// queue group when one is declared.
func (d *ConsumerDispatcher) Register(ctx context.Context, entry manifest.ComponentEntry, h Consumer) error {
	if h == nil {
		return errspkg.ErrHandlerNotFound
	}
	return d.subscribe(ctx, entry, func(ctx context.Context, in Envelope) ([]Envelope, error) {
		return nil, h.Consume(ctx, in)
	})
}

// Shutdown drains every subscription. Later calls to Register fail with
// ErrDispatcherClosed.
func (d *ConsumerDispatcher) Shutdown() {
	d.close()
}

// FunctionDispatcher subscribes Functions and publishes their results.
type FunctionDispatcher struct {
	*base
}

func NewFunctionDispatcher(m manifest.Manifest, opts Options) (*FunctionDispatcher, error) {
	b, err := newBase(manifest.Function, m, opts)
	if err != nil {
		return nil, err
	}
	return &FunctionDispatcher{base: b}, nil
}

func (d *FunctionDispatcher) Register(ctx context.Context, entry manifest.ComponentEntry, h Function) error {
	if h == nil {
		return errspkg.ErrHandlerNotFound
	}
	return d.subscribe(ctx, entry, func(ctx context.Context, in Envelope) ([]Envelope, error) {
		out, err := h.Apply(ctx, in)
		if err != nil || out.IsZero() {
			return nil, err
		}
		return []Envelope{out}, nil
	})
}

func (d *FunctionDispatcher) Shutdown() {
	d.close()
}

// FunctionFanoutDispatcher subscribes FunctionFanouts and publishes every
// result in order. An empty result publishes nothing.
type FunctionFanoutDispatcher struct {
	*base
}

func NewFunctionFanoutDispatcher(m manifest.Manifest, opts Options) (*FunctionFanoutDispatcher, error) {
	b, err := newBase(manifest.FunctionFanout, m, opts)
	if err != nil {
		return nil, err
	}
	return &FunctionFanoutDispatcher{base: b}, nil
}

func (d *FunctionFanoutDispatcher) Register(ctx context.Context, entry manifest.ComponentEntry, h FunctionFanout) error {
	if h == nil {
		return errspkg.ErrHandlerNotFound
	}
	return d.subscribe(ctx, entry, h.ApplyAll)
}

func (d *FunctionFanoutDispatcher) Shutdown() {
	d.close()
}
