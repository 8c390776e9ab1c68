// Package dispatch drives user handlers against the bus. There is one
// dispatcher per handler kind: the push dispatchers (consumer, function,
// function fanout) subscribe to read topics, the pull dispatchers (supplier,
// supplier fanout) run a loop per handler on a bounded worker pool. Every
// dispatcher publishes through a write-topic index built from the manifest
// entries of its own kind.
package dispatch

import (
	"context"

	"github.com/drblury/protowire/internal/runtime/envelope"
)

// Envelope is the wire-level envelope handlers receive and return.
type Envelope = envelope.Envelope[[]byte]

// Consumer handles a message and produces nothing.
type Consumer interface {
	Consume(ctx context.Context, in Envelope) error
}

// Function turns one message into at most one message. Returning the zero
// Envelope publishes nothing.
type Function interface {
	Apply(ctx context.Context, in Envelope) (Envelope, error)
}

// FunctionFanout turns one message into any number of messages.
type FunctionFanout interface {
	ApplyAll(ctx context.Context, in Envelope) ([]Envelope, error)
}

// Supplier produces a message per call. Returning the zero Envelope publishes
// nothing and the loop calls again.
type Supplier interface {
	Supply(ctx context.Context) (Envelope, error)
}

// SupplierFanout produces a batch per call. An empty batch ends the loop.
type SupplierFanout interface {
	SupplyAll(ctx context.Context) ([]Envelope, error)
}

type ConsumerFunc func(ctx context.Context, in Envelope) error

func (f ConsumerFunc) Consume(ctx context.Context, in Envelope) error {
	return f(ctx, in)
}

type FunctionFunc func(ctx context.Context, in Envelope) (Envelope, error)

func (f FunctionFunc) Apply(ctx context.Context, in Envelope) (Envelope, error) {
	return f(ctx, in)
}

type FunctionFanoutFunc func(ctx context.Context, in Envelope) ([]Envelope, error)

func (f FunctionFanoutFunc) ApplyAll(ctx context.Context, in Envelope) ([]Envelope, error) {
	return f(ctx, in)
}

type SupplierFunc func(ctx context.Context) (Envelope, error)

func (f SupplierFunc) Supply(ctx context.Context) (Envelope, error) {
	return f(ctx)
}

type SupplierFanoutFunc func(ctx context.Context) ([]Envelope, error)

func (f SupplierFanoutFunc) SupplyAll(ctx context.Context) ([]Envelope, error) {
	return f(ctx)
}
