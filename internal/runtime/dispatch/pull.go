package dispatch

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/protowire/internal/runtime/errors"
	"github.com/drblury/protowire/internal/runtime/logging"
	"github.com/drblury/protowire/internal/runtime/manifest"
)

// puller runs one loop per registered handler on a shared pool. Loops end
// when the registration context or the dispatcher is cancelled.
type puller struct {
	*base
	pool   *Pool
	ctx    context.Context
	cancel context.CancelFunc
}

func newPuller(kind manifest.HandlerKind, m manifest.Manifest, opts Options) (*puller, error) {
	b, err := newBase(kind, m, opts)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &puller{base: b, pool: NewPool(opts.PoolSize), ctx: ctx, cancel: cancel}, nil
}

// PoolSize returns the number of loops that may run at once.
func (p *puller) PoolSize() int {
	return p.pool.Size()
}

func (p *puller) start(ctx context.Context, handler string, loop func(ctx context.Context)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errspkg.ErrDispatcherClosed
	}

	workerCtx, stop := context.WithCancel(ctx)
	unlink := context.AfterFunc(p.ctx, stop)
	p.pool.Go(workerCtx, func(ctx context.Context) {
		defer stop()
		defer unlink()
		p.logger.Info("Supplier loop started", logging.LogFields{"handler": handler})
		loop(ctx)
		p.logger.Info("Supplier loop stopped", logging.LogFields{"handler": handler})
	})
	return nil
}

// supply wraps one produce call in a span and the job hooks.
func (p *puller) supply(ctx context.Context, handler string, fn func(ctx context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, SpanSupply,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrHandler.String(handler)))
	defer span.End()

	err := p.invoke(ctx, JobContext{Handler: handler, Kind: p.kind}, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// stop cancels every loop and waits for them up to the drain timeout.
func (p *puller) stop() {
	if !p.close() {
		return
	}
	p.cancel()
	if !p.pool.Wait(p.drainTimeout) {
		p.logger.Warn("Supplier loops still running after shutdown", logging.LogFields{"timeout": p.drainTimeout.String()})
	}
}

// SupplierDispatcher polls Suppliers and publishes what they produce.
type SupplierDispatcher struct {
	*puller
}

func NewSupplierDispatcher(m manifest.Manifest, opts Options) (*SupplierDispatcher, error) {
	p, err := newPuller(manifest.Supplier, m, opts)
	if err != nil {
		return nil, err
	}
	return &SupplierDispatcher{puller: p}, nil
}

// Register schedules a loop calling h until ctx is cancelled or the
// dispatcher shuts down. Errors from h are logged and the loop goes on.
// When the pool is full the loop waits for a free slot.
func (d *SupplierDispatcher) Register(ctx context.Context, entry manifest.ComponentEntry, h Supplier) error {
	if h == nil {
		return errspkg.ErrHandlerNotFound
	}
	handler := entry.HandlerIdentifier
	return d.start(ctx, handler, func(ctx context.Context) {
		for ctx.Err() == nil {
			var out Envelope
			err := d.supply(ctx, handler, func(ctx context.Context) error {
				var err error
				out, err = h.Supply(ctx)
				return err
			})
			if err != nil {
				if ctx.Err() == nil {
					d.logger.Error("Supplier error", err, logging.LogFields{"handler": handler})
				}
				continue
			}
			d.publish(ctx, out)
		}
	})
}

func (d *SupplierDispatcher) Shutdown() {
	d.stop()
}

// SupplierFanoutDispatcher polls SupplierFanouts. A handler returning an
// empty batch is treated as exhausted and its loop ends for good.
type SupplierFanoutDispatcher struct {
	*puller
}

func NewSupplierFanoutDispatcher(m manifest.Manifest, opts Options) (*SupplierFanoutDispatcher, error) {
	p, err := newPuller(manifest.SupplierFanout, m, opts)
	if err != nil {
		return nil, err
	}
	return &SupplierFanoutDispatcher{puller: p}, nil
}

func (d *SupplierFanoutDispatcher) Register(ctx context.Context, entry manifest.ComponentEntry, h SupplierFanout) error {
	if h == nil {
		return errspkg.ErrHandlerNotFound
	}
	handler := entry.HandlerIdentifier
	return d.start(ctx, handler, func(ctx context.Context) {
		for ctx.Err() == nil {
			var out []Envelope
			err := d.supply(ctx, handler, func(ctx context.Context) error {
				var err error
				out, err = h.SupplyAll(ctx)
				return err
			})
			if err != nil {
				if ctx.Err() == nil {
					d.logger.Error("SupplierFanout error", err, logging.LogFields{"handler": handler})
				}
				continue
			}
			if len(out) == 0 {
				d.logger.Info("SupplierFanout returned no payloads", logging.LogFields{"handler": handler})
				return
			}
			for _, env := range out {
				d.publish(ctx, env)
			}
		}
	})
}

func (d *SupplierFanoutDispatcher) Shutdown() {
	d.stop()
}
