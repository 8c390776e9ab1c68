package dispatch

import (
	"context"
	"time"

	"github.com/drblury/protowire/internal/runtime/logging"
	"github.com/drblury/protowire/internal/runtime/manifest"
	metadatapkg "github.com/drblury/protowire/internal/runtime/metadata"
)

// JobContext describes one handler invocation to hooks.
type JobContext struct {
	// Handler is the manifest identifier of the handler.
	Handler string
	Kind    manifest.HandlerKind
	// Topic is the read topic, empty for suppliers.
	Topic         string
	CorrelationID string
	Headers       metadatapkg.Metadata
	Context       context.Context
	StartedAt     time.Time
	// Duration is only set in OnDone and OnError.
	Duration time.Duration
}

// Hooks are called around every handler invocation. Nil hooks are skipped.
type Hooks struct {
	OnStart func(JobContext)
	OnDone  func(JobContext)
	// OnError also receives recovered panics, converted to errors.
	OnError func(JobContext, error)
}

// Merge returns hooks that call h first and then other.
func (h Hooks) Merge(other Hooks) Hooks {
	return Hooks{
		OnStart: chainHooks(h.OnStart, other.OnStart),
		OnDone:  chainHooks(h.OnDone, other.OnDone),
		OnError: chainErrorHooks(h.OnError, other.OnError),
	}
}

func chainHooks(a, b func(JobContext)) func(JobContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx JobContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(JobContext, error)) func(JobContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx JobContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

func (h Hooks) start(jc JobContext) {
	if h.OnStart != nil {
		h.OnStart(jc)
	}
}

func (h Hooks) finish(jc JobContext, err error) {
	jc.Duration = time.Since(jc.StartedAt)
	if err != nil {
		if h.OnError != nil {
			h.OnError(jc, err)
		}
		return
	}
	if h.OnDone != nil {
		h.OnDone(jc)
	}
}

// LoggingHooks logs job start and completion at debug level and failures at
// error level.
func LoggingHooks(logger logging.ServiceLogger) Hooks {
	fields := func(jc JobContext) logging.LogFields {
		return logging.LogFields{
			"handler":                  jc.Handler,
			"kind":                     jc.Kind.String(),
			"topic":                    jc.Topic,
			logging.CorrelationIDField: jc.CorrelationID,
		}
	}
	return Hooks{
		OnStart: func(jc JobContext) {
			logger.Debug("Job started", fields(jc))
		},
		OnDone: func(jc JobContext) {
			f := fields(jc)
			f["duration_ms"] = jc.Duration.Milliseconds()
			logger.Debug("Job completed", f)
		},
		OnError: func(jc JobContext, err error) {
			f := fields(jc)
			f["duration_ms"] = jc.Duration.Milliseconds()
			logger.Error("Job failed", err, f)
		},
	}
}

// AlertingHooks calls alert for every failed job.
func AlertingHooks(alert func(JobContext, error)) Hooks {
	return Hooks{OnError: alert}
}
