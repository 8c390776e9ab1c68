// Package handlers adapts typed Go functions to the byte-level handler
// contracts of the dispatch package. A Codec decodes the incoming payload and
// encodes results; the message type of every result becomes its payloadType
// header, which is what the dispatcher routes on.
package handlers

import (
	"context"
	"fmt"
	"reflect"

	"github.com/drblury/protowire/internal/runtime/dispatch"
	"github.com/drblury/protowire/internal/runtime/envelope"
	errspkg "github.com/drblury/protowire/internal/runtime/errors"
	"github.com/drblury/protowire/internal/runtime/ids"
	"github.com/drblury/protowire/internal/runtime/logging"
)

// Codec converts between T and payload bytes.
type Codec[T any] interface {
	Decode(data []byte) (T, error)
	Encode(v T) ([]byte, error)
	// MessageType names v on the wire.
	MessageType(v T) string
	ContentType() string
}

// Option configures an adapter.
type Option func(*options)

type options struct {
	logger logging.ServiceLogger
}

// WithLogger sets the logger exposed through MessageContext.
func WithLogger(logger logging.ServiceLogger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{logger: logging.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Consume adapts fn to dispatch.Consumer.
func Consume[In any](in Codec[In], fn func(ctx context.Context, mc MessageContext, msg In) error, opts ...Option) (dispatch.Consumer, error) {
	if fn == nil || in == nil {
		return nil, errspkg.ErrHandlerRequired
	}
	o := applyOptions(opts)
	return dispatch.ConsumerFunc(func(ctx context.Context, env dispatch.Envelope) error {
		msg, err := decode(in, env)
		if err != nil {
			return err
		}
		return fn(ctx, newMessageContext(env, o.logger), msg)
	}), nil
}

// Apply adapts fn to dispatch.Function. A nil result publishes nothing.
// Results keep the correlation id and custom headers of the input.
func Apply[In, Out any](in Codec[In], out Codec[Out], fn func(ctx context.Context, mc MessageContext, msg In) (Out, error), opts ...Option) (dispatch.Function, error) {
	if fn == nil || in == nil || out == nil {
		return nil, errspkg.ErrHandlerRequired
	}
	o := applyOptions(opts)
	return dispatch.FunctionFunc(func(ctx context.Context, env dispatch.Envelope) (dispatch.Envelope, error) {
		msg, err := decode(in, env)
		if err != nil {
			return dispatch.Envelope{}, err
		}
		result, err := fn(ctx, newMessageContext(env, o.logger), msg)
		if err != nil || isNil(result) {
			return dispatch.Envelope{}, err
		}
		return encode(out, derive(env), result)
	}), nil
}

// ApplyAll adapts fn to dispatch.FunctionFanout. Nil elements are skipped.
func ApplyAll[In, Out any](in Codec[In], out Codec[Out], fn func(ctx context.Context, mc MessageContext, msg In) ([]Out, error), opts ...Option) (dispatch.FunctionFanout, error) {
	if fn == nil || in == nil || out == nil {
		return nil, errspkg.ErrHandlerRequired
	}
	o := applyOptions(opts)
	return dispatch.FunctionFanoutFunc(func(ctx context.Context, env dispatch.Envelope) ([]dispatch.Envelope, error) {
		msg, err := decode(in, env)
		if err != nil {
			return nil, err
		}
		results, err := fn(ctx, newMessageContext(env, o.logger), msg)
		if err != nil {
			return nil, err
		}
		return encodeAll(out, func() *envelope.Builder[[]byte] { return derive(env) }, results)
	}), nil
}

// Supply adapts fn to dispatch.Supplier. A nil result publishes nothing.
func Supply[Out any](out Codec[Out], fn func(ctx context.Context) (Out, error)) (dispatch.Supplier, error) {
	if fn == nil || out == nil {
		return nil, errspkg.ErrHandlerRequired
	}
	return dispatch.SupplierFunc(func(ctx context.Context) (dispatch.Envelope, error) {
		result, err := fn(ctx)
		if err != nil || isNil(result) {
			return dispatch.Envelope{}, err
		}
		return encode(out, envelope.NewBuilder[[]byte](), result)
	}), nil
}

// SupplyAll adapts fn to dispatch.SupplierFanout. Returning no results ends
// the supplier loop. The results of one call share a correlation id.
func SupplyAll[Out any](out Codec[Out], fn func(ctx context.Context) ([]Out, error)) (dispatch.SupplierFanout, error) {
	if fn == nil || out == nil {
		return nil, errspkg.ErrHandlerRequired
	}
	return dispatch.SupplierFanoutFunc(func(ctx context.Context) ([]dispatch.Envelope, error) {
		results, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		correlationID := ids.NewCorrelationID()
		return encodeAll(out, func() *envelope.Builder[[]byte] {
			return envelope.NewBuilder[[]byte]().WithCorrelationID(correlationID)
		}, results)
	}), nil
}

func decode[T any](codec Codec[T], env dispatch.Envelope) (T, error) {
	msg, err := codec.Decode(env.Payload())
	if err != nil {
		return msg, fmt.Errorf("decode %s: %w", env.PayloadType(), err)
	}
	return msg, nil
}

// derive starts a result envelope from its input. The creation timestamp is
// dropped so the result gets its own.
func derive(in dispatch.Envelope) *envelope.Builder[[]byte] {
	return in.ToBuilder().
		WithoutHeader(envelope.CreationTimestamp).
		WithoutHeader(ContentType)
}

func encode[T any](codec Codec[T], b *envelope.Builder[[]byte], v T) (dispatch.Envelope, error) {
	data, err := codec.Encode(v)
	if err != nil {
		return dispatch.Envelope{}, fmt.Errorf("encode %s: %w", codec.MessageType(v), err)
	}
	return b.WithPayload(data).
		WithPayloadType(codec.MessageType(v)).
		WithHeader(ContentType, codec.ContentType()).
		Build()
}

func encodeAll[T any](codec Codec[T], builder func() *envelope.Builder[[]byte], results []T) ([]dispatch.Envelope, error) {
	out := make([]dispatch.Envelope, 0, len(results))
	for _, v := range results {
		if isNil(v) {
			continue
		}
		env, err := encode(codec, builder(), v)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func:
		return rv.IsNil()
	}
	return false
}
