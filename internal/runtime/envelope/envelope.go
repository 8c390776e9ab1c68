// Package envelope defines the immutable message wrapper exchanged between
// handlers and the dispatch layer: a payload plus a string header map.
package envelope

import (
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	errspkg "github.com/drblury/protowire/internal/runtime/errors"
	"github.com/drblury/protowire/internal/runtime/ids"
	metadatapkg "github.com/drblury/protowire/internal/runtime/metadata"
)

// HeaderKey names a header. The well-known keys below are the wire names.
type HeaderKey string

const (
	// PayloadType carries the fully-qualified message type name and drives
	// outbound topic routing.
	PayloadType HeaderKey = "payloadType"
	// CorrelationID is propagated end to end; generated when absent.
	CorrelationID HeaderKey = "correlationId"
	// CreationTimestamp is epoch milliseconds; generated when absent.
	CreationTimestamp HeaderKey = "creationTs"
)

var wellKnown = []HeaderKey{PayloadType, CorrelationID, CreationTimestamp}

var now = time.Now

// Header is one entry of an envelope's ordered header list.
type Header struct {
	Key   HeaderKey
	Value string
}

// Envelope is an immutable payload plus headers. Construct it with a Builder;
// derive modified copies through ToBuilder.
type Envelope[T any] struct {
	payload T
	headers map[HeaderKey]string
}

// Payload returns the wrapped value.
func (e Envelope[T]) Payload() T {
	return e.payload
}

// Header returns the value for key and whether it is present.
func (e Envelope[T]) Header(key HeaderKey) (string, bool) {
	v, ok := e.headers[key]
	return v, ok
}

func (e Envelope[T]) PayloadType() string {
	return e.headers[PayloadType]
}

func (e Envelope[T]) CorrelationID() string {
	return e.headers[CorrelationID]
}

// CreationTimestamp returns the creation time in epoch milliseconds.
func (e Envelope[T]) CreationTimestamp() int64 {
	ms, _ := strconv.ParseInt(e.headers[CreationTimestamp], 10, 64)
	return ms
}

// CreatedAt is CreationTimestamp as a time.Time.
func (e Envelope[T]) CreatedAt() time.Time {
	return time.UnixMilli(e.CreationTimestamp())
}

// IsZero reports whether e is the zero value, i.e. was never built.
func (e Envelope[T]) IsZero() bool {
	return e.headers == nil
}

// Headers returns the headers with the well-known keys first, followed by the
// remaining keys in lexical order.
func (e Envelope[T]) Headers() []Header {
	out := make([]Header, 0, len(e.headers))
	for _, k := range wellKnown {
		if v, ok := e.headers[k]; ok {
			out = append(out, Header{Key: k, Value: v})
		}
	}
	rest := make([]string, 0, len(e.headers))
	for k := range e.headers {
		if !isWellKnown(k) {
			rest = append(rest, string(k))
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		out = append(out, Header{Key: HeaderKey(k), Value: e.headers[HeaderKey(k)]})
	}
	return out
}

// Metadata returns a copy of the headers as a wire map.
func (e Envelope[T]) Metadata() metadatapkg.Metadata {
	md := make(metadatapkg.Metadata, len(e.headers))
	for k, v := range e.headers {
		md[string(k)] = v
	}
	return md
}

// ToBuilder starts a new builder seeded with this envelope's payload and a
// copy of its headers. The envelope itself is never modified.
func (e Envelope[T]) ToBuilder() *Builder[T] {
	b := &Builder[T]{
		payload:    e.payload,
		hasPayload: true,
		headers:    make(map[HeaderKey]string, len(e.headers)),
	}
	for k, v := range e.headers {
		b.headers[k] = v
	}
	return b
}

// Builder accumulates a payload and headers for Build.
type Builder[T any] struct {
	payload    T
	hasPayload bool
	headers    map[HeaderKey]string
}

// NewBuilder returns an empty builder.
func NewBuilder[T any]() *Builder[T] {
	return &Builder[T]{headers: make(map[HeaderKey]string)}
}

// FromMetadata seeds a builder with payload and every header in md.
func FromMetadata[T any](payload T, md metadatapkg.Metadata) *Builder[T] {
	b := NewBuilder[T]().WithPayload(payload)
	for k, v := range md {
		b.headers[HeaderKey(k)] = v
	}
	return b
}

func (b *Builder[T]) WithPayload(payload T) *Builder[T] {
	b.payload = payload
	b.hasPayload = true
	return b
}

func (b *Builder[T]) WithPayloadType(messageType string) *Builder[T] {
	return b.WithHeader(PayloadType, messageType)
}

func (b *Builder[T]) WithCorrelationID(id string) *Builder[T] {
	return b.WithHeader(CorrelationID, id)
}

func (b *Builder[T]) WithCreationTimestamp(epochMillis int64) *Builder[T] {
	return b.WithHeader(CreationTimestamp, strconv.FormatInt(epochMillis, 10))
}

// WithHeader sets an arbitrary header.
func (b *Builder[T]) WithHeader(key HeaderKey, value string) *Builder[T] {
	b.headers[key] = value
	return b
}

// WithoutHeader removes a header.
func (b *Builder[T]) WithoutHeader(key HeaderKey) *Builder[T] {
	delete(b.headers, key)
	return b
}

// Build validates the builder and returns the envelope. A missing payload or
// blank payload type is an error; a blank correlation id or an unparsable
// creation timestamp is replaced with a generated value.
func (b *Builder[T]) Build() (Envelope[T], error) {
	if !b.hasPayload || isNil(b.payload) {
		return Envelope[T]{}, errspkg.ErrPayloadRequired
	}
	if strings.TrimSpace(b.headers[PayloadType]) == "" {
		return Envelope[T]{}, errspkg.ErrPayloadTypeRequired
	}

	headers := make(map[HeaderKey]string, len(b.headers)+2)
	for k, v := range b.headers {
		headers[k] = v
	}
	if strings.TrimSpace(headers[CorrelationID]) == "" {
		headers[CorrelationID] = ids.NewCorrelationID()
	}
	if _, err := strconv.ParseInt(strings.TrimSpace(headers[CreationTimestamp]), 10, 64); err != nil {
		headers[CreationTimestamp] = strconv.FormatInt(now().UnixMilli(), 10)
	}

	return Envelope[T]{payload: b.payload, headers: headers}, nil
}

// MustBuild is Build that panics on error. Use it only with literal inputs.
func (b *Builder[T]) MustBuild() Envelope[T] {
	env, err := b.Build()
	if err != nil {
		panic(err)
	}
	return env
}

func isWellKnown(k HeaderKey) bool {
	for _, w := range wellKnown {
		if w == k {
			return true
		}
	}
	return false
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		return rv.IsNil()
	}
	return false
}
