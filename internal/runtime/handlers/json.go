package handlers

import (
	"fmt"
	"reflect"

	"github.com/drblury/protowire/internal/runtime/jsoncodec"
)

// JSONCodec encodes plain Go values as JSON.
type JSONCodec[T any] struct {
	messageType string
	newValue    func() T
	pointer     bool
}

// JSON returns a JSON codec. An empty messageType defaults to the Go type
// name of T, e.g. "*orders.Placed".
func JSON[T any](messageType string) (JSONCodec[T], error) {
	var zero T
	typ := reflect.TypeOf(zero)
	if typ == nil {
		return JSONCodec[T]{}, fmt.Errorf("json codec needs a concrete type, got %T", zero)
	}
	if messageType == "" {
		messageType = typ.String()
	}
	return JSONCodec[T]{
		messageType: messageType,
		newValue:    jsonPrototypeFactory[T](typ),
		pointer:     typ.Kind() == reflect.Ptr,
	}, nil
}

func jsonPrototypeFactory[T any](typ reflect.Type) func() T {
	if typ.Kind() != reflect.Ptr {
		return func() T {
			var zero T
			return zero
		}
	}
	elem := typ.Elem()
	return func() T {
		return reflect.New(elem).Interface().(T)
	}
}

func (c JSONCodec[T]) Decode(data []byte) (T, error) {
	v := c.newValue()
	var target any = &v
	if c.pointer {
		target = v
	}
	if err := jsoncodec.Unmarshal(data, target); err != nil {
		var zero T
		return zero, fmt.Errorf("failed to unmarshal JSON payload: %w", err)
	}
	return v, nil
}

func (c JSONCodec[T]) Encode(v T) ([]byte, error) {
	return jsoncodec.Marshal(v)
}

func (c JSONCodec[T]) MessageType(T) string {
	return c.messageType
}

func (c JSONCodec[T]) ContentType() string {
	return ContentTypeJSON
}
