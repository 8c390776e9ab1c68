package handlers

import (
	"fmt"
	"reflect"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	errspkg "github.com/drblury/protowire/internal/runtime/errors"
)

// ProtoCodec encodes protobuf messages of type T, either in the binary wire
// format or as protojson.
type ProtoCodec[T proto.Message] struct {
	prototype T
	json      bool
}

// Proto returns a binary protobuf codec. prototype may be a typed nil
// pointer such as (*orderpb.Order)(nil).
func Proto[T proto.Message](prototype T) (ProtoCodec[T], error) {
	p, err := EnsureProtoPrototype(prototype)
	if err != nil {
		return ProtoCodec[T]{}, err
	}
	return ProtoCodec[T]{prototype: p}, nil
}

// ProtoJSON returns a codec using the canonical protobuf JSON mapping.
func ProtoJSON[T proto.Message](prototype T) (ProtoCodec[T], error) {
	c, err := Proto(prototype)
	c.json = true
	return c, err
}

func (c ProtoCodec[T]) Decode(data []byte) (T, error) {
	typed, err := clonePrototype(c.prototype)
	if err != nil {
		return typed, err
	}
	if c.json {
		err = protojson.UnmarshalOptions{DiscardUnknown: true}.Unmarshal(data, typed)
	} else {
		err = proto.Unmarshal(data, typed)
	}
	if err != nil {
		var zero T
		return zero, fmt.Errorf("failed to unmarshal %T payload: %w", c.prototype, err)
	}
	return typed, nil
}

func (c ProtoCodec[T]) Encode(v T) ([]byte, error) {
	if c.json {
		return protojson.Marshal(v)
	}
	return proto.MarshalOptions{Deterministic: true}.Marshal(v)
}

// MessageType returns the fully-qualified protobuf name of v.
func (c ProtoCodec[T]) MessageType(v T) string {
	if isNilProto(v) {
		v = c.prototype
	}
	return string(v.ProtoReflect().Descriptor().FullName())
}

func (c ProtoCodec[T]) ContentType() string {
	if c.json {
		return ContentTypeProtoJSON
	}
	return ContentTypeProtobuf
}

func clonePrototype[T proto.Message](prototype T) (T, error) {
	if isNilProto(prototype) {
		var zero T
		return zero, errspkg.ErrPrototypeRequired
	}

	cloned := proto.Clone(prototype)
	proto.Reset(cloned)

	typed, ok := cloned.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("unexpected prototype type %T", cloned)
	}
	return typed, nil
}

// EnsureProtoPrototype returns candidate, or a freshly allocated message when
// candidate is a typed nil pointer.
func EnsureProtoPrototype[T proto.Message](candidate T) (T, error) {
	if !isNilProto(candidate) {
		return candidate, nil
	}

	var zero T
	typ := reflect.TypeOf(candidate)
	if typ == nil {
		return zero, errspkg.ErrPrototypeRequired
	}
	if typ.Kind() != reflect.Ptr {
		return zero, errspkg.ErrPrototypePointer
	}

	inst := reflect.New(typ.Elem()).Interface()
	typed, ok := inst.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected prototype type %s", typ)
	}
	return typed, nil
}

func isNilProto[T proto.Message](prototype T) bool {
	msg := proto.Message(prototype)
	if msg == nil {
		return true
	}

	val := reflect.ValueOf(msg)
	switch val.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}
