package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"

	errspkg "github.com/drblury/protowire/internal/runtime/errors"
	"github.com/drblury/protowire/internal/runtime/logging"
	"github.com/drblury/protowire/internal/runtime/manifest"
)

// Resolver finds compiled message types by full name.
// *protoregistry.Types satisfies it.
type Resolver interface {
	FindMessageByName(protoreflect.FullName) (protoreflect.MessageType, error)
}

type ValidatorOption func(*Validator)

// WithResolver replaces protoregistry.GlobalTypes.
func WithResolver(r Resolver) ValidatorOption {
	return func(v *Validator) {
		if r != nil {
			v.resolver = r
		}
	}
}

// Validator registers every topic contract of a manifest and compares it with
// the registry's copy.
type Validator struct {
	registry Registry
	resolver Resolver
	logger   logging.ServiceLogger
}

func NewValidator(registry Registry, logger logging.ServiceLogger, opts ...ValidatorOption) (*Validator, error) {
	if registry == nil {
		return nil, errspkg.ErrRegistryRequired
	}
	if logger == nil {
		logger = logging.Nop()
	}
	v := &Validator{
		registry: registry,
		resolver: protoregistry.GlobalTypes,
		logger:   logger.With(logging.LogFields{"component": "schema_validator"}),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Records computes the record of every distinct topic of the enabled entries
// of m. The first binding seen for a topic decides its message type; a topic
// whose first binding has no message type is skipped.
func (v *Validator) Records(m manifest.Manifest) ([]Record, error) {
	seen := make(map[string]struct{})
	var out []Record
	for _, b := range bindings(m) {
		if _, dup := seen[b.TopicName]; dup {
			continue
		}
		seen[b.TopicName] = struct{}{}

		messageType := strings.TrimSpace(b.MessageType)
		if messageType == "" {
			v.logger.Debug("Topic declares no message type, skipping contract", logging.LogFields{"topic": b.TopicName})
			continue
		}
		mt, err := v.resolver.FindMessageByName(protoreflect.FullName(messageType))
		if err != nil {
			return nil, fmt.Errorf("%w: %q on topic %q: %v", errspkg.ErrMessageTypeNotFound, messageType, b.TopicName, err)
		}
		rec, err := NewRecord(b.TopicName, mt.Descriptor())
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Validate registers each record and re-fetches it. A fingerprint that
// differs from the registry's is returned as *errors.ContractMismatchError.
// Registry failures and missing remote records are logged and skipped.
func (v *Validator) Validate(ctx context.Context, m manifest.Manifest) error {
	records, err := v.Records(m)
	if err != nil {
		return err
	}
	v.logger.Info("Validating schema contracts", logging.LogFields{"topics": len(records)})

	for _, rec := range records {
		if err := v.validate(ctx, rec); err != nil {
			return err
		}
	}

	v.logger.Info("Schema contract validation complete", nil)
	return nil
}

func (v *Validator) validate(ctx context.Context, rec Record) error {
	fields := logging.LogFields{"topic": rec.Topic, "message_type": rec.ProtoMessageType}

	if err := v.registry.Register(ctx, rec); err != nil {
		v.logger.Warn("Failed to register schema", withError(fields, err))
	} else {
		v.logger.Debug("Registered schema", fields)
	}

	remote, err := v.registry.Fetch(ctx, rec.Topic)
	switch {
	case errors.Is(err, errspkg.ErrSchemaRecordNotFound):
		v.logger.Warn("Registry holds no schema for topic", fields)
		return nil
	case err != nil:
		v.logger.Warn("Could not fetch schema", withError(fields, err))
		return nil
	}

	if remote.DescriptorSHA256 != rec.DescriptorSHA256 {
		mismatch := &errspkg.ContractMismatchError{Topic: rec.Topic, Local: rec.DescriptorSHA256, Remote: remote.DescriptorSHA256}
		v.logger.Error("Schema contract mismatch", mismatch, fields)
		return mismatch
	}
	return nil
}

func bindings(m manifest.Manifest) []manifest.TopicBinding {
	var out []manifest.TopicBinding
	for _, c := range m.Enabled().Components {
		out = append(out, c.ReadTopics...)
		out = append(out, c.WriteTopics...)
	}
	return out
}

func withError(fields logging.LogFields, err error) logging.LogFields {
	out := make(logging.LogFields, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["error"] = err.Error()
	return out
}
