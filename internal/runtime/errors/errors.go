package errors

import (
	sterrors "errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrConfigRequired       = sterrors.New("protowire: config is required")
	ErrLoggerRequired       = sterrors.New("protowire: logger is required")
	ErrManifestRequired     = sterrors.New("protowire: manifest is required")
	ErrConnectionRequired   = sterrors.New("protowire: connection is required")
	ErrRegistryRequired     = sterrors.New("protowire: schema registry is required")
	ErrTopicRequired        = sterrors.New("protowire: topic is required")
	ErrHandlerNameRequired  = sterrors.New("protowire: handler identifier is required")
	ErrHandlerNotFound      = sterrors.New("protowire: handler not found")
	ErrHandlerRequired      = sterrors.New("protowire: handler function is required")
	ErrPrototypeRequired    = sterrors.New("protowire: message prototype is required")
	ErrPrototypePointer     = sterrors.New("protowire: message prototype must be a pointer type")
	ErrHandlerCapability    = sterrors.New("protowire: handler does not implement the capability required by its kind")
	ErrUnknownHandlerKind   = sterrors.New("protowire: unknown handler kind")
	ErrAlreadyRegistered    = sterrors.New("protowire: handler identifier already registered")
	ErrPayloadRequired      = sterrors.New("protowire: envelope payload is required")
	ErrPayloadTypeRequired  = sterrors.New("protowire: envelope payload type is required")
	ErrMessageTypeNotFound  = sterrors.New("protowire: message type not found in descriptor registry")
	ErrDispatcherClosed     = sterrors.New("protowire: dispatcher is shut down")
	ErrDrainTimeout         = sterrors.New("protowire: subscription drain timed out")
	ErrConnectionClosed     = sterrors.New("protowire: connection is closed")
	ErrUnsupportedManifest  = sterrors.New("protowire: unsupported manifest format")
	ErrSchemaRecordNotFound = sterrors.New("protowire: schema record not found")
)

// ManifestValidationError reports a manifest that violates a topic-binding rule.
// Conflicts holds the handler kinds or queue groups involved.
type ManifestValidationError struct {
	Rule      string
	Topics    []string
	Conflicts []string
}

func (e *ManifestValidationError) Error() string {
	msg := fmt.Sprintf("protowire: invalid manifest (%s): topics [%s]", e.Rule, strings.Join(e.Topics, ", "))
	if len(e.Conflicts) > 0 {
		msg += fmt.Sprintf(" conflicting [%s]", strings.Join(e.Conflicts, ", "))
	}
	return msg
}

// NewManifestValidationError sorts and copies its inputs so messages are stable.
func NewManifestValidationError(rule string, topics, conflicts []string) *ManifestValidationError {
	t := append([]string(nil), topics...)
	c := append([]string(nil), conflicts...)
	sort.Strings(t)
	sort.Strings(c)
	return &ManifestValidationError{Rule: rule, Topics: t, Conflicts: c}
}

// ContractMismatchError is returned when the registry holds a different
// descriptor fingerprint for a topic than the one compiled into the service.
type ContractMismatchError struct {
	Topic  string
	Local  string
	Remote string
}

func (e *ContractMismatchError) Error() string {
	return fmt.Sprintf("protowire: schema contract mismatch for topic %q: local %s, registry %s", e.Topic, e.Local, e.Remote)
}

// RegistrationError wraps a failure to bind a manifest entry to its handler.
type RegistrationError struct {
	Identifier string
	Kind       string
	Err        error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("protowire: cannot register handler %q (%s): %v", e.Identifier, e.Kind, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// ConfigValidationError wraps the aggregated result of Config.Validate.
type ConfigValidationError struct {
	Err error
}

func (e *ConfigValidationError) Error() string {
	return "protowire: invalid configuration: " + e.Err.Error()
}

func (e *ConfigValidationError) Unwrap() error {
	return e.Err
}
