package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelErrorsArePrefixed(t *testing.T) {
	sentinels := []error{
		ErrConfigRequired,
		ErrLoggerRequired,
		ErrManifestRequired,
		ErrConnectionRequired,
		ErrRegistryRequired,
		ErrTopicRequired,
		ErrHandlerNameRequired,
		ErrHandlerNotFound,
		ErrHandlerRequired,
		ErrPrototypeRequired,
		ErrPrototypePointer,
		ErrHandlerCapability,
		ErrUnknownHandlerKind,
		ErrAlreadyRegistered,
		ErrPayloadRequired,
		ErrPayloadTypeRequired,
		ErrMessageTypeNotFound,
		ErrDispatcherClosed,
		ErrDrainTimeout,
		ErrConnectionClosed,
		ErrUnsupportedManifest,
		ErrSchemaRecordNotFound,
	}
	for _, err := range sentinels {
		assert.Contains(t, err.Error(), "protowire: ")
	}
}

func TestManifestValidationErrorNamesTopicsAndConflicts(t *testing.T) {
	err := NewManifestValidationError("single handler kind per topic", []string{"orders"}, []string{"FUNCTION", "CONSUMER"})

	assert.Equal(t, []string{"CONSUMER", "FUNCTION"}, err.Conflicts)
	assert.Contains(t, err.Error(), "orders")
	assert.Contains(t, err.Error(), "CONSUMER, FUNCTION")
}

func TestManifestValidationErrorWithoutConflicts(t *testing.T) {
	err := NewManifestValidationError("read and write topics overlap", []string{"b", "a"}, nil)

	assert.Equal(t, "protowire: invalid manifest (read and write topics overlap): topics [a, b]", err.Error())
}

func TestContractMismatchError(t *testing.T) {
	err := &ContractMismatchError{Topic: "orders", Local: "aa", Remote: "bb"}

	assert.Contains(t, err.Error(), `"orders"`)
	assert.Contains(t, err.Error(), "aa")
	assert.Contains(t, err.Error(), "bb")
}

func TestRegistrationErrorUnwraps(t *testing.T) {
	err := &RegistrationError{Identifier: "printer", Kind: "CONSUMER", Err: ErrHandlerCapability}

	assert.True(t, errors.Is(err, ErrHandlerCapability))
	assert.Contains(t, err.Error(), "printer")

	var regErr *RegistrationError
	require.True(t, errors.As(error(err), &regErr))
	assert.Equal(t, "CONSUMER", regErr.Kind)
}

func TestConfigValidationError(t *testing.T) {
	inner := errors.New("invalid port")
	err := &ConfigValidationError{Err: inner}

	assert.Equal(t, "protowire: invalid configuration: invalid port", err.Error())
	assert.Same(t, inner, err.Unwrap())
	assert.True(t, errors.Is(err, inner))
}
