package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassString(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.class.String())
	}
}

func TestWrapFormatsContext(t *testing.T) {
	base := errors.New("pipe broken")
	err := Wrap(base, "gateway", "readLoop", "read frame")

	require.Error(t, err)
	assert.Equal(t, "gateway.readLoop: read frame failed: pipe broken", err.Error())
	assert.True(t, errors.Is(err, base))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "gateway", "readLoop", "read frame"))
	assert.NoError(t, WrapTransient(nil, "a", "b", "c"))
	assert.NoError(t, WrapInvalid(nil, "a", "b", "c"))
	assert.NoError(t, WrapFatal(nil, "a", "b", "c"))
}

func TestClassifiedWrapping(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name  string
		wrap  func(error, string, string, string) error
		class ErrorClass
	}{
		{"transient", WrapTransient, ErrorTransient},
		{"invalid", WrapInvalid, ErrorInvalid},
		{"fatal", WrapFatal, ErrorFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.wrap(base, "scanjob", "Start", "spawn subprocess")

			var ce *ClassifiedError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.class, ce.Class)
			assert.Equal(t, "scanjob", ce.Component)
			assert.Equal(t, "Start", ce.Operation)
			assert.True(t, errors.Is(err, base))
			assert.Equal(t, tt.class, Classify(err))
		})
	}
}

func TestStandardVariableClassification(t *testing.T) {
	assert.True(t, IsInvalid(ErrUnknownCommand))
	assert.True(t, IsInvalid(ErrJobInProgress))
	assert.True(t, IsInvalid(fmt.Errorf("dispatch: %w", ErrInvalidMessage)))

	assert.True(t, IsFatal(ErrInvalidConfig))
	assert.True(t, IsFatal(ErrMissingConfig))

	assert.True(t, IsTransient(ErrConnectionClosed))
	assert.True(t, IsTransient(ErrShuttingDown))
}

func TestNilChecks(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsInvalid(nil))
	assert.False(t, IsFatal(nil))
}
