package axionerrors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullCode(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "server codes are zero-padded to five digits",
			err:      Server(6550, "line 1, column 7", 6),
			expected: "AXN-06550",
		},
		{
			name:     "server codes longer than five digits print in full",
			err:      Server(600000, "internal error", 0),
			expected: "AXN-600000",
		},
		{
			name:     "client codes print plain",
			err:      Client(1210, "cached statement metadata is stale"),
			expected: "AXC-1210",
		},
		{
			name:     "driver codes print plain",
			err:      Driver(ErrPoolExhausted),
			expected: "AXD-4005",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.FullCode())
		})
	}
}

func TestErrorString(t *testing.T) {
	err := Server(1476, "divisor is equal to zero", 0)
	assert.Equal(t, "AXN-01476: divisor is equal to zero", err.Error())

	// No message falls back to the bare full code.
	assert.Equal(t, "AXN-00042", (&Error{Code: 42, Namespace: NamespaceServer}).Error())
}

func TestDriverCodeTable(t *testing.T) {
	err := Driver(ErrPoolClosed)
	assert.Equal(t, ErrPoolClosed, err.Code)
	assert.Equal(t, NamespaceDriver, err.Namespace)
	assert.Equal(t, "pool is not open", err.Message)

	err = Driverf(ErrInvalidPoolParams, "min %d exceeds max %d", 5, 2)
	assert.Contains(t, err.Message, "invalid pool parameters")
	assert.Contains(t, err.Message, "min 5 exceeds max 2")
}

func TestSerializationRoundTrip(t *testing.T) {
	recoverable := Server(4024, "could not allocate memory", 17)
	recoverable.Context = "ping response"
	recoverable.IsRecoverable = true

	notRecoverable := Driver(ErrConnectionDead)

	for name, original := range map[string]*Error{
		"recoverable":     recoverable,
		"not recoverable": notRecoverable,
	} {
		t.Run(name, func(t *testing.T) {
			data, err := original.Marshal()
			require.NoError(t, err)

			decoded, err := Unmarshal(data)
			require.NoError(t, err)

			assert.Equal(t, original.Code, decoded.Code)
			assert.Equal(t, original.Namespace, decoded.Namespace)
			assert.Equal(t, original.Offset, decoded.Offset)
			assert.Equal(t, original.Message, decoded.Message)
			assert.Equal(t, original.Context, decoded.Context)
			assert.Equal(t, original.IsRecoverable, decoded.IsRecoverable)
			assert.Equal(t, original.FullCode(), decoded.FullCode())
		})
	}
}

func TestCloneDropsCause(t *testing.T) {
	cause := errors.New("socket closed")
	original := Driver(ErrConnectionDead).WithCause(cause)

	clone := original.Clone()
	assert.Equal(t, original.Code, clone.Code)
	assert.Equal(t, original.Message, clone.Message)
	assert.Nil(t, clone.Unwrap())
	assert.ErrorIs(t, original, cause)

	// Mutating the clone leaves the original untouched.
	clone.WithHelpURL()
	assert.NotContains(t, original.Message, "Help:")
}

func TestWithHelpURL(t *testing.T) {
	err := Server(1476, "divisor is equal to zero", 0).WithHelpURL()

	lines := strings.Split(err.Message, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "divisor is equal to zero", lines[0])
	assert.Equal(t, "Help: https://docs.axiondb.io/error-help/axn-01476/", lines[1])

	// Help lines apply only to server errors.
	drv := Driver(ErrPoolExhausted).WithHelpURL()
	assert.NotContains(t, drv.Message, "Help:")
}

func TestAsThroughWrapping(t *testing.T) {
	base := Server(6550, "identifier must be declared", 6)
	wrapped := fmt.Errorf("execute failed: %w", base)

	e := As(wrapped)
	require.NotNil(t, e)
	assert.Equal(t, 6550, e.Code)
	assert.Equal(t, 6, e.Offset)

	assert.Nil(t, As(errors.New("plain error")))
	assert.Nil(t, As(nil))
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsUsage(Driver(ErrSessionClosed)))
	assert.True(t, IsUsage(Driver(ErrPoolClosed)))
	assert.False(t, IsUsage(Driver(ErrPoolExhausted)))
	assert.False(t, IsUsage(Server(6550, "", 0)))

	assert.True(t, IsConfig(Driver(ErrInvalidPoolParams)))
	assert.True(t, IsConfig(Driver(ErrDuplicateParameter)))
	assert.True(t, IsConfig(Driver(ErrCredentialsNotAllowed)))
	assert.False(t, IsConfig(Driver(ErrSessionClosed)))

	assert.True(t, IsExhausted(Driver(ErrPoolExhausted)))
	assert.False(t, IsExhausted(Driver(ErrConnectionDead)))

	assert.True(t, IsConnectivity(Driver(ErrConnectionDead)))
	assert.False(t, IsConnectivity(Client(4011, "not a driver code")))
}
