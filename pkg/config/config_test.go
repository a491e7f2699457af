package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiondb/axion/pkg/axionerrors"
)

func TestDefaultPoolConfig(t *testing.T) {
	cfg := DefaultPoolConfig()

	assert.Equal(t, 1, cfg.Min)
	assert.Equal(t, 2, cfg.Max)
	assert.Equal(t, 1, cfg.Increment)
	assert.Equal(t, GetModeWait, cfg.GetMode)
	assert.Equal(t, DefaultWaitTimeout, cfg.WaitTimeout)
	assert.Equal(t, DefaultStmtCacheSize, cfg.StmtCacheSize)
	assert.Equal(t, DefaultPingInterval, cfg.PingInterval)
	assert.True(t, cfg.Homogeneous)
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PoolConfig)
	}{
		{"negative min", func(c *PoolConfig) { c.Min = -1 }},
		{"zero max", func(c *PoolConfig) { c.Max = 0 }},
		{"max below min", func(c *PoolConfig) { c.Min = 5; c.Max = 2 }},
		{"negative increment", func(c *PoolConfig) { c.Increment = -1 }},
		{"negative stmt cache size", func(c *PoolConfig) { c.StmtCacheSize = -1 }},
		{"negative shard bound", func(c *PoolConfig) { c.MaxSessionsPerShard = -3 }},
		{"negative wait timeout", func(c *PoolConfig) { c.WaitTimeout = -time.Second }},
		{"negative idle timeout", func(c *PoolConfig) { c.Timeout = -time.Second }},
		{"negative max lifetime", func(c *PoolConfig) { c.MaxLifetimeSession = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultPoolConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, axionerrors.IsConfig(err))
			assert.Equal(t, "AXD-2027", axionerrors.As(err).FullCode())
		})
	}
}

func TestValidateIncrementCoercion(t *testing.T) {
	// A dynamic pool cannot grow with increment zero; it is coerced to one.
	dynamic := PoolConfig{Min: 1, Max: 5, Increment: 0}
	require.NoError(t, dynamic.Validate())
	assert.Equal(t, 1, dynamic.Increment)

	// A static pool never grows, so increment zero is kept as supplied.
	static := PoolConfig{Min: 3, Max: 3, Increment: 0}
	require.NoError(t, static.Validate())
	assert.Equal(t, 0, static.Increment)

	// A non-zero increment is never touched.
	dynamic = PoolConfig{Min: 1, Max: 5, Increment: 3}
	require.NoError(t, dynamic.Validate())
	assert.Equal(t, 3, dynamic.Increment)
}

func TestGetModeNames(t *testing.T) {
	assert.Equal(t, "wait", GetModeWait.String())
	assert.Equal(t, "nowait", GetModeNoWait.String())
	assert.Equal(t, "timedwait", GetModeTimedWait.String())

	for _, mode := range []GetMode{GetModeWait, GetModeNoWait, GetModeTimedWait} {
		parsed, err := ParseGetMode(mode.String())
		require.NoError(t, err)
		assert.Equal(t, mode, parsed)
	}

	// Empty means the default.
	parsed, err := ParseGetMode("")
	require.NoError(t, err)
	assert.Equal(t, GetModeWait, parsed)

	_, err = ParseGetMode("forcedwait")
	require.Error(t, err)
	assert.True(t, axionerrors.IsConfig(err))
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, 30*time.Second, Seconds(30))
	assert.Equal(t, time.Duration(0), Seconds(0))
}
