// Package config provides the configuration surface for Axion session pools.
// It defines a single PoolConfig structure covering sizing, acquisition
// policy, timeouts and cache settings, together with validation rules and a
// YAML loader.
//
// Example usage:
//
//	cfg := config.DefaultPoolConfig()
//	cfg.Min = 2
//	cfg.Max = 8
//	cfg.Increment = 3
//	cfg.GetMode = config.GetModeNoWait
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"time"

	"github.com/axiondb/axion/pkg/axionerrors"
)

// GetMode controls what acquire does when the pool is at capacity.
type GetMode int

const (
	// GetModeWait blocks until a session frees or is created
	GetModeWait GetMode = iota
	// GetModeNoWait fails immediately with a pool-exhausted error
	GetModeNoWait
	// GetModeTimedWait blocks up to WaitTimeout, then fails with a
	// pool-exhausted error
	GetModeTimedWait
)

// String returns the lowercase name of the mode.
func (m GetMode) String() string {
	switch m {
	case GetModeWait:
		return "wait"
	case GetModeNoWait:
		return "nowait"
	case GetModeTimedWait:
		return "timedwait"
	default:
		return fmt.Sprintf("getmode(%d)", int(m))
	}
}

// ParseGetMode parses a mode name as found in configuration files.
func ParseGetMode(s string) (GetMode, error) {
	switch s {
	case "wait", "":
		return GetModeWait, nil
	case "nowait":
		return GetModeNoWait, nil
	case "timedwait":
		return GetModeTimedWait, nil
	default:
		return 0, axionerrors.Driverf(axionerrors.ErrInvalidPoolParams,
			"unknown getmode %q", s)
	}
}

// MarshalYAML implements yaml.Marshaler.
func (m GetMode) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *GetMode) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	mode, err := ParseGetMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// PoolConfig is the full configuration surface of a session pool. All
// fields can be set at creation; a subset can be changed later through
// Pool.Reconfigure.
type PoolConfig struct {
	// Core identification and connectivity

	// Name identifies the pool; generated when empty
	Name string `yaml:"name" json:"name"`
	// DSN is the connect string handed to the backend
	DSN string `yaml:"dsn" json:"dsn"`
	// User is the pool-wide username for homogeneous pools
	User string `yaml:"user" json:"user"`
	// Password is the pool-wide password for homogeneous pools
	Password string `yaml:"password" json:"-"`

	// Sizing policy

	// Min is the number of sessions opened at pool creation
	Min int `yaml:"min" json:"min"`
	// Max bounds the number of live sessions, idle plus busy
	Max int `yaml:"max" json:"max"`
	// Increment is the growth step when the pool needs new sessions.
	// Zero is legal only for a static pool (Min == Max); a dynamic pool
	// created with zero is coerced to one.
	Increment int `yaml:"increment" json:"increment"`

	// Acquisition policy

	// GetMode controls blocking behavior at capacity
	GetMode GetMode `yaml:"getmode" json:"getmode"`
	// WaitTimeout bounds the wait under GetModeTimedWait
	WaitTimeout time.Duration `yaml:"wait_timeout" json:"wait_timeout"`

	// Session lifetime

	// Timeout is the idle-session reclaim threshold; 0 never reclaims
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// MaxLifetimeSession forces recycle of sessions older than this;
	// 0 means unlimited
	MaxLifetimeSession time.Duration `yaml:"max_lifetime_session" json:"max_lifetime_session"`
	// PingInterval controls liveness checks on idle sessions at acquire:
	// positive pings sessions idle longer than the interval, zero pings
	// every time, negative disables pinging
	PingInterval time.Duration `yaml:"ping_interval" json:"ping_interval"`

	// Sharding

	// MaxSessionsPerShard bounds sessions per shard key; 0 means unbounded
	MaxSessionsPerShard int `yaml:"max_sessions_per_shard" json:"max_sessions_per_shard"`

	// Caching

	// StmtCacheSize is the per-session statement cache capacity
	StmtCacheSize int `yaml:"stmtcachesize" json:"stmtcachesize"`
	// SodaMetadataCache enables document-collection metadata caching
	SodaMetadataCache bool `yaml:"soda_metadata_cache" json:"soda_metadata_cache"`

	// Credentials policy

	// Homogeneous pools use fixed pool-wide credentials; heterogeneous
	// pools accept per-acquire credentials
	Homogeneous bool `yaml:"homogeneous" json:"homogeneous"`
}

// Defaults applied by DefaultPoolConfig.
const (
	DefaultWaitTimeout   = 5000 * time.Millisecond
	DefaultStmtCacheSize = 20
	DefaultPingInterval  = 60 * time.Second
)

// DefaultPoolConfig returns a configuration with the documented defaults:
// a small dynamic pool in WAIT mode with homogeneous credentials.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Min:           1,
		Max:           2,
		Increment:     1,
		GetMode:       GetModeWait,
		WaitTimeout:   DefaultWaitTimeout,
		StmtCacheSize: DefaultStmtCacheSize,
		PingInterval:  DefaultPingInterval,
		Homogeneous:   true,
	}
}

// Validate checks parameter combinations and applies the documented
// coercions in place. It must be called before handing the configuration
// to a pool.
func (c *PoolConfig) Validate() error {
	if c.Min < 0 {
		return axionerrors.Driverf(axionerrors.ErrInvalidPoolParams,
			"min must not be negative, got %d", c.Min)
	}
	if c.Max < 1 {
		return axionerrors.Driverf(axionerrors.ErrInvalidPoolParams,
			"max must be at least 1, got %d", c.Max)
	}
	if c.Max < c.Min {
		return axionerrors.Driverf(axionerrors.ErrInvalidPoolParams,
			"max (%d) must not be less than min (%d)", c.Max, c.Min)
	}
	if c.Increment < 0 {
		return axionerrors.Driverf(axionerrors.ErrInvalidPoolParams,
			"increment must not be negative, got %d", c.Increment)
	}
	if c.StmtCacheSize < 0 {
		return axionerrors.Driverf(axionerrors.ErrInvalidPoolParams,
			"stmtcachesize must not be negative, got %d", c.StmtCacheSize)
	}
	if c.MaxSessionsPerShard < 0 {
		return axionerrors.Driverf(axionerrors.ErrInvalidPoolParams,
			"max_sessions_per_shard must not be negative, got %d",
			c.MaxSessionsPerShard)
	}
	if c.WaitTimeout < 0 || c.Timeout < 0 || c.MaxLifetimeSession < 0 {
		return axionerrors.Driverf(axionerrors.ErrInvalidPoolParams,
			"timeouts must not be negative")
	}

	if c.Min == c.Max {
		// Static pool: an increment of zero is meaningful and retained.
		return nil
	}
	// Dynamic pool: growth must not stall.
	if c.Increment == 0 {
		c.Increment = 1
	}
	return nil
}
