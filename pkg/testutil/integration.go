package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/axiondb/axion/pkg/backend/memdb"
	"github.com/axiondb/axion/pkg/config"
	"github.com/axiondb/axion/pkg/pool"
)

// Default credentials registered on every suite backend.
const (
	DefaultUser      = "app_user"
	DefaultPassword  = "app_password"
	DefaultProxyUser = "reporting"
	DefaultDSN       = "memdb://main"
)

// PoolSuite provides base functionality for pool integration tests. It
// owns a fresh in-memory backend per test and tears down every pool the
// test created.
type PoolSuite struct {
	suite.Suite
	ctx     context.Context
	cancel  context.CancelFunc
	backend *memdb.Backend
	pools   []*pool.Pool
}

// SetupTest runs before each test in the suite.
func (s *PoolSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), time.Minute)
	s.backend = memdb.New().
		AddUser(DefaultUser, DefaultPassword).
		AddUser(DefaultProxyUser, "reporting_password").
		AllowProxy(DefaultUser, DefaultProxyUser)
	s.pools = nil
}

// TearDownTest runs after each test in the suite.
func (s *PoolSuite) TearDownTest() {
	for _, p := range s.pools {
		_ = p.Close(s.ctx, true)
	}
	s.cancel()
}

// Context returns the test context.
func (s *PoolSuite) Context() context.Context {
	return s.ctx
}

// Backend returns the suite's in-memory backend.
func (s *PoolSuite) Backend() *memdb.Backend {
	return s.backend
}

// Config returns a pool configuration with the suite's credentials and
// the given sizing.
func (s *PoolSuite) Config(min, max, increment int) config.PoolConfig {
	return config.PoolConfig{
		DSN:         DefaultDSN,
		User:        DefaultUser,
		Password:    DefaultPassword,
		Min:         min,
		Max:         max,
		Increment:   increment,
		Homogeneous: true,
	}
}

// NewPool creates a pool over the suite backend and registers it for
// teardown.
func (s *PoolSuite) NewPool(cfg config.PoolConfig, opts ...func(*pool.Options)) *pool.Pool {
	options := pool.Options{
		Config:  cfg,
		Backend: s.backend,
		Logger:  TestLogger(s.T()),
	}
	for _, opt := range opts {
		opt(&options)
	}
	p, err := pool.New(s.ctx, options)
	require.NoError(s.T(), err)
	s.pools = append(s.pools, p)
	return p
}
