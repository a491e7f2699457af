// Package axion provides a client driver for pooled database access:
// managed session pools, per-session statement caching and structured
// error reporting over pluggable backends.
//
// # Architecture
//
// Axion is organized around three cooperating layers:
//
// 1. Session Pool (pkg/pool): sized pools of backend sessions with
// min/max/increment growth, wait/nowait/timedwait acquisition modes,
// session tagging with state-fixup callbacks, purity and connection-class
// partitioning, idle timeout and lifetime reaping, and live
// reconfiguration.
//
// 2. Session Layer (pkg/session): the Session type owned by a pool, its
// LRU statement cache with silent recovery from stale statement
// metadata, and the narrow Backend boundary that adapters implement.
//
// 3. Error Object (pkg/axionerrors): every failure surfaces as a
// structured Error carrying a namespaced code, parse offset, optional
// help link and recoverability flag.
//
// Backend adapters live under pkg/backend: an in-memory backend for
// tests and benchmarks (memdb), a PostgreSQL adapter over pgx
// (pgbackend) and a generic database/sql adapter (sqlbackend).
//
// # Quick Start
//
// Create a pool and run a statement:
//
//	import (
//	    "context"
//	    "github.com/axiondb/axion/pkg/backend/pgbackend"
//	    "github.com/axiondb/axion/pkg/config"
//	    "github.com/axiondb/axion/pkg/pool"
//	)
//
//	cfg := config.PoolConfig{
//	    DSN:       "postgres://localhost:5432/app",
//	    User:      "app_user",
//	    Password:  "app_password",
//	    Min:       2,
//	    Max:       10,
//	    Increment: 2,
//	}
//
//	p, err := pool.New(context.Background(), pool.Options{
//	    Config:  cfg,
//	    Backend: pgbackend.New(),
//	})
//	if err != nil {
//	    // handle error
//	}
//	defer p.Close(context.Background(), false)
//
//	s, err := p.Acquire(context.Background())
//	if err != nil {
//	    // handle error
//	}
//	defer p.Release(context.Background(), s)
//
//	result, err := s.Execute(context.Background(), "select user from accounts")
//
// # Observability
//
// Pools export Prometheus metrics (axion_pool_* series) and emit an
// OpenTelemetry span per acquire. Structured logging uses zap throughout;
// see pkg/logger.
package axion
