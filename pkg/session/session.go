package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/axiondb/axion/pkg/axionerrors"
)

// Session is a single live connection to the backing server. While idle it
// is owned exclusively by its pool; while checked out it is owned
// exclusively by the caller. It is never shared between two callers, and
// its methods are not safe for concurrent use by multiple goroutines.
type Session struct {
	conn   Conn
	logger *zap.Logger

	creds    Credentials
	cclass   string
	shardKey string

	createdAt time.Time
	helpURLs  bool

	cache *stmtCache

	// mu guards the fields the pool reads while the caller holds the
	// session: tag and health can be observed during release.
	mu      sync.Mutex
	tag     string
	healthy bool
	closed  bool
}

// ID returns the server-side session identifier.
func (s *Session) ID() string {
	return s.conn.ID()
}

// Tag returns the session's opaque state tag; empty for a fresh session
// that has not been fixed up.
func (s *Session) Tag() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tag
}

// SetTag stamps the session's state tag.
func (s *Session) SetTag(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tag = tag
}

// ConnClass returns the connection class the session was created under.
func (s *Session) ConnClass() string {
	return s.cclass
}

// ShardKey returns the shard the session was created against.
func (s *Session) ShardKey() string {
	return s.shardKey
}

// Credentials returns the identity the session authenticated with.
func (s *Session) Credentials() Credentials {
	return s.creds
}

// Age returns how long ago the backend session was opened.
func (s *Session) Age() time.Duration {
	return time.Since(s.createdAt)
}

// Healthy reports whether the session is believed usable. It turns false
// permanently once a connectivity-class error is observed.
func (s *Session) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthy && !s.closed
}

// Ping checks backend liveness, downgrading health on failure.
func (s *Session) Ping(ctx context.Context) error {
	if err := s.guardOpen(); err != nil {
		return err
	}
	if err := s.conn.Ping(ctx); err != nil {
		s.observeError(err)
		return err
	}
	return nil
}

// Rollback discards uncommitted work on the backend session.
func (s *Session) Rollback(ctx context.Context) error {
	if err := s.guardOpen(); err != nil {
		return err
	}
	if err := s.conn.Rollback(ctx); err != nil {
		s.observeError(err)
		return err
	}
	return nil
}

// Prepare returns a statement for sql, reusing the cached parse when one
// exists. The statement text is the cache key exactly as given.
func (s *Session) Prepare(ctx context.Context, sql string) (*Statement, error) {
	return s.prepare(ctx, sql, true)
}

// PrepareNoCache parses sql without storing the statement in the cache.
// The returned statement must be closed by the caller.
func (s *Session) PrepareNoCache(ctx context.Context, sql string) (*Statement, error) {
	return s.prepare(ctx, sql, false)
}

func (s *Session) prepare(ctx context.Context, sql string, cache bool) (*Statement, error) {
	if err := s.guardOpen(); err != nil {
		return nil, err
	}
	if sql == "" {
		return nil, axionerrors.Driver(axionerrors.ErrNoStatement)
	}

	if cache {
		if st := s.cache.get(sql); st != nil {
			return st, nil
		}
	}

	handle, err := s.conn.Prepare(ctx, sql)
	if err != nil {
		s.observeError(err)
		return nil, s.decorate(err)
	}

	st := &Statement{sess: s, sql: sql, handle: handle, cached: cache}
	if cache {
		s.cache.put(ctx, sql, st)
	}
	return st, nil
}

// Execute is a convenience that prepares (through the cache) and runs sql
// in one call.
func (s *Session) Execute(ctx context.Context, sql string, args ...interface{}) (Result, error) {
	st, err := s.Prepare(ctx, sql)
	if err != nil {
		return Result{}, err
	}
	return st.Execute(ctx, args...)
}

// StmtCacheSize returns the statement cache capacity.
func (s *Session) StmtCacheSize() int {
	return s.cache.capacity()
}

// SetStmtCacheSize resizes the statement cache, evicting least recently
// used entries beyond the new capacity.
func (s *Session) SetStmtCacheSize(ctx context.Context, size int) {
	s.cache.resize(ctx, size)
}

// guardOpen fails with a usage error once the session has been destroyed.
func (s *Session) guardOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return axionerrors.Driver(axionerrors.ErrSessionClosed)
	}
	return nil
}

// observeError downgrades session health when err indicates a severed
// backend session. The error itself still propagates to the caller.
func (s *Session) observeError(err error) {
	if !axionerrors.IsConnectivity(err) {
		return
	}
	s.mu.Lock()
	wasHealthy := s.healthy
	s.healthy = false
	s.mu.Unlock()
	if wasHealthy {
		s.logger.Warn("backend session severed",
			zap.String("session_id", s.conn.ID()),
			zap.Error(err))
	}
}

// decorate appends the error-help line to server errors when the backend
// supports it.
func (s *Session) decorate(err error) error {
	if !s.helpURLs {
		return err
	}
	e := axionerrors.As(err)
	if e == nil || e.Namespace != axionerrors.NamespaceServer {
		return err
	}
	return e.Clone().WithHelpURL().WithCause(err)
}

// destroy closes the statement cache and the backend session. Only the
// pool calls this, on drop, reclaim or close.
func (s *Session) destroy(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cache.clear(ctx)
	return s.conn.Close(ctx)
}
