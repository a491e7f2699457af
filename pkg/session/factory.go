package session

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Callback is the caller-supplied session fixup routine. The pool invokes
// it synchronously on the acquiring goroutine so its side effects are
// visible before the session is handed back. It is expected to establish
// session state for requestedTag and usually ends by stamping the tag.
type Callback func(ctx context.Context, s *Session, requestedTag string) error

// Factory creates and destroys backend sessions for one pool. It owns the
// backend boundary and the connect string; the pool owns sizing policy.
type Factory struct {
	backend Backend
	dsn     string
	logger  *zap.Logger
}

// NewFactory builds a factory over the given backend and connect string.
func NewFactory(backend Backend, dsn string, logger *zap.Logger) *Factory {
	return &Factory{
		backend: backend,
		dsn:     dsn,
		logger:  logger.With(zap.String("component", "session_factory")),
	}
}

// Backend returns the backend the factory opens sessions against.
func (f *Factory) Backend() Backend {
	return f.backend
}

// Create opens a new backend session under the given identity and reuse
// partition keys. The session starts healthy, untagged, with an empty
// statement cache of the given capacity.
func (f *Factory) Create(ctx context.Context, creds Credentials, cclass, shardKey string, stmtCacheSize int) (*Session, error) {
	conn, err := f.backend.OpenSession(ctx, f.dsn, creds)
	if err != nil {
		f.logger.Debug("backend session open failed",
			zap.String("user", creds.Key()),
			zap.Error(err))
		return nil, err
	}

	s := &Session{
		conn:      conn,
		logger:    f.logger,
		creds:     creds,
		cclass:    cclass,
		shardKey:  shardKey,
		createdAt: time.Now(),
		helpURLs:  f.backend.Capabilities().HelpURLs,
		cache:     newStmtCache(stmtCacheSize),
		healthy:   true,
	}
	f.logger.Debug("backend session opened",
		zap.String("session_id", conn.ID()),
		zap.String("user", creds.Key()),
		zap.String("cclass", cclass))
	return s, nil
}

// Destroy closes the session's statement cache and backend connection.
// Destroying an already-destroyed session is a no-op.
func (f *Factory) Destroy(ctx context.Context, s *Session) error {
	id := s.ID()
	err := s.destroy(ctx)
	f.logger.Debug("backend session closed",
		zap.String("session_id", id),
		zap.Error(err))
	return err
}
