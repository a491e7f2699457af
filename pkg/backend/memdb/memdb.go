// Package memdb provides an in-memory implementation of the session
// backend boundary. It emulates just enough server behavior to exercise
// the pool, statement cache and error paths without a network: credential
// checking with proxy grants, scriptable statement results, session
// state applied through "alter session set", server-side session kills
// and schema-version invalidation of prepared statements.
//
// memdb is used by the driver's own tests and by the bench command; it is
// not a database.
package memdb

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/axiondb/axion/pkg/axionerrors"
	"github.com/axiondb/axion/pkg/session"
)

// Handler produces the result of executing a scripted statement.
type Handler func(sess *ServerSession, args ...interface{}) (session.Result, error)

// parseFailure is a scripted prepare-time error.
type parseFailure struct {
	code    int
	message string
	offset  int
}

// Backend is an in-memory session backend.
type Backend struct {
	mu            sync.Mutex
	users         map[string]string          // user -> password
	proxyGrants   map[string]map[string]bool // user -> proxies it may act as
	handlers      map[string]Handler
	parseFailures map[string]parseFailure
	sessions      map[string]*ServerSession
	nextSID       int
	schemaVersion int
	helpURLs      bool
}

// New creates an empty backend with help-URL support disabled.
func New() *Backend {
	return &Backend{
		users:         make(map[string]string),
		proxyGrants:   make(map[string]map[string]bool),
		handlers:      make(map[string]Handler),
		parseFailures: make(map[string]parseFailure),
		sessions:      make(map[string]*ServerSession),
		schemaVersion: 1,
	}
}

// AddUser registers an account.
func (b *Backend) AddUser(user, password string) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[user] = password
	return b
}

// AllowProxy permits user to open sessions acting as proxy.
func (b *Backend) AllowProxy(user, proxy string) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.proxyGrants[user] == nil {
		b.proxyGrants[user] = make(map[string]bool)
	}
	b.proxyGrants[user][proxy] = true
	return b
}

// EnableHelpURLs turns on the error-help portal capability.
func (b *Backend) EnableHelpURLs() *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.helpURLs = true
	return b
}

// Script registers a handler for the exact statement text.
func (b *Backend) Script(sql string, fn Handler) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[sql] = fn
	return b
}

// ScriptRows registers a fixed single-column result for the exact
// statement text.
func (b *Backend) ScriptRows(sql string, rows ...interface{}) *Backend {
	return b.Script(sql, func(_ *ServerSession, _ ...interface{}) (session.Result, error) {
		res := session.Result{Columns: []session.Column{{Name: "VALUE", Type: "VARCHAR2"}}}
		for _, row := range rows {
			res.Rows = append(res.Rows, []interface{}{row})
		}
		return res, nil
	})
}

// ScriptParseError makes Prepare of the exact statement text fail with a
// server parse error carrying the given offset.
func (b *Backend) ScriptParseError(sql string, code int, message string, offset int) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parseFailures[sql] = parseFailure{code: code, message: message, offset: offset}
	return b
}

// Sever kills the server session with the given id, as an administrator
// would. Subsequent pings and executions against it fail with a
// dead-connection error; the client side does not learn of the kill
// until its next round trip.
func (b *Backend) Sever(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sessions[sessionID]; ok {
		s.mu.Lock()
		s.killed = true
		s.mu.Unlock()
	}
}

// InvalidateMetadata bumps the schema version, marking the described
// metadata of every currently prepared statement stale. The next
// execution of each affected statement observes a stale-metadata signal
// exactly once.
func (b *Backend) InvalidateMetadata() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.schemaVersion++
}

// LiveSessions returns the number of open server sessions.
func (b *Backend) LiveSessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// ServerState returns a copy of the session state applied through
// "alter session set" on the given server session, or nil if the session
// is gone.
func (b *Backend) ServerState(sessionID string) map[string]string {
	b.mu.Lock()
	sess, ok := b.sessions[sessionID]
	b.mu.Unlock()
	if !ok {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	state := make(map[string]string, len(sess.state))
	for k, v := range sess.state {
		state[k] = v
	}
	return state
}

// Name implements session.Backend.
func (b *Backend) Name() string { return "memdb" }

// Capabilities implements session.Backend.
func (b *Backend) Capabilities() session.Capabilities {
	b.mu.Lock()
	defer b.mu.Unlock()
	return session.Capabilities{HelpURLs: b.helpURLs}
}

// OpenSession implements session.Backend. Credentials are checked against
// the registered accounts; the proxy syntax requires a proxy grant.
func (b *Backend) OpenSession(_ context.Context, _ string, creds session.Credentials) (session.Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	password, ok := b.users[creds.User]
	if !ok || password != creds.Password {
		return nil, axionerrors.Server(1017, "invalid username/password; logon denied", 0)
	}
	sessionUser := creds.User
	if creds.ProxyUser != "" {
		if !b.proxyGrants[creds.User][creds.ProxyUser] {
			return nil, axionerrors.Client(1012,
				fmt.Sprintf("proxy authentication of %q as %q is not permitted",
					creds.User, creds.ProxyUser))
		}
		sessionUser = creds.ProxyUser
	}

	b.nextSID++
	sess := &ServerSession{
		backend:     b,
		id:          fmt.Sprintf("%d,%d", b.nextSID, b.nextSID*7919%10000),
		sessionUser: sessionUser,
		proxyUser:   creds.ProxyUser,
		state:       make(map[string]string),
	}
	b.sessions[sess.id] = sess
	return sess, nil
}

// ServerSession is one live in-memory server session. It implements
// session.Conn.
type ServerSession struct {
	backend *Backend
	id      string

	sessionUser string
	proxyUser   string

	mu     sync.Mutex
	state  map[string]string
	killed bool
	inTx   bool
	closed bool
}

// ID implements session.Conn.
func (s *ServerSession) ID() string { return s.id }

// SessionUser returns the effective user of the session (the proxy
// target when proxy authentication was used).
func (s *ServerSession) SessionUser() string { return s.sessionUser }

// Ping implements session.Conn.
func (s *ServerSession) Ping(_ context.Context) error {
	return s.roundTrip()
}

// Rollback implements session.Conn. With no open transaction this is a
// pure client-side no-op, so it succeeds even after the server session
// has been killed; the kill only surfaces on the next real round trip.
func (s *ServerSession) Rollback(_ context.Context) error {
	s.mu.Lock()
	inTx := s.inTx
	s.mu.Unlock()
	if !inTx {
		return nil
	}
	if err := s.roundTrip(); err != nil {
		return err
	}
	s.mu.Lock()
	s.inTx = false
	s.mu.Unlock()
	return nil
}

// Close implements session.Conn.
func (s *ServerSession) Close(_ context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.backend.mu.Lock()
	delete(s.backend.sessions, s.id)
	s.backend.mu.Unlock()
	return nil
}

// Prepare implements session.Conn.
func (s *ServerSession) Prepare(_ context.Context, sql string) (session.StatementHandle, error) {
	if err := s.roundTrip(); err != nil {
		return nil, err
	}
	s.backend.mu.Lock()
	failure, failed := s.backend.parseFailures[sql]
	version := s.backend.schemaVersion
	s.backend.mu.Unlock()
	if failed {
		return nil, axionerrors.Server(failure.code, failure.message, failure.offset)
	}
	return &statementHandle{sess: s, sql: sql, schemaVersion: version}, nil
}

// roundTrip models one client/server exchange, surfacing a kill.
func (s *ServerSession) roundTrip() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return axionerrors.Driver(axionerrors.ErrSessionClosed)
	}
	if s.killed {
		return session.DeadConnectionError()
	}
	return nil
}

// statementHandle is a prepared statement against one server session.
type statementHandle struct {
	sess          *ServerSession
	sql           string
	schemaVersion int
	closed        bool
}

// Exec implements session.StatementHandle. Built-in handling covers
// "begin tx", "commit" and "alter session set K = V" directives; other
// statements dispatch to scripted handlers and default to an empty
// success.
func (h *statementHandle) Exec(_ context.Context, args ...interface{}) (session.Result, error) {
	if h.closed {
		return session.Result{}, axionerrors.Driver(axionerrors.ErrNoStatement)
	}
	if err := h.sess.roundTrip(); err != nil {
		return session.Result{}, err
	}

	h.sess.backend.mu.Lock()
	current := h.sess.backend.schemaVersion
	handler, scripted := h.sess.backend.handlers[h.sql]
	h.sess.backend.mu.Unlock()
	if h.schemaVersion != current {
		return session.Result{}, session.StaleMetadataError()
	}

	if applied, err := h.builtin(); applied || err != nil {
		return session.Result{}, err
	}
	if scripted {
		return handler(h.sess, args...)
	}
	return session.Result{}, nil
}

// builtin interprets the tiny built-in command set. It reports whether
// the statement was consumed.
func (h *statementHandle) builtin() (bool, error) {
	sql := strings.TrimSpace(h.sql)
	switch {
	case strings.EqualFold(sql, "begin tx"):
		h.sess.mu.Lock()
		h.sess.inTx = true
		h.sess.mu.Unlock()
		return true, nil
	case strings.EqualFold(sql, "commit"):
		h.sess.mu.Lock()
		h.sess.inTx = false
		h.sess.mu.Unlock()
		return true, nil
	case len(sql) > len("alter session set ") &&
		strings.EqualFold(sql[:len("alter session set ")], "alter session set "):
		directive := sql[len("alter session set "):]
		key, value, found := strings.Cut(directive, "=")
		if !found {
			return true, axionerrors.Server(921, "unexpected end of SQL command", len(sql))
		}
		h.sess.mu.Lock()
		h.sess.state[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), "'")
		h.sess.mu.Unlock()
		return true, nil
	}
	return false, nil
}

// Describe implements session.StatementHandle.
func (h *statementHandle) Describe(_ context.Context) ([]session.Column, error) {
	if h.closed {
		return nil, axionerrors.Driver(axionerrors.ErrNoStatement)
	}
	if err := h.sess.roundTrip(); err != nil {
		return nil, err
	}
	// Refresh against the current schema version.
	h.sess.backend.mu.Lock()
	h.schemaVersion = h.sess.backend.schemaVersion
	h.sess.backend.mu.Unlock()
	return []session.Column{{Name: "VALUE", Type: "VARCHAR2"}}, nil
}

// Close implements session.StatementHandle.
func (h *statementHandle) Close(_ context.Context) error {
	h.closed = true
	return nil
}
