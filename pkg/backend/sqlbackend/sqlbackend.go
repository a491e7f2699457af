// Package sqlbackend adapts any database/sql driver to the session
// backend boundary. Each backend session pins one *sql.Conn from a
// dedicated *sql.DB whose own pooling is disabled, leaving sizing and
// reuse decisions to the driver's pool.
//
// The driver name is chosen at construction, e.g.
//
//	backend := sqlbackend.New("mysql")
//
// with the corresponding database/sql driver blank-imported by the
// application.
package sqlbackend

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/axiondb/axion/pkg/axionerrors"
	"github.com/axiondb/axion/pkg/session"
)

// Backend implements session.Backend over database/sql.
type Backend struct {
	driverName string
	connSeq    atomic.Uint64
}

// New creates a backend for the given registered database/sql driver.
func New(driverName string) *Backend {
	return &Backend{driverName: driverName}
}

// Name implements session.Backend.
func (b *Backend) Name() string { return "sql/" + b.driverName }

// Capabilities implements session.Backend.
func (b *Backend) Capabilities() session.Capabilities {
	return session.Capabilities{}
}

// OpenSession implements session.Backend. database/sql has no per-connect
// credential injection, so per-acquire credentials are rejected and the
// DSN must carry authentication.
func (b *Backend) OpenSession(ctx context.Context, dsn string, creds session.Credentials) (session.Conn, error) {
	if !creds.IsZero() {
		return nil, axionerrors.Driverf(axionerrors.ErrCredentialsNotAllowed,
			"the %s backend only authenticates through the connect string", b.Name())
	}
	db, err := sql.Open(b.driverName, dsn)
	if err != nil {
		return nil, axionerrors.Driverf(axionerrors.ErrInvalidPoolParams,
			"invalid connect string: %v", err)
	}
	// One pinned connection per backend session.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	sqlConn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, axionerrors.Client(0, err.Error())
	}
	return &conn{
		db:   db,
		conn: sqlConn,
		id:   strconv.FormatUint(b.connSeq.Add(1), 10),
	}, nil
}

// conn is one backend session. It implements session.Conn.
type conn struct {
	db   *sql.DB
	conn *sql.Conn
	id   string
}

// ID implements session.Conn.
func (c *conn) ID() string { return c.id }

// Ping implements session.Conn.
func (c *conn) Ping(ctx context.Context) error {
	return c.check(c.conn.PingContext(ctx))
}

// Rollback implements session.Conn. database/sql tracks transactions on
// the Tx object instead of the connection, so discarding uncommitted work
// here is a no-op.
func (c *conn) Rollback(_ context.Context) error { return nil }

// Close implements session.Conn.
func (c *conn) Close(_ context.Context) error {
	err := c.conn.Close()
	if dbErr := c.db.Close(); err == nil {
		err = dbErr
	}
	return err
}

// Prepare implements session.Conn.
func (c *conn) Prepare(ctx context.Context, query string) (session.StatementHandle, error) {
	stmt, err := c.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, c.check(err)
	}
	return &statement{conn: c, stmt: stmt, sql: query}, nil
}

// check maps a database/sql operation error onto the driver's error
// object.
func (c *conn) check(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return session.DeadConnectionError()
	}
	return axionerrors.Client(0, err.Error())
}

// statement is one prepared statement. It implements
// session.StatementHandle.
type statement struct {
	conn *conn
	stmt *sql.Stmt
	sql  string
}

// Exec implements session.StatementHandle. Statements producing rows are
// read eagerly; others report only the affected row count.
func (s *statement) Exec(ctx context.Context, args ...interface{}) (session.Result, error) {
	rows, err := s.stmt.QueryContext(ctx, args...)
	if err != nil {
		return session.Result{}, s.conn.check(err)
	}
	defer rows.Close()

	var res session.Result
	types, err := rows.ColumnTypes()
	if err != nil {
		return session.Result{}, s.conn.check(err)
	}
	for _, t := range types {
		res.Columns = append(res.Columns, session.Column{
			Name: t.Name(),
			Type: t.DatabaseTypeName(),
		})
	}
	for rows.Next() {
		values := make([]interface{}, len(types))
		dests := make([]interface{}, len(types))
		for i := range values {
			dests[i] = &values[i]
		}
		if err := rows.Scan(dests...); err != nil {
			return session.Result{}, s.conn.check(err)
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return session.Result{}, s.conn.check(err)
	}
	res.RowsAffected = int64(len(res.Rows))
	return res, nil
}

// Describe implements session.StatementHandle. database/sql exposes
// column metadata only on a result set, so the statement is re-prepared
// and queried without consuming rows.
func (s *statement) Describe(ctx context.Context) ([]session.Column, error) {
	rows, err := s.stmt.QueryContext(ctx)
	if err != nil {
		return nil, s.conn.check(err)
	}
	defer rows.Close()
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, s.conn.check(err)
	}
	cols := make([]session.Column, 0, len(types))
	for _, t := range types {
		cols = append(cols, session.Column{Name: t.Name(), Type: t.DatabaseTypeName()})
	}
	return cols, nil
}

// Close implements session.StatementHandle.
func (s *statement) Close(_ context.Context) error {
	return s.stmt.Close()
}
