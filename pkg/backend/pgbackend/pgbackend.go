// Package pgbackend adapts a PostgreSQL server to the session backend
// boundary using pgx. Each backend session is one dedicated *pgx.Conn;
// pooling, liveness checks and statement caching stay with the driver, so
// pgx's own statement cache is disabled.
package pgbackend

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/axiondb/axion/pkg/axionerrors"
	"github.com/axiondb/axion/pkg/session"
)

// Backend implements session.Backend over pgx.
type Backend struct {
	stmtSeq atomic.Uint64
}

// New creates a pgx-based backend.
func New() *Backend { return &Backend{} }

// Name implements session.Backend.
func (b *Backend) Name() string { return "pgx" }

// Capabilities implements session.Backend. PostgreSQL has no error-help
// portal.
func (b *Backend) Capabilities() session.Capabilities {
	return session.Capabilities{}
}

// OpenSession implements session.Backend. Credentials override any user
// and password embedded in the DSN; the proxy syntax is mapped onto a
// SET ROLE after connecting.
func (b *Backend) OpenSession(ctx context.Context, dsn string, creds session.Credentials) (session.Conn, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, axionerrors.Driverf(axionerrors.ErrInvalidPoolParams,
			"invalid connect string: %v", err)
	}
	cfg.DefaultQueryExecMode = pgx.QueryExecModeDescribeExec
	if creds.User != "" {
		cfg.User = creds.User
		cfg.Password = creds.Password
	}
	pgConn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, translate(err)
	}
	if creds.ProxyUser != "" {
		if _, err := pgConn.Exec(ctx, "set role "+pgx.Identifier{creds.ProxyUser}.Sanitize()); err != nil {
			_ = pgConn.Close(ctx)
			return nil, translate(err)
		}
	}
	return &conn{backend: b, conn: pgConn}, nil
}

// conn is one backend session. It implements session.Conn.
type conn struct {
	backend *Backend
	conn    *pgx.Conn
}

// ID implements session.Conn using the server backend process id.
func (c *conn) ID() string {
	return strconv.FormatUint(uint64(c.conn.PgConn().PID()), 10)
}

// Ping implements session.Conn.
func (c *conn) Ping(ctx context.Context) error {
	return c.check(c.conn.Ping(ctx))
}

// Rollback implements session.Conn. Outside a transaction the server
// answers with a warning only, matching the no-op contract.
func (c *conn) Rollback(ctx context.Context) error {
	_, err := c.conn.Exec(ctx, "rollback")
	return c.check(err)
}

// Close implements session.Conn.
func (c *conn) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

// Prepare implements session.Conn.
func (c *conn) Prepare(ctx context.Context, sql string) (session.StatementHandle, error) {
	name := fmt.Sprintf("axion_stmt_%d", c.backend.stmtSeq.Add(1))
	desc, err := c.conn.Prepare(ctx, name, sql)
	if err != nil {
		return nil, c.check(err)
	}
	return &statement{conn: c, name: name, desc: desc}, nil
}

// check maps a pgx operation error onto the driver's error object,
// reporting a dead connection once the underlying socket is gone.
func (c *conn) check(err error) error {
	if err == nil {
		return nil
	}
	if c.conn.IsClosed() {
		return session.DeadConnectionError()
	}
	return translate(err)
}

// statement is one prepared statement. It implements
// session.StatementHandle.
type statement struct {
	conn *conn
	name string
	desc *pgconn.StatementDescription
}

// Exec implements session.StatementHandle.
func (s *statement) Exec(ctx context.Context, args ...interface{}) (session.Result, error) {
	rows, err := s.conn.conn.Query(ctx, s.name, args...)
	if err != nil {
		return session.Result{}, s.conn.check(err)
	}
	defer rows.Close()

	var res session.Result
	for _, field := range rows.FieldDescriptions() {
		res.Columns = append(res.Columns, session.Column{
			Name: field.Name,
			Type: typeName(s.conn.conn, field.DataTypeOID),
		})
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return session.Result{}, s.conn.check(err)
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return session.Result{}, s.conn.check(err)
	}
	res.RowsAffected = rows.CommandTag().RowsAffected()
	return res, nil
}

// Describe implements session.StatementHandle.
func (s *statement) Describe(ctx context.Context) ([]session.Column, error) {
	// Re-parse as the unnamed statement so schema drift since Prepare is
	// reflected without clashing with the named statement.
	desc, err := s.conn.conn.PgConn().Prepare(ctx, "", s.desc.SQL, nil)
	if err != nil {
		return nil, s.conn.check(err)
	}
	cols := make([]session.Column, 0, len(desc.Fields))
	for _, field := range desc.Fields {
		cols = append(cols, session.Column{
			Name: string(field.Name),
			Type: typeName(s.conn.conn, field.DataTypeOID),
		})
	}
	return cols, nil
}

// Close implements session.StatementHandle.
func (s *statement) Close(ctx context.Context) error {
	return s.conn.check(s.conn.conn.Deallocate(ctx, s.name))
}

// typeName resolves an OID to a readable type name.
func typeName(c *pgx.Conn, oid uint32) string {
	if t, ok := c.TypeMap().TypeForOID(oid); ok {
		return t.Name
	}
	return strconv.FormatUint(uint64(oid), 10)
}

// translate wraps a PostgreSQL server error as a server-namespace driver
// error. Numeric SQLSTATE classes carry their value as the code; the
// parser position, when present, becomes the statement offset.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return axionerrors.Client(0, err.Error())
	}
	code, convErr := strconv.Atoi(pgErr.Code)
	if convErr != nil {
		code = 0
	}
	offset := 0
	if pgErr.Position > 0 {
		offset = int(pgErr.Position) - 1
	}
	e := axionerrors.Server(code, pgErr.Message, offset)
	e.Context = pgErr.Code
	return e
}
