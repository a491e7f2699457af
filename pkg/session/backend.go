// Package session provides the session layer of the Axion driver: the
// abstract backend boundary, credentials handling, the Session type owned
// by a pool, and the per-session statement cache.
package session

import (
	"context"

	"github.com/axiondb/axion/pkg/axionerrors"
)

// Backend is the narrow boundary to the external client library that owns
// network transport and authentication. The pool only ever opens, closes
// and liveness-checks backend sessions through this interface.
type Backend interface {
	// Name identifies the backend implementation, e.g. "memdb" or "pgx"
	Name() string
	// OpenSession authenticates and opens a new backend session
	OpenSession(ctx context.Context, dsn string, creds Credentials) (Conn, error)
	// Capabilities reports optional behaviors of the server/client pair
	Capabilities() Capabilities
}

// Capabilities describes optional behaviors of a backend.
type Capabilities struct {
	// HelpURLs reports whether server errors should carry the
	// supplementary error-help portal line
	HelpURLs bool
}

// Conn is a single live backend session. Implementations need not be safe
// for concurrent use; a Conn is owned by exactly one caller at a time.
type Conn interface {
	// ID returns the server-side session identifier
	ID() string
	// Ping checks backend session liveness
	Ping(ctx context.Context) error
	// Prepare parses a statement and returns its handle
	Prepare(ctx context.Context, sql string) (StatementHandle, error)
	// Rollback discards uncommitted work
	Rollback(ctx context.Context) error
	// Close tears the backend session down
	Close(ctx context.Context) error
}

// StatementHandle is a parsed statement held by the statement cache.
type StatementHandle interface {
	// Exec runs the statement with the given bind values
	Exec(ctx context.Context, args ...interface{}) (Result, error)
	// Describe returns the statement's column metadata
	Describe(ctx context.Context) ([]Column, error)
	// Close releases the parsed statement
	Close(ctx context.Context) error
}

// Column describes one result column of a statement.
type Column struct {
	Name string
	Type string
}

// Result is the outcome of executing a statement.
type Result struct {
	Columns      []Column
	Rows         [][]interface{}
	RowsAffected int64
}

// staleMetadataCode is the native-client code signalled when cached
// statement metadata no longer matches the schema of the underlying
// objects.
const staleMetadataCode = 1210

// StaleMetadataError builds the native-client error a backend returns when
// a cached statement's described metadata has been invalidated by schema
// drift. The driver recovers from it silently.
func StaleMetadataError() *axionerrors.Error {
	return axionerrors.Client(staleMetadataCode,
		"cached statement metadata is stale")
}

// IsStaleMetadata reports whether err signals invalidated statement
// metadata.
func IsStaleMetadata(err error) bool {
	e := axionerrors.As(err)
	return e != nil && e.Namespace == axionerrors.NamespaceClient &&
		e.Code == staleMetadataCode
}

// DeadConnectionError builds the error reported when the backend session
// has been severed.
func DeadConnectionError() *axionerrors.Error {
	e := axionerrors.Driver(axionerrors.ErrConnectionDead)
	e.IsRecoverable = false
	return e
}
