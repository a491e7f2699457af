// Package axionerrors provides the structured error object used throughout the
// Axion driver. Every failure surfaced by the driver carries a stable,
// namespaced code, an optional statement offset, and a recoverability flag.
//
// # Overview
//
// The axionerrors package extends Go's standard error handling with:
//   - A three-layer code taxonomy (server, native client, driver)
//   - A stable full code of the form "AXD-4005"
//   - Statement offsets for server-side parse/compile errors
//   - Structural serialization that round-trips every field
//   - Recoverability detection for pooled-session handling
//
// # Basic Usage
//
//	// Driver-level error from the stable code table
//	err := axionerrors.Driver(axionerrors.ErrPoolExhausted)
//
//	// Server-side parse error pinpointing the failing token
//	err := axionerrors.Server(6550, "identifier T_MISSING must be declared", 6)
//
//	// Inspect a failure
//	var axnErr *axionerrors.Error
//	if errors.As(err, &axnErr) && axnErr.IsRecoverable {
//	    // session can continue to be used
//	}
//
// # Error Namespaces
//
// The namespace prefix of the full code identifies the originating layer:
// AXN for the database server (unbounded numeric vocabulary), AXC for the
// native client layer, and AXD for the driver itself. Driver codes are
// grouped by kind: 1xxx interface/usage, 2xxx programming, 4xxx runtime.
//
// # Thread Safety
//
// Error instances are not thread-safe for modification. Clone an instance
// before mutating one that may be shared across goroutines.
package axionerrors

import (
	"errors"
	"fmt"

	"github.com/axiondb/axion/pkg/json"
)

// Namespace identifies the layer an error originated in.
type Namespace string

const (
	// NamespaceServer identifies errors raised by the database server
	NamespaceServer Namespace = "AXN"
	// NamespaceClient identifies errors raised by the native client layer
	NamespaceClient Namespace = "AXC"
	// NamespaceDriver identifies errors raised by the driver itself
	NamespaceDriver Namespace = "AXD"
)

// Driver error codes. The numeric values are stable across releases;
// callers may match on them.
const (
	// ErrPoolClosed is raised when operating on a closed pool
	ErrPoolClosed = 1002
	// ErrPoolHasBusySessions is raised when closing a pool that still has
	// sessions checked out
	ErrPoolHasBusySessions = 1005
	// ErrSessionNotOwned is raised when releasing or dropping a session that
	// does not belong to the pool
	ErrSessionNotOwned = 1008
	// ErrNoStatement is raised when executing with no statement prepared or
	// against a closed statement
	ErrNoStatement = 2001
	// ErrSessionClosed is raised when using a session after release or drop
	ErrSessionClosed = 2005
	// ErrDuplicateParameter is raised when a parameter and its deprecated
	// alias are both supplied
	ErrDuplicateParameter = 2014
	// ErrCredentialsNotAllowed is raised when per-acquire credentials are
	// passed to a homogeneous pool
	ErrCredentialsNotAllowed = 2018
	// ErrInvalidPoolParams is raised when pool parameters fail validation
	ErrInvalidPoolParams = 2027
	// ErrPoolExhausted is raised when the pool is at capacity under the
	// NOWAIT or TIMEDWAIT acquisition mode
	ErrPoolExhausted = 4005
	// ErrConnectionDead is raised when the backend session has been severed
	ErrConnectionDead = 4011
)

// driverMessages maps driver error codes to their message text.
var driverMessages = map[int]string{
	ErrPoolClosed:            "pool is not open",
	ErrPoolHasBusySessions:   "pool cannot be closed while sessions are in use",
	ErrSessionNotOwned:       "session does not belong to this pool or was already returned",
	ErrNoStatement:           "no statement prepared or statement is closed",
	ErrSessionClosed:         "session is not open",
	ErrDuplicateParameter:    "parameter and deprecated alias supplied together",
	ErrCredentialsNotAllowed: "credentials cannot be supplied when acquiring from a homogeneous pool",
	ErrInvalidPoolParams:     "invalid pool parameters",
	ErrPoolExhausted:         "timed out waiting for the pool to return a session",
	ErrConnectionDead:        "the database or network closed the connection",
}

// Error is the structured, value-serializable description of a failure.
// It satisfies the error interface and supports errors.As/Unwrap chains.
type Error struct {
	// Code is the backend-specific numeric error number; 0 if not applicable
	Code int `json:"code"`
	// Namespace identifies the originating layer
	Namespace Namespace `json:"namespace"`
	// Offset is the offset into the failing statement for server-side
	// parse/compile errors; 0 otherwise
	Offset int `json:"offset"`
	// Message is the human-readable text, possibly ending in a
	// supplementary "Help: <url>" line
	Message string `json:"message"`
	// Context is an opaque diagnostic string
	Context string `json:"context"`
	// IsRecoverable reports whether the triggering session can continue
	// to be used
	IsRecoverable bool `json:"is_recoverable"`

	cause error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Message == "" {
		return e.FullCode()
	}
	return fmt.Sprintf("%s: %s", e.FullCode(), e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// FullCode returns the namespaced code string, e.g. "AXN-06550" or
// "AXD-4005". Server codes are zero-padded to five digits; client and
// driver codes are printed plain.
func (e *Error) FullCode() string {
	if e.Namespace == NamespaceServer {
		return fmt.Sprintf("%s-%05d", e.Namespace, e.Code)
	}
	return fmt.Sprintf("%s-%d", e.Namespace, e.Code)
}

// WithContext sets the opaque diagnostic context string
func (e *Error) WithContext(context string) *Error {
	e.Context = context
	return e
}

// WithCause attaches an underlying error for errors.Is/As chains.
// The cause is diagnostic only and does not survive serialization.
func (e *Error) WithCause(cause error) *Error {
	e.cause = cause
	return e
}

// Clone returns a structural deep copy of the error. The cause chain is
// not carried over; all serializable fields are preserved exactly.
func (e *Error) Clone() *Error {
	clone := *e
	clone.cause = nil
	return &clone
}

// Marshal serializes the error to JSON, preserving every structural field.
func (e *Error) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal reconstructs an error from its serialized form.
func Unmarshal(data []byte) (*Error, error) {
	var e Error
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode error object: %w", err)
	}
	return &e, nil
}

// Driver creates a driver-layer error from the stable code table.
func Driver(code int) *Error {
	return &Error{
		Code:      code,
		Namespace: NamespaceDriver,
		Message:   driverMessages[code],
	}
}

// Driverf creates a driver-layer error with extra detail appended to the
// table message.
func Driverf(code int, format string, args ...interface{}) *Error {
	e := Driver(code)
	e.Message = e.Message + ": " + fmt.Sprintf(format, args...)
	return e
}

// Server creates a server-layer error. Offset pinpoints the failing token
// for parse/compile errors and is 0 otherwise.
func Server(code int, message string, offset int) *Error {
	return &Error{
		Code:      code,
		Namespace: NamespaceServer,
		Offset:    offset,
		Message:   message,
	}
}

// Client creates a native-client-layer error.
func Client(code int, message string) *Error {
	return &Error{
		Code:      code,
		Namespace: NamespaceClient,
		Message:   message,
	}
}

// HelpURL returns the deterministic error-help portal URL for a server
// error code.
func HelpURL(code int) string {
	return fmt.Sprintf("https://docs.axiondb.io/error-help/axn-%05d/", code)
}

// WithHelpURL appends the supplementary help line for the error's code.
// The augmentation is purely additive; the base message is kept intact.
// Only server-namespace errors are augmented.
func (e *Error) WithHelpURL() *Error {
	if e.Namespace != NamespaceServer {
		return e
	}
	e.Message = fmt.Sprintf("%s\nHelp: %s", e.Message, HelpURL(e.Code))
	return e
}

// As unwraps err into an *Error, returning nil if err does not carry one.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// IsUsage reports whether err is a synchronous usage or programming error
// (closed pool/session, type mismatch, invalid operation).
func IsUsage(err error) bool {
	e := As(err)
	if e == nil || e.Namespace != NamespaceDriver {
		return false
	}
	return e.Code >= 1000 && e.Code < 3000
}

// IsConfig reports whether err is a configuration error raised at call time.
func IsConfig(err error) bool {
	e := As(err)
	if e == nil || e.Namespace != NamespaceDriver {
		return false
	}
	return e.Code == ErrInvalidPoolParams || e.Code == ErrDuplicateParameter ||
		e.Code == ErrCredentialsNotAllowed
}

// IsExhausted reports whether err indicates the pool was at capacity under
// NOWAIT or an expired TIMEDWAIT.
func IsExhausted(err error) bool {
	e := As(err)
	return e != nil && e.Namespace == NamespaceDriver && e.Code == ErrPoolExhausted
}

// IsConnectivity reports whether err indicates a severed backend session.
// Sessions observing a connectivity error must not be returned to the
// idle registry.
func IsConnectivity(err error) bool {
	e := As(err)
	return e != nil && e.Namespace == NamespaceDriver && e.Code == ErrConnectionDead
}
