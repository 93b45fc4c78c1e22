package transport

import (
	"errors"
	"fmt"

	"github.com/wspeirs/qcp/internal/window"
)

// Kind classifies the error surfaces the transport engine can produce,
// per the protocol's closed error taxonomy.
type Kind uint8

const (
	// Io is any underlying socket failure not otherwise classified.
	Io Kind = iota
	// HandshakeTimeout means no reply arrived within three read-timeout
	// attempts.
	HandshakeTimeout
	// HandshakeRejected means the peer's reply was not Acknowledge(0).
	HandshakeRejected
	// ProtocolViolation means a peer sent the wrong message type for
	// the current phase.
	ProtocolViolation
	// WindowTooOld/WindowDuplicate/WindowMissing surface the window's
	// own errors; on correct protocol logic these should never occur.
	WindowTooOld
	WindowDuplicate
	WindowMissing
	// ConfigInvalid means the command-line/environment configuration
	// failed validation before any socket was opened.
	ConfigInvalid
)

func (k Kind) String() string {
	switch k {
	case HandshakeTimeout:
		return "HandshakeTimeout"
	case HandshakeRejected:
		return "HandshakeRejected"
	case ProtocolViolation:
		return "ProtocolViolation"
	case WindowTooOld:
		return "WindowTooOld"
	case WindowDuplicate:
		return "WindowDuplicate"
	case WindowMissing:
		return "WindowMissing"
	case ConfigInvalid:
		return "ConfigInvalid"
	default:
		return "Io"
	}
}

// Error is the error type returned across the transport's constructors
// and steady-state calls. It wraps an optional underlying cause so
// callers can still errors.Is/errors.As through to it.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transport: %s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("transport: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// NewConfigError builds a ConfigInvalid *Error for use by the config
// package, which imports transport so that configuration failures surface
// through the same taxonomy.
func NewConfigError(msg string) *Error {
	return newError(ConfigInvalid, msg, nil)
}

// windowKind maps a window package sentinel error to the matching Kind, so
// a window-layer failure surfaces through the same closed taxonomy instead
// of collapsing into the generic Io kind.
func windowKind(err error) Kind {
	switch {
	case errors.Is(err, window.ErrTooOld):
		return WindowTooOld
	case errors.Is(err, window.ErrOutOfWindow):
		return WindowTooOld
	case errors.Is(err, window.ErrDuplicate):
		return WindowDuplicate
	case errors.Is(err, window.ErrMissing):
		return WindowMissing
	default:
		return Io
	}
}
