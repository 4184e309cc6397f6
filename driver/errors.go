package driver

import "github.com/pkg/errors"

// ErrorKind taxonomizes the ways a driver operation can fail, per the error
// kinds every backend reports through.
type ErrorKind uint8

const (
	ConfigurationInvalid ErrorKind = iota
	ConnectFailed
	NotConnected
	QueryRejected
	QueryShapeInvalid
)

func (k ErrorKind) String() string {
	switch k {
	case ConfigurationInvalid:
		return "configuration invalid"
	case ConnectFailed:
		return "connect failed"
	case NotConnected:
		return "not connected"
	case QueryRejected:
		return "query rejected"
	case QueryShapeInvalid:
		return "query shape invalid"
	default:
		return "unknown"
	}
}

// Error wraps a root cause with the ErrorKind that classifies it, preserving
// errors.Is/As comparability against the Kind sentinel errors below.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}

	return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, driver.ErrNotConnected) etc.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// NewError wraps err with op and kind, using errors.WithStack when err doesn't
// already carry a stack trace.
func NewError(kind ErrorKind, op string, err error) *Error {
	if err != nil {
		err = errors.WithStack(err)
	}

	return &Error{Kind: kind, Op: op, Err: err}
}

// Sentinel values usable with errors.Is to check an operation's failure kind
// without caring about the wrapped cause or op name.
var (
	ErrConfigurationInvalid = &Error{Kind: ConfigurationInvalid}
	ErrConnectFailed        = &Error{Kind: ConnectFailed}
	ErrNotConnected         = &Error{Kind: NotConnected}
	ErrQueryRejected        = &Error{Kind: QueryRejected}
	ErrQueryShapeInvalid    = &Error{Kind: QueryShapeInvalid}
)
