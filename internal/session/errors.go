package session

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures by how a connection should react to them.
type ErrorKind string

const (
	KindStorage  ErrorKind = "storage"
	KindProtocol ErrorKind = "protocol"
	KindInternal ErrorKind = "internal"
)

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Op)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func StorageError(op string, err error) *Error {
	return &Error{Kind: KindStorage, Op: op, Err: err}
}

func ProtocolError(op string, err error) *Error {
	return &Error{Kind: KindProtocol, Op: op, Err: err}
}

func InternalError(op string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Err: err}
}

// IsKind reports whether any error in err's chain is an *Error of kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
