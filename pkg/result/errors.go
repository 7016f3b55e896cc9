package result

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable identifier of a failure, reported to callers as-is.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation_error"
	KindNotFound        ErrorKind = "not_found"
	KindLoad            ErrorKind = "load_error"
	KindConnection      ErrorKind = "connection_error"
	KindAuth            ErrorKind = "auth_error"
	KindTimeout         ErrorKind = "timeout_error"
	KindRemoteExecution ErrorKind = "remote_execution_error"
)

// PreDispatch reports whether the kind aborts a whole call before any host is contacted.
func (k ErrorKind) PreDispatch() bool {
	switch k {
	case KindValidation, KindNotFound, KindLoad:
		return true
	}
	return false
}

// Error is a classified failure. Host is empty for call-level errors.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Host    string    `json:"-"`
}

func (e *Error) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("%s: %s: %s", e.Host, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewError(kind ErrorKind, host, message string) *Error {
	return &Error{Kind: kind, Message: message, Host: host}
}

func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithHost returns a copy of e scoped to host.
func (e *Error) WithHost(host string) *Error {
	cp := *e
	cp.Host = host
	return &cp
}

// KindOf returns the kind carried by err, or an empty kind when err was never classified.
func KindOf(err error) ErrorKind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// AsError unwraps err into *Error, classifying unknown errors with fallback.
func AsError(err error, fallback ErrorKind) *Error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return re
	}
	return &Error{Kind: fallback, Message: err.Error()}
}
