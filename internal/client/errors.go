package client

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyConnected     = errors.New("client: already connected")
	ErrNotConnected         = errors.New("client: not connected")
	ErrReceiveTimeout       = errors.New("client: receive timeout")
	ErrAlreadyAuthenticated = errors.New("client: already authenticated")
	ErrNotAuthenticated     = errors.New("client: not authenticated")
	ErrLoginFailed          = errors.New("client: login failed")
	ErrLogoutFailed         = errors.New("client: logout failed")
	ErrEmptyReply           = errors.New("client: empty reply")
	ErrInvalidCredentials   = errors.New("client: invalid credentials")
)

// ConnectError is a failed connect attempt (DNS, refused, timeout, TLS).
// The supervisor retries these.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("client: connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// IOError is a mid-session socket failure. The connection is already closed
// when the caller sees one.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("client: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// IsContractViolation reports errors caused by calling an operation from the
// wrong state, as opposed to transport or protocol failures.
func IsContractViolation(err error) bool {
	return errors.Is(err, ErrAlreadyConnected) ||
		errors.Is(err, ErrAlreadyAuthenticated) ||
		errors.Is(err, ErrNotAuthenticated) ||
		errors.Is(err, ErrNotConnected)
}
