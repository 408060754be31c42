package services

import (
	"errors"
	"fmt"
)

var (
	ErrConflict = errors.New("email already in use")
	ErrNotFound = errors.New("user not found")
	// ErrNoPendingVerification is a NotFound: there is no code to match.
	ErrNoPendingVerification = fmt.Errorf("%w: no pending verification", ErrNotFound)
	ErrInvalidCode           = errors.New("invalid verification code")
	ErrCodeExpired           = errors.New("verification code has expired")
	ErrUnverified            = errors.New("email not verified")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrForbidden             = errors.New("forbidden")
	// ErrConcurrentUpdate means the record changed under us; retrying is safe.
	ErrConcurrentUpdate = errors.New("concurrent update")
	// ErrUpstream wraps a failing or timed out collaborator; retrying is safe.
	ErrUpstream = errors.New("upstream failure")
)

func invalidArgument(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, msg)
}
