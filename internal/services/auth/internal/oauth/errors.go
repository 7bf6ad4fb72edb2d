package oauth

import (
	"errors"
	"fmt"
)

var (
	ErrProviderConflict = errors.New("provider already exists")
	ErrProviderNotFound = errors.New("provider not found")

	// ErrNotHandled means the request carries no credential for the provider,
	// so another provider may handle it.
	ErrNotHandled = errors.New("not handled")

	ErrMissingCredential  = errors.New("missing credential")
	ErrVerificationFailed = errors.New("verification failed")
	// ErrLinkFailed is a verification failure at the provider's token
	// introspection step. It is reported as a server error.
	ErrLinkFailed = fmt.Errorf("%w: link failed", ErrVerificationFailed)

	ErrConfigMissing = errors.New("provider configuration missing")
)

// CommunicationError reports a failed provider call made after the credential
// was verified. Response holds the provider's body for diagnostics.
type CommunicationError struct {
	Provider   string
	Op         string
	StatusCode int
	Response   string
	Err        error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *CommunicationError) Unwrap() error {
	return e.Err
}

// LoginError ties a failed login attempt to the provider that handled it.
type LoginError struct {
	Provider string
	Err      error
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("%s login: %v", e.Provider, e.Err)
}

func (e *LoginError) Unwrap() error {
	return e.Err
}
