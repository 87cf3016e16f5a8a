package auth

import "errors"

// ErrInvalidCredentials is wrapped by AuthError when the identity provider
// rejects the client id or secret.
var ErrInvalidCredentials = errors.New("invalid client credentials")

// AuthError reports a failed token retrieval.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "kenter auth: " + e.Err.Error() }

func (e *AuthError) Unwrap() error { return e.Err }
