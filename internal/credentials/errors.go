package credentials

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// ErrNoCallerToken is returned when a delegated token is requested without a
// caller token to exchange.
var ErrNoCallerToken = errors.New("no caller token available")

// AuthExchangeError reports that a token for Resource could not be obtained on
// behalf of the caller. It wraps the underlying *oauth2.RetrieveError when the
// identity provider answered with an OAuth error.
type AuthExchangeError struct {
	Resource    string
	Code        string
	Description string
	Err         error
}

func (e *AuthExchangeError) Error() string {
	msg := fmt.Sprintf("token exchange for %s failed", e.Resource)
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Code == "" && e.Description == "" && e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthExchangeError) Unwrap() error {
	return e.Err
}

// ConsentRequired reports whether the user has to sign in again or grant
// consent before the exchange can succeed.
func (e *AuthExchangeError) ConsentRequired() bool {
	switch e.Code {
	case "interaction_required", "consent_required", "invalid_grant", "login_required":
		return true
	}
	return false
}

// IsAuthExchangeError reports whether err is an exchange failure, including a
// missing caller token.
func IsAuthExchangeError(err error) bool {
	var exErr *AuthExchangeError
	return errors.As(err, &exErr) || errors.Is(err, ErrNoCallerToken)
}

// newRetrieveError converts an identity provider rejection.
func newRetrieveError(resource string, rErr *oauth2.RetrieveError) *AuthExchangeError {
	exErr := &AuthExchangeError{
		Resource:    resource,
		Code:        rErr.ErrorCode,
		Description: rErr.ErrorDescription,
		Err:         rErr,
	}
	if exErr.Code == "" && rErr.Response != nil {
		exErr.Description = fmt.Sprintf("identity provider returned HTTP %d", rErr.Response.StatusCode)
	}
	return exErr
}
