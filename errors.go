package authstate

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidCredentials = "INVALID_CREDENTIALS"
	textCodeEmailNotConfirmed  = "EMAIL_NOT_CONFIRMED"
	textCodeAuthRequired       = "AUTH_REQUIRED"
	textCodeRoleForbidden      = "ROLE_FORBIDDEN"
)

// ErrInvalidCredentials is returned by SignIn when the identity service
// rejects the email/password pair.
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(textCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrEmailNotConfirmed is returned by SignIn when the account exists but its
// email address has not been verified yet.
var ErrEmailNotConfirmed = goerrors.New("email not confirmed", goerrors.CategoryAuth).
	WithTextCode(textCodeEmailNotConfirmed).
	WithCode(goerrors.CodeUnauthorized)

// ErrAuthRequired is produced by route guards when no authenticated session
// is available.
var ErrAuthRequired = goerrors.New("authentication required", goerrors.CategoryAuth).
	WithTextCode(textCodeAuthRequired).
	WithCode(goerrors.CodeUnauthorized)

// ErrRoleForbidden is produced by route guards when the session role does not
// meet the required tier.
var ErrRoleForbidden = goerrors.New("insufficient role", goerrors.CategoryAuth).
	WithTextCode(textCodeRoleForbidden).
	WithCode(goerrors.CodeForbidden)

// ErrNoSession is returned by operations that need an authenticated user.
var ErrNoSession = errors.New("no active session")

// ErrStoreClosed is returned when the auth store has been torn down.
var ErrStoreClosed = errors.New("auth store is closed")

// ErrProfileNotFound signals that the role lookup found no row for the user.
var ErrProfileNotFound = errors.New("profile not found")

// IsEmailNotConfirmedError matches the error text the identity service uses
// for accounts pending email verification.
func IsEmailNotConfirmedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "email not confirmed")
}

// IsInvalidCredentialsError will check for rejected credential error messages
func IsInvalidCredentialsError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "invalid login credentials") ||
		strings.Contains(msg, "invalid grant") ||
		strings.Contains(msg, "invalid_grant")
}
