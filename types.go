package authstate

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// IdentityClient is the remote identity collaborator. It owns credential
// verification and session issuance; this package only consumes the results.
type IdentityClient interface {
	// GetSession returns the currently active session, or nil when the
	// client holds none. A non-nil error means the query itself failed.
	GetSession(ctx context.Context) (*Session, error)

	// SignInWithPassword verifies credentials remotely. A successful call
	// is expected to surface through the session event stream rather than
	// the return value.
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)

	SignOut(ctx context.Context) error

	// OnSessionChange subscribes to session lifecycle notifications.
	OnSessionChange() (Subscription, error)

	ResendVerificationEmail(ctx context.Context, email string) error
}

// Subscription delivers session events in order until Unsubscribe is called.
// Implementations must close the Events channel on Unsubscribe.
type Subscription interface {
	Events() <-chan SessionEvent
	Unsubscribe()
}

// RoleProvider is the role lookup collaborator: a single-row fetch of the
// authoritative role by user identifier.
type RoleProvider interface {
	RoleByUserID(ctx context.Context, userID string) (Role, error)
}

// RoleProviderFunc adapts a function into a RoleProvider.
type RoleProviderFunc func(ctx context.Context, userID string) (Role, error)

func (f RoleProviderFunc) RoleByUserID(ctx context.Context, userID string) (Role, error) {
	if f == nil {
		return "", ErrProfileNotFound
	}
	return f(ctx, userID)
}

// CookieStore is the short-lived half of the role cache.
type CookieStore interface {
	Get(name string) (string, error)
	Set(name, value string, ttl time.Duration) error
	Delete(name string) error
}

// DurableStore is the long-lived half of the role cache.
type DurableStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTHSTATE "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTHSTATE "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTHSTATE "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTHSTATE "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
