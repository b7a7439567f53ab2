package authstate

import "fmt"

// Session is a read-only copy of the externally authenticated identity,
// valid for the lifetime of the process that observed it.
type Session struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

func (s *Session) String() string {
	if s == nil {
		return "session<nil>"
	}
	return fmt.Sprintf("session<%s %s>", s.UserID, s.Email)
}

// EventKind tags a session-change notification.
type EventKind string

const (
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	EventUserUpdated    EventKind = "USER_UPDATED"
)

// SessionEvent is a discrete notification from the identity collaborator.
// Events that carry a session re-enter the authenticated flow; an explicit
// SIGNED_OUT clears local state; anything else without a session is ignored
// so transient null-session notifications do not flap the UI.
type SessionEvent struct {
	Kind    EventKind
	Session *Session
}
