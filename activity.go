package authstate

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventStatusChanged  ActivityEventType = "session.status.changed"
	ActivityEventRoleResolved   ActivityEventType = "session.role.resolved"
	ActivityEventRoleDefaulted  ActivityEventType = "session.role.defaulted"
	ActivityEventSignInFailure  ActivityEventType = "auth.signin.failure"
	ActivityEventSignOut        ActivityEventType = "auth.signout"
	ActivityEventSessionEvent   ActivityEventType = "session.event.received"
	ActivityEventSessionIgnored ActivityEventType = "session.event.ignored"
)

// ActivityEvent captures audit-friendly information about a state change.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	FromStatus AuthStatus
	ToStatus   AuthStatus
	Role       Role
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
// Sinks are invoked inline with state transitions and must not call back
// into the store that emitted the event.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
