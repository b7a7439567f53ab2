package authstate

// AuthStatus is the lifecycle tag governing what consumers may render.
// Exactly one status is active at any time.
type AuthStatus string

const (
	// StatusInitializing is the state before the session bootstrap decides.
	StatusInitializing AuthStatus = "INITIALIZING"
	// StatusLoadingProfile means a session exists but no role is cached and
	// the authoritative lookup is still in flight.
	StatusLoadingProfile AuthStatus = "LOADING_PROFILE"
	// StatusAuthenticated means a session and an effective role are set.
	StatusAuthenticated AuthStatus = "AUTHENTICATED"
	// StatusUnauthenticated means no session is active.
	StatusUnauthenticated AuthStatus = "UNAUTHENTICATED"
	// StatusError means the bootstrap hit an unclassified failure.
	StatusError AuthStatus = "ERROR"
)

// AuthState is the read model consumers observe. All fields are derived
// atomically from the same internal snapshot: User is never paired with a
// role computed for a different user.
type AuthState struct {
	User   *Session
	Role   Role
	Status AuthStatus
	Err    string

	IsLoading       bool
	IsAuthenticated bool
	IsAdmin         bool
	IsSuperAdmin    bool
}

func deriveState(user *Session, role Role, status AuthStatus, errMsg string) AuthState {
	return AuthState{
		User:   user,
		Role:   role,
		Status: status,
		Err:    errMsg,

		IsLoading:       status == StatusInitializing || status == StatusLoadingProfile,
		IsAuthenticated: status == StatusAuthenticated && user != nil,
		IsAdmin:         role.IsAdmin(),
		IsSuperAdmin:    role.IsSuperAdmin(),
	}
}
