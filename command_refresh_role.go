package authstate

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

// RefreshRoleMessage asks the store to re-resolve the current user's role,
// e.g. after an admin changes their own tier from the CMS.
type RefreshRoleMessage struct {
	Reason     string `json:"reason" example:"role-updated" doc:"Why the refresh was requested"`
	OnResponse func(r *RefreshRoleResponse)
}

// RefreshRoleResponse reports the state after the refresh.
type RefreshRoleResponse struct {
	Role         string `json:"role" example:"admin" doc:"Effective role after refresh"`
	IsAdmin      bool   `json:"is_admin" example:"true" doc:"Whether the role grants CMS access"`
	HadSession   bool   `json:"had_session" example:"true" doc:"Whether a user was signed in"`
	IsSuperAdmin bool   `json:"is_superadmin" example:"false" doc:"Whether the role is superadmin"`
}

// RefreshRoleHandler executes RefreshRoleMessage against an AuthStore.
type RefreshRoleHandler struct {
	store *AuthStore
}

// NewRefreshRoleHandler builds a handler bound to the given store.
func NewRefreshRoleHandler(store *AuthStore) *RefreshRoleHandler {
	return &RefreshRoleHandler{store: store}
}

func (h *RefreshRoleHandler) Execute(ctx context.Context, event RefreshRoleMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during role refresh")
	default:
		return h.execute(ctx, event)
	}
}

func (h *RefreshRoleHandler) execute(ctx context.Context, event RefreshRoleMessage) error {
	resp := &RefreshRoleResponse{}

	err := h.store.RefreshRole(ctx)
	if errors.Is(err, ErrNoSession) {
		// Expected when nobody is signed in; not an application error.
		if event.OnResponse != nil {
			event.OnResponse(resp)
		}
		return nil
	}
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to refresh role")
	}

	state := h.store.Snapshot()
	resp.HadSession = true
	resp.Role = string(state.Role)
	resp.IsAdmin = state.IsAdmin
	resp.IsSuperAdmin = state.IsSuperAdmin

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
