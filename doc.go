// Package authstate implements the client-side authentication session state
// machine for the loudkitchen platform: establishing, caching, refreshing,
// and invalidating an authenticated identity and its authorization role.
//
// The package centers on AuthStore, which reconciles a locally cached role
// (cookie + durable store) against the authoritative role fetched from a
// remote profile lookup, folds session-change events from the identity
// service into a five-state lifecycle, and exposes a consistent snapshot
// ({user, role, status}) to route guards and admin gating.
//
// Collaborators are injected through small interfaces (IdentityClient,
// RoleProvider, CookieStore, DurableStore); concrete implementations live in
// provider/gotrue and repository, with in-process stores in this package.
package authstate
