package authstate

import "time"

// RoleStorageKey is the fixed key under which the cached role is persisted
// in both backing stores.
const RoleStorageKey = "loudkitchen_user_role"

// DefaultCookieTTL is the lifetime of the role cookie.
const DefaultCookieTTL = 7 * 24 * time.Hour

// RoleCache persists a provisional role redundantly in a short-lived cookie
// and a durable store. The cookie wins on read. It is a redundancy pattern,
// not a coherence protocol: writes are best-effort and last-write-wins, and
// storage failures degrade silently to "no cached role".
type RoleCache struct {
	cookies CookieStore
	durable DurableStore
	key     string
	ttl     time.Duration
	logger  Logger
}

// RoleCacheOption customizes RoleCache construction.
type RoleCacheOption func(*RoleCache)

// WithCacheKey overrides the storage key used in both stores.
func WithCacheKey(key string) RoleCacheOption {
	return func(c *RoleCache) {
		if key != "" {
			c.key = key
		}
	}
}

// WithCacheTTL overrides the cookie lifetime.
func WithCacheTTL(ttl time.Duration) RoleCacheOption {
	return func(c *RoleCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheLogger overrides the logger used for degraded storage access.
func WithCacheLogger(logger Logger) RoleCacheOption {
	return func(c *RoleCache) {
		c.logger = normalizeLogger(logger)
	}
}

// NewRoleCache builds a cache over the given stores. Either store may be nil,
// in which case that half is skipped.
func NewRoleCache(cookies CookieStore, durable DurableStore, opts ...RoleCacheOption) *RoleCache {
	c := &RoleCache{
		cookies: cookies,
		durable: durable,
		key:     RoleStorageKey,
		ttl:     DefaultCookieTTL,
		logger:  defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// Read returns the cached role: cookie value if non-empty, durable store
// otherwise. The second return is false when neither store holds a value.
func (c *RoleCache) Read() (Role, bool) {
	if c.cookies != nil {
		if val, err := c.cookies.Get(c.key); err != nil {
			c.logger.Debug("role cache: cookie read failed: %v", err)
		} else if val != "" {
			return NormalizeRole(val), true
		}
	}

	if c.durable != nil {
		if val, err := c.durable.Get(c.key); err != nil {
			c.logger.Debug("role cache: durable read failed: %v", err)
		} else if val != "" {
			return NormalizeRole(val), true
		}
	}

	return "", false
}

// Write mirrors the role into both stores. A lost write is tolerated; the
// authoritative role eventually overwrites it.
func (c *RoleCache) Write(role Role) {
	if role == "" {
		c.Clear()
		return
	}

	if c.cookies != nil {
		if err := c.cookies.Set(c.key, string(role), c.ttl); err != nil {
			c.logger.Debug("role cache: cookie write failed: %v", err)
		}
	}

	if c.durable != nil {
		if err := c.durable.Set(c.key, string(role)); err != nil {
			c.logger.Debug("role cache: durable write failed: %v", err)
		}
	}
}

// Clear expires the cookie and removes the durable entry.
func (c *RoleCache) Clear() {
	if c.cookies != nil {
		if err := c.cookies.Delete(c.key); err != nil {
			c.logger.Debug("role cache: cookie delete failed: %v", err)
		}
	}

	if c.durable != nil {
		if err := c.durable.Delete(c.key); err != nil {
			c.logger.Debug("role cache: durable delete failed: %v", err)
		}
	}
}
