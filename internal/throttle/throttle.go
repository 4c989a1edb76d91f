// Package throttle holds the expiring key-value store behind command
// cooldowns, bans and skip-ownership checks.
package throttle

import (
	"sync"
	"time"
)

// Cache is a string-keyed store with per-entry expiry. Entries past
// their expiry are treated as absent and reaped lazily on lookup; there
// is no background sweeper. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

type entry struct {
	value     any
	expiresAt time.Time
}

func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
}

// Get returns the live value for key. An expired entry is deleted and
// reported as absent.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// remaining reports how long the entry under key stays live.
func (c *Cache) remaining(key string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return 0, false
	}
	rem := e.expiresAt.Sub(c.now())
	if rem <= 0 {
		delete(c.entries, key)
		return 0, false
	}
	return rem, true
}

// Throttled reports whether key is still cooling down and for how much
// longer. The caller runs the guarded action only when this returns
// false, then Arms the key.
func (c *Cache) Throttled(key string) (time.Duration, bool) {
	return c.remaining(key)
}

// Arm starts the cooldown for key after a successful guarded action.
func (c *Cache) Arm(key string, cooldown time.Duration) {
	c.Set(key, struct{}{}, cooldown)
}

func banKey(userID string) string { return "ban-" + userID }

func (c *Cache) Ban(userID string, d time.Duration) {
	c.Set(banKey(userID), struct{}{}, d)
}

func (c *Cache) Unban(userID string) {
	c.Delete(banKey(userID))
}

// Banned reports whether userID is banned and for how much longer.
func (c *Cache) Banned(userID string) (time.Duration, bool) {
	return c.remaining(banKey(userID))
}

func ownerKey(correlationID string) string { return "owner-" + correlationID }

// SetOwner records who requested the enqueue identified by
// correlationID. The mapping expires on its own so stale entries never
// pile up.
func (c *Cache) SetOwner(correlationID, userID string, ttl time.Duration) {
	c.Set(ownerKey(correlationID), userID, ttl)
}

// IsOwner reports whether userID requested the enqueue identified by
// correlationID. Absence or mismatch is false.
func (c *Cache) IsOwner(userID, correlationID string) bool {
	v, ok := c.Get(ownerKey(correlationID))
	if !ok {
		return false
	}
	owner, ok := v.(string)
	return ok && owner == userID
}

func (c *Cache) EvictOwner(correlationID string) {
	c.Delete(ownerKey(correlationID))
}
