package security

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
)

// JTIDenylistOptions controls in-memory denylist behaviour.
type JTIDenylistOptions struct {
	MaxEntries int
}

type denylistEntry struct {
	ExpiresAt time.Time
}

// JTIDenylist is a process-local denylist of revoked token identifiers.
// Entries disappear once the token they describe would have expired anyway.
type JTIDenylist struct {
	mu         sync.RWMutex
	entries    map[string]denylistEntry
	maxEntries int
	now        func() time.Time
}

// NewJTIDenylist constructs an in-memory denylist.
func NewJTIDenylist(opts JTIDenylistOptions) *JTIDenylist {
	return &JTIDenylist{
		entries:    make(map[string]denylistEntry),
		maxEntries: opts.MaxEntries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic testing.
func (c *JTIDenylist) WithClock(clock func() time.Time) *JTIDenylist {
	if clock != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.now = clock
	}
	return c
}

// AddRevocation records a revoked JTI until its expiration elapses.
func (c *JTIDenylist) AddRevocation(_ context.Context, revocation domain.TokenRevocation) error {
	jti := strings.TrimSpace(revocation.JTI)
	if jti == "" {
		return fmt.Errorf("jti is required")
	}

	expiresAt := revocation.ExpiresAt.UTC()
	now := c.currentTime()
	if !revocation.ExpiresAt.IsZero() && !expiresAt.After(now) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.pruneLocked(now)
		if len(c.entries) >= c.maxEntries {
			c.evictOldestLocked(len(c.entries) - c.maxEntries + 1)
		}
	}

	c.entries[jti] = denylistEntry{ExpiresAt: expiresAt}
	return nil
}

// Contains tests whether the supplied JTI has been revoked and is not yet expired.
func (c *JTIDenylist) Contains(_ context.Context, jti string) (bool, error) {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return false, fmt.Errorf("jti is required")
	}

	now := c.currentTime()
	c.mu.RLock()
	entry, ok := c.entries[jti]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !entry.ExpiresAt.IsZero() && !entry.ExpiresAt.After(now) {
		// Expired entries are lazily pruned on access.
		c.mu.Lock()
		delete(c.entries, jti)
		c.mu.Unlock()
		return false, nil
	}
	return true, nil
}

// Prune removes expired JTIs.
func (c *JTIDenylist) Prune(_ context.Context, now time.Time) error {
	c.mu.Lock()
	c.pruneLocked(now.UTC())
	c.mu.Unlock()
	return nil
}

// Len returns the number of tracked entries, expired or not.
func (c *JTIDenylist) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *JTIDenylist) pruneLocked(cutoff time.Time) {
	for key, entry := range c.entries {
		if !entry.ExpiresAt.IsZero() && !entry.ExpiresAt.After(cutoff) {
			delete(c.entries, key)
		}
	}
}

func (c *JTIDenylist) currentTime() time.Time {
	c.mu.RLock()
	nowFn := c.now
	c.mu.RUnlock()
	if nowFn == nil {
		return time.Now().UTC()
	}
	return nowFn().UTC()
}

func (c *JTIDenylist) evictOldestLocked(count int) {
	if count <= 0 || len(c.entries) == 0 {
		return
	}
	type item struct {
		key string
		exp time.Time
	}
	values := make([]item, 0, len(c.entries))
	for key, entry := range c.entries {
		values = append(values, item{key: key, exp: entry.ExpiresAt})
	}
	sort.Slice(values, func(i, j int) bool { return values[i].exp.Before(values[j].exp) })
	if count > len(values) {
		count = len(values)
	}
	for i := 0; i < count; i++ {
		delete(c.entries, values[i].key)
	}
}

var _ port.JTIDenylist = (*JTIDenylist)(nil)
