package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
)

// RateLimitStore keeps a sliding-window log of attempt timestamps per key.
// Suitable for a single instance only; use the Redis store when several
// replicas must share budgets.
type RateLimitStore struct {
	mu      sync.Mutex
	entries map[string][]time.Time
	windows map[string]time.Duration

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewRateLimitStore constructs an empty store.
func NewRateLimitStore() *RateLimitStore {
	return &RateLimitStore{
		entries: make(map[string][]time.Time),
		windows: make(map[string]time.Duration),
	}
}

// Hit trims, counts and conditionally records under one lock.
func (s *RateLimitStore) Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (domain.RateLimitWindow, error) {
	if window <= 0 {
		return domain.RateLimitWindow{}, errors.New("window must be positive")
	}
	if limit <= 0 {
		return domain.RateLimitWindow{}, errors.New("limit must be positive")
	}
	if err := ctx.Err(); err != nil {
		return domain.RateLimitWindow{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	attempts := trimBefore(s.entries[key], now.Add(-window))
	allowed := len(attempts) < limit
	if allowed {
		attempts = insertSorted(attempts, now)
	}

	if len(attempts) == 0 {
		delete(s.entries, key)
		delete(s.windows, key)
	} else {
		s.entries[key] = attempts
		s.windows[key] = window
	}

	result := domain.RateLimitWindow{
		Key:         key,
		Count:       len(attempts),
		Limit:       limit,
		WindowStart: now.Add(-window),
		ResetAt:     now.Add(window),
		Allowed:     allowed,
	}
	if len(attempts) > 0 {
		result.ResetAt = attempts[0].Add(window)
	}
	return result, nil
}

// Reset forgets every attempt recorded for key.
func (s *RateLimitStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	delete(s.windows, key)
	s.mu.Unlock()
	return nil
}

// Sweep drops keys whose attempts have all left their window.
func (s *RateLimitStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, attempts := range s.entries {
		remaining := trimBefore(attempts, now.Add(-s.windows[key]))
		if len(remaining) == 0 {
			delete(s.entries, key)
			delete(s.windows, key)
			removed++
			continue
		}
		s.entries[key] = remaining
	}
	return removed
}

// Keys returns how many keys currently hold attempts.
func (s *RateLimitStore) Keys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Start launches a janitor that sweeps expired keys every interval until
// Close is called.
func (s *RateLimitStore) Start(interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				s.Sweep(now)
			}
		}
	}()
}

// Close stops the janitor and waits for it to exit.
func (s *RateLimitStore) Close() error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.mu.Unlock()
	if stop == nil {
		return nil
	}
	s.once.Do(func() { close(stop) })
	<-done
	return nil
}

// trimBefore drops timestamps at or before cutoff. attempts is sorted ascending.
func trimBefore(attempts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(attempts) && !attempts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return attempts
	}
	return append(attempts[:0], attempts[i:]...)
}

// insertSorted keeps the log ordered when callers sample the clock before
// contending for the lock.
func insertSorted(attempts []time.Time, at time.Time) []time.Time {
	idx := sort.Search(len(attempts), func(i int) bool { return attempts[i].After(at) })
	attempts = append(attempts, time.Time{})
	copy(attempts[idx+1:], attempts[idx:])
	attempts[idx] = at
	return attempts
}

var _ port.RateLimitStore = (*RateLimitStore)(nil)
