package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepInterval bounds how often Allow scans for idle keys.
const sweepInterval = time.Minute

type slidingWindow struct {
	stamps []time.Time
	window time.Duration
}

// idle reports whether every stamp has left the window.
func (w slidingWindow) idle(now time.Time) bool {
	return len(w.stamps) == 0 || !w.stamps[len(w.stamps)-1].After(now.Add(-w.window))
}

// InMemoryStore is a single-node sliding window. Use RedisStore when several
// nodes share the API. Keys whose stamps have all expired are swept, so memory
// follows the accounts active within a window rather than every account seen.
type InMemoryStore struct {
	mu        sync.Mutex
	windows   map[string]slidingWindow
	now       func() time.Time
	lastSweep time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		windows: make(map[string]slidingWindow),
		now:     time.Now,
	}
}

func (s *InMemoryStore) Allow(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)
	stamps := trim(s.windows[key].stamps, now.Add(-window))

	allowed := len(stamps) < limit
	if allowed {
		stamps = append(stamps, now)
	}
	if len(stamps) == 0 {
		delete(s.windows, key)
	} else {
		s.windows[key] = slidingWindow{stamps: stamps, window: window}
	}

	resetAt := now.Add(window)
	if len(stamps) > 0 {
		resetAt = stamps[0].Add(window)
	}
	return Result{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: max(0, limit-len(stamps)),
		ResetAt:   resetAt,
	}, nil
}

// sweep drops idle keys at most once per sweepInterval. Callers hold mu.
func (s *InMemoryStore) sweep(now time.Time) {
	if now.Sub(s.lastSweep) < sweepInterval {
		return
	}
	s.lastSweep = now
	for key, w := range s.windows {
		if w.idle(now) {
			delete(s.windows, key)
		}
	}
}

// trim drops timestamps at or before cutoff. Stamps are in ascending order.
func trim(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(stamps); i++ {
		if stamps[i].After(cutoff) {
			break
		}
	}
	return stamps[i:]
}
