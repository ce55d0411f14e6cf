package ratelimit

import (
	"sync"
	"time"
)

const (
	DefaultWindow = 60 * time.Second
	DefaultLimit  = 12
)

// bucket holds the admission timestamps of one chat inside the trailing
// window. Each bucket has its own lock so unrelated chats never contend.
type bucket struct {
	mu     sync.Mutex
	stamps []time.Time
}

// Limiter is a per-chat sliding-window admission gate. A chat gets at most
// limit admissions in any trailing window; denials leave no trace, so a
// denied burst does not extend the penalty. State lives only in memory.
type Limiter struct {
	window time.Duration
	limit  int

	mu      sync.Mutex
	buckets map[int64]*bucket
}

func New(window time.Duration, limit int) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Limiter{
		window:  window,
		limit:   limit,
		buckets: make(map[int64]*bucket),
	}
}

// Admit decides whether the chat may perform one more action at the given
// instant, recording it if allowed. It never errors, only denies.
func (l *Limiter) Admit(chatID int64, now time.Time) bool {
	b := l.bucket(chatID)

	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := now.Add(-l.window)
	kept := b.stamps[:0]
	for _, ts := range b.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.stamps = kept

	if len(b.stamps) >= l.limit {
		return false
	}
	b.stamps = append(b.stamps, now)
	return true
}

func (l *Limiter) bucket(chatID int64) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[chatID]
	if !ok {
		b = &bucket{}
		l.buckets[chatID] = b
	}
	return b
}
