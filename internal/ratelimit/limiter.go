// Package ratelimit admits at most MaxRequests per client key in any trailing
// Window.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spaolacci/murmur3"
)

const (
	Window      = 60 * time.Second
	MaxRequests = 30

	shardCount = 32
)

type shard struct {
	mu   sync.Mutex
	keys map[string][]time.Time
}

// Limiter is a sliding-window log. Keys are spread over independently locked
// shards, so a check-then-record on one key is atomic while unrelated keys
// rarely contend.
type Limiter struct {
	shards [shardCount]shard
	window time.Duration
	max    int
	now    func() time.Time
	log    *logrus.Entry
}

func New(logger *logrus.Logger) *Limiter {
	l := &Limiter{
		window: Window,
		max:    MaxRequests,
		now:    time.Now,
		log:    logger.WithField("component", "rate_limiter"),
	}
	for i := range l.shards {
		l.shards[i].keys = make(map[string][]time.Time)
	}
	return l
}

func (l *Limiter) shardFor(key string) *shard {
	return &l.shards[murmur3.Sum32([]byte(key))%shardCount]
}

// Allow records an admission for key at the current time if there is room.
func (l *Limiter) Allow(key string) bool {
	return l.AllowAt(key, l.now())
}

func (l *Limiter) AllowAt(key string, now time.Time) bool {
	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	hits := prune(s.keys[key], now, l.window)
	if len(hits) >= l.max {
		s.keys[key] = hits
		return false
	}
	s.keys[key] = append(hits, now)
	return true
}

// prune drops admissions that have left the window. hits is in time order.
func prune(hits []time.Time, now time.Time, window time.Duration) []time.Time {
	i := 0
	for i < len(hits) && now.Sub(hits[i]) >= window {
		i++
	}
	if i == 0 {
		return hits
	}
	return append(hits[:0], hits[i:]...)
}

// Sweep forgets keys with no admission inside the window and returns how
// many were removed.
func (l *Limiter) Sweep(now time.Time) int {
	removed := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		for key, hits := range s.keys {
			if len(hits) == 0 || now.Sub(hits[len(hits)-1]) >= l.window {
				delete(s.keys, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len is the number of keys currently tracked.
func (l *Limiter) Len() int {
	n := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		n += len(s.keys)
		s.mu.Unlock()
	}
	return n
}

// Start sweeps stale keys every interval until ctx is cancelled.
func (l *Limiter) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.log.WithField("interval", interval).Info("Starting rate limiter sweeper")

	for {
		select {
		case <-ticker.C:
			if removed := l.Sweep(l.now()); removed > 0 {
				l.log.WithFields(logrus.Fields{
					"removed":   removed,
					"remaining": l.Len(),
				}).Debug("Swept idle rate limit keys")
			}
		case <-ctx.Done():
			l.log.Info("Stopping rate limiter sweeper")
			return
		}
	}
}
