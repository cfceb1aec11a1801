package ratelimit

import (
	"errors"
	"sync"
	"time"
)

type Bucket string

const (
	BucketQuestion Bucket = "question"
	BucketVote     Bucket = "vote"
)

var ErrRateLimited = errors.New("rate limit exceeded")

type Limit struct {
	Permits int
	Window  time.Duration
}

var DefaultLimits = map[Bucket]Limit{
	BucketQuestion: {Permits: 5, Window: time.Minute},
	BucketVote:     {Permits: 20, Window: time.Minute},
}

// Limiter is a sliding window log per connection and bucket. Limits are
// keyed by connection id, so a client that reconnects starts fresh.
type Limiter struct {
	mu     sync.Mutex
	limits map[Bucket]Limit
	conns  map[string]map[Bucket][]time.Time
	now    func() time.Time
}

func NewLimiter(limits map[Bucket]Limit) *Limiter {
	if limits == nil {
		limits = DefaultLimits
	}

	return &Limiter{
		limits: limits,
		conns:  make(map[string]map[Bucket][]time.Time),
		now:    time.Now,
	}
}

// Consume records one permit for the connection. A rejected call records
// nothing. Buckets without a configured limit are unlimited.
func (l *Limiter) Consume(connId string, bucket Bucket) error {
	limit, ok := l.limits[bucket]
	if !ok {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	buckets, ok := l.conns[connId]
	if !ok {
		buckets = make(map[Bucket][]time.Time)
		l.conns[connId] = buckets
	}

	cutoff := now.Add(-limit.Window)
	log := buckets[bucket]
	i := 0
	for i < len(log) && !log[i].After(cutoff) {
		i++
	}
	log = log[i:]

	if len(log) >= limit.Permits {
		buckets[bucket] = log
		return ErrRateLimited
	}

	buckets[bucket] = append(log, now)
	return nil
}

// Release drops all state for a connection.
func (l *Limiter) Release(connId string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.conns, connId)
}
