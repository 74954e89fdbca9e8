package kv

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// Breaker wraps a Store with a circuit breaker so that an unavailable
// backend fails fast instead of stalling every progress mutation. Progress
// persistence is best-effort; callers already tolerate errors.
type Breaker struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

func NewBreaker(next Store) *Breaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "watchtrack-kv",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Breaker{next: next, cb: cb}
}

type getResult struct {
	value string
	found bool
}

func (b *Breaker) Get(ctx context.Context, key string) (string, bool, error) {
	res, err := b.cb.Execute(func() (any, error) {
		v, ok, err := b.next.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		return getResult{value: v, found: ok}, nil
	})
	if err != nil {
		return "", false, err
	}
	r := res.(getResult)
	return r.value, r.found, nil
}

func (b *Breaker) Set(ctx context.Context, key, value string) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.next.Set(ctx, key, value)
	})
	return err
}
