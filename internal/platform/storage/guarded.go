package storage

import (
	"context"
	"errors"

	"github.com/linkflow-ai/notifyhub/internal/platform/resilience"
)

// Guarded routes a store through a circuit breaker. Misses are not
// failures. While the breaker is open every call fails with
// resilience.ErrCircuitOpen instead of waiting on the backend.
type Guarded struct {
	inner   Store
	breaker *resilience.CircuitBreaker
}

// Guard wraps store with breaker
func Guard(store Store, breaker *resilience.CircuitBreaker) *Guarded {
	return &Guarded{inner: store, breaker: breaker}
}

func (g *Guarded) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		value []byte
		miss  bool
	)
	err := g.breaker.Execute(ctx, func() error {
		v, err := g.inner.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			miss = true
			return nil
		}
		value = v
		return err
	})
	if err != nil {
		return nil, err
	}
	if miss {
		return nil, ErrNotFound
	}
	return value, nil
}

func (g *Guarded) Set(ctx context.Context, key string, value []byte) error {
	return g.breaker.Execute(ctx, func() error {
		return g.inner.Set(ctx, key, value)
	})
}

func (g *Guarded) Delete(ctx context.Context, key string) error {
	return g.breaker.Execute(ctx, func() error {
		return g.inner.Delete(ctx, key)
	})
}

// Health reports the open breaker without probing the backend
func (g *Guarded) Health(ctx context.Context) error {
	if !g.breaker.Allow() {
		return resilience.ErrCircuitOpen
	}
	return g.inner.Health(ctx)
}

func (g *Guarded) Close() error {
	return g.inner.Close()
}

// Breaker exposes the breaker for state reporting
func (g *Guarded) Breaker() *resilience.CircuitBreaker {
	return g.breaker
}
