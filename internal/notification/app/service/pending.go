package service

import (
	"context"
	"sync"
)

// Pending is the outcome of a fire-and-forget control call. Callers that
// do not care simply drop it; callers that want confirmation Wait.
type Pending struct {
	mu     sync.Mutex
	result <-chan error
	err    error
	done   bool
}

func newPending(result <-chan error) *Pending {
	return &Pending{result: result}
}

func resolved(err error) *Pending {
	return &Pending{err: err, done: true}
}

// Wait blocks until the control message was written to the push channel
// or ctx ends. The write outcome is cached for later calls.
func (p *Pending) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done {
		return p.err
	}
	select {
	case err := <-p.result:
		p.err, p.done = err, true
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
