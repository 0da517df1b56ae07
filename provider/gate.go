package provider

import (
	"context"
	"sync"
	"sync/atomic"
)

// Gate tracks in-flight operations so a provider can drain them on shutdown.
// The zero value is open.
type Gate struct {
	mu     sync.RWMutex
	closed atomic.Bool
}

// Enter admits one operation. The returned func must be called when it finishes.
// After Drain has started, Enter returns ErrClosed.
func (g *Gate) Enter() (leave func(), err error) {
	if g.closed.Load() {
		return nil, ErrClosed
	}
	g.mu.RLock()
	if g.closed.Load() {
		g.mu.RUnlock()
		return nil, ErrClosed
	}
	return g.mu.RUnlock, nil
}

// Drain closes the gate and waits for admitted operations until ctx is done.
func (g *Gate) Drain(ctx context.Context) error {
	g.closed.Store(true)
	done := make(chan struct{})
	go func() {
		g.mu.Lock() // acquired once every admitted reader has left
		g.mu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gate) Closed() bool { return g.closed.Load() }
