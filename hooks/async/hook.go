// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    SelfHealEvery: 10, // sample logs: ~every 10th self-heal
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	ds, _ := pagestore.Connect(ctx, cfg, pagestore.Options{Hooks: hooks})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/pagestore"
)

// Hooks moves hook calls off the caller's goroutine. Events that do not fit
// in the queue are dropped and counted.
type Hooks struct {
	inner   pagestore.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards q against send-after-close
	closed  bool
	dropped atomic.Uint64
}

var _ pagestore.Hooks = (*Hooks)(nil)

func New(inner pagestore.Hooks, workers, qlen int) *Hooks {
	if inner == nil {
		inner = pagestore.NopHooks{}
	}
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close stops accepting events and waits for queued ones to run.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded because the queue was full or closed.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) ConnectionEstablished(addr string, n int) {
	h.try(func() { h.inner.ConnectionEstablished(addr, n) })
}
func (h *Hooks) ConnectionLost(addr string, err error) {
	h.try(func() { h.inner.ConnectionLost(addr, err) })
}
func (h *Hooks) SelfHeal(k, r string) { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) RemoteFailure(op, k string, err error) {
	h.try(func() { h.inner.RemoteFailure(op, k, err) })
}
func (h *Hooks) TrackerFallback(sid string, err error) {
	h.try(func() { h.inner.TrackerFallback(sid, err) })
}
