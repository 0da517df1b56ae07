// Package tracker keeps a local, best-effort index of which remote keys belong to which session,
// so a whole session can be invalidated without scanning the remote store.
//
// Both the session map and every per-session key set expire entries after TTL without access,
// the same TTL the remote entries are written with, so the index never meaningfully outlives the
// data it describes. The index is advisory: losing an entry only means a bulk session delete
// falls back to remote expiry.
package tracker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/unkn0wn-root/pagestore/expiring"
)

// KeySet is the set of remote keys tracked for one session.
type KeySet = expiring.Set[string]

const (
	defaultSessionShards = 64
	keySetShards         = 4
	maxSweepInterval     = time.Minute
)

var errNilKeySet = errors.New("tracker: key set factory returned nil")

type Config struct {
	TTL           time.Duration    // idle expiry for sessions and keys; <=0 disables expiry
	SweepInterval time.Duration    // 0 => min(TTL, 1m); <0 disables the background sweep
	Shards        int              // session map shards; 0 => 64
	Clock         func() time.Time // nil => time.Now

	// NewKeySet builds the set for a newly seen session. nil => an expiring set with TTL.
	NewKeySet func() (*KeySet, error)
	// OnFallback is told when NewKeySet failed and a plain set was installed instead.
	// It runs under a shard lock and must be cheap.
	OnFallback func(sessionID string, err error)
}

// Tracker maps session ids to their key sets.
type Tracker struct {
	sessions   *expiring.Map[string, *KeySet]
	ttl        time.Duration
	clock      func() time.Time
	newKeySet  func() (*KeySet, error)
	onFallback func(string, error)

	ticker    *time.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func New(cfg Config) *Tracker {
	shards := cfg.Shards
	if shards <= 0 {
		shards = defaultSessionShards
	}
	t := &Tracker{
		ttl:        cfg.TTL,
		clock:      cfg.Clock,
		newKeySet:  cfg.NewKeySet,
		onFallback: cfg.OnFallback,
	}
	if t.clock == nil {
		t.clock = time.Now
	}
	t.sessions = expiring.NewMap(expiring.Config[string, *KeySet]{
		TTL:    cfg.TTL,
		Shards: shards,
		Clock:  t.clock,
	})
	if t.newKeySet == nil {
		t.newKeySet = func() (*KeySet, error) { return t.freshKeySet(), nil }
	}

	interval := cfg.SweepInterval
	if interval == 0 && cfg.TTL > 0 {
		interval = min(cfg.TTL, maxSweepInterval)
	}
	if interval > 0 {
		t.ticker = time.NewTicker(interval)
		t.stopCh = make(chan struct{})
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			for {
				select {
				case <-t.ticker.C:
					t.Sweep()
				case <-t.stopCh:
					return
				}
			}
		}()
	}
	return t
}

func (t *Tracker) freshKeySet() *KeySet {
	return expiring.NewSet(expiring.Config[string, struct{}]{
		TTL:    t.ttl,
		Shards: keySetShards,
		Clock:  t.clock,
	})
}

// create runs under the session's shard lock, so even the fallback path installs exactly one set.
func (t *Tracker) create(sessionID string) *KeySet {
	set, err := t.safeNewKeySet()
	if err == nil && set == nil {
		err = errNilKeySet
	}
	if err == nil {
		return set
	}
	if t.onFallback != nil {
		t.onFallback(sessionID, err)
	}
	return t.freshKeySet()
}

func (t *Tracker) safeNewKeySet() (set *KeySet, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tracker: key set factory panicked: %v", r)
		}
	}()
	return t.newKeySet()
}

// GetOrCreate returns the session's key set, creating it if absent or expired.
// Concurrent callers for the same new session all observe the same set.
func (t *Tracker) GetOrCreate(sessionID string) *KeySet {
	set, _ := t.sessions.Compute(sessionID, func(old *KeySet, ok bool) (*KeySet, bool) {
		if ok {
			return old, true
		}
		return t.create(sessionID), true
	})
	return set
}

// GetIfPresent returns the session's key set without creating one. It counts as an access.
func (t *Tracker) GetIfPresent(sessionID string) (*KeySet, bool) {
	return t.sessions.Get(sessionID)
}

// Track records key under sessionID, creating the session's set if needed. It is atomic with
// respect to RemoveKey pruning, so a key is never added to a set that was just dropped.
func (t *Tracker) Track(sessionID, key string) {
	t.sessions.Compute(sessionID, func(old *KeySet, ok bool) (*KeySet, bool) {
		set := old
		if !ok {
			set = t.create(sessionID)
		}
		set.Add(key)
		return set, true
	})
}

// RemoveKey drops key from the session's set and removes the session once its set is empty.
func (t *Tracker) RemoveKey(sessionID, key string) {
	t.sessions.Compute(sessionID, func(old *KeySet, ok bool) (*KeySet, bool) {
		if !ok {
			return nil, false
		}
		old.Remove(key)
		return old, !old.IsEmpty()
	})
}

// Remove evicts the whole session record.
func (t *Tracker) Remove(sessionID string) { t.sessions.Delete(sessionID) }

// Len returns the number of tracked sessions.
func (t *Tracker) Len() int { return t.sessions.Len() }

// Clear drops all tracking state.
func (t *Tracker) Clear() { t.sessions.Clear() }

// Sweep drops expired sessions and expired keys, then prunes sessions left with no keys.
// It returns the number of sessions removed.
func (t *Tracker) Sweep() int {
	removed := t.sessions.Sweep()
	var empty []string
	t.sessions.Range(func(sid string, set *KeySet) bool {
		set.Sweep()
		if set.IsEmpty() {
			empty = append(empty, sid)
		}
		return true
	})
	for _, sid := range empty {
		// the set may have been refilled or replaced since Range; decide under the lock
		t.sessions.Compute(sid, func(old *KeySet, ok bool) (*KeySet, bool) {
			if ok && old.IsEmpty() {
				removed++
				return nil, false
			}
			return old, ok
		})
	}
	return removed
}

// Close stops the background sweep. Safe to call multiple times.
func (t *Tracker) Close() {
	t.closeOnce.Do(func() {
		if t.stopCh != nil {
			close(t.stopCh)
			t.ticker.Stop()
			t.wg.Wait()
		}
	})
}
