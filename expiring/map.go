// Package expiring provides concurrency-safe maps and sets whose entries expire after a fixed
// period without access. Every read or write of an entry resets its clock, so entries that keep
// being used live indefinitely while idle ones are dropped lazily on access or by Sweep.
//
// Keys are spread over independently locked shards, so operations on different keys rarely
// contend. There is no global lock.
package expiring

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const defaultShards = 16

// Config tunes a Map. The zero value is a map with 16 shards whose entries never expire.
type Config[K comparable, V any] struct {
	TTL     time.Duration    // idle time after which an entry expires; <=0 disables expiry
	Shards  int              // 0 => 16
	Clock   func() time.Time // nil => time.Now
	OnEvict func(key K, val V)
}

type entry[V any] struct {
	val     V
	touched int64 // unix nanos of the last access
}

type shard[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*entry[V]
}

// Map is a sharded map with access-time expiry.
type Map[K comparable, V any] struct {
	shards  []*shard[K, V]
	hash    func(K) uint64
	ttl     int64
	clock   func() time.Time
	onEvict func(K, V)
}

type evicted[K comparable, V any] struct {
	key K
	val V
}

func NewMap[K comparable, V any](cfg Config[K, V]) *Map[K, V] {
	n := cfg.Shards
	if n <= 0 {
		n = defaultShards
	}
	m := &Map[K, V]{
		shards:  make([]*shard[K, V], n),
		hash:    hasherFor[K](),
		clock:   cfg.Clock,
		onEvict: cfg.OnEvict,
	}
	if cfg.TTL > 0 {
		m.ttl = int64(cfg.TTL)
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	for i := range m.shards {
		m.shards[i] = &shard[K, V]{m: make(map[K]*entry[V])}
	}
	return m
}

func (m *Map[K, V]) shardFor(k K) *shard[K, V] {
	return m.shards[m.hash(k)%uint64(len(m.shards))]
}

func (m *Map[K, V]) now() int64 { return m.clock().UnixNano() }

func (m *Map[K, V]) expired(e *entry[V], now int64) bool {
	return m.ttl > 0 && now-e.touched >= m.ttl
}

// live returns the unexpired entry for k. An expired entry is removed from the shard and
// reported through ev. Must be called with s.mu held.
func (m *Map[K, V]) live(s *shard[K, V], k K, now int64, ev *[]evicted[K, V]) (*entry[V], bool) {
	e, ok := s.m[k]
	if !ok {
		return nil, false
	}
	if m.expired(e, now) {
		delete(s.m, k)
		if m.onEvict != nil {
			*ev = append(*ev, evicted[K, V]{key: k, val: e.val})
		}
		return nil, false
	}
	return e, true
}

func (m *Map[K, V]) notify(ev []evicted[K, V]) {
	for _, e := range ev {
		m.onEvict(e.key, e.val)
	}
}

// Get returns the value for k and refreshes its access time.
func (m *Map[K, V]) Get(k K) (V, bool) {
	var ev []evicted[K, V]
	s, now := m.shardFor(k), m.now()

	s.mu.Lock()
	e, ok := m.live(s, k, now, &ev)
	var v V
	if ok {
		e.touched = now
		v = e.val
	}
	s.mu.Unlock()

	m.notify(ev)
	return v, ok
}

// Peek is like Get but leaves the access time untouched.
func (m *Map[K, V]) Peek(k K) (V, bool) {
	s, now := m.shardFor(k), m.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.m[k]; ok && !m.expired(e, now) {
		return e.val, true
	}
	var zero V
	return zero, false
}

// Set stores v under k, replacing any previous value.
func (m *Map[K, V]) Set(k K, v V) {
	s, now := m.shardFor(k), m.now()
	s.mu.Lock()
	s.m[k] = &entry[V]{val: v, touched: now}
	s.mu.Unlock()
}

// GetOrStore returns the existing value for k if present. Otherwise it stores and returns v.
// loaded is true if the value was already present.
func (m *Map[K, V]) GetOrStore(k K, v V) (actual V, loaded bool) {
	actual, loaded = m.Compute(k, func(old V, ok bool) (V, bool) {
		if ok {
			return old, true
		}
		return v, true
	})
	return actual, loaded
}

// GetOrCompute returns the existing value for k, or calls load and installs its result.
// Concurrent callers for the same missing key are serialized on the shard lock, so load runs at
// most once per installed value and every caller observes the same value. A load error (or
// panic, converted to an error) installs nothing.
func (m *Map[K, V]) GetOrCompute(k K, load func() (V, error)) (v V, loaded bool, err error) {
	var ev []evicted[K, V]
	s, now := m.shardFor(k), m.now()

	s.mu.Lock()
	if e, ok := m.live(s, k, now, &ev); ok {
		e.touched = now
		v = e.val
		s.mu.Unlock()
		m.notify(ev)
		return v, true, nil
	}
	v, err = safeLoad(load)
	if err == nil {
		s.m[k] = &entry[V]{val: v, touched: now}
	}
	s.mu.Unlock()

	m.notify(ev)
	return v, false, err
}

func safeLoad[V any](load func() (V, error)) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("expiring: loader panicked: %v", r)
		}
	}()
	return load()
}

// Compute atomically updates the entry for k. fn receives the current live value (if any) and
// returns the new value and whether to keep it; keep=false deletes the entry. The access time
// is refreshed when the entry is kept. fn runs under the shard lock and must not call back into
// the same Map. loaded reports whether an entry was present before the call.
func (m *Map[K, V]) Compute(k K, fn func(old V, loaded bool) (V, bool)) (v V, loaded bool) {
	var ev []evicted[K, V]
	s, now := m.shardFor(k), m.now()

	func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		var old V
		e, ok := m.live(s, k, now, &ev)
		if ok {
			old = e.val
		}
		loaded = ok
		nv, keep := fn(old, ok)
		switch {
		case keep && ok:
			e.val, e.touched = nv, now
		case keep:
			s.m[k] = &entry[V]{val: nv, touched: now}
		case ok:
			delete(s.m, k)
		}
		v = nv
	}()

	m.notify(ev)
	return v, loaded
}

// Delete removes k and reports whether a live entry was removed.
func (m *Map[K, V]) Delete(k K) bool {
	s, now := m.shardFor(k), m.now()
	s.mu.Lock()
	e, ok := s.m[k]
	if ok {
		delete(s.m, k)
	}
	s.mu.Unlock()
	return ok && !m.expired(e, now)
}

// Len returns the number of live entries. Access times are not refreshed.
func (m *Map[K, V]) Len() int {
	now := m.now()
	n := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for _, e := range s.m {
			if !m.expired(e, now) {
				n++
			}
		}
		s.mu.Unlock()
	}
	return n
}

// Range calls fn for every live entry until fn returns false. Each shard is snapshotted under
// its lock and fn runs unlocked, so fn may call back into the Map. Access times are not refreshed.
func (m *Map[K, V]) Range(fn func(k K, v V) bool) {
	now := m.now()
	var snap []evicted[K, V]
	for _, s := range m.shards {
		snap = snap[:0]
		s.mu.Lock()
		for k, e := range s.m {
			if !m.expired(e, now) {
				snap = append(snap, evicted[K, V]{key: k, val: e.val})
			}
		}
		s.mu.Unlock()
		for _, it := range snap {
			if !fn(it.key, it.val) {
				return
			}
		}
	}
}

// Keys returns a snapshot of the live keys.
func (m *Map[K, V]) Keys() []K {
	var out []K
	m.Range(func(k K, _ V) bool {
		out = append(out, k)
		return true
	})
	return out
}

// Sweep removes every expired entry and returns how many were removed.
func (m *Map[K, V]) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}
	now := m.now()
	removed := 0
	for _, s := range m.shards {
		var ev []evicted[K, V]
		s.mu.Lock()
		for k, e := range s.m {
			if m.expired(e, now) {
				delete(s.m, k)
				removed++
				if m.onEvict != nil {
					ev = append(ev, evicted[K, V]{key: k, val: e.val})
				}
			}
		}
		s.mu.Unlock()
		m.notify(ev)
	}
	return removed
}

// Clear drops every entry without calling OnEvict.
func (m *Map[K, V]) Clear() {
	for _, s := range m.shards {
		s.mu.Lock()
		s.m = make(map[K]*entry[V])
		s.mu.Unlock()
	}
}

// hasherFor picks a shard hash for K once, at construction time.
func hasherFor[K comparable]() func(K) uint64 {
	switch any(*new(K)).(type) {
	case string:
		return func(k K) uint64 { return xxhash.Sum64String(any(k).(string)) }
	case int:
		return func(k K) uint64 {
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], uint64(any(k).(int)))
			return xxhash.Sum64(b[:])
		}
	case int64:
		return func(k K) uint64 {
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], uint64(any(k).(int64)))
			return xxhash.Sum64(b[:])
		}
	case uint64:
		return func(k K) uint64 {
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], any(k).(uint64))
			return xxhash.Sum64(b[:])
		}
	default:
		return func(k K) uint64 { return xxhash.Sum64String(fmt.Sprintf("%#v", k)) }
	}
}
