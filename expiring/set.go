package expiring

// Set is a set view over a Map with access-time expiry; members age out independently.
type Set[K comparable] struct {
	m *Map[K, struct{}]
}

func NewSet[K comparable](cfg Config[K, struct{}]) *Set[K] {
	return &Set[K]{m: NewMap(cfg)}
}

// Add inserts k (or refreshes its access time) and reports whether it was newly added.
func (s *Set[K]) Add(k K) bool {
	_, loaded := s.m.Compute(k, func(struct{}, bool) (struct{}, bool) { return struct{}{}, true })
	return !loaded
}

// Remove deletes k and reports whether it was a live member.
func (s *Set[K]) Remove(k K) bool { return s.m.Delete(k) }

// Contains reports membership and counts as an access.
func (s *Set[K]) Contains(k K) bool {
	_, ok := s.m.Get(k)
	return ok
}

func (s *Set[K]) Len() int      { return s.m.Len() }
func (s *Set[K]) IsEmpty() bool { return s.m.Len() == 0 }
func (s *Set[K]) Keys() []K     { return s.m.Keys() }
func (s *Set[K]) Sweep() int    { return s.m.Sweep() }
func (s *Set[K]) Clear()        { s.m.Clear() }
