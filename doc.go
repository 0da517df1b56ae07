// Package pagestore persists serialized pages in a remote key-value store (memcached by
// default) keyed by (session id, page id), and keeps a local per-session index of the keys it
// wrote so a whole session can be dropped without scanning the remote store.
//
// Components:
//   - Provider: remote byte store with TTL (memcached, Redis, or in-process BigCache/Ristretto).
//   - Tracker: per-session key sets; both the session map and every set expire entries after
//     ExpirationTime without access, the same TTL the remote entries are written with.
//   - DataStore: the page store facade. Data operations never fail; remote errors are logged
//     and degrade to a cache miss or a no-op.
//
// Keys:
//
//	s<len>:<sessionID>|||<pageID>|||Wicket-Memcached-Guava
//	h<sha256(sessionID)>|||<pageID>|||Wicket-Memcached-Guava  - ids unusable in memcached keys
//
// Values are framed with the (session, page) they belong to; a read whose frame does not match
// the request is deleted and reported as a miss.
//
// Usage:
//
//	ds, err := pagestore.Connect(ctx, memcached.Config{Servers: []string{"cache-1"}, Port: 11211},
//	    pagestore.Options{ExpirationTime: 30 * time.Minute})
//	if err != nil { ... } // *pagestore.ConnectivityError
//	defer ds.Destroy(context.Background())
//
//	ds.StoreData(ctx, sid, 3, pageBytes)
//	b, ok := ds.GetData(ctx, sid, 3)
//	ds.RemoveSession(ctx, sid) // on session invalidation
package pagestore
