package pagestore

import (
	"context"
	"time"

	pr "github.com/unkn0wn-root/pagestore/provider"
	"github.com/unkn0wn-root/pagestore/provider/memcached"
)

// DataStore is the page store contract consumed by the hosting application.
// All methods are safe for concurrent use. Data operations never return errors:
// remote failures are logged and surface as a miss or a no-op.
type DataStore interface {
	StoreData(ctx context.Context, sessionID string, pageID int, data []byte)
	GetData(ctx context.Context, sessionID string, pageID int) ([]byte, bool)
	RemovePage(ctx context.Context, sessionID string, pageID int)
	// RemoveSession deletes every page tracked for the session. Best effort: a page
	// stored concurrently may be missed and then lives until its remote TTL.
	RemoveSession(ctx context.Context, sessionID string)

	// Destroy drops all tracking state and shuts the provider down, giving in-flight
	// operations up to ShutdownTimeout (or the ctx deadline, if sooner).
	Destroy(ctx context.Context) error

	// IsReplicated is always true: pages live in shared remote infrastructure.
	IsReplicated() bool
	// CanBeAsynchronous is always false: callers should not defer calls to a background
	// goroutine, the remote client already handles network I/O concurrently.
	CanBeAsynchronous() bool
}

// Options tune the store. Only Provider is required for New.
type Options struct {
	Provider pr.Provider

	ExpirationTime  time.Duration // remote TTL and local idle expiry; 0 => 30m
	ShutdownTimeout time.Duration // 0 => 30s
	SweepInterval   time.Duration // tracker sweep; 0 => min(ExpirationTime, 1m), <0 disables

	Logger Logger           // if nil, NopLogger is used
	Hooks  Hooks            // if nil, NopHooks is used
	Clock  func() time.Time // tracker clock; nil => time.Now
}

// New builds a store over an existing provider. If the provider reports connection
// state, the store logs it and forwards it to Hooks.
func New(opts Options) (DataStore, error) {
	return newStore(opts)
}

// Connect builds a memcached provider from cfg and a store over it. It fails with
// *ConnectivityError when the port is invalid, the server list is empty or unresolvable,
// or no server is reachable. opts.Provider is ignored.
func Connect(ctx context.Context, cfg memcached.Config, opts Options) (DataStore, error) {
	s, err := build(opts)
	if err != nil {
		return nil, err
	}
	cfg.Observers = append(append([]pr.ConnectionObserver(nil), cfg.Observers...), s.observer())
	p, err := memcached.Connect(ctx, cfg)
	if err != nil {
		s.tracker.Close()
		return nil, err
	}
	s.provider = p
	return s, nil
}
