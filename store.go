package pagestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/pagestore/internal/util"
	"github.com/unkn0wn-root/pagestore/internal/wire"
	pr "github.com/unkn0wn-root/pagestore/provider"
	"github.com/unkn0wn-root/pagestore/tracker"
)

type store struct {
	provider        pr.Provider
	tracker         *tracker.Tracker
	log             Logger
	hooks           Hooks
	expiration      time.Duration
	shutdownTimeout time.Duration

	destroyed   atomic.Bool
	destroyOnce sync.Once
	destroyErr  error
}

var _ DataStore = (*store)(nil)

func newStore(opts Options) (*store, error) {
	if opts.Provider == nil {
		return nil, ErrNilProvider
	}
	s, err := build(opts)
	if err != nil {
		return nil, err
	}
	s.provider = opts.Provider
	if o, ok := opts.Provider.(pr.Observable); ok {
		o.AddObserver(s.observer())
	}
	return s, nil
}

// build wires everything except the provider.
func build(opts Options, tune ...func(*tracker.Config)) (*store, error) {
	if opts.ExpirationTime < 0 {
		return nil, ErrInvalidExpiration
	}
	s := &store{}

	// defaults
	s.log = coalesce[Logger](opts.Logger, NopLogger{})
	s.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	s.expiration = coalesce(opts.ExpirationTime, defaultExpirationTime)
	s.shutdownTimeout = coalesce(opts.ShutdownTimeout, defaultShutdownTimeout)

	cfg := tracker.Config{
		TTL:           s.expiration,
		SweepInterval: opts.SweepInterval,
		Clock:         opts.Clock,
		OnFallback:    s.trackerFallback,
	}
	for _, fn := range tune {
		fn(&cfg)
	}
	s.tracker = tracker.New(cfg)
	return s, nil
}

func (s *store) IsReplicated() bool      { return true }
func (s *store) CanBeAsynchronous() bool { return false }

func (s *store) StoreData(ctx context.Context, sessionID string, pageID int, data []byte) {
	if s.closed("StoreData") {
		return
	}
	key := util.PageKey(sessionID, pageID)
	framed, err := wire.EncodePage(sessionID, int64(pageID), data)
	if err != nil {
		s.remoteFailure("set", key, err)
		return
	}
	if err := s.provider.Set(ctx, key, framed, s.expiration); err != nil {
		s.remoteFailure("set", key, err)
	}
	// Tracked even when the write failed: a stray key only costs a no-op delete later.
	s.tracker.Track(sessionID, key)
	s.log.Debug("stored data", pageFields(sessionID, pageID))
}

func (s *store) GetData(ctx context.Context, sessionID string, pageID int) ([]byte, bool) {
	if s.closed("GetData") {
		return nil, false
	}
	key := util.PageKey(sessionID, pageID)
	raw, ok, err := s.provider.Get(ctx, key)
	if err != nil {
		// The entry may still exist remotely, so it stays tracked.
		s.remoteFailure("get", key, err)
		return nil, false
	}
	if !ok {
		s.tracker.RemoveKey(sessionID, key)
		s.hooks.SelfHeal(key, "miss")
		s.log.Debug("got no data", pageFields(sessionID, pageID))
		return nil, false
	}

	page, err := wire.DecodePage(raw)
	if err != nil {
		s.heal(ctx, sessionID, key, "corrupt")
		return nil, false
	}
	if !page.Matches(sessionID, int64(pageID)) {
		s.heal(ctx, sessionID, key, "key_mismatch")
		return nil, false
	}
	s.log.Debug("got data", pageFields(sessionID, pageID))
	return page.Payload, true
}

func (s *store) RemovePage(ctx context.Context, sessionID string, pageID int) {
	if s.closed("RemovePage") {
		return
	}
	key := util.PageKey(sessionID, pageID)
	s.del(ctx, key)
	s.tracker.RemoveKey(sessionID, key)
	s.log.Debug("removed page", pageFields(sessionID, pageID))
}

func (s *store) RemoveSession(ctx context.Context, sessionID string) {
	if s.closed("RemoveSession") {
		return
	}
	keys, ok := s.tracker.GetIfPresent(sessionID)
	if !ok {
		return
	}
	// Snapshot; a page stored after this point survives until its remote TTL.
	snapshot := keys.Keys()
	for _, key := range snapshot {
		s.del(ctx, key)
	}
	s.tracker.Remove(sessionID)
	s.log.Debug("removed session", Fields{"session": sessionID, "pages": len(snapshot)})
}

func (s *store) Destroy(ctx context.Context) error {
	s.destroyOnce.Do(func() {
		s.destroyed.Store(true)
		s.tracker.Clear()
		s.tracker.Close()

		ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
		defer cancel()
		s.log.Info("shutting down provider", Fields{"timeout": s.shutdownTimeout.String()})
		if err := s.provider.Close(ctx); err != nil {
			s.destroyErr = fmt.Errorf("pagestore: shutdown: %w", err)
			s.log.Warn("provider shutdown incomplete", Fields{"err": err})
		}
	})
	return s.destroyErr
}

func (s *store) closed(op string) bool {
	if !s.destroyed.Load() {
		return false
	}
	s.log.Debug("store destroyed; ignoring "+op, nil)
	return true
}

func (s *store) del(ctx context.Context, key string) {
	if err := s.provider.Del(ctx, key); err != nil {
		s.remoteFailure("del", key, err)
	}
}

// heal drops an unusable entry remotely and locally.
func (s *store) heal(ctx context.Context, sessionID, key, reason string) {
	s.del(ctx, key)
	s.tracker.RemoveKey(sessionID, key)
	s.hooks.SelfHeal(key, reason)
	s.log.Warn("dropped unreadable entry", Fields{"key": key, "reason": reason})
}

func (s *store) remoteFailure(op, key string, err error) {
	lvl := s.log.Warn
	if errors.Is(err, context.Canceled) {
		lvl = s.log.Debug
	}
	lvl("remote "+op+" failed", Fields{"key": key, "err": err})
	s.hooks.RemoteFailure(op, key, err)
}

func (s *store) trackerFallback(sessionID string, err error) {
	s.log.Warn("cannot create key set; using a fresh one", Fields{"session": sessionID, "err": err})
	s.hooks.TrackerFallback(sessionID, err)
}

func (s *store) observer() pr.ConnectionObserver { return connObserver{s} }

type connObserver struct{ s *store }

func (o connObserver) ConnectionEstablished(addr string, reconnects int) {
	o.s.log.Info("connection established", Fields{"addr": addr, "reconnects": reconnects})
	o.s.hooks.ConnectionEstablished(addr, reconnects)
}

func (o connObserver) ConnectionLost(addr string, err error) {
	o.s.log.Warn("connection lost", Fields{"addr": addr, "err": err})
	o.s.hooks.ConnectionLost(addr, err)
}
