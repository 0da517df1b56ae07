package pagestore

import (
	"context"
	"fmt"

	c "github.com/unkn0wn-root/pagestore/codec"
	"github.com/unkn0wn-root/pagestore/internal/util"
)

// Pages stores typed page state through a DataStore.
type Pages[V any] struct {
	store DataStore
	codec c.Codec[V]
	log   Logger
	hooks Hooks
}

// PagesOptions are optional; nil fields fall back to NopLogger and NopHooks.
// Pass the same Hooks as the store to see "decode" self-heals next to the store's own.
type PagesOptions struct {
	Logger Logger
	Hooks  Hooks
}

// NewPages wraps store with codec.
func NewPages[V any](store DataStore, codec c.Codec[V], opts PagesOptions) (*Pages[V], error) {
	if store == nil {
		return nil, fmt.Errorf("pagestore: store is required")
	}
	if codec == nil {
		return nil, fmt.Errorf("pagestore: codec is required")
	}
	return &Pages[V]{
		store: store,
		codec: codec,
		log:   coalesce[Logger](opts.Logger, NopLogger{}),
		hooks: coalesce[Hooks](opts.Hooks, NopHooks{}),
	}, nil
}

// Store encodes v and stores it. Only encoding errors are returned.
func (p *Pages[V]) Store(ctx context.Context, sessionID string, pageID int, v V) error {
	b, err := p.codec.Encode(v)
	if err != nil {
		return fmt.Errorf("pagestore: encode page %d: %w", pageID, err)
	}
	p.store.StoreData(ctx, sessionID, pageID, b)
	return nil
}

// Get returns the decoded page. A payload that no longer decodes (for example after
// a type change between deployments) is removed and reported as a miss.
func (p *Pages[V]) Get(ctx context.Context, sessionID string, pageID int) (V, bool) {
	var zero V
	b, ok := p.store.GetData(ctx, sessionID, pageID)
	if !ok {
		return zero, false
	}
	v, err := p.codec.Decode(b)
	if err != nil {
		p.log.Warn("cannot decode page; removing", Fields{"session": sessionID, "page": pageID, "err": err})
		p.hooks.SelfHeal(util.PageKey(sessionID, pageID), "decode")
		p.store.RemovePage(ctx, sessionID, pageID)
		return zero, false
	}
	return v, true
}

func (p *Pages[V]) Remove(ctx context.Context, sessionID string, pageID int) {
	p.store.RemovePage(ctx, sessionID, pageID)
}

func (p *Pages[V]) RemoveSession(ctx context.Context, sessionID string) {
	p.store.RemoveSession(ctx, sessionID)
}
