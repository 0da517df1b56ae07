package pagestore

import (
	"context"
	"testing"

	c "github.com/unkn0wn-root/pagestore/codec"
	"github.com/unkn0wn-root/pagestore/internal/util"
)

type wizard struct {
	Step   int               `json:"step" msgpack:"step" cbor:"step"`
	Values map[string]string `json:"values" msgpack:"values" cbor:"values"`
}

type wrapped struct{ DataStore }

func TestPagesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMemProvider(nil), nil)
	pages, err := NewPages[wizard](s, c.JSON[wizard]{}, PagesOptions{})
	if err != nil {
		t.Fatal(err)
	}

	want := wizard{Step: 2, Values: map[string]string{"name": "ada"}}
	if err := pages.Store(ctx, "s", 4, want); err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, ok := pages.Get(ctx, "s", 4)
	if !ok || got.Step != 2 || got.Values["name"] != "ada" {
		t.Fatalf("Get: %+v %v", got, ok)
	}

	pages.Remove(ctx, "s", 4)
	if _, ok := pages.Get(ctx, "s", 4); ok {
		t.Fatalf("removed page still readable")
	}
}

func TestPagesUndecodableIsRemoved(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider(nil)
	h := &recHooks{}
	s := newTestStore(t, mp, nil)
	// A wrapper hides the concrete store; the hooks still have to fire.
	pages, err := NewPages[wizard](wrapped{s}, c.JSON[wizard]{}, PagesOptions{Hooks: h})
	if err != nil {
		t.Fatal(err)
	}

	s.StoreData(ctx, "s", 1, []byte("{not json"))
	if _, ok := pages.Get(ctx, "s", 1); ok {
		t.Fatalf("undecodable page must be a miss")
	}
	key := util.PageKey("s", 1)
	if _, ok := mp.raw(key); ok {
		t.Fatalf("undecodable page should be removed")
	}
	if !h.has(event{"heal", key, "decode"}) {
		t.Fatalf("expected decode self-heal hook")
	}
}

func TestPagesEncodeErrorIsReturned(t *testing.T) {
	s := newTestStore(t, newMemProvider(nil), nil)
	pages, err := NewPages[string](s, c.Limit[string]{Inner: c.String{}, Max: 3}, PagesOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := pages.Store(context.Background(), "s", 1, "too long"); err == nil {
		t.Fatalf("expected encode error")
	}
	if s.tracker.Len() != 0 {
		t.Fatalf("nothing should be stored on encode error")
	}
}

func TestNewPagesValidation(t *testing.T) {
	if _, err := NewPages[string](nil, c.String{}, PagesOptions{}); err == nil {
		t.Fatalf("nil store must fail")
	}
	s := newTestStore(t, newMemProvider(nil), nil)
	if _, err := NewPages[string](s, nil, PagesOptions{}); err == nil {
		t.Fatalf("nil codec must fail")
	}
}

func TestPagesOverBinaryCodecs(t *testing.T) {
	ctx := context.Background()
	cbor, err := c.NewCBOR[wizard](true)
	if err != nil {
		t.Fatal(err)
	}
	codecs := map[string]c.Codec[wizard]{
		"cbor":    cbor,
		"msgpack": c.Msgpack[wizard]{},
	}
	for name, codec := range codecs {
		t.Run(name, func(t *testing.T) {
			mp := newMemProvider(nil)
			s := newTestStore(t, mp, nil)
			pages, err := NewPages[wizard](s, codec, PagesOptions{})
			if err != nil {
				t.Fatal(err)
			}

			want := wizard{Step: 5, Values: map[string]string{"plan": "pro", "seats": "12"}}
			if err := pages.Store(ctx, "sess", 9, want); err != nil {
				t.Fatalf("Store: %v", err)
			}
			// The stored payload is the codec's encoding, not JSON.
			raw, ok := s.GetData(ctx, "sess", 9)
			if !ok || len(raw) == 0 || raw[0] == '{' {
				t.Fatalf("unexpected payload %q %v", raw, ok)
			}
			got, ok := pages.Get(ctx, "sess", 9)
			if !ok || got.Step != want.Step || len(got.Values) != 2 || got.Values["seats"] != "12" {
				t.Fatalf("Get: %+v %v", got, ok)
			}

			pages.RemoveSession(ctx, "sess")
			if _, ok := pages.Get(ctx, "sess", 9); ok {
				t.Fatalf("page survived RemoveSession")
			}
		})
	}
}
