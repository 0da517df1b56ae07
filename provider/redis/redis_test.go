package redis

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/redcon"

	pr "github.com/unkn0wn-root/pagestore/provider"
)

type memEntry struct {
	v   []byte
	exp time.Time
}

// fakeRedis serves GET/SET/DEL over RESP with redcon.
type fakeRedis struct {
	ln   net.Listener
	mu   sync.Mutex
	data map[string]memEntry
}

func startFakeRedis(t *testing.T) *fakeRedis {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f := &fakeRedis{ln: ln, data: make(map[string]memEntry)}
	go func() {
		_ = redcon.Serve(ln, f.handle,
			func(redcon.Conn) bool { return true },
			func(redcon.Conn, error) {})
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return f
}

func (f *fakeRedis) handle(conn redcon.Conn, cmd redcon.Command) {
	switch strings.ToUpper(string(cmd.Args[0])) {
	case "PING":
		conn.WriteString("PONG")
	case "CLIENT", "SELECT":
		conn.WriteString("OK")
	case "QUIT":
		conn.WriteString("OK")
		_ = conn.Close()
	case "GET":
		f.mu.Lock()
		e, ok := f.data[string(cmd.Args[1])]
		if ok && !e.exp.IsZero() && !time.Now().Before(e.exp) {
			delete(f.data, string(cmd.Args[1]))
			ok = false
		}
		f.mu.Unlock()
		if !ok {
			conn.WriteNull()
			return
		}
		conn.WriteBulk(e.v)
	case "SET":
		e := memEntry{v: append([]byte(nil), cmd.Args[2]...)}
		for i := 3; i+1 < len(cmd.Args); i += 2 {
			n, _ := strconv.Atoi(string(cmd.Args[i+1]))
			switch strings.ToUpper(string(cmd.Args[i])) {
			case "EX":
				e.exp = time.Now().Add(time.Duration(n) * time.Second)
			case "PX":
				e.exp = time.Now().Add(time.Duration(n) * time.Millisecond)
			}
		}
		f.mu.Lock()
		f.data[string(cmd.Args[1])] = e
		f.mu.Unlock()
		conn.WriteString("OK")
	case "DEL":
		n := 0
		f.mu.Lock()
		for _, k := range cmd.Args[1:] {
			if _, ok := f.data[string(k)]; ok {
				delete(f.data, string(k))
				n++
			}
		}
		f.mu.Unlock()
		conn.WriteInt(n)
	default:
		conn.WriteError("ERR unknown command '" + string(cmd.Args[0]) + "'")
	}
}

func (f *fakeRedis) addr() string { return f.ln.Addr().String() }

type recorder struct {
	mu          sync.Mutex
	established []string
	lost        []string
}

func (r *recorder) ConnectionEstablished(addr string, _ int) {
	r.mu.Lock()
	r.established = append(r.established, addr)
	r.mu.Unlock()
}

func (r *recorder) ConnectionLost(addr string, _ error) {
	r.mu.Lock()
	r.lost = append(r.lost, addr)
	r.mu.Unlock()
}

func newTestProvider(t *testing.T, f *fakeRedis) *Redis {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{
		Addr:             f.addr(),
		Protocol:         2,
		DisableIndentity: true,
	})
	p, err := New(Config{Client: client, CloseClient: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func TestNewRejectsNilClient(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, ErrNilClient)
}

func TestRoundTripAndIdempotentDelete(t *testing.T) {
	ctx := context.Background()
	f := startFakeRedis(t)
	p := newTestProvider(t, f)
	rec := &recorder{}
	p.AddObserver(rec)

	_, ok, err := p.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	payload := []byte{0, 'a', '\r', '\n', 0xFE}
	require.NoError(t, p.Set(ctx, "k", payload, time.Minute))
	got, ok, err := p.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, payload, got)

	require.NoError(t, p.Del(ctx, "k"))
	require.NoError(t, p.Del(ctx, "k"))
	_, ok, _ = p.Get(ctx, "k")
	require.False(t, ok)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.NotEmpty(t, rec.established, "dial hook must report the pool connection")
	require.Equal(t, f.addr(), rec.established[0])
}

func TestEntriesExpire(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t, startFakeRedis(t))

	require.NoError(t, p.Set(ctx, "k", []byte("v"), 50*time.Millisecond))
	_, ok, _ := p.Get(ctx, "k")
	require.True(t, ok)
	require.Eventually(t, func() bool {
		_, ok, err := p.Get(ctx, "k")
		return err == nil && !ok
	}, time.Second, 10*time.Millisecond)
}

func TestCloseRejectsFurtherOperations(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t, startFakeRedis(t))
	require.NoError(t, p.Close(ctx))
	require.NoError(t, p.Close(ctx))
	_, _, err := p.Get(ctx, "k")
	require.ErrorIs(t, err, pr.ErrClosed)
}

func TestConnectValidation(t *testing.T) {
	ctx := context.Background()
	_, err := Connect(ctx, ConnectConfig{Servers: []string{"127.0.0.1"}, Port: 80})
	require.ErrorIs(t, err, pr.ErrInvalidPort)

	_, err = Connect(ctx, ConnectConfig{Port: 6379})
	require.ErrorIs(t, err, pr.ErrNoServers)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, port, _ := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, ln.Close())
	n, _ := strconv.Atoi(port)

	rec := &recorder{}
	_, err = Connect(ctx, ConnectConfig{
		Servers:   []string{"127.0.0.1"},
		Port:      n,
		Timeout:   100 * time.Millisecond,
		Observers: []pr.ConnectionObserver{rec},
	})
	var ce *pr.ConnectivityError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "ping", ce.Op)
	rec.mu.Lock()
	require.NotEmpty(t, rec.lost)
	rec.mu.Unlock()
}
