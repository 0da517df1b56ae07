package redis

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/pagestore/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

// Redis implements provider.Provider and provider.Observable on a go-redis client.
type Redis struct {
	pr.Observers

	rdb         goredis.UniversalClient
	closeClient bool
	gate        pr.Gate
}

var (
	_ pr.Provider   = (*Redis)(nil)
	_ pr.Observable = (*Redis)(nil)
)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this provider exclusively owns the client
}

// New wraps an existing client. Connection state is observed through a dial hook.
func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	p := &Redis{rdb: cfg.Client, closeClient: cfg.CloseClient}
	cfg.Client.AddHook(dialHook{obs: &p.Observers})
	return p, nil
}

// ConnectConfig describes servers the way the memcached provider does: hostnames plus one port.
type ConnectConfig struct {
	Servers   []string
	Port      int
	Password  string
	DB        int
	Timeout   time.Duration // dial/read/write timeout; 0 => go-redis defaults
	Observers []pr.ConnectionObserver
}

// Connect validates cfg, builds an owned client and pings it. It fails with
// *provider.ConnectivityError when the port is invalid, the list is empty or no server answers.
func Connect(ctx context.Context, cfg ConnectConfig) (*Redis, error) {
	if err := pr.ValidatePort(cfg.Port); err != nil {
		return nil, err
	}
	if len(cfg.Servers) == 0 {
		return nil, &pr.ConnectivityError{Op: "resolve", Err: pr.ErrNoServers}
	}
	addrs := make([]string, 0, len(cfg.Servers))
	for _, h := range cfg.Servers {
		addrs = append(addrs, net.JoinHostPort(strings.TrimSpace(h), strconv.Itoa(cfg.Port)))
	}
	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        addrs,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
	p, err := New(Config{Client: client, CloseClient: true})
	if err != nil {
		return nil, err
	}
	for _, obs := range cfg.Observers {
		p.AddObserver(obs)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, &pr.ConnectivityError{Op: "ping", Addr: strings.Join(addrs, ","), Err: err}
	}
	return p, nil
}

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	leave, err := p.gate.Enter()
	if err != nil {
		return nil, false, err
	}
	defer leave()

	b, err := p.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (p *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	leave, err := p.gate.Enter()
	if err != nil {
		return err
	}
	defer leave()

	if ttl <= 0 {
		ttl = 0 // "no expiry" per provider contract
	}
	return p.rdb.Set(ctx, key, value, ttl).Err()
}

func (p *Redis) Del(ctx context.Context, key string) error {
	leave, err := p.gate.Enter()
	if err != nil {
		return err
	}
	defer leave()

	return p.rdb.Del(ctx, key).Err()
}

// Close waits for in-flight commands until ctx is done, then releases the client
// when this provider owns it. Safe to call multiple times.
func (p *Redis) Close(ctx context.Context) error {
	drainErr := p.gate.Drain(ctx)
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return drainErr
}

// dialHook turns pool dials into connection notifications.
type dialHook struct{ obs *pr.Observers }

func (h dialHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.obs.Lost(addr, err)
			return nil, err
		}
		h.obs.Established(addr)
		return conn, nil
	}
}

func (dialHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook { return next }

func (dialHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return next
}
