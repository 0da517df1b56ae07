// Package memcached is a provider backed by one or more memcached servers.
package memcached

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	pr "github.com/unkn0wn-root/pagestore/provider"
)

const (
	defaultTimeout       = 500 * time.Millisecond
	defaultProbeInterval = 5 * time.Second

	// memcached reads expirations above 30 days as absolute unix times.
	maxRelativeExpiration = 30 * 24 * 60 * 60
)

type Config struct {
	Servers       []string      // hostnames or IPs; Port is appended to each
	Port          int           // 1024..65535
	Timeout       time.Duration // per-operation socket timeout; 0 => 500ms
	MaxIdleConns  int           // 0 => gomemcache default
	ProbeInterval time.Duration // health probe period; 0 => 5s, <0 disables

	// Observers are registered before the first connection, so they also see
	// the initial ConnectionEstablished notifications.
	Observers []pr.ConnectionObserver
}

// Memcached implements provider.Provider and provider.Observable.
type Memcached struct {
	pr.Observers

	c      *memcache.Client
	addrs  []string
	probes map[string]*memcache.Client // single-server clients used for health probes
	gate   pr.Gate
	now    func() time.Time

	probeMu sync.Mutex
	up      map[string]bool

	ticker    *time.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

var (
	_ pr.Provider   = (*Memcached)(nil)
	_ pr.Observable = (*Memcached)(nil)
)

// Connect validates cfg, resolves every server address and pings each server.
// It fails with *provider.ConnectivityError when the port is out of range, the server
// list is empty, any address does not resolve, or no server answers.
func Connect(ctx context.Context, cfg Config) (*Memcached, error) {
	if err := pr.ValidatePort(cfg.Port); err != nil {
		return nil, err
	}
	addrs, err := resolve(ctx, cfg.Servers, cfg.Port)
	if err != nil {
		return nil, err
	}

	var ss memcache.ServerList
	if err := ss.SetServers(addrs...); err != nil {
		return nil, &pr.ConnectivityError{Op: "resolve", Addr: strings.Join(addrs, ","), Err: err}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	m := &Memcached{
		c:      memcache.NewFromSelector(&ss),
		addrs:  addrs,
		probes: make(map[string]*memcache.Client, len(addrs)),
		up:     make(map[string]bool, len(addrs)),
		now:    time.Now,
	}
	m.c.Timeout = timeout
	if cfg.MaxIdleConns > 0 {
		m.c.MaxIdleConns = cfg.MaxIdleConns
	}
	for _, obs := range cfg.Observers {
		m.AddObserver(obs)
	}
	for _, addr := range addrs {
		pc := memcache.New(addr)
		pc.Timeout = timeout
		pc.MaxIdleConns = 1
		m.probes[addr] = pc
	}

	if reachable, errs := m.probe(); reachable == 0 {
		m.closeClients()
		return nil, &pr.ConnectivityError{Op: "ping", Addr: strings.Join(addrs, ","), Err: errors.Join(errs...)}
	}

	interval := cfg.ProbeInterval
	if interval == 0 {
		interval = defaultProbeInterval
	}
	if interval > 0 {
		m.ticker = time.NewTicker(interval)
		m.stopCh = make(chan struct{})
		m.wg.Add(1)
		go m.probeLoop()
	}
	return m, nil
}

func resolve(ctx context.Context, servers []string, port int) ([]string, error) {
	if len(servers) == 0 {
		return nil, &pr.ConnectivityError{Op: "resolve", Err: pr.ErrNoServers}
	}
	p := strconv.Itoa(port)
	addrs := make([]string, 0, len(servers))
	for _, host := range servers {
		host = strings.TrimSpace(host)
		addr := net.JoinHostPort(host, p)
		if host == "" {
			return nil, &pr.ConnectivityError{Op: "resolve", Addr: addr, Err: errors.New("empty hostname")}
		}
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return nil, &pr.ConnectivityError{Op: "resolve", Addr: addr, Err: err}
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// Addrs returns the resolved server addresses.
func (m *Memcached) Addrs() []string { return append([]string(nil), m.addrs...) }

func (m *Memcached) Get(ctx context.Context, key string) ([]byte, bool, error) {
	leave, err := m.enter(ctx)
	if err != nil {
		return nil, false, err
	}
	defer leave()

	it, err := m.c.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return it.Value, true, nil
}

func (m *Memcached) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	leave, err := m.enter(ctx)
	if err != nil {
		return err
	}
	defer leave()

	return m.c.Set(&memcache.Item{Key: key, Value: value, Expiration: expiration(ttl, m.now())})
}

func (m *Memcached) Del(ctx context.Context, key string) error {
	leave, err := m.enter(ctx)
	if err != nil {
		return err
	}
	defer leave()

	if err := m.c.Delete(key); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return err
	}
	return nil
}

// Close stops accepting operations, waits for in-flight ones until ctx is done,
// then stops probing and closes all connections. Repeated calls return the first result.
func (m *Memcached) Close(ctx context.Context) error {
	m.closeOnce.Do(func() {
		m.closeErr = m.gate.Drain(ctx)
		if m.stopCh != nil {
			close(m.stopCh)
			m.ticker.Stop()
			m.wg.Wait()
		}
		m.closeClients()
	})
	return m.closeErr
}

func (m *Memcached) enter(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.gate.Enter()
}

func (m *Memcached) closeClients() {
	closeClient(m.c)
	for _, pc := range m.probes {
		closeClient(pc)
	}
}

func closeClient(c *memcache.Client) {
	_ = c.Close()
}

func (m *Memcached) probeLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ticker.C:
			m.probe()
		case <-m.stopCh:
			return
		}
	}
}

// probe pings every server and reports state transitions to observers.
func (m *Memcached) probe() (reachable int, errs []error) {
	m.probeMu.Lock()
	defer m.probeMu.Unlock()

	for _, addr := range m.addrs {
		err := m.probes[addr].Ping()
		wasUp := m.up[addr]
		m.up[addr] = err == nil
		switch {
		case err == nil:
			reachable++
			if !wasUp {
				m.Established(addr)
			}
		case wasUp:
			m.Lost(addr, err)
			errs = append(errs, err)
		default:
			errs = append(errs, err)
		}
	}
	return reachable, errs
}

// expiration converts a TTL into memcached's expiration field: whole seconds rounded up,
// or an absolute unix time beyond 30 days.
func expiration(ttl time.Duration, now time.Time) int32 {
	if ttl <= 0 {
		return 0
	}
	secs := int64((ttl + time.Second - 1) / time.Second)
	if secs > maxRelativeExpiration {
		return int32(now.Add(ttl).Unix())
	}
	return int32(secs)
}
