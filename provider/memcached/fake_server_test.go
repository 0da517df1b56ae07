package memcached

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeServer speaks the subset of the memcached text protocol gomemcache uses.
type fakeServer struct {
	t    *testing.T
	addr string

	mu     sync.Mutex
	ln     net.Listener
	conns  map[net.Conn]struct{}
	data   map[string]fakeItem
	offset time.Duration // added to wall clock, lets tests fast-forward expiry
}

type fakeItem struct {
	flags uint32
	val   []byte
	exp   time.Time // zero => never
}

func startFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeServer{
		t:     t,
		addr:  ln.Addr().String(),
		ln:    ln,
		conns: make(map[net.Conn]struct{}),
		data:  make(map[string]fakeItem),
	}
	go s.serve(ln)
	t.Cleanup(s.stop)
	return s
}

func (s *fakeServer) host() string {
	h, _, _ := net.SplitHostPort(s.addr)
	return h
}

func (s *fakeServer) port() int {
	_, p, _ := net.SplitHostPort(s.addr)
	n, _ := strconv.Atoi(p)
	return n
}

func (s *fakeServer) now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Now().Add(s.offset)
}

func (s *fakeServer) advance(d time.Duration) {
	s.mu.Lock()
	s.offset += d
	s.mu.Unlock()
}

// stop closes the listener and every open connection.
func (s *fakeServer) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		_ = s.ln.Close()
		s.ln = nil
	}
	for c := range s.conns {
		_ = c.Close()
	}
	s.conns = make(map[net.Conn]struct{})
}

// restart listens again on the same address.
func (s *fakeServer) restart() {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.t.Fatalf("relisten: %v", err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	go s.serve(ln)
}

func (s *fakeServer) serve(ln net.Listener) {
	for {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()
		go s.handle(c)
	}
}

func (s *fakeServer) handle(c net.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		_ = c.Close()
	}()
	r := bufio.NewReader(c)
	w := bufio.NewWriter(c)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		f := strings.Fields(strings.TrimRight(line, "\r\n"))
		if len(f) == 0 {
			continue
		}
		switch f[0] {
		case "get", "gets":
			for _, k := range f[1:] {
				if it, ok := s.lookup(k); ok {
					fmt.Fprintf(w, "VALUE %s %d %d %d\r\n", k, it.flags, len(it.val), 1)
					_, _ = w.Write(it.val)
					_, _ = w.WriteString("\r\n")
				}
			}
			_, _ = w.WriteString("END\r\n")
		case "set":
			if len(f) < 5 {
				_, _ = w.WriteString("CLIENT_ERROR bad command line format\r\n")
				break
			}
			flags, _ := strconv.ParseUint(f[2], 10, 32)
			exp, _ := strconv.ParseInt(f[3], 10, 64)
			n, _ := strconv.Atoi(f[4])
			buf := make([]byte, n+2)
			if _, err := io.ReadFull(r, buf); err != nil {
				return
			}
			s.store(f[1], uint32(flags), exp, buf[:n])
			_, _ = w.WriteString("STORED\r\n")
		case "delete":
			if s.remove(f[1]) {
				_, _ = w.WriteString("DELETED\r\n")
			} else {
				_, _ = w.WriteString("NOT_FOUND\r\n")
			}
		case "version":
			_, _ = w.WriteString("VERSION 1.6.0-fake\r\n")
		case "quit":
			_ = w.Flush()
			return
		default:
			_, _ = w.WriteString("ERROR\r\n")
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

func (s *fakeServer) lookup(k string) (fakeItem, bool) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.data[k]
	if ok && !it.exp.IsZero() && !now.Before(it.exp) {
		delete(s.data, k)
		return fakeItem{}, false
	}
	return it, ok
}

func (s *fakeServer) store(k string, flags uint32, exp int64, val []byte) {
	now := s.now()
	var at time.Time
	switch {
	case exp <= 0:
	case exp <= maxRelativeExpiration:
		at = now.Add(time.Duration(exp) * time.Second)
	default:
		at = time.Unix(exp, 0)
	}
	s.mu.Lock()
	s.data[k] = fakeItem{flags: flags, val: append([]byte(nil), val...), exp: at}
	s.mu.Unlock()
}

func (s *fakeServer) remove(k string) bool {
	if _, ok := s.lookup(k); !ok {
		return false
	}
	s.mu.Lock()
	delete(s.data, k)
	s.mu.Unlock()
	return true
}
