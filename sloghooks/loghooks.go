// Package sloghooks reports store events through log/slog. Storage keys embed
// session ids, so keys and session ids are redacted before they reach the log.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/pagestore"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery      uint64
	RemoteFailureEvery uint64
	// Optional redactor for keys and session ids. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	failureCtr  atomic.Uint64
}

var _ pagestore.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) ConnectionEstablished(addr string, reconnects int) {
	if h.l == nil {
		return
	}
	h.l.Info("pagestore.connection_established",
		"addr", addr,
		"reconnects", reconnects)
}

func (h *Hooks) ConnectionLost(addr string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("pagestore.connection_lost",
		"addr", addr,
		"err", err)
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("pagestore.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) RemoteFailure(op, storageKey string, err error) {
	if h.l == nil || !sample(h.opts.RemoteFailureEvery, &h.failureCtr) {
		return
	}
	h.l.Warn("pagestore.remote_failure",
		"op", op,
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) TrackerFallback(sessionID string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("pagestore.tracker_fallback",
		"session", h.redact(sessionID),
		"err", err)
}
