package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

const (
	// KeySuffix marks entries written by this package so foreign writers sharing the
	// remote store do not collide with us and so our entries are easy to spot.
	KeySuffix = "Wicket-Memcached-Guava"
	// Separator joins the key parts.
	Separator = "|||"

	// MaxKeyLen is the memcached protocol limit for keys.
	MaxKeyLen = 250
)

// PageKey returns the remote key for a (session, page) pair.
//
//	s<len>:<sessionID>|||<pageID>|||<suffix>   - normal form
//	h<sha256(sessionID)>|||<pageID>|||<suffix> - session id unusable in a memcached key
//
// The session id is length-prefixed, so its content can never forge a separator boundary.
func PageKey(sessionID string, pageID int) string {
	page := strconv.Itoa(pageID)
	tail := len(Separator) + len(page) + len(Separator) + len(KeySuffix)

	prefix := strconv.Itoa(len(sessionID))
	if legalKeyPart(sessionID) && 1+len(prefix)+1+len(sessionID)+tail <= MaxKeyLen {
		var b strings.Builder
		b.Grow(1 + len(prefix) + 1 + len(sessionID) + tail)
		b.WriteByte('s')
		b.WriteString(prefix)
		b.WriteByte(':')
		b.WriteString(sessionID)
		writeTail(&b, page)
		return b.String()
	}

	sum := sha256.Sum256([]byte(sessionID))
	var b strings.Builder
	b.Grow(1 + hex.EncodedLen(len(sum)) + tail)
	b.WriteByte('h')
	b.WriteString(hex.EncodeToString(sum[:]))
	writeTail(&b, page)
	return b.String()
}

func writeTail(b *strings.Builder, page string) {
	b.WriteString(Separator)
	b.WriteString(page)
	b.WriteString(Separator)
	b.WriteString(KeySuffix)
}

// memcached keys must not contain whitespace or control characters.
func legalKeyPart(s string) bool {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c <= ' ' || c == 0x7f {
			return false
		}
	}
	return true
}
