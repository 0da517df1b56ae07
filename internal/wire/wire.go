package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const version byte = 1

var (
	ErrCorrupt          = errors.New("pagestore: corrupt entry")
	ErrSessionIDTooLong = errors.New("pagestore: session id longer than 65535 bytes")
	magic4              = [...]byte{'W', 'P', 'G', 'S'}
)

const hdrLen = 4 + 1 + 2 // magic | ver | sidLen

// Page is a decoded page envelope. Payload aliases the decoded buffer.
type Page struct {
	SessionID string
	PageID    int64
	Payload   []byte
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// EncodePage frames payload together with the (session, page) it belongs to:
//
//	magic(4) | ver(1) | sidLen(u16 be) | sid(sidLen) | pageID(i64 be) | vlen(u32 be) | payload(vlen)
func EncodePage(sessionID string, pageID int64, payload []byte) ([]byte, error) {
	if len(sessionID) > 0xFFFF {
		return nil, ErrSessionIDTooLong
	}
	var buf bytes.Buffer
	buf.Grow(hdrLen + len(sessionID) + 8 + 4 + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint16(u2[:], uint16(len(sessionID)))
	buf.Write(u2[:])
	buf.WriteString(sessionID)

	binary.BigEndian.PutUint64(u8[:], uint64(pageID))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])
	buf.Write(payload)

	return buf.Bytes(), nil
}

// DecodePage parses an envelope produced by EncodePage. Trailing bytes are rejected.
func DecodePage(b []byte) (Page, error) {
	if len(b) < hdrLen || !hasMagic(b) || b[4] != version {
		return Page{}, ErrCorrupt
	}
	off := 5

	slen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if slen > len(b)-off {
		return Page{}, ErrCorrupt
	}
	sid := b[off : off+slen]
	off += slen

	if off+8 > len(b) {
		return Page{}, ErrCorrupt
	}
	pid := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	if off+4 > len(b) {
		return Page{}, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // overflow-safe, no trailing bytes
		return Page{}, ErrCorrupt
	}

	return Page{SessionID: string(sid), PageID: pid, Payload: b[off : off+vlen]}, nil
}

// Matches reports whether the envelope belongs to the given (session, page).
func (p Page) Matches(sessionID string, pageID int64) bool {
	return p.SessionID == sessionID && p.PageID == pageID
}
