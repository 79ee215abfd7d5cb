// Package wire frames cached dictionary rows. A frame carries the time the
// row was fetched from the backing source, which is what freshness and
// staleness decisions are made from; the payload stays opaque bytes owned by
// the codec layer. Framing is strict: trailing bytes are corruption.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const (
	version byte = 1
	kindRow byte = 1
)

var (
	ErrCorrupt = errors.New("refillq: corrupt cache entry")
	magic4     = [...]byte{'R', 'F', 'L', 'Q'}
)

const hdrLen = 4 + 1 + 1 + 8 + 4

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// EncodeRow frames a fetched row:
//
//	magic(4) | ver(1) | kind(1=row) | fetchedAt unix-nano (u64 be) | vlen(u32 be) | payload
func EncodeRow(fetchedAt time.Time, payload []byte) []byte {
	buf := make([]byte, 0, hdrLen+len(payload))
	buf = append(buf, magic4[:]...)
	buf = append(buf, version, kindRow)
	buf = binary.BigEndian.AppendUint64(buf, uint64(fetchedAt.UnixNano()))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(payload)))
	return append(buf, payload...)
}

// DecodeRow unframes a row. Any framing violation, including trailing bytes
// after the payload, returns ErrCorrupt so the caller can self-heal.
func DecodeRow(b []byte) (fetchedAt time.Time, payload []byte, err error) {
	if len(b) < hdrLen || !hasMagic(b) || b[4] != version || b[5] != kindRow {
		return time.Time{}, nil, ErrCorrupt
	}

	off := 6
	nanos := binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off {
		return time.Time{}, nil, ErrCorrupt
	}

	return time.Unix(0, int64(nanos)), b[off : off+vlen], nil
}
