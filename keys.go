package refillq

import (
	"encoding/binary"
	"math"

	"github.com/unkn0wn-root/refillq/internal/keyarena"
)

// serializeKeyRow flattens one row of the key columns into buf and returns
// the extended buffer. Numeric values are fixed 8-byte little endian; string
// and byte values are uvarint-length prefixed. Two rows serialize equal iff
// their column values are equal, as long as both come from the same column
// schema (one dictionary never mixes schemas).
func serializeKeyRow(buf []byte, keyColumns []*Column, row int) []byte {
	var scratch [8]byte
	for _, col := range keyColumns {
		switch col.Kind() {
		case KindUInt64:
			binary.LittleEndian.PutUint64(scratch[:], col.Uint64(row))
			buf = append(buf, scratch[:]...)
		case KindInt64:
			binary.LittleEndian.PutUint64(scratch[:], uint64(col.Int64(row)))
			buf = append(buf, scratch[:]...)
		case KindFloat64:
			binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(col.Float64(row)))
			buf = append(buf, scratch[:]...)
		case KindString:
			s := col.String(row)
			buf = binary.AppendUvarint(buf, uint64(len(s)))
			buf = append(buf, s...)
		case KindBytes:
			b := col.Bytes(row)
			buf = binary.AppendUvarint(buf, uint64(len(b)))
			buf = append(buf, b...)
		}
	}
	return buf
}

// internKeyRows serializes the selected rows of externally owned key columns
// into arena-backed strings. The strings reference arena memory, so they
// stay valid after the caller's columns are gone.
func internKeyRows(keyColumns []*Column, rows []int, arena *keyarena.Arena) []string {
	keys := make([]string, len(rows))
	var buf []byte
	for i, row := range rows {
		buf = serializeKeyRow(buf[:0], keyColumns, row)
		keys[i] = arena.InternString(buf)
	}
	return keys
}
