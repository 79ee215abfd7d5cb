package refillq

import "fmt"

// Kind identifies the physical type of a column value.
type Kind uint8

const (
	KindUInt64 Kind = iota
	KindInt64
	KindFloat64
	KindString
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindUInt64:
		return "uint64"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Column is a tagged, append-only column of values of a single Kind.
// Result columns of an UpdateUnit are written only by the worker that owns
// the unit; mixing kinds is a programming error and panics.
type Column struct {
	kind Kind
	u64  []uint64
	i64  []int64
	f64  []float64
	str  []string
	raw  [][]byte
}

func NewColumn(kind Kind) *Column { return &Column{kind: kind} }

func (c *Column) Kind() Kind { return c.kind }

func (c *Column) Len() int {
	switch c.kind {
	case KindUInt64:
		return len(c.u64)
	case KindInt64:
		return len(c.i64)
	case KindFloat64:
		return len(c.f64)
	case KindString:
		return len(c.str)
	default:
		return len(c.raw)
	}
}

func (c *Column) AppendUint64(v uint64) {
	c.mustKind(KindUInt64)
	c.u64 = append(c.u64, v)
}

func (c *Column) AppendInt64(v int64) {
	c.mustKind(KindInt64)
	c.i64 = append(c.i64, v)
}

func (c *Column) AppendFloat64(v float64) {
	c.mustKind(KindFloat64)
	c.f64 = append(c.f64, v)
}

func (c *Column) AppendString(v string) {
	c.mustKind(KindString)
	c.str = append(c.str, v)
}

func (c *Column) AppendBytes(v []byte) {
	c.mustKind(KindBytes)
	c.raw = append(c.raw, v)
}

func (c *Column) Uint64(row int) uint64 {
	c.mustKind(KindUInt64)
	return c.u64[row]
}

func (c *Column) Int64(row int) int64 {
	c.mustKind(KindInt64)
	return c.i64[row]
}

func (c *Column) Float64(row int) float64 {
	c.mustKind(KindFloat64)
	return c.f64[row]
}

func (c *Column) String(row int) string {
	c.mustKind(KindString)
	return c.str[row]
}

func (c *Column) Bytes(row int) []byte {
	c.mustKind(KindBytes)
	return c.raw[row]
}

func (c *Column) mustKind(k Kind) {
	if c.kind != k {
		panic(fmt.Sprintf("refillq: %s column accessed as %s", c.kind, k))
	}
}
