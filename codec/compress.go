package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Zstd wraps another codec and zstd-compresses its output. Worth it for
// large rows on remote providers (redis); for small in-process entries the
// header overhead usually loses. Construct with NewZstd.
type Zstd[V any] struct {
	inner Codec[V]
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

var _ Codec[struct{}] = (*Zstd[struct{}])(nil)

func NewZstd[V any](inner Codec[V]) (*Zstd[V], error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Zstd[V]{inner: inner, enc: enc, dec: dec}, nil
}

func (c *Zstd[V]) Encode(v V) ([]byte, error) {
	b, err := c.inner.Encode(v)
	if err != nil {
		return nil, err
	}
	return c.enc.EncodeAll(b, make([]byte, 0, len(b)/2)), nil
}

func (c *Zstd[V]) Decode(b []byte) (V, error) {
	raw, err := c.dec.DecodeAll(b, nil)
	if err != nil {
		var zero V
		return zero, err
	}
	return c.inner.Decode(raw)
}

// LZ4 wraps another codec with lz4 frame compression. Faster than zstd at a
// lower ratio. The zero value is NOT ready to use; set Inner.
type LZ4[V any] struct {
	Inner Codec[V]
}

func (c LZ4[V]) Encode(v V) ([]byte, error) {
	b, err := c.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c LZ4[V]) Decode(b []byte) (V, error) {
	raw, err := io.ReadAll(lz4.NewReader(bytes.NewReader(b)))
	if err != nil {
		var zero V
		return zero, err
	}
	return c.Inner.Decode(raw)
}
