package codec

import "github.com/vmihailenco/msgpack/v5"

// Msgpack serializes dictionary rows with vmihailenco/msgpack/v5. The zero
// value is ready to use.
//
// A good default for remote providers: rows refill in batches, so the
// per-entry size savings over JSON multiply. Field naming follows
// `msgpack:"..."` tags, not `json:"..."` ones.
type Msgpack[V any] struct{}

func (Msgpack[V]) Encode(v V) ([]byte, error) {
	return msgpack.Marshal(v)
}
func (Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	err := msgpack.Unmarshal(b, &v)
	return v, err
}
