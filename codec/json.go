package codec

import "encoding/json"

// JSON serializes dictionary rows with encoding/json. The zero value is
// ready to use. The least compact codec here, but the payloads stay readable
// when inspecting provider contents by hand.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
