// Package codec (de)serializes dictionary values V to the []byte payloads
// stored in cache providers and fetched from backing sources.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
