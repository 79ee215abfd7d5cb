// Package redis reads dictionary rows from a redis-backed origin, one MGET
// per batch.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/refillq"
	"github.com/unkn0wn-root/refillq/codec"
	"github.com/unkn0wn-root/refillq/source"
)

var ErrNilClient = errors.New("redis source: nil client")

type Config[V any] struct {
	Client goredis.UniversalClient
	Codec  codec.Codec[V]
	// Prefix namespaces the origin keys, e.g. "origin:user:".
	Prefix string
	// CloseClient releases the client in Close; set only on exclusive owners.
	CloseClient bool
}

type Source[K refillq.Key, V any] struct {
	rdb         goredis.UniversalClient
	codec       codec.Codec[V]
	prefix      string
	closeClient bool
}

var _ source.Source[uint64, string] = (*Source[uint64, string])(nil)

func New[K refillq.Key, V any](cfg Config[V]) (*Source[K, V], error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	if cfg.Codec == nil {
		return nil, errors.New("redis source: codec is required")
	}
	return &Source[K, V]{
		rdb:         cfg.Client,
		codec:       cfg.Codec,
		prefix:      cfg.Prefix,
		closeClient: cfg.CloseClient,
	}, nil
}

func (s *Source[K, V]) Fetch(ctx context.Context, keys []K) (map[K]V, error) {
	if len(keys) == 0 {
		return map[K]V{}, nil
	}
	rkeys := make([]string, len(keys))
	for i, k := range keys {
		rkeys[i] = s.prefix + fmt.Sprint(k)
	}
	vals, err := s.rdb.MGet(ctx, rkeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis source: mget %d keys: %w", len(keys), err)
	}
	out := make(map[K]V, len(keys))
	for i, v := range vals {
		if v == nil {
			continue // absent upstream
		}
		raw, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("redis source: unexpected value type %T at %q", v, rkeys[i])
		}
		dec, err := s.codec.Decode([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("redis source: decode %q: %w", rkeys[i], err)
		}
		out[keys[i]] = dec
	}
	return out, nil
}

func (s *Source[K, V]) Close(context.Context) error {
	if s.closeClient {
		if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
