// Package httpsource fetches dictionary rows from an HTTP batch endpoint.
//
// Request:  POST <URL> with body {"keys": ["1", "2", ...]}.
// Response: 200 with body {"rows": {"1": <V>, ...}}; keys absent from rows
// were not found upstream.
//
// The client retries transient transport failures (connection resets, 5xx)
// with backoff; that is transport plumbing, not refill retry policy, which
// stays with the caller.
package httpsource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/unkn0wn-root/refillq"
	"github.com/unkn0wn-root/refillq/source"
)

type Config struct {
	// URL of the batch endpoint. Required.
	URL string
	// Client overrides the default retrying client (3 retries, default
	// backoff, logging off).
	Client *retryablehttp.Client
}

type Source[K refillq.Key, V any] struct {
	url    string
	client *retryablehttp.Client
}

var _ source.Source[uint64, string] = (*Source[uint64, string])(nil)

func New[K refillq.Key, V any](cfg Config) (*Source[K, V], error) {
	if cfg.URL == "" {
		return nil, errors.New("httpsource: URL is required")
	}
	client := cfg.Client
	if client == nil {
		client = retryablehttp.NewClient()
		client.RetryMax = 3
		client.Logger = nil
	}
	return &Source[K, V]{url: cfg.URL, client: client}, nil
}

type batchRequest struct {
	Keys []string `json:"keys"`
}

type batchResponse[V any] struct {
	Rows map[string]V `json:"rows"`
}

func (s *Source[K, V]) Fetch(ctx context.Context, keys []K) (map[K]V, error) {
	if len(keys) == 0 {
		return map[K]V{}, nil
	}

	// Keys travel as strings; match them back by the same formatting.
	byWire := make(map[string]K, len(keys))
	req := batchRequest{Keys: make([]string, len(keys))}
	for i, k := range keys {
		w := fmt.Sprint(k)
		req.Keys[i] = w
		byWire[w] = k
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("httpsource: encode request: %w", err)
	}

	hreq, err := retryablehttp.NewRequestWithContext(ctx, "POST", s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("httpsource: build request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("httpsource: %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("httpsource: %s: unexpected status %d", s.url, resp.StatusCode)
	}

	var br batchResponse[V]
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return nil, fmt.Errorf("httpsource: decode response: %w", err)
	}

	out := make(map[K]V, len(br.Rows))
	for w, v := range br.Rows {
		if k, ok := byWire[w]; ok {
			out[k] = v
		}
	}
	return out, nil
}
