package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// TypedStore keeps JSON-encoded values of type V under a key namespace.
type TypedStore[V any] struct {
	client    *Client
	namespace string
}

// NewTypedStore creates a store whose keys are "<prefix>:<namespace>:<key>".
func NewTypedStore[V any](client *Client, namespace string) *TypedStore[V] {
	return &TypedStore[V]{client: client, namespace: namespace}
}

// Load returns the stored value, or (nil, nil) when the key is absent.
func (s *TypedStore[V]) Load(ctx context.Context, key string) (*V, error) {
	raw, err := s.client.Get(ctx, s.client.Key(s.namespace, key))
	if IsNil(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("typed store load %q: %w", key, err)
	}

	var v V
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("typed store unmarshal %q: %w", key, err)
	}
	return &v, nil
}

// Save stores v with ttl.
func (s *TypedStore[V]) Save(ctx context.Context, key string, v *V, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("typed store marshal %q: %w", key, err)
	}
	if err := s.client.Set(ctx, s.client.Key(s.namespace, key), data, ttl); err != nil {
		return fmt.Errorf("typed store save %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *TypedStore[V]) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.client.Key(s.namespace, key)); err != nil {
		return fmt.Errorf("typed store delete %q: %w", key, err)
	}
	return nil
}
