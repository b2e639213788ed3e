// Package spankv provides the ordered, prefix-scannable key-value
// backends that the span cache stores its records in.
package spankv

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("spankv: key not found")

// Entry is a single key-value pair returned by List.
type Entry struct {
	Key   string
	Value []byte
}

// Store is an ordered key-value store. List returns entries in
// ascending key order, which makes per-trace prefix scans cheap on
// backends with sorted keyspaces.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	List(ctx context.Context, prefix string) ([]Entry, error)
	Close() error
}

// WithPrefix returns a view of store where every key is transparently
// namespaced under prefix. Keys returned by List have the prefix
// stripped. Closing the view is a no-op; the underlying store may be
// shared by many views.
func WithPrefix(store Store, prefix string) Store {
	return &prefixStore{inner: store, prefix: prefix}
}

type prefixStore struct {
	inner  Store
	prefix string
}

func (p *prefixStore) Get(ctx context.Context, key string) ([]byte, error) {
	return p.inner.Get(ctx, p.prefix+key)
}

func (p *prefixStore) Put(ctx context.Context, key string, value []byte) error {
	return p.inner.Put(ctx, p.prefix+key, value)
}

func (p *prefixStore) Delete(ctx context.Context, keys ...string) error {
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = p.prefix + k
	}
	return p.inner.Delete(ctx, prefixed...)
}

func (p *prefixStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	entries, err := p.inner.List(ctx, p.prefix+prefix)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Key = strings.TrimPrefix(entries[i].Key, p.prefix)
	}
	return entries, nil
}

func (*prefixStore) Close() error {
	return nil
}
