// Package store caches encoded utterances so that a corpus is parsed and
// fitted once and reused by later training and evaluation runs.
//
// Keys are slash-separated paths. The package has a BadgerDB-backed
// implementation for on-disk caches and an in-memory one for tests.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ieee0824/basis-speech/bfcr"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("store: not found")

// Store is a byte-oriented key-value store.
type Store interface {
	// Get retrieves the value for a key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a key-value pair, overwriting any existing value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes a key. No error if the key does not exist.
	Delete(ctx context.Context, key string) error

	// Keys returns every key starting with prefix in lexicographic order.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}

// Cache stores encoded utterances under a namespace. The namespace should
// capture everything that changes the encoding, such as the feature name
// and basis order, so stale entries are never returned.
type Cache struct {
	store     Store
	namespace string
}

// NewCache wraps s. namespace segments are joined with '/'.
func NewCache(s Store, namespace ...string) *Cache {
	return &Cache{store: s, namespace: strings.Join(namespace, "/")}
}

// Namespace returns the cache's key prefix.
func (c *Cache) Namespace() string { return c.namespace }

func (c *Cache) key(name string) string {
	if c.namespace == "" {
		return name
	}
	return c.namespace + "/" + name
}

// Put stores b under name.
func (c *Cache) Put(ctx context.Context, name string, b *bfcr.BFCR) error {
	data, err := b.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	return c.store.Set(ctx, c.key(name), data)
}

// Get loads the utterance stored under name. Returns ErrNotFound on a miss.
func (c *Cache) Get(ctx context.Context, name string) (*bfcr.BFCR, error) {
	data, err := c.store.Get(ctx, c.key(name))
	if err != nil {
		return nil, err
	}
	b := bfcr.New(nil)
	if err := b.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return b, nil
}

// GetOrCreate returns the cached utterance or builds, stores and returns it.
func (c *Cache) GetOrCreate(ctx context.Context, name string, create func() (*bfcr.BFCR, error)) (*bfcr.BFCR, bool, error) {
	b, err := c.Get(ctx, name)
	if err == nil {
		return b, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	b, err = create()
	if err != nil {
		return nil, false, err
	}
	if err := c.Put(ctx, name, b); err != nil {
		return nil, false, err
	}
	return b, false, nil
}

// Delete removes name from the cache.
func (c *Cache) Delete(ctx context.Context, name string) error {
	return c.store.Delete(ctx, c.key(name))
}

// Names lists the cached utterance names.
func (c *Cache) Names(ctx context.Context) ([]string, error) {
	prefix := ""
	if c.namespace != "" {
		prefix = c.namespace + "/"
	}
	keys, err := c.store.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = strings.TrimPrefix(k, prefix)
	}
	return names, nil
}
