package analysis_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/kiranshivaraju/convointel/internal/storage"
)

// memCache is an in-memory cache.Cache.
type memCache struct {
	mu   sync.Mutex
	keys map[string]time.Time
	err  error
}

func newMemCache() *memCache { return &memCache{keys: map[string]time.Time{}} }

func (c *memCache) Ping(context.Context) error { return c.err }

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	delete(c.keys, key)
	return nil
}

func (c *memCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("not implemented")
}

func (c *memCache) SetIfAbsent(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	if exp, ok := c.keys[key]; ok && exp.After(time.Now()) {
		return false, nil
	}
	c.keys[key] = time.Now().Add(ttl)
	return true, nil
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp, ok := c.keys[key]
	return ok && exp.After(time.Now())
}

// failingStorage rejects every write.
type failingStorage struct{}

func (failingStorage) Put(context.Context, string, string, io.Reader) (storage.Object, error) {
	return storage.Object{}, errors.New("disk full")
}

func (failingStorage) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, storage.ErrNotFound
}

func (failingStorage) Delete(context.Context, string) error { return nil }
