package idempotency

import (
	"context"
	"time"

	"takeoffs/internal/cache"
	"takeoffs/internal/errors"
)

const (
	lockSuffix = ":lock"
	dataSuffix = ":data"
	lockTTL    = 10 * time.Second   // How long to block for a running request
	dataTTL    = 24 * 7 * time.Hour // How long to remember the success response
)

type Store struct {
	cache *cache.RedisClient
}

func NewStore(c *cache.RedisClient) *Store {
	return &Store{cache: c}
}

func (s *Store) SaveResponse(ctx context.Context, key string, resp Response) error {
	// 1. Save the actual response data (long TTL)
	if err := cache.Set(s.cache, ctx, key+dataSuffix, resp, dataTTL); err != nil {
		return errors.New(errors.ErrInternal, "Internal error. Please contact support.", err)
	}

	// 2. Drop the lock immediately so waiting requests can read the data.
	// Ignore the error: once the data is saved the transaction is done.
	_ = cache.Del(s.cache, ctx, key+lockSuffix)

	return nil
}

func (s *Store) GetResponse(ctx context.Context, key string) (*Response, bool, error) {
	return cache.Get[Response](s.cache, ctx, key+dataSuffix)
}

func (s *Store) Lock(ctx context.Context, key string) (bool, error) {
	// A finished response means the lock must "fail" so the middleware falls
	// through to the replay path.
	_, found, err := s.GetResponse(ctx, key)
	if err != nil {
		return false, err
	}
	if found {
		return false, nil
	}

	return cache.SetNX(s.cache, ctx, key+lockSuffix, "1", lockTTL)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_ = cache.Del(s.cache, ctx, key+lockSuffix)
	_ = cache.Del(s.cache, ctx, key+dataSuffix)
	return nil
}
