// Package cache adds a Redis read-aside layer on top of any push.TokenStore.
// Caching is an optimization only: cache failures never fail the request.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get returns the value or a specific error if not found.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Del removes the keys.
	Del(ctx context.Context, keys ...string) error
}

// CachedTokenStore is a decorator that caches single-record lookups and
// invalidates on every write. Collection scans (List, Count) always go to
// the real store.
type CachedTokenStore struct {
	realStore push.TokenStore
	cache     CacheClient
	ttl       time.Duration
}

func NewCachedTokenStore(realStore push.TokenStore, cache CacheClient, ttl time.Duration) *CachedTokenStore {
	return &CachedTokenStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
	}
}

// --- READ PATH (Read-Aside) ---

func (s *CachedTokenStore) GetByID(ctx context.Context, id string) (*push.TokenRecord, error) {
	var cached push.TokenRecord
	if err := s.cache.Get(ctx, idKey(id), &cached); err == nil {
		return &cached, nil
	}

	rec, err := s.realStore.GetByID(ctx, id)
	if err != nil || rec == nil {
		return rec, err
	}

	// Populate both keys, fire and forget. If Redis is down we just serve
	// from the real store.
	_ = s.cache.Set(ctx, idKey(rec.ID), rec, s.ttl)
	_ = s.cache.Set(ctx, tokenKey(rec.Token), rec, s.ttl)
	return rec, nil
}

func (s *CachedTokenStore) GetByToken(ctx context.Context, token string) (*push.TokenRecord, error) {
	var cached push.TokenRecord
	if err := s.cache.Get(ctx, tokenKey(token), &cached); err == nil {
		return &cached, nil
	}

	rec, err := s.realStore.GetByToken(ctx, token)
	if err != nil || rec == nil {
		return rec, err
	}

	_ = s.cache.Set(ctx, idKey(rec.ID), rec, s.ttl)
	_ = s.cache.Set(ctx, tokenKey(rec.Token), rec, s.ttl)
	return rec, nil
}

func (s *CachedTokenStore) List(ctx context.Context) ([]*push.TokenRecord, error) {
	return s.realStore.List(ctx)
}

func (s *CachedTokenStore) Count(ctx context.Context) (int, error) {
	return s.realStore.Count(ctx)
}

// --- WRITE PATHS (Invalidate-on-Write) ---

func (s *CachedTokenStore) Upsert(ctx context.Context, token string, deviceInfo, metadata map[string]any) (*push.TokenRecord, error) {
	rec, err := s.realStore.Upsert(ctx, token, deviceInfo, metadata)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, idKey(rec.ID), tokenKey(rec.Token))
	return rec, nil
}

func (s *CachedTokenStore) DeleteByID(ctx context.Context, id string) (bool, error) {
	// Learn the token before the record disappears so both keys get dropped.
	rec, err := s.realStore.GetByID(ctx, id)
	if err != nil {
		return false, err
	}

	deleted, err := s.realStore.DeleteByID(ctx, id)
	if err != nil {
		return deleted, err
	}
	keys := []string{idKey(id)}
	if rec != nil {
		keys = append(keys, tokenKey(rec.Token))
	}
	s.invalidate(ctx, keys...)
	return deleted, nil
}

func (s *CachedTokenStore) DeleteByToken(ctx context.Context, token string) (bool, error) {
	rec, err := s.realStore.GetByToken(ctx, token)
	if err != nil {
		return false, err
	}

	deleted, err := s.realStore.DeleteByToken(ctx, token)
	if err != nil {
		return deleted, err
	}
	keys := []string{tokenKey(token)}
	if rec != nil {
		keys = append(keys, idKey(rec.ID))
	}
	s.invalidate(ctx, keys...)
	return deleted, nil
}

func (s *CachedTokenStore) TouchByToken(ctx context.Context, token string) error {
	if err := s.realStore.TouchByToken(ctx, token); err != nil {
		return err
	}
	keys := []string{tokenKey(token)}
	var cached push.TokenRecord
	if err := s.cache.Get(ctx, tokenKey(token), &cached); err == nil {
		keys = append(keys, idKey(cached.ID))
	}
	s.invalidate(ctx, keys...)
	return nil
}

// --- Helpers ---

func (s *CachedTokenStore) invalidate(ctx context.Context, keys ...string) {
	// Stale entries are worse than a cache miss; a failed delete just means
	// the TTL does the cleanup instead.
	_ = s.cache.Del(ctx, keys...)
}

func idKey(id string) string {
	return fmt.Sprintf("push:tokens:id:%s", id)
}

func tokenKey(token string) string {
	return fmt.Sprintf("push:tokens:token:%s", token)
}
