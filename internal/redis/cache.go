package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheStore handles provider profile caching in Redis.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// ProviderCacheTTL is short because availability flips frequently while a
// provider is being dispatched to.
const ProviderCacheTTL = 30 * time.Second

const providerCachePrefix = "cache:provider:"

// CachedProvider represents a cached provider profile, the subset of the
// directory the ranking path reads on every dispatch decision.
type CachedProvider struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Services    []string `json:"services"`
	Status      string   `json:"status"`
	Rating      float64  `json:"rating"`
	RatingCount int      `json:"rating_count"`
}

// GetProvider retrieves a provider from cache. A nil result with nil error
// is a cache miss.
func (s *CacheStore) GetProvider(ctx context.Context, providerID string) (*CachedProvider, error) {
	key := providerCachePrefix + providerID
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var provider CachedProvider
	if err := json.Unmarshal(data, &provider); err != nil {
		return nil, err
	}
	return &provider, nil
}

// SetProvider stores a provider in cache.
func (s *CacheStore) SetProvider(ctx context.Context, provider *CachedProvider) error {
	key := providerCachePrefix + provider.ID
	data, err := json.Marshal(provider)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, key, data, ProviderCacheTTL).Err()
}

// GetProvidersBatch retrieves multiple providers from cache using MGET.
// Returns the cache hits and the IDs that missed.
func (s *CacheStore) GetProvidersBatch(ctx context.Context, providerIDs []string) (map[string]*CachedProvider, []string, error) {
	if len(providerIDs) == 0 {
		return make(map[string]*CachedProvider), nil, nil
	}

	keys := make([]string, len(providerIDs))
	for i, id := range providerIDs {
		keys[i] = providerCachePrefix + id
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, providerIDs, err
	}

	hits := make(map[string]*CachedProvider)
	var misses []string
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			misses = append(misses, providerIDs[i])
			continue
		}
		var provider CachedProvider
		if err := json.Unmarshal([]byte(raw), &provider); err != nil {
			misses = append(misses, providerIDs[i])
			continue
		}
		hits[provider.ID] = &provider
	}

	return hits, misses, nil
}

// InvalidateProvider removes a provider's cache entry.
func (s *CacheStore) InvalidateProvider(ctx context.Context, providerID string) error {
	return s.client.Del(ctx, providerCachePrefix+providerID).Err()
}
