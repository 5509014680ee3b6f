package core

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheStore is the read-through cache consumed by the services. It is a
// performance layer only: every implementation must degrade errors to a miss
// (reads) or a no-op (writes/deletes) so a broken cache can never fail a
// request. The database stays the source of truth.
type CacheStore interface {
	// Get returns the cached value and true on a hit; false on miss or error.
	Get(ctx context.Context, key string) (string, bool)
	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key string, value string, ttl time.Duration)
	// Delete removes the given keys.
	Delete(ctx context.Context, keys ...string)
	// DeletePrefixes removes every key under each of the given prefixes.
	DeletePrefixes(ctx context.Context, prefixes ...string)
}

// RedisCache implements CacheStore over go-redis.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("warn: cache get %s: %v", key, err)
		}
		return "", false
	}
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		log.Printf("warn: cache set %s: %v", key, err)
	}
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		log.Printf("warn: cache del %v: %v", keys, err)
	}
}

// DeletePrefixes walks each prefix with SCAN and bulk-deletes the matches.
// SCAN instead of KEYS so invalidation does not block the server.
func (c *RedisCache) DeletePrefixes(ctx context.Context, prefixes ...string) {
	for _, prefix := range prefixes {
		var cursor uint64
		for {
			keys, next, err := c.client.Scan(ctx, cursor, prefix+"*", 100).Result()
			if err != nil {
				log.Printf("warn: cache scan %s: %v", prefix, err)
				return
			}
			if len(keys) > 0 {
				if err := c.client.Del(ctx, keys...).Err(); err != nil {
					log.Printf("warn: cache del %v: %v", keys, err)
				}
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
	}
}

// Filters is a normalized filter set for list/count queries. Empty values are
// dropped during key construction so "no filter" and "filter absent" cache
// identically.
type Filters map[string]string

// pairs returns non-empty filters in a fixed name order. Key construction must
// never depend on map iteration order.
func (f Filters) pairs() []string {
	names := make([]string, 0, len(f))
	for name, value := range f {
		if strings.TrimSpace(value) == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names)*2)
	for _, name := range names {
		parts = append(parts, name, f[name])
	}
	return parts
}

// ItemKey builds the cache key for a single entity row.
func ItemKey(entity string, id int64) string {
	return fmt.Sprintf("%s:%d", entity, id)
}

// ListKey builds the cache key for a paginated, filtered list query.
// Identical filter sets always produce identical keys.
func ListKey(entity string, page, pageSize int, filters Filters) string {
	parts := []string{entity, "list", "page", fmt.Sprint(page), "pageSize", fmt.Sprint(pageSize)}
	parts = append(parts, filters.pairs()...)
	return strings.Join(parts, ":")
}

// CountKey builds the cache key for a filtered count, independent of paging.
func CountKey(entity string, filters Filters) string {
	parts := []string{entity, "count"}
	parts = append(parts, filters.pairs()...)
	return strings.Join(parts, ":")
}

// InvalidationScope names every cache namespace derived from one entity type.
// A mutation anywhere in the type drops all of them: correctness over hit rate.
type InvalidationScope struct {
	Entity string
}

// Prefixes covers every list and count variant of the entity.
func (s InvalidationScope) Prefixes() []string {
	return []string{s.Entity + ":list:", s.Entity + ":count"}
}

// InvalidateAll drops every cached key of the entity, item payloads included.
// For cross-entity writes that touch rows nobody enumerated (an author rename
// rewrites the byline inside every cached blog payload).
func (s InvalidationScope) InvalidateAll(ctx context.Context, cache CacheStore) {
	cache.DeletePrefixes(ctx, s.Entity+":")
}

// Invalidate drops the item keys (when ids are given) plus every list/count
// key of the entity. Called after the transaction commits; a crash in between
// leaves at worst a TTL-bounded stale entry.
func (s InvalidationScope) Invalidate(ctx context.Context, cache CacheStore, ids ...int64) {
	if len(ids) > 0 {
		keys := make([]string, 0, len(ids))
		for _, id := range ids {
			keys = append(keys, ItemKey(s.Entity, id))
		}
		cache.Delete(ctx, keys...)
	}
	cache.DeletePrefixes(ctx, s.Prefixes()...)
}

// Pagination is the envelope attached to every list response.
type Pagination struct {
	Page            int  `json:"page"`
	PageSize        int  `json:"pageSize"`
	TotalItems      int  `json:"totalItems"`
	TotalPages      int  `json:"totalPages"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

func NewPagination(page, pageSize, totalItems int) Pagination {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (totalItems + pageSize - 1) / pageSize
	}
	return Pagination{
		Page:            page,
		PageSize:        pageSize,
		TotalItems:      totalItems,
		TotalPages:      totalPages,
		HasNextPage:     page < totalPages,
		HasPreviousPage: page > 1 && totalItems > 0,
	}
}
