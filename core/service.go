package core

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"
)

// CacheTTLs groups the lifetimes of the three cached shapes. Counts live
// longer than lists: while a visitor pages through results the total rarely
// moves, so reusing the cached count saves a COUNT(*) per cold page.
type CacheTTLs struct {
	List  time.Duration
	Item  time.Duration
	Count time.Duration
}

func TTLsFromConfig(cfg Config) CacheTTLs {
	return CacheTTLs{List: cfg.ListCacheTTL, Item: cfg.ItemCacheTTL, Count: cfg.CountCacheTTL}
}

// ListPage is the cached (and returned) payload of a list query.
type ListPage[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// CachedList is the read-through list path.
//
// List-key hit returns the cached payload without touching the database.
// On miss it tries the count key: a cached count means only the page of rows
// is fetched; otherwise one combined rows+count fetch runs and the count is
// cached under its own key. The assembled payload is cached under the list
// key before returning.
func CachedList[T any](
	ctx context.Context,
	cache CacheStore,
	ttls CacheTTLs,
	entity string,
	page, pageSize int,
	filters Filters,
	fetchRows func(ctx context.Context, limit, offset int) ([]T, error),
	fetchRowsAndCount func(ctx context.Context, limit, offset int) ([]T, int, error),
) (*ListPage[T], error) {
	listKey := ListKey(entity, page, pageSize, filters)
	if raw, ok := cache.Get(ctx, listKey); ok {
		var cached ListPage[T]
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return &cached, nil
		}
		log.Printf("warn: corrupt cache payload at %s, refetching", listKey)
	}

	limit := pageSize
	offset := (page - 1) * pageSize

	var (
		items []T
		total int
		err   error
	)
	countKey := CountKey(entity, filters)
	if raw, ok := cache.Get(ctx, countKey); ok {
		if cachedCount, parseErr := strconv.Atoi(raw); parseErr == nil {
			total = cachedCount
			items, err = fetchRows(ctx, limit, offset)
			if err != nil {
				return nil, err
			}
			return assembleListPage(ctx, cache, ttls, listKey, items, page, pageSize, total), nil
		}
	}

	items, total, err = fetchRowsAndCount(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	cache.Set(ctx, countKey, strconv.Itoa(total), ttls.Count)
	return assembleListPage(ctx, cache, ttls, listKey, items, page, pageSize, total), nil
}

func assembleListPage[T any](
	ctx context.Context,
	cache CacheStore,
	ttls CacheTTLs,
	listKey string,
	items []T,
	page, pageSize, total int,
) *ListPage[T] {
	if items == nil {
		items = []T{}
	}
	result := &ListPage[T]{Items: items, Pagination: NewPagination(page, pageSize, total)}
	if data, err := json.Marshal(result); err == nil {
		cache.Set(ctx, listKey, string(data), ttls.List)
	}
	return result
}

// CachedItem is the read-through single-row path. Not-found results are
// returned as-is and never cached.
func CachedItem[T any](
	ctx context.Context,
	cache CacheStore,
	ttls CacheTTLs,
	entity string,
	id int64,
	fetch func(ctx context.Context) (*T, error),
) (*T, error) {
	key := ItemKey(entity, id)
	if raw, ok := cache.Get(ctx, key); ok {
		var cached T
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return &cached, nil
		}
		log.Printf("warn: corrupt cache payload at %s, refetching", key)
	}

	item, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(item); err == nil {
		cache.Set(ctx, key, string(data), ttls.Item)
	}
	return item, nil
}
