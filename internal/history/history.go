// Package history keeps a bounded, most-recent-first list of submitted links.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"contxtra_bot/internal/model"
	"contxtra_bot/internal/storage"
)

const (
	// Key is the storage key holding the serialized list.
	Key = "link-analyzer-history"
	// Capacity is the maximum number of remembered links.
	Capacity = 10
)

// Cache is the history list of one scope (chat).
type Cache struct {
	store storage.Storage
	scope string
	now   func() time.Time
}

// New creates a Cache reading and writing scope in store.
func New(store storage.Storage, scope string) *Cache {
	return &Cache{store: store, scope: scope, now: time.Now}
}

// WithClock replaces the clock used for new timestamps.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// List returns the stored items, most recent first. A missing or unreadable
// value yields an empty list.
func (c *Cache) List(ctx context.Context) ([]model.HistoryItem, error) {
	raw, err := c.store.Get(ctx, c.scope, Key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	var items []model.HistoryItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, nil
	}
	return normalize(items), nil
}

// Record moves url to the front with the current timestamp, dropping any
// earlier entry for the same url and anything past Capacity.
func (c *Cache) Record(ctx context.Context, url string) ([]model.HistoryItem, error) {
	items, err := c.List(ctx)
	if err != nil {
		return nil, err
	}

	next := make([]model.HistoryItem, 0, Capacity)
	next = append(next, model.HistoryItem{URL: url, Timestamp: c.now().UnixMilli()})
	for _, it := range items {
		if it.URL == url {
			continue
		}
		next = append(next, it)
	}
	next = normalize(next)

	b, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}
	if err := c.store.Set(ctx, c.scope, Key, string(b)); err != nil {
		return nil, fmt.Errorf("write history: %w", err)
	}
	return next, nil
}

// Clear removes every item.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.store.Delete(ctx, c.scope, Key); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// normalize drops duplicate urls keeping the first occurrence and truncates to Capacity.
func normalize(items []model.HistoryItem) []model.HistoryItem {
	seen := make(map[string]struct{}, len(items))
	out := items[:0:0]
	for _, it := range items {
		if _, ok := seen[it.URL]; ok {
			continue
		}
		seen[it.URL] = struct{}{}
		out = append(out, it)
		if len(out) == Capacity {
			break
		}
	}
	return out
}
