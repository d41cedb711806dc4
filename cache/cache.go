// Package cache memoizes fetched pages for the length of a run, so a URL
// listed twice is only navigated once.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is a bounded, expiring store of rendered pages keyed by URL.
// It is safe for concurrent use.
type Cache struct {
	lru *expirable.LRU[string, string]
}

// New creates a Cache holding at most maxEntries pages, each valid for
// maxAge. maxAge <= 0 means entries never expire. maxEntries <= 0 returns
// nil, which is a valid cache that stores nothing.
func New(maxEntries int, maxAge time.Duration) *Cache {
	if maxEntries <= 0 {
		return nil
	}
	return &Cache{lru: expirable.NewLRU[string, string](maxEntries, nil, maxAge)}
}

// Get returns the cached page for url if present and not expired.
func (c *Cache) Get(url string) (string, bool) {
	if c == nil {
		return "", false
	}
	return c.lru.Get(url)
}

// Set stores a page, evicting the least recently used one when full.
func (c *Cache) Set(url, html string) {
	if c == nil {
		return
	}
	c.lru.Add(url, html)
}

// Len returns the number of stored pages.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

// Fetcher returns the rendered HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// CachingFetcher serves repeated URLs from a Cache and delegates the rest.
// Failed fetches are not cached.
type CachingFetcher struct {
	next  Fetcher
	cache *Cache
}

// Wrap returns a Fetcher that consults c before calling next.
func Wrap(next Fetcher, c *Cache) *CachingFetcher {
	return &CachingFetcher{next: next, cache: c}
}

// Fetch implements Fetcher.
func (f *CachingFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if html, ok := f.cache.Get(url); ok {
		slog.Debug("page served from cache", "url", url)
		return html, nil
	}
	html, err := f.next.Fetch(ctx, url)
	if err != nil {
		return html, err
	}
	f.cache.Set(url, html)
	return html, nil
}
