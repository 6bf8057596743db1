// Copyright 2024-2025
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pnl

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/sync/singleflight"
)

// MonthlyAggregator is the computation the cache wraps.
type MonthlyAggregator interface {
	MonthlySummary(ctx context.Context, portfolioID uuid.UUID, year int, month time.Month) (*MonthlySummary, error)
}

type cacheEntry struct {
	summary *MonthlySummary
	expires time.Time
}

// Cache memoizes monthly summaries with a TTL, keyed by
// (portfolio, year, month), and coalesces concurrent requests for an
// uncached key into a single underlying computation shared by all waiters.
// Expired entries are dropped lazily on read and swept opportunistically on
// write. Callers that just recorded new transactions use Invalidate or
// Flush to force fresh numbers.
type Cache struct {
	agg   MonthlyAggregator
	ttl   time.Duration
	clock clockwork.Clock

	entries *lru.Cache
	group   singleflight.Group
}

type CacheOption func(*Cache)

// WithTTL overrides the cache.ttl setting.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) { c.ttl = ttl }
}

// WithCacheClock injects the clock used for TTL expiry.
func WithCacheClock(clock clockwork.Clock) CacheOption {
	return func(c *Cache) { c.clock = clock }
}

func NewCache(agg MonthlyAggregator, opts ...CacheOption) (*Cache, error) {
	size := viper.GetInt("cache.local_size")
	if size <= 0 {
		size = 128
	}
	entries, err := lru.New(size)
	if err != nil {
		return nil, err
	}

	c := &Cache{
		agg:     agg,
		ttl:     time.Duration(viper.GetInt("cache.ttl")) * time.Second,
		clock:   clockwork.NewRealClock(),
		entries: entries,
	}
	if c.ttl <= 0 {
		c.ttl = 5 * time.Minute
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func cacheKey(portfolioID uuid.UUID, year int, month time.Month) string {
	return fmt.Sprintf("%s:%04d-%02d", portfolioID, year, int(month))
}

func (c *Cache) lookup(key string) (*MonthlySummary, bool) {
	v, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	entry := v.(*cacheEntry)
	if !c.clock.Now().Before(entry.expires) {
		c.entries.Remove(key)
		return nil, false
	}
	return entry.summary, true
}

// MonthlySummary returns the cached summary for the key, computing and
// caching it on a miss. Concurrent callers for the same key share one
// in-flight computation; an abandoned caller's computation still runs to
// completion and populates the cache for other waiters.
func (c *Cache) MonthlySummary(ctx context.Context, portfolioID uuid.UUID, year int, month time.Month) (*MonthlySummary, error) {
	key := cacheKey(portfolioID, year, month)

	if summary, ok := c.lookup(key); ok {
		return summary, nil
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		// A racing caller may have filled the entry while this one waited
		// on the flight group.
		if summary, ok := c.lookup(key); ok {
			return summary, nil
		}

		summary, err := c.agg.MonthlySummary(context.WithoutCancel(ctx), portfolioID, year, month)
		if err != nil {
			return nil, err
		}

		c.entries.Add(key, &cacheEntry{
			summary: summary,
			expires: c.clock.Now().Add(c.ttl),
		})
		c.Sweep()
		return summary, nil
	})
	if err != nil {
		return nil, err
	}

	if shared {
		log.Debug().Str("Key", key).Msg("coalesced monthly summary request")
	}
	return v.(*MonthlySummary), nil
}

// Invalidate drops the entry for one (portfolio, year, month).
func (c *Cache) Invalidate(portfolioID uuid.UUID, year int, month time.Month) {
	c.entries.Remove(cacheKey(portfolioID, year, month))
}

// Flush drops every cached summary.
func (c *Cache) Flush() {
	c.entries.Purge()
}

// Sweep removes expired entries. It runs opportunistically after each cache
// fill and may also be driven periodically by a scheduler.
func (c *Cache) Sweep() {
	now := c.clock.Now()
	for _, key := range c.entries.Keys() {
		v, ok := c.entries.Peek(key)
		if !ok {
			continue
		}
		if !now.Before(v.(*cacheEntry).expires) {
			c.entries.Remove(key)
		}
	}
}

// Len reports the number of cached summaries, including any not yet swept.
func (c *Cache) Len() int {
	return c.entries.Len()
}
