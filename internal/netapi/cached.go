// ABOUTME: Short-lived response cache in front of the game server API
// ABOUTME: Only successful responses are kept; player lists are cached per key

package netapi

import (
	"context"
	"time"

	"github.com/LyceenAiro/CelesteNet-UserTool/internal/cache"
)

// CacheTTL is how long game server responses are reused.
const CacheTTL = 2 * time.Second

// maxCachedKeys bounds the number of player lists kept at once.
const maxCachedKeys = 256

// Source is the game server API being cached.
type Source interface {
	Status(ctx context.Context) (*Status, error)
	Players(ctx context.Context, key string) ([]Player, error)
}

// Cached reuses recent Status and Players results from a Source.
type Cached struct {
	src     Source
	status  *cache.Cache[*Status]
	players *cache.Cache[[]Player]
}

// NewCached wraps src. Close releases the cache goroutines.
func NewCached(src Source, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = CacheTTL
	}
	return &Cached{
		src:     src,
		status:  cache.New[*Status](ttl, 1),
		players: cache.New[[]Player](ttl, maxCachedKeys),
	}
}

func (c *Cached) Status(ctx context.Context) (*Status, error) {
	if st, ok := c.status.Get(""); ok {
		return st, nil
	}
	st, err := c.src.Status(ctx)
	if err != nil {
		return nil, err
	}
	c.status.Set("", st)
	return st, nil
}

func (c *Cached) Players(ctx context.Context, key string) ([]Player, error) {
	if list, ok := c.players.Get(key); ok {
		return list, nil
	}
	list, err := c.src.Players(ctx, key)
	if err != nil {
		return nil, err
	}
	c.players.Set(key, list)
	return list, nil
}

// Close stops the caches.
func (c *Cached) Close() {
	c.status.Close()
	c.players.Close()
}
