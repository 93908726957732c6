package playback

import (
	"context"
	"encoding/json"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Cache holds resolved playback entries.
type Cache interface {
	Get(ctx context.Context, id string) (*Playback, bool)
	Set(ctx context.Context, p *Playback, ttl time.Duration)
	Invalidate(ctx context.Context, id string)
}

type lruEntry struct {
	playback  Playback
	expiresAt time.Time
}

// LRUCache is a process-local Cache.
type LRUCache struct {
	cache *lru.Cache
	now   func() time.Time
}

func NewLRUCache(size int) (*LRUCache, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &LRUCache{cache: cache, now: time.Now}, nil
}

func (c *LRUCache) Get(ctx context.Context, id string) (*Playback, bool) {
	v, ok := c.cache.Get(id)
	if !ok {
		return nil, false
	}
	entry := v.(lruEntry)
	if c.now().After(entry.expiresAt) {
		c.cache.Remove(id)
		return nil, false
	}
	p := entry.playback
	return &p, true
}

func (c *LRUCache) Set(ctx context.Context, p *Playback, ttl time.Duration) {
	c.cache.Add(p.ID, lruEntry{playback: *p, expiresAt: c.now().Add(ttl)})
}

func (c *LRUCache) Invalidate(ctx context.Context, id string) {
	c.cache.Remove(id)
}

const redisKeyPrefix = "videoverse:playback:"

// RedisCache shares entries between instances. Redis failures degrade to
// cache misses.
type RedisCache struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisCache(client *redis.Client, logger *logrus.Logger) *RedisCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisCache{client: client, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, id string) (*Playback, bool) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).WithField("video_id", id).Warn("Playback cache read failed")
		}
		return nil, false
	}

	var p Playback
	if err := json.Unmarshal(raw, &p); err != nil {
		c.logger.WithError(err).WithField("video_id", id).Warn("Discarding corrupt playback cache entry")
		c.Invalidate(ctx, id)
		return nil, false
	}
	return &p, true
}

func (c *RedisCache) Set(ctx context.Context, p *Playback, ttl time.Duration) {
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+p.ID, raw, ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("video_id", p.ID).Warn("Playback cache write failed")
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, id string) {
	if err := c.client.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		c.logger.WithError(err).WithField("video_id", id).Warn("Playback cache invalidation failed")
	}
}
