package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"mediarag/core"
)

// StatusCache shields the database from hot status polling while a media
// item is being processed. Everything here is best-effort; a cache failure
// only costs a database read.
type StatusCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *slog.Logger
}

func NewStatusCache(addr, password string, db int, ttl time.Duration, log *slog.Logger) *StatusCache {
	if addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Warn("redis unreachable, status cache disabled", "addr", addr, "error", err)
		return nil
	}
	return &StatusCache{rdb: rdb, ttl: ttl, log: log}
}

func statusKey(mediaID string) string { return "media:" + mediaID + ":status" }

func (c *StatusCache) Get(ctx context.Context, mediaID string) (*core.Media, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, statusKey(mediaID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("status cache read failed", "media_id", mediaID, "error", err)
		}
		return nil, false
	}
	var m core.Media
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, false
	}
	return &m, true
}

func (c *StatusCache) Set(ctx context.Context, m *core.Media) {
	if c == nil || m == nil {
		return
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, statusKey(m.ID), raw, c.ttl).Err(); err != nil {
		c.log.Warn("status cache write failed", "media_id", m.ID, "error", err)
	}
}

func (c *StatusCache) Invalidate(ctx context.Context, mediaID string) {
	if c == nil {
		return
	}
	if err := c.rdb.Del(ctx, statusKey(mediaID)).Err(); err != nil {
		c.log.Warn("status cache invalidate failed", "media_id", mediaID, "error", err)
	}
}
