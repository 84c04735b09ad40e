package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/feedgate/internal/model"
)

// ErrUnavailable wraps any Redis transport error so callers can treat
// "cache down" distinctly from "cache empty".
var ErrUnavailable = errors.New("feed cache unavailable")

// FeedCache keeps one capped, most-recent-first list per user under
// feed:<userID>. Entries written by live fan-out carry no TTL; lists
// written by a cold rebuild expire so stale membership ages out.
type FeedCache struct {
	rdb    *redis.Client
	maxLen int
}

func NewFeedCache(rdb *redis.Client, maxLen int) *FeedCache {
	if maxLen <= 0 {
		maxLen = 100
	}
	return &FeedCache{rdb: rdb, maxLen: maxLen}
}

func Key(userID string) string { return fmt.Sprintf("feed:%s", userID) }

// Push prepends one entry and trims the list back to maxLen in a
// single pipeline. No TTL: the live path stays authoritative until an
// invalidation event deletes the key.
func (c *FeedCache) Push(ctx context.Context, userID string, entry model.FeedEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := Key(userID)
	pipe := c.rdb.Pipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, int64(c.maxLen-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Range reads the first n entries without mutating the list. A missing
// key reads as an empty slice, not an error.
func (c *FeedCache) Range(ctx context.Context, userID string, n int) ([]model.FeedEntry, error) {
	raw, err := c.rdb.LRange(ctx, Key(userID), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	entries := make([]model.FeedEntry, 0, len(raw))
	for _, item := range raw {
		var e model.FeedEntry
		if uErr := json.Unmarshal([]byte(item), &e); uErr != nil {
			// 脏数据跳过，不让一条坏记录拖垮整个 feed
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Delete drops the whole list immediately.
func (c *FeedCache) Delete(ctx context.Context, userID string) error {
	if err := c.rdb.Del(ctx, Key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Populate replaces the list wholesale with entries (given most-recent
// first) and sets the rebuild TTL, all in one pipeline. Replacing
// rather than appending means a failed rebuild never leaves a partial
// list behind.
func (c *FeedCache) Populate(ctx context.Context, userID string, entries []model.FeedEntry, ttl time.Duration) error {
	if len(entries) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		payload, err := json.Marshal(e)
		if err != nil {
			return err
		}
		values = append(values, payload)
	}
	key := Key(userID)
	pipe := c.rdb.Pipeline()
	pipe.Del(ctx, key)
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, 0, int64(c.maxLen-1))
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Ping 启动时探活；失败应当中止进程
func (c *FeedCache) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
