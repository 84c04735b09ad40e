package service

import (
    "context"
    "sort"
    "time"

    "go.uber.org/zap"
    "golang.org/x/sync/singleflight"

    "github.com/d60-Lab/feedgate/internal/model"
    "github.com/d60-Lab/feedgate/pkg/logger"
)

// FeedService 读路径：优先缓存，缓存为空时回源协作方冷重建
type FeedService struct {
    graph   GraphClient
    content ContentClient
    cache   FeedStore

    readLimit      int           // 一次返回的条数
    rebuildFanout  int           // 冷重建最多回源的关注数
    rebuildTTL     time.Duration // 冷重建写入的过期时间
    rebuildTimeout time.Duration // 整个重建的硬超时

    sf singleflight.Group // 同一用户并发 miss 只重建一次
}

func NewFeedService(graph GraphClient, content ContentClient, cache FeedStore, readLimit, rebuildFanout int, rebuildTTL, rebuildTimeout time.Duration) *FeedService {
    if readLimit <= 0 { readLimit = 20 }
    if rebuildFanout <= 0 { rebuildFanout = 10 }
    if rebuildTTL <= 0 { rebuildTTL = time.Hour }
    if rebuildTimeout <= 0 { rebuildTimeout = 15 * time.Second }
    return &FeedService{
        graph:          graph,
        content:        content,
        cache:          cache,
        readLimit:      readLimit,
        rebuildFanout:  rebuildFanout,
        rebuildTTL:     rebuildTTL,
        rebuildTimeout: rebuildTimeout,
    }
}

// GetFeed 命中缓存时不会发起任何协作方调用
func (s *FeedService) GetFeed(ctx context.Context, userID string) (*model.Feed, error) {
    entries, err := s.cache.Range(ctx, userID, s.readLimit)
    if err != nil {
        return nil, err
    }
    if len(entries) > 0 {
        return &model.Feed{Source: model.SourceCache, Entries: entries}, nil
    }

    v, err, _ := s.sf.Do(userID, func() (any, error) {
        rctx, cancel := context.WithTimeout(ctx, s.rebuildTimeout)
        defer cancel()
        return s.rebuild(rctx, userID)
    })
    if err != nil {
        return nil, err
    }
    return &model.Feed{Source: model.SourceRebuild, Entries: v.([]model.FeedEntry)}, nil
}

// rebuild 从协作方重建：取关注列表（截断到 rebuildFanout），逐个拉
// 最近帖子，按 CreatedAt 降序稳定排序后取前 readLimit 条整体写回。
// 任何协作方失败都让本次读失败，不缓存半成品。
func (s *FeedService) rebuild(ctx context.Context, userID string) ([]model.FeedEntry, error) {
    following, err := s.graph.GetFollowing(ctx, userID)
    if err != nil {
        return nil, err
    }
    if len(following) > s.rebuildFanout {
        following = following[:s.rebuildFanout]
    }

    var entries []model.FeedEntry
    for _, followeeID := range following {
        posts, err := s.content.GetPosts(ctx, followeeID)
        if err != nil {
            return nil, err
        }
        entries = append(entries, posts...)
    }

    // 稳定排序：时间相同保持拉取顺序
    sort.SliceStable(entries, func(i, j int) bool {
        return entries[i].CreatedAt.After(entries[j].CreatedAt)
    })
    if len(entries) > s.readLimit {
        entries = entries[:s.readLimit]
    }

    if err := s.cache.Populate(ctx, userID, entries, s.rebuildTTL); err != nil {
        return nil, err
    }
    logger.Info("feed rebuilt",
        zap.String("user", userID),
        zap.Int("following", len(following)),
        zap.Int("entries", len(entries)))
    return entries, nil
}
