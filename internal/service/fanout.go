package service

import (
    "context"
    "fmt"
    "time"

    "go.uber.org/zap"

    "github.com/d60-Lab/feedgate/internal/event"
    "github.com/d60-Lab/feedgate/internal/model"
    "github.com/d60-Lab/feedgate/pkg/logger"
)

// GraphClient 社交关系协作方（user-service）
type GraphClient interface {
    GetFollowers(ctx context.Context, userID string) ([]string, error)
    GetFollowing(ctx context.Context, userID string) ([]string, error)
}

// ContentClient 内容协作方（post-service）
type ContentClient interface {
    GetPosts(ctx context.Context, userID string) ([]model.FeedEntry, error)
}

// FeedStore feed 缓存需要的列表语义
type FeedStore interface {
    Push(ctx context.Context, userID string, entry model.FeedEntry) error
    Range(ctx context.Context, userID string, n int) ([]model.FeedEntry, error)
    Delete(ctx context.Context, userID string) error
    Populate(ctx context.Context, userID string, entries []model.FeedEntry, ttl time.Duration) error
}

// FanoutEngine 把内容/关系事件翻译成缓存变更
type FanoutEngine struct {
    graph GraphClient
    cache FeedStore
}

func NewFanoutEngine(graph GraphClient, cache FeedStore) *FanoutEngine {
    return &FanoutEngine{graph: graph, cache: cache}
}

// HandleEvent 消费循环的入口：按主题解码并分发。
// 返回错误由消费侧记日志后丢弃（不重试、不进死信）。
func (e *FanoutEngine) HandleEvent(ctx context.Context, topic string, payload []byte) error {
    decoded, err := event.Decode(topic, payload)
    if err != nil {
        return err
    }
    switch ev := decoded.(type) {
    case *event.PostCreated:
        return e.handlePostCreated(ctx, ev)
    case *event.UserFollowed:
        return e.handleUserFollowed(ctx, ev)
    default:
        return fmt.Errorf("no handler for topic %s", topic)
    }
}

// handlePostCreated 给作者的每个粉丝推一条快照。
// 粉丝解析失败则整个事件丢弃；单个粉丝写失败不影响其余粉丝。
// bus 为 at-least-once，重复投递会产生重复条目，LTrim 会把长度
// 拉回上限，这里不做去重（去重需要每次推送前多一次读）。
func (e *FanoutEngine) handlePostCreated(ctx context.Context, ev *event.PostCreated) error {
    followers, err := e.graph.GetFollowers(ctx, ev.UserID)
    if err != nil {
        return fmt.Errorf("resolve followers of %s: %w", ev.UserID, err)
    }

    entry := model.FeedEntry{
        PostID:    ev.PostID,
        AuthorID:  ev.UserID,
        Content:   ev.Content,
        CreatedAt: ev.CreatedAt,
    }
    pushed := 0
    for _, followerID := range followers {
        if err := e.cache.Push(ctx, followerID, entry); err != nil {
            logger.Warn("push feed entry failed",
                zap.String("post", ev.PostID),
                zap.String("follower", followerID),
                zap.Error(err))
            continue
        }
        pushed++
    }
    logger.Info("post fanned out",
        zap.String("post", ev.PostID),
        zap.String("author", ev.UserID),
        zap.Int("feeds", pushed))
    return nil
}

// handleUserFollowed 关注关系变化后整键失效，下次读触发冷重建。
// 增量补齐需要新关注对象的历史帖，失效更简单且结果正确。
func (e *FanoutEngine) handleUserFollowed(ctx context.Context, ev *event.UserFollowed) error {
    if err := e.cache.Delete(ctx, ev.UserID); err != nil {
        return fmt.Errorf("invalidate feed of %s: %w", ev.UserID, err)
    }
    logger.Info("feed cache invalidated", zap.String("user", ev.UserID))
    return nil
}
