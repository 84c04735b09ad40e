package model

import "time"

// FeedEntry 扇出时落入缓存的帖子快照（写入后不再随原帖更新）
// JSON 字段名沿用 post_created 事件的线上格式。
type FeedEntry struct {
    PostID    string    `json:"postId"`
    AuthorID  string    `json:"userId"`
    Content   string    `json:"content"`
    CreatedAt time.Time `json:"createdAt"`
}

// Feed 一次读 feed 的结果；Source 标记命中缓存还是回源重建
type Feed struct {
    Source  string      `json:"source"`
    Entries []FeedEntry `json:"feed"`
}

const (
    SourceCache   = "cache"
    SourceRebuild = "database"
)
