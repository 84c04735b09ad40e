package event

import (
    "encoding/json"
    "errors"
    "fmt"
    "time"
)

// 订阅的主题；payload 结构按主题固定，未知主题在消费侧拒绝
const (
    TopicPostCreated  = "post_created"
    TopicUserFollowed = "user_followed"
)

var ErrUnknownTopic = errors.New("unknown topic")

// PostCreated post-service 发帖后发布
type PostCreated struct {
    PostID    string    `json:"postId"`
    UserID    string    `json:"userId"`
    Content   string    `json:"content"`
    CreatedAt time.Time `json:"createdAt"`
}

// UserFollowed user-service 关注成功后发布；UserID 为发起关注的一方
type UserFollowed struct {
    UserID       string `json:"userId"`
    TargetUserID string `json:"targetUserId"`
}

// Decode 按主题解析 payload；返回 *PostCreated / *UserFollowed
func Decode(topic string, payload []byte) (any, error) {
    switch topic {
    case TopicPostCreated:
        var ev PostCreated
        if err := json.Unmarshal(payload, &ev); err != nil {
            return nil, fmt.Errorf("decode %s: %w", topic, err)
        }
        if ev.PostID == "" || ev.UserID == "" {
            return nil, fmt.Errorf("decode %s: missing postId/userId", topic)
        }
        return &ev, nil
    case TopicUserFollowed:
        var ev UserFollowed
        if err := json.Unmarshal(payload, &ev); err != nil {
            return nil, fmt.Errorf("decode %s: %w", topic, err)
        }
        if ev.UserID == "" {
            return nil, fmt.Errorf("decode %s: missing userId", topic)
        }
        return &ev, nil
    default:
        return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
    }
}
