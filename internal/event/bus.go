package event

import (
    "context"
    "encoding/json"
    "errors"
    "io"
    "time"

    "github.com/cenkalti/backoff/v4"
    "github.com/segmentio/kafka-go"
    "go.uber.org/zap"

    "github.com/d60-Lab/feedgate/pkg/logger"
)

// Handler 处理一条已经拉取到的消息；返回错误只记日志，不阻止 commit
// （at-least-once：逻辑失败即丢弃，恢复只靠 bus 对消费崩溃的重投）。
type Handler func(ctx context.Context, topic string, payload []byte) error

// writer / reader 收敛到循环实际用到的方法，便于脱离 broker 测试
type writer interface {
    WriteMessages(ctx context.Context, msgs ...kafka.Message) error
    Close() error
}

type reader interface {
    FetchMessage(ctx context.Context) (kafka.Message, error)
    CommitMessages(ctx context.Context, msgs ...kafka.Message) error
    Config() kafka.ReaderConfig
    Close() error
}

// Publisher 面向主题的发布端
type Publisher struct {
    w writer
}

func NewPublisher(brokers []string) *Publisher {
    return &Publisher{w: &kafka.Writer{
        Addr:         kafka.TCP(brokers...),
        Balancer:     &kafka.Hash{},
        RequiredAcks: kafka.RequireOne,
    }}
}

// Publish 以 key 作为分区键发布 JSON payload
func (p *Publisher) Publish(ctx context.Context, topic, key string, payload any) error {
    value, err := json.Marshal(payload)
    if err != nil {
        return err
    }
    return p.w.WriteMessages(ctx, kafka.Message{
        Topic: topic,
        Key:   []byte(key),
        Value: value,
    })
}

func (p *Publisher) Close() error { return p.w.Close() }

// Consumer 消费一组主题并逐条分发给 Handler。
// 单实例内严格串行：一条处理完并 commit 后才拉下一条。
type Consumer struct {
    readers []reader
}

func NewConsumer(brokers []string, groupID string, topics []string) *Consumer {
    readers := make([]reader, 0, len(topics))
    for _, topic := range topics {
        readers = append(readers, kafka.NewReader(kafka.ReaderConfig{
            Brokers:  brokers,
            GroupID:  groupID,
            Topic:    topic,
            MinBytes: 1,
            MaxBytes: 10e6,
            MaxWait:  500 * time.Millisecond,
        }))
    }
    return &Consumer{readers: readers}
}

// Start 为每个主题启动一个消费循环；ctx 取消后处理完在途消息再退出
func (c *Consumer) Start(ctx context.Context, handle Handler) {
    for _, r := range c.readers {
        go c.loop(ctx, r, handle)
    }
}

func (c *Consumer) loop(ctx context.Context, r reader, handle Handler) {
    bo := backoff.NewExponentialBackOff()
    bo.MaxInterval = 10 * time.Second
    bo.MaxElapsedTime = 0 // 一直重试，broker 抖动不退出

    for {
        msg, err := r.FetchMessage(ctx)
        if err != nil {
            if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
                return
            }
            wait := bo.NextBackOff()
            logger.Warn("fetch message failed, backing off",
                zap.String("topic", r.Config().Topic),
                zap.Duration("wait", wait),
                zap.Error(err))
            select {
            case <-time.After(wait):
                continue
            case <-ctx.Done():
                return
            }
        }
        bo.Reset()

        // 处理与 commit 一样不挂在 fetch 的 ctx 上：退出信号到达时
        // 在途这条还要完整跑完（含 Redis 写入）再退出，不能半途失败后被 commit 丢掉
        if err := handle(context.Background(), msg.Topic, msg.Value); err != nil {
            logger.Error("event handling failed, dropping",
                zap.String("topic", msg.Topic),
                zap.Int64("offset", msg.Offset),
                zap.Error(err))
        }
        // commit 不随 handler 失败回滚，见 Handler 注释
        if err := r.CommitMessages(context.Background(), msg); err != nil {
            logger.Error("commit failed", zap.String("topic", msg.Topic), zap.Error(err))
        }
    }
}

// Close 关闭全部 reader（Start 的各 loop 随之退出）
func (c *Consumer) Close() error {
    var first error
    for _, r := range c.readers {
        if err := r.Close(); err != nil && first == nil {
            first = err
        }
    }
    return first
}
