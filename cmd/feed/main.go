package main

import (
    "context"
    "errors"
    "net/http"
    "os/signal"
    "syscall"
    "time"

    "github.com/getsentry/sentry-go"
    "github.com/gin-gonic/gin"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/d60-Lab/feedgate/config"
    "github.com/d60-Lab/feedgate/internal/api"
    "github.com/d60-Lab/feedgate/internal/api/handler"
    "github.com/d60-Lab/feedgate/internal/cache"
    "github.com/d60-Lab/feedgate/internal/client"
    "github.com/d60-Lab/feedgate/internal/event"
    "github.com/d60-Lab/feedgate/internal/service"
    "github.com/d60-Lab/feedgate/pkg/logger"
    "github.com/d60-Lab/feedgate/pkg/tracing"
)

func main() {
    cfg, err := config.Load()
    if err != nil { panic(err) }
    if err := logger.Init(cfg.Log.Level); err != nil { panic(err) }
    defer logger.Sync()
    gin.SetMode(cfg.Server.Mode)

    if cfg.Sentry.DSN != "" {
        if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN}); err != nil {
            logger.Warn("sentry init failed", zap.Error(err))
        }
        defer sentry.Flush(2 * time.Second)
    }

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()

    shutdownTracing, err := tracing.Init(ctx, "feed-service", cfg.Tracing.Endpoint)
    if err != nil { logger.Fatal("tracing init", zap.Error(err)) }
    defer shutdownTracing(context.Background())

    rdb := redis.NewClient(&redis.Options{
        Addr:     cfg.Redis.Addr,
        Password: cfg.Redis.Password,
        DB:       cfg.Redis.DB,
    })
    defer rdb.Close()

    feedCache := cache.NewFeedCache(rdb, cfg.Feed.MaxLen)
    // 缓存连不上直接放弃启动
    if err := feedCache.Ping(ctx); err != nil {
        logger.Fatal("redis unreachable", zap.Error(err))
    }

    graph := client.NewSocialGraph(cfg.Services["user"], 5*time.Second)
    content := client.NewContent(cfg.Services["post"], 5*time.Second)

    engine := service.NewFanoutEngine(graph, feedCache)
    feedSvc := service.NewFeedService(graph, content, feedCache,
        cfg.Feed.ReadLimit, cfg.Feed.RebuildFanout, cfg.Feed.RebuildTTL, cfg.Feed.RebuildTimeout)

    consumer := event.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID,
        []string{event.TopicPostCreated, event.TopicUserFollowed})
    consumer.Start(ctx, engine.HandleEvent)

    router := api.NewRouter(handler.NewHandler(feedSvc))
    srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: router}
    go func() {
        logger.Info("feed service listening", zap.String("port", cfg.Server.Port))
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            logger.Error("http server", zap.Error(err))
            stop()
        }
    }()

    <-ctx.Done()
    logger.Info("shutting down")

    // 先停消费（处理完在途消息），再关 HTTP
    if err := consumer.Close(); err != nil {
        logger.Warn("consumer close", zap.Error(err))
    }
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    if err := srv.Shutdown(shutdownCtx); err != nil {
        logger.Warn("http shutdown", zap.Error(err))
    }
}
