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
    "go.uber.org/zap"

    "github.com/d60-Lab/feedgate/config"
    "github.com/d60-Lab/feedgate/internal/gateway"
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

    shutdownTracing, err := tracing.Init(ctx, "api-gateway", cfg.Tracing.Endpoint)
    if err != nil { logger.Fatal("tracing init", zap.Error(err)) }
    defer shutdownTracing(context.Background())

    // 每个已配置的下游一个 breaker，进程启动时建好
    names := make([]string, 0, len(cfg.Services))
    for name := range cfg.Services { names = append(names, name) }
    registry := gateway.NewRegistry(gateway.BreakerConfig{
        Timeout:        cfg.Breaker.Timeout,
        ResetTimeout:   cfg.Breaker.ResetTimeout,
        ErrorThreshold: cfg.Breaker.ErrorThreshold,
        Window:         cfg.Breaker.Window,
        MinRequests:    cfg.Breaker.MinRequests,
    }, names)

    gw := gateway.New(gateway.NewTable(gateway.DefaultRoutes()), registry, cfg.Services, cfg.Auth.JWTSecret)
    router := gateway.NewRouter(gw, cfg.Limit.Max, cfg.Limit.Window)

    port := cfg.Server.GatewayPort
    srv := &http.Server{Addr: ":" + port, Handler: router}
    go func() {
        logger.Info("api gateway listening", zap.String("port", port))
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            logger.Error("http server", zap.Error(err))
            stop()
        }
    }()

    <-ctx.Done()
    logger.Info("shutting down")
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    if err := srv.Shutdown(shutdownCtx); err != nil {
        logger.Warn("http shutdown", zap.Error(err))
    }
}
