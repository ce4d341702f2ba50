package main

import (
    "context"
    "fmt"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/joho/godotenv"
    "github.com/rs/zerolog/log"

    "github.com/local/printkiosk/internal/backend"
    cfgpkg "github.com/local/printkiosk/internal/config"
    "github.com/local/printkiosk/internal/docstore"
    "github.com/local/printkiosk/internal/gateway"
    "github.com/local/printkiosk/internal/limiter"
    logpkg "github.com/local/printkiosk/internal/logger"
    "github.com/local/printkiosk/internal/metrics"
    "github.com/local/printkiosk/internal/queue"
    "github.com/local/printkiosk/internal/recon"
    "github.com/local/printkiosk/internal/server"
    "github.com/local/printkiosk/internal/statuscheck"
    "github.com/local/printkiosk/internal/store"
    web "github.com/local/printkiosk/internal/web"
    "github.com/local/printkiosk/internal/worker"
)

func main() {
    _ = godotenv.Load()
    cfg := cfgpkg.FromEnv()

    // Init logging
    _ = logpkg.Init(logpkg.Options{
        Level:        cfg.Logging.Level,
        Pretty:       cfg.Logging.Pretty,
        File:         cfg.Logging.File,
        MaxSizeMB:    cfg.Logging.MaxSizeMB,
        MaxBackups:   cfg.Logging.MaxBackups,
        MaxAgeDays:   cfg.Logging.MaxAgeDays,
        Compress:     cfg.Logging.Compress,
        SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
        AxiomAPIKey:  cfg.Axiom.APIKey,
        AxiomOrgID:   cfg.Axiom.OrgID,
        AxiomDataset: cfg.Axiom.Dataset,
        AxiomFlush:   cfg.Axiom.FlushInterval,
    })
    defer logpkg.Close()

    metrics.Init()

    // Queue
    rq, err := queue.NewRedisQueue(cfg.Queue.RedisURL, cfg.Queue.Stream, cfg.Queue.Group, cfg.Queue.PollInterval)
    if err != nil {
        log.Fatal().Err(err).Msg("failed to connect to redis")
    }
    defer rq.Close()

    // User sessions
    sessions, err := store.NewRedisSessions(cfg.Queue.RedisURL, cfg.Transaction.SessionTTL)
    if err != nil {
        log.Fatal().Err(err).Msg("failed to init session store")
    }
    defer sessions.Close()

    // Completion markers
    completions, err := store.NewRedisCompletions(cfg.Queue.RedisURL, 24*time.Hour)
    if err != nil {
        log.Fatal().Err(err).Msg("failed to init completion store")
    }
    defer completions.Close()

    // Per-order verification guard
    guard, err := limiter.New(limiter.Options{RedisURL: cfg.Queue.RedisURL, Cooldown: cfg.Worker.CooldownPerOrder})
    if err != nil {
        log.Fatal().Err(err).Msg("failed to init order guard")
    }
    defer guard.CloseClient()

    // Document storage: S3 when a bucket is configured, local disk otherwise
    var docs docstore.Store
    if cfg.Storage.S3Bucket != "" {
        s3docs, err := docstore.NewS3Store(context.Background(), docstore.S3Options{
            Bucket:    cfg.Storage.S3Bucket,
            Region:    cfg.Storage.S3Region,
            AccessKey: cfg.Storage.S3AccessKey,
            SecretKey: cfg.Storage.S3SecretKey,
            Password:  cfg.Storage.EncryptionKey,
        })
        if err != nil {
            log.Fatal().Err(err).Msg("failed to init S3 document store")
        }
        docs = s3docs
    } else {
        local, err := docstore.NewLocalStore(cfg.Storage.LocalDir, cfg.Storage.EncryptionKey)
        if err != nil {
            log.Fatal().Err(err).Msg("failed to init local document store")
        }
        go func() {
            ticker := time.NewTicker(30 * time.Minute)
            defer ticker.Stop()
            for range ticker.C {
                local.Sweep(cfg.Transaction.TTL + cfg.Transaction.DocumentTTL)
            }
        }()
        docs = local
    }

    // External clients
    gw := gateway.NewSnapClient(gateway.Options{
        BaseURL:        cfg.Gateway.BaseURL,
        ServerKey:      cfg.Gateway.ServerKey,
        SessionTimeout: cfg.Gateway.SessionTimeout,
        StatusTimeout:  cfg.Gateway.StatusTimeout,
    })
    be := backend.NewClient(backend.ClientOptions{
        BaseURL:      cfg.Backend.BaseURL,
        PrintTimeout: cfg.Backend.PrintTimeout,
        TxnTimeout:   cfg.Backend.TxnTimeout,
        UserTimeout:  cfg.Backend.UserTimeout,
    })

    engine := recon.NewEngine(recon.EngineOptions{
        Gateway:       gw,
        Backend:       be,
        Guard:         guard,
        Completions:   completions,
        TxnTTL:        cfg.Transaction.TTL,
        PointsDivisor: cfg.Pricing.PointsDivisor,
    })

    checker := statuscheck.New(statuscheck.Options{
        Redis:      rq,
        S3Bucket:   cfg.Storage.S3Bucket,
        GatewayURL: cfg.Gateway.BaseURL,
        ServerKey:  cfg.Gateway.ServerKey,
        BackendURL: cfg.Backend.BaseURL,
    })

    srv := server.New(server.Dependencies{
        Recon:    engine,
        Users:    be,
        Printers: be,
        Docs:     docs,
        Sessions: sessions,
        Queue:    rq,
        Checker:  checker,
        Config:   cfg,
    })
    mux := http.NewServeMux()
    srv.RegisterRoutes(mux)
    mux.Handle("/metrics", metrics.Handler())

    // Dashboard
    dash := web.New()
    dash.RegisterRoutes(mux)

    // Background sync worker (optional)
    runWorker := os.Getenv("RUN_WORKER")
    if runWorker == "" || runWorker == "1" || runWorker == "true" {
        wk := worker.New(worker.Config{
            Concurrency: cfg.Worker.Concurrency,
            SyncTimeout: cfg.Worker.SyncTimeout,
            RetryDelay:  cfg.Worker.RetryDelay,
            MaxAttempts: cfg.Worker.MaxAttempts,
        }, rq, engine)
        wk.Start()
        defer wk.Stop(context.Background())
    }

    port := os.Getenv("PORT")
    if port == "" { port = "8080" }
    httpSrv := &http.Server{Addr: ":" + port, Handler: mux}

    go func() {
        log.Info().Msgf("HTTP server listening on :%s", port)
        if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            log.Fatal().Err(err).Msg("http server error")
        }
    }()

    // Graceful shutdown
    stop := make(chan os.Signal, 1)
    signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
    <-stop
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    _ = httpSrv.Shutdown(ctx)
    fmt.Println("shutdown complete")
}
