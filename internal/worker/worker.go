package worker

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    "github.com/rs/zerolog/log"

    "github.com/local/printkiosk/internal/metrics"
    "github.com/local/printkiosk/internal/recon"
)

// Queue is the sync-request transport the worker consumes.
type Queue interface {
    DequeueSync(ctx context.Context, consumer string, timeout time.Duration) (string, []byte, error)
    Ack(ctx context.Context, msgID string) error
    EnqueueDelayed(ctx context.Context, payload []byte, executeAt time.Time) error
    AddDLQ(ctx context.Context, payload []byte, reason string) error
    IsIdemDone(ctx context.Context, key string) (bool, error)
    MarkIdemDone(ctx context.Context, key string, ttl time.Duration) error
    Depths(ctx context.Context) (int64, int64, int64, error)
}

// Config tunes the worker pool.
type Config struct {
    Concurrency int
    SyncTimeout time.Duration
    RetryDelay  time.Duration
    MaxAttempts int
}

// Worker drains queued reconciliation requests in the background so stale
// pending transactions converge even when no kiosk client is polling.
type Worker struct {
    cfg   Config
    q     Queue
    recon *recon.Engine
    stop  chan struct{}
}

// syncRequest is the queue payload.
type syncRequest struct {
    Phone   string `json:"phone"`
    Attempt int    `json:"attempt"`
}

func New(cfg Config, q Queue, engine *recon.Engine) *Worker {
    if cfg.Concurrency <= 0 { cfg.Concurrency = 2 }
    if cfg.SyncTimeout <= 0 { cfg.SyncTimeout = 30 * time.Second }
    if cfg.RetryDelay <= 0 { cfg.RetryDelay = 10 * time.Second }
    if cfg.MaxAttempts <= 0 { cfg.MaxAttempts = 3 }
    return &Worker{cfg: cfg, q: q, recon: engine, stop: make(chan struct{})}
}

func (w *Worker) Start() {
    for i := 0; i < w.cfg.Concurrency; i++ {
        go w.loop(i)
    }
    go w.depthLoop()
}

func (w *Worker) Stop(ctx context.Context) error {
    close(w.stop)
    return nil
}

func (w *Worker) loop(id int) {
    consumer := fmt.Sprintf("worker-%d", id)
    log.Info().Int("worker", id).Msg("sync worker started")
    for {
        select {
        case <-w.stop:
            log.Info().Int("worker", id).Msg("sync worker stopped")
            return
        default:
        }

        msgID, data, err := w.q.DequeueSync(context.Background(), consumer, 2*time.Second)
        if err != nil {
            log.Error().Err(err).Msg("queue dequeue error")
            time.Sleep(500 * time.Millisecond)
            continue
        }
        if data == nil { continue }

        w.handle(data)
        if err := w.q.Ack(context.Background(), msgID); err != nil {
            log.Warn().Err(err).Str("msg_id", msgID).Msg("ack failed")
        }
    }
}

func (w *Worker) handle(data []byte) {
    var req syncRequest
    if err := json.Unmarshal(data, &req); err != nil || req.Phone == "" {
        _ = w.q.AddDLQ(context.Background(), data, "malformed payload")
        return
    }
    if req.Attempt <= 0 { req.Attempt = 1 }

    // Collapse duplicate requests for the same phone landing close together.
    idemKey := "phone:" + req.Phone
    if done, _ := w.q.IsIdemDone(context.Background(), idemKey); done {
        log.Debug().Str("phone", req.Phone).Msg("sync recently done, skipping")
        return
    }

    ctx, cancel := context.WithTimeout(context.Background(), w.cfg.SyncTimeout)
    defer cancel()

    report, err := w.recon.SyncPending(ctx, req.Phone)
    if err != nil {
        w.retry(req, data, err)
        return
    }

    log.Info().Str("phone", req.Phone).Int("checked", report.Checked).Int("updated", report.Updated).Int("failed", report.Failed).Msg("background sync done")

    // Per-transaction failures inside the pass are retried as a whole pass.
    if report.Failed > 0 {
        w.retry(req, data, fmt.Errorf("%d transactions failed to sync", report.Failed))
        return
    }

    // Only a clean pass arms the dedup window; a marked key must never
    // swallow the delayed retry that lands at the same horizon.
    _ = w.q.MarkIdemDone(context.Background(), idemKey, w.cfg.RetryDelay)
}

func (w *Worker) retry(req syncRequest, data []byte, cause error) {
    if req.Attempt >= w.cfg.MaxAttempts {
        log.Error().Err(cause).Str("phone", req.Phone).Int("attempt", req.Attempt).Msg("sync exhausted, sending to DLQ")
        _ = w.q.AddDLQ(context.Background(), data, cause.Error())
        return
    }
    next, _ := json.Marshal(syncRequest{Phone: req.Phone, Attempt: req.Attempt + 1})
    at := time.Now().Add(w.cfg.RetryDelay * time.Duration(req.Attempt))
    if err := w.q.EnqueueDelayed(context.Background(), next, at); err != nil {
        log.Error().Err(err).Str("phone", req.Phone).Msg("delayed retry enqueue failed")
        return
    }
    log.Warn().Err(cause).Str("phone", req.Phone).Int("next_attempt", req.Attempt+1).Time("at", at).Msg("sync retry scheduled")
}

func (w *Worker) depthLoop() {
    ticker := time.NewTicker(10 * time.Second)
    defer ticker.Stop()
    for {
        select {
        case <-w.stop:
            return
        case <-ticker.C:
            ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
            stream, delayed, dlq, err := w.q.Depths(ctx)
            cancel()
            if err != nil { continue }
            metrics.SetQueueDepth("stream", stream)
            metrics.SetQueueDepth("delayed", delayed)
            metrics.SetQueueDepth("dlq", dlq)
        }
    }
}
