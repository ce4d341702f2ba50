package recon

import (
    "context"
    "errors"
    "fmt"
    "math/rand"
    "time"

    "github.com/rs/zerolog/log"

    "github.com/local/printkiosk/internal/backend"
    "github.com/local/printkiosk/internal/gateway"
    "github.com/local/printkiosk/internal/metrics"
    "github.com/local/printkiosk/internal/pricing"
)

// Gateway is the payment gateway surface the engine needs.
type Gateway interface {
    CreateSession(ctx context.Context, req gateway.SessionRequest) (gateway.Session, error)
    GetStatus(ctx context.Context, orderID string) (gateway.Status, error)
}

// Backend is the print-serving API surface the engine needs.
type Backend interface {
    CreatePendingTransaction(ctx context.Context, txn backend.Transaction) error
    ListPendingTransactions(ctx context.Context, phone string) ([]backend.Transaction, error)
    UpdateTransactionStatus(ctx context.Context, orderID, status string) error
    CompleteTransaction(ctx context.Context, orderID string) error
    CancelTransaction(ctx context.Context, orderID, phone string) error
    SubmitPrintJob(ctx context.Context, job backend.PrintJob) error
}

// Guard serializes verification per order id.
type Guard interface {
    Allow(orderID string) (func(), bool)
    InCooldown(ctx context.Context, orderID string) bool
    MarkChecked(ctx context.Context, orderID string)
    Forget(ctx context.Context, orderID string)
}

// Completions remembers orders that already completed, across restarts.
type Completions interface {
    MarkCompleted(ctx context.Context, orderID string) error
    IsCompleted(ctx context.Context, orderID string) (bool, error)
}

// Engine drives the order lifecycle: create a checkout session, verify
// payment against the gateway, hand paid jobs to the printer backend, and
// reconcile stale pending records.
type Engine struct {
    gw        Gateway
    be        Backend
    guard     Guard
    done      Completions
    txnTTL    time.Duration
    pointsDiv float64
}

// EngineOptions configures the engine.
type EngineOptions struct {
    Gateway       Gateway
    Backend       Backend
    Guard         Guard
    Completions   Completions
    TxnTTL        time.Duration
    PointsDivisor float64
}

func NewEngine(opts EngineOptions) *Engine {
    if opts.TxnTTL <= 0 { opts.TxnTTL = time.Hour }
    if opts.PointsDivisor <= 0 { opts.PointsDivisor = 2000 }
    return &Engine{
        gw:        opts.Gateway,
        be:        opts.Backend,
        guard:     opts.Guard,
        done:      opts.Completions,
        txnTTL:    opts.TxnTTL,
        pointsDiv: opts.PointsDivisor,
    }
}

// CreateRequest starts a new order.
type CreateRequest struct {
    Phone     string
    PrinterID string
    Cost      int
    Settings  pricing.Snapshot
    File      backend.FileInfo
    FileRef   string
}

// CreateResult is the checkout handle returned to the kiosk client.
type CreateResult struct {
    OrderID     string    `json:"orderId"`
    Token       string    `json:"token"`
    RedirectURL string    `json:"redirectUrl,omitempty"`
    ExpiresAt   time.Time `json:"expiresAt"`
}

// CreateTransaction allocates an order id, opens a checkout session at the
// gateway, and only then persists a pending record. Session failure leaves
// no record behind. Anonymous orders get a session but no pending record,
// since there is no principal to restore them for.
func (e *Engine) CreateTransaction(ctx context.Context, req CreateRequest) (CreateResult, error) {
    if req.Cost <= 0 {
        return CreateResult{}, fmt.Errorf("invalid order cost %d", req.Cost)
    }

    orderID := newOrderID()
    sess, err := e.gw.CreateSession(ctx, gateway.SessionRequest{
        OrderID: orderID,
        Amount:  req.Cost,
        Phone:   req.Phone,
    })
    if err != nil {
        log.Error().Err(err).Str("order_id", orderID).Msg("checkout session failed, order abandoned")
        return CreateResult{}, err
    }

    now := time.Now()
    expires := now.Add(e.txnTTL)
    if req.Phone != "" {
        txn := backend.Transaction{
            OrderID:      orderID,
            Phone:        req.Phone,
            PrinterID:    req.PrinterID,
            Status:       backend.TxnPending,
            Cost:         req.Cost,
            Settings:     req.Settings,
            File:         req.File,
            FileRef:      req.FileRef,
            PaymentToken: sess.Token,
            RedirectURL:  sess.RedirectURL,
            CreatedAt:    now,
            ExpiresAt:    expires,
        }
        if err := e.be.CreatePendingTransaction(ctx, txn); err != nil {
            // The session is live; the client can still pay. Losing the
            // record only costs resumability, so log and continue.
            log.Error().Err(err).Str("order_id", orderID).Msg("pending record not persisted")
        }
    }

    metrics.IncOrderCreated(req.Phone != "")
    log.Info().Str("order_id", orderID).Int("cost", req.Cost).Bool("authenticated", req.Phone != "").Msg("order created")
    return CreateResult{OrderID: orderID, Token: sess.Token, RedirectURL: sess.RedirectURL, ExpiresAt: expires}, nil
}

// ConfirmResult reports what a confirmation attempt did.
type ConfirmResult struct {
    OrderID          string `json:"orderId"`
    Status           string `json:"status"`
    Printed          bool   `json:"printed"`
    AlreadyCompleted bool   `json:"alreadyCompleted"`
}

// ConfirmPayment is the single settlement path. It re-verifies the order at
// the gateway and only on a settled status hands the job to the printer
// backend, then removes the pending record. The per-order guard ensures at
// most one confirmation runs at a time, and completed orders short-circuit
// so a duplicate callback never prints twice.
//
// job may be nil when the caller only wants the reconciled status (no print
// material available); a settled order then fails with ErrNoDocument and the
// record stays intact.
func (e *Engine) ConfirmPayment(ctx context.Context, orderID string, job *backend.PrintJob) (ConfirmResult, error) {
    res := ConfirmResult{OrderID: orderID}

    if done, err := e.done.IsCompleted(ctx, orderID); err == nil && done {
        res.Status = gateway.StatusSettlement
        res.AlreadyCompleted = true
        return res, nil
    }

    release, ok := e.guard.Allow(orderID)
    if !ok {
        return res, ErrVerificationInFlight
    }
    defer release()

    // Re-check under the guard: the in-flight confirmation we raced with may
    // have just finished.
    if done, err := e.done.IsCompleted(ctx, orderID); err == nil && done {
        res.Status = gateway.StatusSettlement
        res.AlreadyCompleted = true
        return res, nil
    }

    st, err := e.gw.GetStatus(ctx, orderID)
    e.guard.MarkChecked(ctx, orderID)
    if err != nil {
        return res, err
    }
    res.Status = st.Status

    switch {
    case st.Settled():
        // proceed to print below
    case st.Status == gateway.StatusExpire:
        e.pushStatus(ctx, orderID, backend.TxnExpired)
        return res, ErrNotSettled
    case st.Status == gateway.StatusCancel:
        e.pushStatus(ctx, orderID, backend.TxnCancelled)
        return res, ErrNotSettled
    default:
        // Still pending at the gateway. A client-side success callback is
        // not proof of payment; nothing prints.
        log.Info().Str("order_id", orderID).Str("status", st.Status).Msg("payment not settled, print withheld")
        return res, ErrNotSettled
    }

    if job == nil {
        return res, ErrNoDocument
    }

    j := *job
    j.OrderID = orderID
    if j.PointsToAdd == 0 && j.Phone != "" {
        j.PointsToAdd = float64(j.TotalCost) / e.pointsDiv
    }

    if err := e.be.SubmitPrintJob(ctx, j); err != nil {
        // The payment is captured but the job was not accepted. The pending
        // record stays so the order can be resumed and retried.
        metrics.IncPrintJob("rejected", j.Restored)
        log.Error().Err(err).Str("order_id", orderID).Msg("print submission failed after settlement")
        return res, err
    }
    metrics.IncPrintJob("accepted", j.Restored)

    if err := e.be.CompleteTransaction(ctx, orderID); err != nil {
        // Job accepted; completion is best-effort and the sync pass will
        // clean the record up later.
        log.Warn().Err(err).Str("order_id", orderID).Msg("completion not recorded at backend")
    }
    if err := e.done.MarkCompleted(ctx, orderID); err != nil {
        log.Warn().Err(err).Str("order_id", orderID).Msg("completion marker not stored")
    }
    e.guard.Forget(ctx, orderID)

    res.Printed = true
    log.Info().Str("order_id", orderID).Msg("order settled and printed")
    return res, nil
}

// Callback kinds the checkout UI reports.
const (
    CallbackSuccess = "success"
    CallbackPending = "pending"
    CallbackError   = "error"
    CallbackClose   = "close"
)

// HandleCallback is the single entry point for checkout UI callbacks. The
// success and pending kinds both trigger a server-side verification; the
// close kind is a no-op since the payment may still complete out of band.
func (e *Engine) HandleCallback(ctx context.Context, kind, orderID string, job *backend.PrintJob) (ConfirmResult, error) {
    switch kind {
    case CallbackSuccess, CallbackPending:
        return e.ConfirmPayment(ctx, orderID, job)
    case CallbackClose:
        log.Debug().Str("order_id", orderID).Msg("checkout closed, order left pending")
        return ConfirmResult{OrderID: orderID, Status: gateway.StatusPending}, nil
    case CallbackError:
        return ConfirmResult{OrderID: orderID}, fmt.Errorf("checkout reported an error for %s", orderID)
    default:
        return ConfirmResult{OrderID: orderID}, fmt.Errorf("unknown callback kind %q", kind)
    }
}

// ListPending returns the caller's pending transactions as stored.
func (e *Engine) ListPending(ctx context.Context, phone string) ([]backend.Transaction, error) {
    return e.be.ListPendingTransactions(ctx, phone)
}

// SyncReport summarizes one reconciliation pass.
type SyncReport struct {
    Checked      int                   `json:"checked"`
    Updated      int                   `json:"updated"`
    Failed       int                   `json:"failed"`
    Transactions []backend.Transaction `json:"transactions"`
}

// SyncPending reconciles every stored pending transaction against the
// gateway. Each transaction is handled in isolation: a gateway timeout or
// backend rejection on one order never blocks the rest of the pass. The
// refreshed list is fetched at the end so callers see post-sync state.
func (e *Engine) SyncPending(ctx context.Context, phone string) (SyncReport, error) {
    txns, err := e.be.ListPendingTransactions(ctx, phone)
    if err != nil {
        return SyncReport{}, err
    }

    report := SyncReport{}
    for _, txn := range txns {
        if txn.Status != backend.TxnPending { continue }
        report.Checked++
        changed, err := e.syncOne(ctx, txn)
        if err != nil {
            report.Failed++
            metrics.IncSynced("failed")
            log.Warn().Err(err).Str("order_id", txn.OrderID).Msg("sync skipped transaction")
            continue
        }
        if changed { report.Updated++ }
    }

    refreshed, err := e.be.ListPendingTransactions(ctx, phone)
    if err != nil {
        // The per-order updates already landed; return what we know.
        log.Warn().Err(err).Str("phone", phone).Msg("post-sync refresh failed")
        report.Transactions = txns
        return report, nil
    }
    report.Transactions = refreshed
    return report, nil
}

// syncOne reconciles a single pending transaction. It returns an error only
// when the order's status could not be determined or pushed; an unchanged
// pending status is a successful no-op.
func (e *Engine) syncOne(ctx context.Context, txn backend.Transaction) (bool, error) {
    if e.guard.InCooldown(ctx, txn.OrderID) {
        metrics.IncSynced("cooldown")
        return false, nil
    }

    st, err := e.gw.GetStatus(ctx, txn.OrderID)
    e.guard.MarkChecked(ctx, txn.OrderID)
    if err != nil {
        return false, err
    }

    var local string
    switch {
    case st.Settled():
        local = backend.TxnSettlement
    case st.Status == gateway.StatusExpire:
        local = backend.TxnExpired
    case st.Status == gateway.StatusCancel:
        local = backend.TxnCancelled
    default:
        metrics.IncSynced("unchanged")
        return false, nil
    }

    // A confirmation may have completed and removed the record while the
    // status check ran; a missing record makes the result stale, so drop it.
    if done, derr := e.done.IsCompleted(ctx, txn.OrderID); derr == nil && done {
        metrics.IncSynced("stale")
        return false, nil
    }

    if err := e.be.UpdateTransactionStatus(ctx, txn.OrderID, local); err != nil {
        var be *backend.Error
        if errors.As(err, &be) && be.StatusCode == 404 {
            metrics.IncSynced("stale")
            return false, nil
        }
        return false, err
    }

    metrics.IncSynced(local)
    log.Info().Str("order_id", txn.OrderID).Str("from", backend.TxnPending).Str("to", local).Msg("transaction reconciled")
    return true, nil
}

// Cancel removes a pending order at the owner's request.
func (e *Engine) Cancel(ctx context.Context, orderID, phone string) error {
    txn, err := e.findOwned(ctx, orderID, phone)
    if err != nil { return err }
    if err := e.be.CancelTransaction(ctx, txn.OrderID, phone); err != nil {
        return err
    }
    e.guard.Forget(ctx, orderID)
    log.Info().Str("order_id", orderID).Msg("order cancelled by owner")
    return nil
}

// ResumeResult tells the client how to continue a stored order.
type ResumeResult struct {
    Transaction backend.Transaction `json:"transaction"`
    Settled     bool                `json:"settled"`
    Token       string              `json:"token,omitempty"`
}

// Resume re-opens a stored pending order. If the gateway already settled it,
// the caller should go straight to confirmation with a restored print job;
// otherwise the stored checkout token is returned for another payment
// attempt.
func (e *Engine) Resume(ctx context.Context, orderID, phone string) (ResumeResult, error) {
    txn, err := e.findOwned(ctx, orderID, phone)
    if err != nil {
        return ResumeResult{}, err
    }

    st, err := e.gw.GetStatus(ctx, orderID)
    if err != nil {
        // Gateway unreachable: fall back to the stored token so the client
        // can at least re-open checkout.
        log.Warn().Err(err).Str("order_id", orderID).Msg("resume status check failed, using stored token")
        return ResumeResult{Transaction: txn, Token: txn.PaymentToken}, nil
    }
    if st.Settled() {
        return ResumeResult{Transaction: txn, Settled: true}, nil
    }
    return ResumeResult{Transaction: txn, Token: txn.PaymentToken}, nil
}

func (e *Engine) findOwned(ctx context.Context, orderID, phone string) (backend.Transaction, error) {
    txns, err := e.be.ListPendingTransactions(ctx, phone)
    if err != nil {
        return backend.Transaction{}, err
    }
    for _, txn := range txns {
        if txn.OrderID == orderID {
            if txn.Phone != "" && txn.Phone != phone {
                return backend.Transaction{}, ErrNotOwner
            }
            return txn, nil
        }
    }
    return backend.Transaction{}, ErrOrderNotFound
}

func (e *Engine) pushStatus(ctx context.Context, orderID, status string) {
    if err := e.be.UpdateTransactionStatus(ctx, orderID, status); err != nil {
        log.Warn().Err(err).Str("order_id", orderID).Str("status", status).Msg("status push failed")
    }
}

const orderAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// newOrderID allocates ids like print-1724900000000-k3x9q0a7b: a millisecond
// timestamp plus nine random base36 characters.
func newOrderID() string {
    suffix := make([]byte, 9)
    for i := range suffix {
        suffix[i] = orderAlphabet[rand.Intn(len(orderAlphabet))]
    }
    return fmt.Sprintf("print-%d-%s", time.Now().UnixMilli(), suffix)
}
