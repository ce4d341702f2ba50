package recon

import (
    "context"
    "errors"
    "regexp"
    "sync"
    "testing"
    "time"

    "github.com/local/printkiosk/internal/backend"
    "github.com/local/printkiosk/internal/gateway"
)

type fakeGateway struct {
    mu          sync.Mutex
    statuses    map[string]gateway.Status
    statusErrs  map[string]error
    sessionErr  error
    sessions    []gateway.SessionRequest
    statusCalls []string
}

func (f *fakeGateway) CreateSession(ctx context.Context, req gateway.SessionRequest) (gateway.Session, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.sessions = append(f.sessions, req)
    if f.sessionErr != nil {
        return gateway.Session{}, f.sessionErr
    }
    return gateway.Session{Token: "tok-" + req.OrderID, RedirectURL: "https://pay.example/" + req.OrderID}, nil
}

func (f *fakeGateway) GetStatus(ctx context.Context, orderID string) (gateway.Status, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.statusCalls = append(f.statusCalls, orderID)
    if err, ok := f.statusErrs[orderID]; ok {
        return gateway.Status{}, err
    }
    if st, ok := f.statuses[orderID]; ok {
        return st, nil
    }
    return gateway.Status{OrderID: orderID, Status: gateway.StatusPending}, nil
}

type fakeBackend struct {
    mu       sync.Mutex
    txns     map[string]backend.Transaction
    created  []backend.Transaction
    printed  []backend.PrintJob
    printErr error
    updates  map[string]string
}

func newFakeBackend() *fakeBackend {
    return &fakeBackend{txns: map[string]backend.Transaction{}, updates: map[string]string{}}
}

func (f *fakeBackend) CreatePendingTransaction(ctx context.Context, txn backend.Transaction) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.created = append(f.created, txn)
    f.txns[txn.OrderID] = txn
    return nil
}

func (f *fakeBackend) ListPendingTransactions(ctx context.Context, phone string) ([]backend.Transaction, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    var out []backend.Transaction
    for _, txn := range f.txns {
        if txn.Phone == phone || phone == "" {
            out = append(out, txn)
        }
    }
    return out, nil
}

func (f *fakeBackend) UpdateTransactionStatus(ctx context.Context, orderID, status string) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    if _, ok := f.txns[orderID]; !ok {
        return &backend.Error{Operation: "update_txn", StatusCode: 404, Message: "not found"}
    }
    txn := f.txns[orderID]
    txn.Status = status
    f.txns[orderID] = txn
    f.updates[orderID] = status
    return nil
}

func (f *fakeBackend) CompleteTransaction(ctx context.Context, orderID string) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    delete(f.txns, orderID)
    return nil
}

func (f *fakeBackend) CancelTransaction(ctx context.Context, orderID, phone string) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    delete(f.txns, orderID)
    return nil
}

func (f *fakeBackend) SubmitPrintJob(ctx context.Context, job backend.PrintJob) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    if f.printErr != nil {
        return f.printErr
    }
    f.printed = append(f.printed, job)
    return nil
}

func (f *fakeBackend) printCount() int {
    f.mu.Lock()
    defer f.mu.Unlock()
    return len(f.printed)
}

type fakeGuard struct {
    mu      sync.Mutex
    busy    map[string]bool
    checked []string
}

func newFakeGuard() *fakeGuard { return &fakeGuard{busy: map[string]bool{}} }

func (g *fakeGuard) Allow(orderID string) (func(), bool) {
    g.mu.Lock()
    defer g.mu.Unlock()
    if g.busy[orderID] {
        return func() {}, false
    }
    g.busy[orderID] = true
    return func() {
        g.mu.Lock()
        g.busy[orderID] = false
        g.mu.Unlock()
    }, true
}

func (g *fakeGuard) InCooldown(ctx context.Context, orderID string) bool { return false }

func (g *fakeGuard) MarkChecked(ctx context.Context, orderID string) {
    g.mu.Lock()
    g.checked = append(g.checked, orderID)
    g.mu.Unlock()
}

func (g *fakeGuard) Forget(ctx context.Context, orderID string) {}

type fakeCompletions struct {
    mu   sync.Mutex
    done map[string]bool
}

func newFakeCompletions() *fakeCompletions { return &fakeCompletions{done: map[string]bool{}} }

func (c *fakeCompletions) MarkCompleted(ctx context.Context, orderID string) error {
    c.mu.Lock()
    c.done[orderID] = true
    c.mu.Unlock()
    return nil
}

func (c *fakeCompletions) IsCompleted(ctx context.Context, orderID string) (bool, error) {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.done[orderID], nil
}

type fixture struct {
    gw     *fakeGateway
    be     *fakeBackend
    guard  *fakeGuard
    done   *fakeCompletions
    engine *Engine
}

func newFixture() *fixture {
    gw := &fakeGateway{statuses: map[string]gateway.Status{}, statusErrs: map[string]error{}}
    be := newFakeBackend()
    guard := newFakeGuard()
    done := newFakeCompletions()
    engine := NewEngine(EngineOptions{
        Gateway: gw, Backend: be, Guard: guard, Completions: done,
        TxnTTL: time.Hour, PointsDivisor: 2000,
    })
    return &fixture{gw: gw, be: be, guard: guard, done: done, engine: engine}
}

func pendingTxn(orderID, phone string) backend.Transaction {
    return backend.Transaction{
        OrderID: orderID, Phone: phone, Status: backend.TxnPending,
        Cost: 3100, PaymentToken: "tok-" + orderID,
        CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour),
    }
}

func testJob(orderID string) *backend.PrintJob {
    return &backend.PrintJob{
        OrderID: orderID, PrinterID: "printer-1", Document: []byte("%PDF-1.4"),
        Copies: 1, ColorPages: []int{1}, BWPages: []int{2, 3}, TotalCost: 3100,
        TotalPages: 3, Phone: "0812000",
    }
}

var orderIDPattern = regexp.MustCompile(`^print-\d{13}-[0-9a-z]{9}$`)

func TestCreateTransactionOrderIDFormat(t *testing.T) {
    f := newFixture()
    res, err := f.engine.CreateTransaction(context.Background(), CreateRequest{Phone: "0812000", Cost: 3100})
    if err != nil {
        t.Fatalf("CreateTransaction: %v", err)
    }
    if !orderIDPattern.MatchString(res.OrderID) {
        t.Errorf("order id %q does not match expected format", res.OrderID)
    }
    if res.Token == "" {
        t.Error("expected a checkout token")
    }
}

func TestCreateTransactionPersistsForPrincipalOnly(t *testing.T) {
    f := newFixture()
    if _, err := f.engine.CreateTransaction(context.Background(), CreateRequest{Phone: "0812000", Cost: 3100}); err != nil {
        t.Fatalf("CreateTransaction: %v", err)
    }
    if len(f.be.created) != 1 {
        t.Fatalf("created %d records for authenticated order, want 1", len(f.be.created))
    }

    if _, err := f.engine.CreateTransaction(context.Background(), CreateRequest{Cost: 2000}); err != nil {
        t.Fatalf("anonymous CreateTransaction: %v", err)
    }
    if len(f.be.created) != 1 {
        t.Errorf("anonymous order persisted a record, want none")
    }
}

func TestCreateTransactionSessionFailureLeavesNoRecord(t *testing.T) {
    f := newFixture()
    f.gw.sessionErr = &gateway.Error{Operation: "create_session", StatusCode: 500, Message: "boom"}
    if _, err := f.engine.CreateTransaction(context.Background(), CreateRequest{Phone: "0812000", Cost: 3100}); err == nil {
        t.Fatal("expected error when session creation fails")
    }
    if len(f.be.created) != 0 {
        t.Errorf("record persisted despite session failure")
    }
}

func TestConfirmPaymentWithholdsPrintUntilSettled(t *testing.T) {
    f := newFixture()
    // Gateway still reports pending even though the client claimed success.
    f.gw.statuses["print-1-aaaaaaaaa"] = gateway.Status{OrderID: "print-1-aaaaaaaaa", Status: gateway.StatusPending}

    res, err := f.engine.ConfirmPayment(context.Background(), "print-1-aaaaaaaaa", testJob("print-1-aaaaaaaaa"))
    if !errors.Is(err, ErrNotSettled) {
        t.Fatalf("error = %v, want ErrNotSettled", err)
    }
    if res.Printed {
        t.Error("job printed without settlement")
    }
    if f.be.printCount() != 0 {
        t.Errorf("backend received %d print jobs, want 0", f.be.printCount())
    }
}

func TestConfirmPaymentPrintsOnSettlement(t *testing.T) {
    f := newFixture()
    orderID := "print-2-bbbbbbbbb"
    _ = f.be.CreatePendingTransaction(context.Background(), pendingTxn(orderID, "0812000"))
    f.gw.statuses[orderID] = gateway.Status{OrderID: orderID, Status: gateway.StatusSettlement}

    res, err := f.engine.ConfirmPayment(context.Background(), orderID, testJob(orderID))
    if err != nil {
        t.Fatalf("ConfirmPayment: %v", err)
    }
    if !res.Printed {
        t.Error("expected Printed=true")
    }
    if f.be.printCount() != 1 {
        t.Fatalf("print jobs = %d, want 1", f.be.printCount())
    }
    job := f.be.printed[0]
    if job.PointsToAdd != 3100.0/2000.0 {
        t.Errorf("points = %v, want %v", job.PointsToAdd, 3100.0/2000.0)
    }
    if _, ok := f.be.txns[orderID]; ok {
        t.Error("pending record still present after completion")
    }
}

func TestConfirmPaymentTreatsCaptureAsSettled(t *testing.T) {
    f := newFixture()
    orderID := "print-3-ccccccccc"
    f.gw.statuses[orderID] = gateway.Status{OrderID: orderID, Status: gateway.StatusCapture}

    res, err := f.engine.ConfirmPayment(context.Background(), orderID, testJob(orderID))
    if err != nil {
        t.Fatalf("ConfirmPayment: %v", err)
    }
    if !res.Printed {
        t.Error("capture status should print")
    }
}

func TestConfirmPaymentIdempotent(t *testing.T) {
    f := newFixture()
    orderID := "print-4-ddddddddd"
    _ = f.be.CreatePendingTransaction(context.Background(), pendingTxn(orderID, "0812000"))
    f.gw.statuses[orderID] = gateway.Status{OrderID: orderID, Status: gateway.StatusSettlement}

    if _, err := f.engine.ConfirmPayment(context.Background(), orderID, testJob(orderID)); err != nil {
        t.Fatalf("first confirm: %v", err)
    }
    res, err := f.engine.ConfirmPayment(context.Background(), orderID, testJob(orderID))
    if err != nil {
        t.Fatalf("second confirm: %v", err)
    }
    if !res.AlreadyCompleted {
        t.Error("second confirm should report AlreadyCompleted")
    }
    if f.be.printCount() != 1 {
        t.Errorf("print jobs after duplicate confirm = %d, want 1", f.be.printCount())
    }
}

func TestConfirmPaymentInFlightGuard(t *testing.T) {
    f := newFixture()
    orderID := "print-5-eeeeeeeee"
    release, ok := f.guard.Allow(orderID)
    if !ok {
        t.Fatal("setup: could not take guard slot")
    }
    defer release()

    _, err := f.engine.ConfirmPayment(context.Background(), orderID, testJob(orderID))
    if !errors.Is(err, ErrVerificationInFlight) {
        t.Errorf("error = %v, want ErrVerificationInFlight", err)
    }
    if len(f.gw.statusCalls) != 0 {
        t.Error("gateway queried while another verification was in flight")
    }
}

func TestConfirmPaymentPrintFailureKeepsRecord(t *testing.T) {
    f := newFixture()
    orderID := "print-6-fffffffff"
    _ = f.be.CreatePendingTransaction(context.Background(), pendingTxn(orderID, "0812000"))
    f.gw.statuses[orderID] = gateway.Status{OrderID: orderID, Status: gateway.StatusSettlement}
    f.be.printErr = &backend.PrintError{OrderID: orderID, Reason: "printer offline"}

    _, err := f.engine.ConfirmPayment(context.Background(), orderID, testJob(orderID))
    var pe *backend.PrintError
    if !errors.As(err, &pe) {
        t.Fatalf("error = %v, want PrintError", err)
    }
    if _, ok := f.be.txns[orderID]; !ok {
        t.Error("pending record removed despite failed print; retry is now impossible")
    }
    if done, _ := f.done.IsCompleted(context.Background(), orderID); done {
        t.Error("order marked completed despite failed print")
    }
}

func TestHandleCallbackCloseIsNoOp(t *testing.T) {
    f := newFixture()
    res, err := f.engine.HandleCallback(context.Background(), CallbackClose, "print-7-ggggggggg", nil)
    if err != nil {
        t.Fatalf("close callback: %v", err)
    }
    if res.Status != gateway.StatusPending {
        t.Errorf("status = %q, want pending", res.Status)
    }
    if len(f.gw.statusCalls) != 0 {
        t.Error("close callback should not query the gateway")
    }
}

func TestHandleCallbackErrorSurfaces(t *testing.T) {
    f := newFixture()
    if _, err := f.engine.HandleCallback(context.Background(), CallbackError, "print-8-hhhhhhhhh", nil); err == nil {
        t.Error("error callback should return an error")
    }
}

func TestSyncPendingMapsGatewayStates(t *testing.T) {
    f := newFixture()
    ctx := context.Background()
    _ = f.be.CreatePendingTransaction(ctx, pendingTxn("print-10-settled00", "0812000"))
    _ = f.be.CreatePendingTransaction(ctx, pendingTxn("print-11-expired00", "0812000"))
    _ = f.be.CreatePendingTransaction(ctx, pendingTxn("print-12-cancell00", "0812000"))
    _ = f.be.CreatePendingTransaction(ctx, pendingTxn("print-13-stillpnd0", "0812000"))
    f.gw.statuses["print-10-settled00"] = gateway.Status{Status: gateway.StatusCapture}
    f.gw.statuses["print-11-expired00"] = gateway.Status{Status: gateway.StatusExpire}
    f.gw.statuses["print-12-cancell00"] = gateway.Status{Status: gateway.StatusCancel}
    f.gw.statuses["print-13-stillpnd0"] = gateway.Status{Status: gateway.StatusPending}

    report, err := f.engine.SyncPending(ctx, "0812000")
    if err != nil {
        t.Fatalf("SyncPending: %v", err)
    }
    if report.Checked != 4 {
        t.Errorf("checked = %d, want 4", report.Checked)
    }
    if report.Updated != 3 {
        t.Errorf("updated = %d, want 3", report.Updated)
    }
    want := map[string]string{
        "print-10-settled00": backend.TxnSettlement,
        "print-11-expired00": backend.TxnExpired,
        "print-12-cancell00": backend.TxnCancelled,
    }
    for id, status := range want {
        if got := f.be.updates[id]; got != status {
            t.Errorf("order %s pushed status %q, want %q", id, got, status)
        }
    }
    if _, pushed := f.be.updates["print-13-stillpnd0"]; pushed {
        t.Error("unchanged pending order should not push an update")
    }
}

func TestSyncPendingIsolatesFailures(t *testing.T) {
    f := newFixture()
    ctx := context.Background()
    _ = f.be.CreatePendingTransaction(ctx, pendingTxn("print-20-ok1aaaaa0", "0812000"))
    _ = f.be.CreatePendingTransaction(ctx, pendingTxn("print-21-broken000", "0812000"))
    _ = f.be.CreatePendingTransaction(ctx, pendingTxn("print-22-ok2aaaaa0", "0812000"))
    f.gw.statuses["print-20-ok1aaaaa0"] = gateway.Status{Status: gateway.StatusExpire}
    f.gw.statusErrs["print-21-broken000"] = &gateway.Error{Operation: "get_status", Timeout: true}
    f.gw.statuses["print-22-ok2aaaaa0"] = gateway.Status{Status: gateway.StatusSettlement}

    report, err := f.engine.SyncPending(ctx, "0812000")
    if err != nil {
        t.Fatalf("SyncPending: %v", err)
    }
    if report.Failed != 1 {
        t.Errorf("failed = %d, want 1", report.Failed)
    }
    if report.Updated != 2 {
        t.Errorf("updated = %d, want 2", report.Updated)
    }
    if f.be.updates["print-20-ok1aaaaa0"] != backend.TxnExpired {
        t.Error("first order not reconciled despite middle failure")
    }
    if f.be.updates["print-22-ok2aaaaa0"] != backend.TxnSettlement {
        t.Error("last order not reconciled despite middle failure")
    }
    if f.be.txns["print-21-broken000"].Status != backend.TxnPending {
        t.Error("failed order should keep its stored status")
    }
}

func TestSyncPendingDiscardsStaleResult(t *testing.T) {
    f := newFixture()
    ctx := context.Background()
    orderID := "print-30-stale0000"
    _ = f.be.CreatePendingTransaction(ctx, pendingTxn(orderID, "0812000"))
    f.gw.statuses[orderID] = gateway.Status{Status: gateway.StatusSettlement}
    // A confirmation completed this order concurrently.
    _ = f.done.MarkCompleted(ctx, orderID)

    if _, err := f.engine.SyncPending(ctx, "0812000"); err != nil {
        t.Fatalf("SyncPending: %v", err)
    }
    if _, pushed := f.be.updates[orderID]; pushed {
        t.Error("stale sync result pushed a status for a completed order")
    }
}

func TestCancelChecksOwnership(t *testing.T) {
    f := newFixture()
    ctx := context.Background()
    _ = f.be.CreatePendingTransaction(ctx, pendingTxn("print-40-owned0000", "0812000"))

    if err := f.engine.Cancel(ctx, "print-40-owned0000", "0812000"); err != nil {
        t.Fatalf("owner cancel: %v", err)
    }
    if _, ok := f.be.txns["print-40-owned0000"]; ok {
        t.Error("cancelled order still present")
    }

    if err := f.engine.Cancel(ctx, "print-99-missing00", "0812000"); !errors.Is(err, ErrOrderNotFound) {
        t.Errorf("cancel of unknown order = %v, want ErrOrderNotFound", err)
    }
}

func TestResumeSettledOrder(t *testing.T) {
    f := newFixture()
    ctx := context.Background()
    orderID := "print-50-resume000"
    _ = f.be.CreatePendingTransaction(ctx, pendingTxn(orderID, "0812000"))
    f.gw.statuses[orderID] = gateway.Status{Status: gateway.StatusSettlement}

    res, err := f.engine.Resume(ctx, orderID, "0812000")
    if err != nil {
        t.Fatalf("Resume: %v", err)
    }
    if !res.Settled {
        t.Error("resume of settled order should report Settled")
    }
}

func TestResumeUnpaidOrderReturnsToken(t *testing.T) {
    f := newFixture()
    ctx := context.Background()
    orderID := "print-51-resume000"
    _ = f.be.CreatePendingTransaction(ctx, pendingTxn(orderID, "0812000"))
    f.gw.statuses[orderID] = gateway.Status{Status: gateway.StatusPending}

    res, err := f.engine.Resume(ctx, orderID, "0812000")
    if err != nil {
        t.Fatalf("Resume: %v", err)
    }
    if res.Settled {
        t.Error("pending order reported settled")
    }
    if res.Token != "tok-"+orderID {
        t.Errorf("token = %q, want stored token", res.Token)
    }
}
