package backend

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "mime/multipart"
    "net/http"
    "net/url"
    "strconv"
    "time"

    "github.com/rs/zerolog/log"

    "github.com/local/printkiosk/internal/metrics"
)

// Client talks to the print-serving backend that owns printers, pending
// transactions and user accounts.
type Client struct {
    http         *http.Client
    baseURL      string
    printTimeout time.Duration
    txnTimeout   time.Duration
    userTimeout  time.Duration
}

// ClientOptions configures the backend client.
type ClientOptions struct {
    BaseURL      string
    PrintTimeout time.Duration
    TxnTimeout   time.Duration
    UserTimeout  time.Duration
}

// NewClient creates a backend client.
func NewClient(opts ClientOptions) *Client {
    if opts.PrintTimeout <= 0 { opts.PrintTimeout = 30 * time.Second }
    if opts.TxnTimeout <= 0 { opts.TxnTimeout = 15 * time.Second }
    if opts.UserTimeout <= 0 { opts.UserTimeout = 8 * time.Second }
    return &Client{
        http:         &http.Client{},
        baseURL:      opts.BaseURL,
        printTimeout: opts.PrintTimeout,
        txnTimeout:   opts.TxnTimeout,
        userTimeout:  opts.UserTimeout,
    }
}

// ListPrinters returns every registered printer.
func (c *Client) ListPrinters(ctx context.Context) ([]Printer, error) {
    var out []Printer
    if err := c.getJSON(ctx, "list_printers", "/api/printers", c.txnTimeout, &out); err != nil {
        return nil, err
    }
    return out, nil
}

// GetPrinter returns one printer by id.
func (c *Client) GetPrinter(ctx context.Context, id string) (Printer, error) {
    var out Printer
    if err := c.getJSON(ctx, "get_printer", "/api/printers/"+url.PathEscape(id), c.txnTimeout, &out); err != nil {
        return Printer{}, err
    }
    return out, nil
}

// NearbyPrinters returns printers sorted by distance from a coordinate.
func (c *Client) NearbyPrinters(ctx context.Context, lat, lng float64) ([]Printer, error) {
    q := url.Values{}
    q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
    q.Set("lng", strconv.FormatFloat(lng, 'f', -1, 64))
    var out []Printer
    if err := c.getJSON(ctx, "nearby_printers", "/api/printers/nearby?"+q.Encode(), c.txnTimeout, &out); err != nil {
        return nil, err
    }
    return out, nil
}

// UpdatePaperCount adjusts a printer's remaining paper after a job.
func (c *Client) UpdatePaperCount(ctx context.Context, printerID string, used int) error {
    body := map[string]any{"printerId": printerID, "pagesUsed": used}
    return c.doJSON(ctx, "update_paper", http.MethodPatch, "/api/printers/"+url.PathEscape(printerID)+"/paper", c.txnTimeout, body, nil)
}

// CreatePendingTransaction persists a new pending order so it survives
// client reloads until the TTL expires.
func (c *Client) CreatePendingTransaction(ctx context.Context, txn Transaction) error {
    return c.doJSON(ctx, "create_txn", http.MethodPost, "/api/transactions/pending", c.txnTimeout, txn, nil)
}

// ListPendingTransactions returns the caller's pending transactions.
func (c *Client) ListPendingTransactions(ctx context.Context, phone string) ([]Transaction, error) {
    q := url.Values{}
    q.Set("phoneNumber", phone)
    var out struct {
        Transactions []Transaction `json:"transactions"`
    }
    if err := c.getJSON(ctx, "list_txns", "/api/transactions/pending?"+q.Encode(), c.txnTimeout, &out); err != nil {
        return nil, err
    }
    return out.Transactions, nil
}

// UpdateTransactionStatus pushes a reconciled local status for one order.
func (c *Client) UpdateTransactionStatus(ctx context.Context, orderID, status string) error {
    body := map[string]string{"orderId": orderID, "status": status}
    return c.doJSON(ctx, "update_txn", http.MethodPatch, "/api/transactions/pending/"+url.PathEscape(orderID), c.txnTimeout, body, nil)
}

// CompleteTransaction removes a transaction whose print job was accepted.
// Completing an already-removed order is not an error.
func (c *Client) CompleteTransaction(ctx context.Context, orderID string) error {
    err := c.doJSON(ctx, "complete_txn", http.MethodDelete, "/api/transactions/pending/"+url.PathEscape(orderID), c.txnTimeout, nil, nil)
    var be *Error
    if errors.As(err, &be) && be.StatusCode == http.StatusNotFound {
        log.Debug().Str("order_id", orderID).Msg("transaction already completed")
        return nil
    }
    return err
}

// CancelTransaction removes a pending transaction at the owner's request.
func (c *Client) CancelTransaction(ctx context.Context, orderID, phone string) error {
    body := map[string]string{"orderId": orderID, "phoneNumber": phone}
    return c.doJSON(ctx, "cancel_txn", http.MethodPost, "/api/transactions/pending/cancel", c.txnTimeout, body, nil)
}

// SubmitPrintJob sends a paid job to the printer backend. First submissions
// upload the PDF as multipart form data; restored jobs reference the stored
// document instead and go through the restore endpoint as JSON.
func (c *Client) SubmitPrintJob(ctx context.Context, job PrintJob) error {
    if job.Restored {
        return c.submitRestored(ctx, job)
    }
    return c.submitMultipart(ctx, job)
}

func (c *Client) submitMultipart(ctx context.Context, job PrintJob) error {
    var buf bytes.Buffer
    mw := multipart.NewWriter(&buf)

    name := job.FileName
    if name == "" { name = job.OrderID + ".pdf" }
    fw, err := mw.CreateFormFile("pdf", name)
    if err != nil {
        return &Error{Operation: "submit_print", Message: "build form: " + err.Error()}
    }
    if _, err := fw.Write(job.Document); err != nil {
        return &Error{Operation: "submit_print", Message: "write document: " + err.Error()}
    }

    colorJSON, _ := json.Marshal(job.ColorPages)
    bwJSON, _ := json.Marshal(job.BWPages)
    fields := map[string]string{
        "orderId":     job.OrderID,
        "printerId":   job.PrinterID,
        "copies":      strconv.Itoa(job.Copies),
        "colorPages":  string(colorJSON),
        "bwPages":     string(bwJSON),
        "totalCost":   strconv.Itoa(job.TotalCost),
        "totalPages":  strconv.Itoa(job.TotalPages),
        "pointsToAdd": strconv.FormatFloat(job.PointsToAdd, 'f', -1, 64),
        "phoneNumber": job.Phone,
    }
    for k, v := range fields {
        if err := mw.WriteField(k, v); err != nil {
            return &Error{Operation: "submit_print", Message: "write field " + k + ": " + err.Error()}
        }
    }
    if err := mw.Close(); err != nil {
        return &Error{Operation: "submit_print", Message: "close form: " + err.Error()}
    }

    cctx, cancel := context.WithTimeout(ctx, c.printTimeout)
    defer cancel()
    req, _ := http.NewRequestWithContext(cctx, http.MethodPost, c.baseURL+"/api/print", &buf)
    req.Header.Set("Content-Type", mw.FormDataContentType())

    return c.finishPrint(cctx, req, job.OrderID)
}

func (c *Client) submitRestored(ctx context.Context, job PrintJob) error {
    body := map[string]any{
        "orderId":     job.OrderID,
        "printerId":   job.PrinterID,
        "fileRef":     job.FileRef,
        "copies":      job.Copies,
        "colorPages":  job.ColorPages,
        "bwPages":     job.BWPages,
        "totalCost":   job.TotalCost,
        "totalPages":  job.TotalPages,
        "pointsToAdd": job.PointsToAdd,
        "phoneNumber": job.Phone,
    }
    payload, _ := json.Marshal(body)

    cctx, cancel := context.WithTimeout(ctx, c.printTimeout)
    defer cancel()
    req, _ := http.NewRequestWithContext(cctx, http.MethodPost, c.baseURL+"/api/print/restored", bytes.NewReader(payload))
    req.Header.Set("Content-Type", "application/json")

    return c.finishPrint(cctx, req, job.OrderID)
}

// finishPrint runs the prepared request and maps rejection to PrintError so
// callers keep the transaction record intact for retry.
func (c *Client) finishPrint(ctx context.Context, req *http.Request, orderID string) error {
    resp, err := c.http.Do(req)
    if err != nil {
        metrics.IncBackend("submit_print", "error")
        if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
            return &Error{Operation: "submit_print", Timeout: true}
        }
        return &Error{Operation: "submit_print", Message: err.Error()}
    }
    defer resp.Body.Close()

    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        metrics.IncBackend("submit_print", "rejected")
        return &PrintError{OrderID: orderID, Reason: errBody(resp)}
    }

    metrics.IncBackend("submit_print", "success")
    log.Info().Str("order_id", orderID).Msg("print job accepted")
    return nil
}

// GetUserPoints returns the account for a phone number, creating nothing.
func (c *Client) GetUserPoints(ctx context.Context, phone string) (User, error) {
    q := url.Values{}
    q.Set("phone", phone)
    var out User
    if err := c.getJSON(ctx, "get_user", "/api/users?"+q.Encode(), c.userTimeout, &out); err != nil {
        return User{}, err
    }
    return out, nil
}

// CreateUser registers a phone-identified account.
func (c *Client) CreateUser(ctx context.Context, phone, name string) (User, error) {
    body := map[string]string{"phone": phone, "name": name}
    var out User
    if err := c.doJSON(ctx, "create_user", http.MethodPost, "/api/users", c.userTimeout, body, &out); err != nil {
        return User{}, err
    }
    return out, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, timeout time.Duration, out any) error {
    return c.doJSON(ctx, op, http.MethodGet, path, timeout, nil, out)
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, timeout time.Duration, body, out any) error {
    var reader io.Reader
    if body != nil {
        payload, err := json.Marshal(body)
        if err != nil {
            return &Error{Operation: op, Message: "encode request: " + err.Error()}
        }
        reader = bytes.NewReader(payload)
    }

    cctx, cancel := context.WithTimeout(ctx, timeout)
    defer cancel()
    req, err := http.NewRequestWithContext(cctx, method, c.baseURL+path, reader)
    if err != nil {
        return &Error{Operation: op, Message: err.Error()}
    }
    if body != nil { req.Header.Set("Content-Type", "application/json") }
    req.Header.Set("Accept", "application/json")

    resp, err := c.http.Do(req)
    if err != nil {
        metrics.IncBackend(op, "error")
        if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
            return &Error{Operation: op, Timeout: true}
        }
        return &Error{Operation: op, Message: err.Error()}
    }
    defer resp.Body.Close()

    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        metrics.IncBackend(op, "error")
        return &Error{Operation: op, StatusCode: resp.StatusCode, Message: errBody(resp)}
    }

    metrics.IncBackend(op, "success")
    if out != nil {
        if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
            return &Error{Operation: op, Message: "decode response: " + err.Error()}
        }
    }
    return nil
}

func errBody(resp *http.Response) string {
    var body struct {
        Error   string `json:"error"`
        Message string `json:"message"`
    }
    raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
    if err := json.Unmarshal(raw, &body); err == nil {
        if body.Error != "" { return body.Error }
        if body.Message != "" { return body.Message }
    }
    return fmt.Sprintf("status %d", resp.StatusCode)
}
