package gateway

import (
    "bytes"
    "context"
    "encoding/base64"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strconv"
    "time"

    "github.com/rs/zerolog/log"

    "github.com/local/printkiosk/internal/metrics"
)

// Transaction statuses the Snap API reports.
const (
    StatusPending    = "pending"
    StatusSettlement = "settlement"
    StatusCapture    = "capture"
    StatusExpire     = "expire"
    StatusCancel     = "cancel"
)

// SessionRequest asks the gateway for a checkout session.
type SessionRequest struct {
    OrderID string
    Amount  int
    // Phone pre-fills the checkout form for authenticated principals.
    Phone string
}

// Session is the gateway's handle for presenting the checkout UI.
type Session struct {
    Token       string `json:"token"`
    RedirectURL string `json:"redirect_url"`
}

// Status is the authoritative transaction state at the gateway.
type Status struct {
    OrderID        string `json:"order_id"`
    Status         string `json:"transaction_status"`
    PaymentType    string `json:"payment_type"`
    SettlementTime string `json:"settlement_time"`
    FraudStatus    string `json:"fraud_status"`
    GrossAmount    string `json:"gross_amount"`
}

// Settled reports whether the payment is confirmed and captured.
func (s Status) Settled() bool {
    return s.Status == StatusSettlement || s.Status == StatusCapture
}

// SnapClient talks to a Midtrans-style Snap payment API.
type SnapClient struct {
    http           *http.Client
    baseURL        string
    serverKey      string
    sessionTimeout time.Duration
    statusTimeout  time.Duration
}

// Options configures the SnapClient.
type Options struct {
    BaseURL        string
    ServerKey      string
    SessionTimeout time.Duration
    StatusTimeout  time.Duration
}

// NewSnapClient creates a gateway client. The server key authenticates via
// HTTP basic auth with an empty password, per the Snap API convention.
func NewSnapClient(opts Options) *SnapClient {
    if opts.SessionTimeout <= 0 { opts.SessionTimeout = 15 * time.Second }
    if opts.StatusTimeout <= 0 { opts.StatusTimeout = 10 * time.Second }
    return &SnapClient{
        http:           &http.Client{},
        baseURL:        opts.BaseURL,
        serverKey:      opts.ServerKey,
        sessionTimeout: opts.SessionTimeout,
        statusTimeout:  opts.StatusTimeout,
    }
}

type snapSessionReq struct {
    TransactionDetails struct {
        OrderID     string `json:"order_id"`
        GrossAmount int    `json:"gross_amount"`
    } `json:"transaction_details"`
    CreditCard struct {
        Secure bool `json:"secure"`
    } `json:"credit_card"`
    EnabledPayments []string `json:"enabled_payments"`
    CustomerDetails *struct {
        Phone string `json:"phone"`
    } `json:"customer_details,omitempty"`
}

// CreateSession creates a checkout session for an order. Failure means no
// session exists and nothing should be persisted for the order.
func (c *SnapClient) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
    if req.Amount <= 0 {
        return Session{}, &Error{Operation: "create_session", Message: "invalid amount " + strconv.Itoa(req.Amount)}
    }

    payload := snapSessionReq{}
    payload.TransactionDetails.OrderID = req.OrderID
    payload.TransactionDetails.GrossAmount = req.Amount
    payload.CreditCard.Secure = true
    // Kiosk checkout is QRIS-only
    payload.EnabledPayments = []string{"qris"}
    if req.Phone != "" {
        payload.CustomerDetails = &struct {
            Phone string `json:"phone"`
        }{Phone: req.Phone}
    }

    body, _ := json.Marshal(payload)
    cctx, cancel := context.WithTimeout(ctx, c.sessionTimeout)
    defer cancel()

    httpReq, _ := http.NewRequestWithContext(cctx, http.MethodPost, c.baseURL+"/snap/v1/transactions", bytes.NewReader(body))
    httpReq.Header.Set("Content-Type", "application/json")
    httpReq.Header.Set("Accept", "application/json")
    httpReq.Header.Set("Authorization", c.authHeader())

    start := time.Now()
    resp, err := c.http.Do(httpReq)
    dur := time.Since(start)
    if err != nil {
        if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
            metrics.ObserveGateway("create_session", "timeout", dur)
            return Session{}, &Error{Operation: "create_session", Timeout: true}
        }
        metrics.ObserveGateway("create_session", "error", dur)
        return Session{}, &Error{Operation: "create_session", Message: err.Error()}
    }
    defer resp.Body.Close()

    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        metrics.ObserveGateway("create_session", "rejected", dur)
        return Session{}, &Error{Operation: "create_session", StatusCode: resp.StatusCode, Message: snapErrBody(resp)}
    }

    var s Session
    if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
        metrics.ObserveGateway("create_session", "error", dur)
        return Session{}, &Error{Operation: "create_session", Message: "decode response: " + err.Error()}
    }
    if s.Token == "" {
        metrics.ObserveGateway("create_session", "error", dur)
        return Session{}, &Error{Operation: "create_session", Message: "empty token in response"}
    }

    metrics.ObserveGateway("create_session", "success", dur)
    log.Info().Str("order_id", req.OrderID).Int("amount", req.Amount).Msg("checkout session created")
    return s, nil
}

// GetStatus re-queries the authoritative transaction status. A client-side
// checkout callback is only a trigger to call this, never proof of payment.
func (c *SnapClient) GetStatus(ctx context.Context, orderID string) (Status, error) {
    if orderID == "" {
        return Status{}, &Error{Operation: "get_status", Message: "missing order id"}
    }

    cctx, cancel := context.WithTimeout(ctx, c.statusTimeout)
    defer cancel()

    httpReq, _ := http.NewRequestWithContext(cctx, http.MethodGet, c.baseURL+"/v2/"+orderID+"/status", nil)
    httpReq.Header.Set("Accept", "application/json")
    httpReq.Header.Set("Authorization", c.authHeader())

    start := time.Now()
    resp, err := c.http.Do(httpReq)
    dur := time.Since(start)
    if err != nil {
        if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
            metrics.ObserveGateway("get_status", "timeout", dur)
            return Status{}, &Error{Operation: "get_status", Timeout: true}
        }
        metrics.ObserveGateway("get_status", "error", dur)
        return Status{}, &Error{Operation: "get_status", Message: err.Error()}
    }
    defer resp.Body.Close()

    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        metrics.ObserveGateway("get_status", "error", dur)
        return Status{}, &Error{Operation: "get_status", StatusCode: resp.StatusCode, Message: snapErrBody(resp)}
    }

    var st Status
    if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
        metrics.ObserveGateway("get_status", "error", dur)
        return Status{}, &Error{Operation: "get_status", Message: "decode response: " + err.Error()}
    }
    if st.Status == "" {
        metrics.ObserveGateway("get_status", "error", dur)
        return Status{}, &Error{Operation: "get_status", Message: "missing transaction_status"}
    }
    if st.OrderID == "" { st.OrderID = orderID }

    metrics.ObserveGateway("get_status", "success", dur)
    log.Debug().Str("order_id", orderID).Str("status", st.Status).Msg("gateway status checked")
    return st, nil
}

func (c *SnapClient) authHeader() string {
    return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.serverKey+":"))
}

func snapErrBody(resp *http.Response) string {
    var body struct {
        ErrorMessages []string `json:"error_messages"`
        StatusMessage string   `json:"status_message"`
    }
    if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
        if len(body.ErrorMessages) > 0 { return body.ErrorMessages[0] }
        if body.StatusMessage != "" { return body.StatusMessage }
    }
    return fmt.Sprintf("status %d", resp.StatusCode)
}
