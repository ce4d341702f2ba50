package gateway

import (
    "context"
    "encoding/base64"
    "encoding/json"
    "errors"
    "net/http"
    "net/http/httptest"
    "testing"
)

const testServerKey = "SB-Mid-server-testkey"

func wantAuth(t *testing.T, r *http.Request) {
    t.Helper()
    want := "Basic " + base64.StdEncoding.EncodeToString([]byte(testServerKey+":"))
    if got := r.Header.Get("Authorization"); got != want {
        t.Errorf("Authorization = %q, want %q", got, want)
    }
}

func TestCreateSession(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Path != "/snap/v1/transactions" {
            t.Errorf("path = %q, want /snap/v1/transactions", r.URL.Path)
        }
        if r.Method != http.MethodPost {
            t.Errorf("method = %q, want POST", r.Method)
        }
        wantAuth(t, r)

        var payload struct {
            TransactionDetails struct {
                OrderID     string `json:"order_id"`
                GrossAmount int    `json:"gross_amount"`
            } `json:"transaction_details"`
            EnabledPayments []string `json:"enabled_payments"`
            CustomerDetails *struct {
                Phone string `json:"phone"`
            } `json:"customer_details"`
        }
        if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
            t.Fatalf("decode request: %v", err)
        }
        if payload.TransactionDetails.OrderID != "print-1-abcdefghi" {
            t.Errorf("order_id = %q", payload.TransactionDetails.OrderID)
        }
        if payload.TransactionDetails.GrossAmount != 3100 {
            t.Errorf("gross_amount = %d, want 3100", payload.TransactionDetails.GrossAmount)
        }
        if len(payload.EnabledPayments) != 1 || payload.EnabledPayments[0] != "qris" {
            t.Errorf("enabled_payments = %v, want [qris]", payload.EnabledPayments)
        }
        if payload.CustomerDetails == nil || payload.CustomerDetails.Phone != "0812000" {
            t.Errorf("customer_details = %+v, want phone 0812000", payload.CustomerDetails)
        }

        json.NewEncoder(w).Encode(map[string]string{
            "token":        "snap-token-1",
            "redirect_url": "https://app.example/snap/v4/redirection/snap-token-1",
        })
    }))
    defer srv.Close()

    c := NewSnapClient(Options{BaseURL: srv.URL, ServerKey: testServerKey})
    sess, err := c.CreateSession(context.Background(), SessionRequest{OrderID: "print-1-abcdefghi", Amount: 3100, Phone: "0812000"})
    if err != nil {
        t.Fatalf("CreateSession: %v", err)
    }
    if sess.Token != "snap-token-1" {
        t.Errorf("token = %q", sess.Token)
    }
    if sess.RedirectURL == "" {
        t.Error("missing redirect url")
    }
}

func TestCreateSessionRejectsEmptyToken(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        json.NewEncoder(w).Encode(map[string]string{"token": ""})
    }))
    defer srv.Close()

    c := NewSnapClient(Options{BaseURL: srv.URL, ServerKey: testServerKey})
    if _, err := c.CreateSession(context.Background(), SessionRequest{OrderID: "print-1-abcdefghi", Amount: 1000}); err == nil {
        t.Error("expected error for empty token")
    }
}

func TestCreateSessionRejectsInvalidAmount(t *testing.T) {
    c := NewSnapClient(Options{BaseURL: "http://unused", ServerKey: testServerKey})
    if _, err := c.CreateSession(context.Background(), SessionRequest{OrderID: "print-1-abcdefghi", Amount: 0}); err == nil {
        t.Error("expected error for zero amount")
    }
}

func TestCreateSessionSurfacesGatewayError(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusUnauthorized)
        json.NewEncoder(w).Encode(map[string][]string{"error_messages": {"Access denied"}})
    }))
    defer srv.Close()

    c := NewSnapClient(Options{BaseURL: srv.URL, ServerKey: "wrong-key"})
    _, err := c.CreateSession(context.Background(), SessionRequest{OrderID: "print-1-abcdefghi", Amount: 1000})
    var ge *Error
    if !errors.As(err, &ge) {
        t.Fatalf("error = %v, want *Error", err)
    }
    if ge.StatusCode != http.StatusUnauthorized {
        t.Errorf("status = %d, want 401", ge.StatusCode)
    }
    if ge.Message != "Access denied" {
        t.Errorf("message = %q, want gateway error text", ge.Message)
    }
}

func TestGetStatus(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Path != "/v2/print-1-abcdefghi/status" {
            t.Errorf("path = %q", r.URL.Path)
        }
        wantAuth(t, r)
        json.NewEncoder(w).Encode(map[string]string{
            "order_id":           "print-1-abcdefghi",
            "transaction_status": "settlement",
            "payment_type":       "qris",
            "gross_amount":       "3100.00",
        })
    }))
    defer srv.Close()

    c := NewSnapClient(Options{BaseURL: srv.URL, ServerKey: testServerKey})
    st, err := c.GetStatus(context.Background(), "print-1-abcdefghi")
    if err != nil {
        t.Fatalf("GetStatus: %v", err)
    }
    if st.Status != StatusSettlement {
        t.Errorf("status = %q, want settlement", st.Status)
    }
    if !st.Settled() {
        t.Error("settlement should report Settled")
    }
}

func TestSettledStatuses(t *testing.T) {
    cases := []struct {
        status string
        want   bool
    }{
        {StatusSettlement, true},
        {StatusCapture, true},
        {StatusPending, false},
        {StatusExpire, false},
        {StatusCancel, false},
    }
    for _, tc := range cases {
        if got := (Status{Status: tc.status}).Settled(); got != tc.want {
            t.Errorf("Settled(%q) = %v, want %v", tc.status, got, tc.want)
        }
    }
}

func TestGetStatusFillsOrderID(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        json.NewEncoder(w).Encode(map[string]string{"transaction_status": "pending"})
    }))
    defer srv.Close()

    c := NewSnapClient(Options{BaseURL: srv.URL, ServerKey: testServerKey})
    st, err := c.GetStatus(context.Background(), "print-2-jklmnopqr")
    if err != nil {
        t.Fatalf("GetStatus: %v", err)
    }
    if st.OrderID != "print-2-jklmnopqr" {
        t.Errorf("order id = %q, want the requested id", st.OrderID)
    }
}

func TestGetStatusErrorHasStatusCode(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusNotFound)
        json.NewEncoder(w).Encode(map[string]string{"status_message": "Transaction doesn't exist"})
    }))
    defer srv.Close()

    c := NewSnapClient(Options{BaseURL: srv.URL, ServerKey: testServerKey})
    _, err := c.GetStatus(context.Background(), "print-9-zzzzzzzzz")
    var ge *Error
    if !errors.As(err, &ge) {
        t.Fatalf("error = %v, want *Error", err)
    }
    if ge.StatusCode != http.StatusNotFound {
        t.Errorf("status = %d, want 404", ge.StatusCode)
    }
}

func TestIsTimeout(t *testing.T) {
    if !IsTimeout(&Error{Operation: "get_status", Timeout: true}) {
        t.Error("timeout error not recognized")
    }
    if IsTimeout(&Error{Operation: "get_status", StatusCode: 500}) {
        t.Error("HTTP failure misclassified as timeout")
    }
    if IsTimeout(nil) {
        t.Error("nil misclassified as timeout")
    }
}
