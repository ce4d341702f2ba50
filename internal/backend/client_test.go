package backend

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "net/http/httptest"
    "testing"
)

func testJob() PrintJob {
    return PrintJob{
        OrderID:     "print-1-abcdefghi",
        PrinterID:   "printer-7",
        Document:    []byte("%PDF-1.4 test"),
        FileName:    "laporan.pdf",
        Copies:      2,
        ColorPages:  []int{1},
        BWPages:     []int{2, 3},
        TotalCost:   6900,
        TotalPages:  3,
        PointsToAdd: 3.45,
        Phone:       "0812000",
    }
}

func TestSubmitPrintJobMultipart(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Path != "/api/print" {
            t.Errorf("path = %q, want /api/print", r.URL.Path)
        }
        if err := r.ParseMultipartForm(16 << 20); err != nil {
            t.Fatalf("parse multipart: %v", err)
        }

        file, hdr, err := r.FormFile("pdf")
        if err != nil {
            t.Fatalf("missing pdf form file: %v", err)
        }
        file.Close()
        if hdr.Filename != "laporan.pdf" {
            t.Errorf("filename = %q", hdr.Filename)
        }

        want := map[string]string{
            "orderId":     "print-1-abcdefghi",
            "printerId":   "printer-7",
            "copies":      "2",
            "colorPages":  "[1]",
            "bwPages":     "[2,3]",
            "totalCost":   "6900",
            "totalPages":  "3",
            "pointsToAdd": "3.45",
            "phoneNumber": "0812000",
        }
        for k, v := range want {
            if got := r.FormValue(k); got != v {
                t.Errorf("field %s = %q, want %q", k, got, v)
            }
        }
        w.WriteHeader(http.StatusCreated)
    }))
    defer srv.Close()

    c := NewClient(ClientOptions{BaseURL: srv.URL})
    if err := c.SubmitPrintJob(context.Background(), testJob()); err != nil {
        t.Fatalf("SubmitPrintJob: %v", err)
    }
}

func TestSubmitPrintJobRestored(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Path != "/api/print/restored" {
            t.Errorf("path = %q, want /api/print/restored", r.URL.Path)
        }
        if ct := r.Header.Get("Content-Type"); ct != "application/json" {
            t.Errorf("content type = %q", ct)
        }
        var body struct {
            OrderID string `json:"orderId"`
            FileRef string `json:"fileRef"`
        }
        if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
            t.Fatalf("decode body: %v", err)
        }
        if body.FileRef != "s3://bucket/documents/doc-1" {
            t.Errorf("fileRef = %q", body.FileRef)
        }
        w.WriteHeader(http.StatusOK)
    }))
    defer srv.Close()

    job := testJob()
    job.Document = nil
    job.FileRef = "s3://bucket/documents/doc-1"
    job.Restored = true

    c := NewClient(ClientOptions{BaseURL: srv.URL})
    if err := c.SubmitPrintJob(context.Background(), job); err != nil {
        t.Fatalf("restored SubmitPrintJob: %v", err)
    }
}

func TestSubmitPrintJobRejection(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusServiceUnavailable)
        json.NewEncoder(w).Encode(map[string]string{"error": "printer out of paper"})
    }))
    defer srv.Close()

    c := NewClient(ClientOptions{BaseURL: srv.URL})
    err := c.SubmitPrintJob(context.Background(), testJob())
    var pe *PrintError
    if !errors.As(err, &pe) {
        t.Fatalf("error = %v, want *PrintError", err)
    }
    if pe.OrderID != "print-1-abcdefghi" {
        t.Errorf("order id = %q", pe.OrderID)
    }
    if pe.Reason != "printer out of paper" {
        t.Errorf("reason = %q", pe.Reason)
    }
}

func TestCompleteTransactionTolerates404(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.Method != http.MethodDelete {
            t.Errorf("method = %q, want DELETE", r.Method)
        }
        w.WriteHeader(http.StatusNotFound)
    }))
    defer srv.Close()

    c := NewClient(ClientOptions{BaseURL: srv.URL})
    if err := c.CompleteTransaction(context.Background(), "print-1-abcdefghi"); err != nil {
        t.Errorf("completing an already-removed order should be a no-op, got %v", err)
    }
}

func TestListPendingTransactionsEnvelope(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if got := r.URL.Query().Get("phoneNumber"); got != "0812000" {
            t.Errorf("phoneNumber = %q", got)
        }
        json.NewEncoder(w).Encode(map[string]any{
            "transactions": []map[string]any{
                {"orderId": "print-1-abcdefghi", "status": "pending", "cost": 3100},
                {"orderId": "print-2-jklmnopqr", "status": "pending", "cost": 800},
            },
        })
    }))
    defer srv.Close()

    c := NewClient(ClientOptions{BaseURL: srv.URL})
    txns, err := c.ListPendingTransactions(context.Background(), "0812000")
    if err != nil {
        t.Fatalf("ListPendingTransactions: %v", err)
    }
    if len(txns) != 2 {
        t.Fatalf("len = %d, want 2", len(txns))
    }
    if txns[0].OrderID != "print-1-abcdefghi" || txns[0].Cost != 3100 {
        t.Errorf("first txn = %+v", txns[0])
    }
}

func TestUpdateTransactionStatusErrorCarriesCode(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusNotFound)
        json.NewEncoder(w).Encode(map[string]string{"error": "unknown order"})
    }))
    defer srv.Close()

    c := NewClient(ClientOptions{BaseURL: srv.URL})
    err := c.UpdateTransactionStatus(context.Background(), "print-9-zzzzzzzzz", TxnExpired)
    var be *Error
    if !errors.As(err, &be) {
        t.Fatalf("error = %v, want *Error", err)
    }
    if be.StatusCode != http.StatusNotFound {
        t.Errorf("status = %d, want 404", be.StatusCode)
    }
    if be.Message != "unknown order" {
        t.Errorf("message = %q", be.Message)
    }
}

func TestGetUserPoints(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if got := r.URL.Query().Get("phone"); got != "0812000" {
            t.Errorf("phone = %q", got)
        }
        json.NewEncoder(w).Encode(map[string]any{"phone": "0812000", "name": "Budi", "points": 12.5})
    }))
    defer srv.Close()

    c := NewClient(ClientOptions{BaseURL: srv.URL})
    u, err := c.GetUserPoints(context.Background(), "0812000")
    if err != nil {
        t.Fatalf("GetUserPoints: %v", err)
    }
    if u.Points != 12.5 || u.Name != "Budi" {
        t.Errorf("user = %+v", u)
    }
}
