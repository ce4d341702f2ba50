package server

import (
    "context"
    "errors"
    "net/http"
    "sync"

    "github.com/rs/zerolog/log"

    "github.com/local/printkiosk/internal/backend"
    "github.com/local/printkiosk/internal/gateway"
    "github.com/local/printkiosk/internal/recon"
)

// orderRef ties an order back to its document session so payment callbacks
// can assemble the print job.
type orderRef struct {
    DocID     string
    Phone     string
    PrinterID string
}

type orderIndex struct {
    mu     sync.Mutex
    orders map[string]orderRef
}

func newOrderIndex() *orderIndex {
    return &orderIndex{orders: map[string]orderRef{}}
}

func (idx *orderIndex) put(orderID string, ref orderRef) {
    idx.mu.Lock()
    idx.orders[orderID] = ref
    idx.mu.Unlock()
}

func (idx *orderIndex) get(orderID string) (orderRef, bool) {
    idx.mu.Lock()
    defer idx.mu.Unlock()
    ref, ok := idx.orders[orderID]
    return ref, ok
}

func (idx *orderIndex) drop(orderID string) {
    idx.mu.Lock()
    delete(idx.orders, orderID)
    idx.mu.Unlock()
}

type paymentReq struct {
    DocumentID string `json:"documentId"`
    PrinterID  string `json:"printerId"`
    Phone      string `json:"phoneNumber,omitempty"`
}

type paymentResp struct {
    recon.CreateResult
    ClientKey string `json:"clientKey,omitempty"`
}

// handlePayment opens a checkout session for the current document selection.
// The cost is whatever the server-side pricing session says; client-supplied
// amounts are never trusted.
func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var req paymentReq
    if !readJSON(w, r, &req) { return }
    if req.DocumentID == "" || req.PrinterID == "" {
        http.Error(w, "missing documentId or printerId", http.StatusBadRequest); return
    }

    sess, ok := s.docs.get(req.DocumentID)
    if !ok { http.Error(w, "document not found", http.StatusNotFound); return }

    snap := sess.engine.CurrentSnapshot()
    if len(snap.SelectedPages) == 0 {
        http.Error(w, "no pages selected", http.StatusUnprocessableEntity); return
    }

    phone := s.principal(r, req.Phone)
    res, err := s.deps.Recon.CreateTransaction(r.Context(), recon.CreateRequest{
        Phone:     phone,
        PrinterID: req.PrinterID,
        Cost:      snap.Cost,
        Settings:  snap,
        File: backend.FileInfo{
            Name:    sess.meta.OriginalName,
            Size:    sess.meta.Size,
            Pages:   sess.meta.Pages,
            Type:    sess.meta.ContentType,
            HasFile: true,
        },
        FileRef: s.deps.Docs.Ref(req.DocumentID),
    })
    if err != nil {
        var ge *gateway.Error
        if errors.As(err, &ge) && ge.Timeout {
            http.Error(w, "payment gateway timeout", http.StatusGatewayTimeout); return
        }
        log.Error().Err(err).Msg("payment session failed")
        http.Error(w, "payment gateway unavailable", http.StatusBadGateway)
        return
    }

    s.orders.put(res.OrderID, orderRef{DocID: req.DocumentID, Phone: phone, PrinterID: req.PrinterID})
    writeJSON(w, http.StatusCreated, paymentResp{CreateResult: res, ClientKey: s.deps.Config.Gateway.ClientKey})
}

type paymentStatusReq struct {
    OrderID string `json:"orderId"`
    Result  string `json:"result"` // success | pending | error | close
    Phone   string `json:"phoneNumber,omitempty"`
}

// handlePaymentStatus is the checkout callback endpoint. Whatever the client
// claims happened, settlement is re-verified at the gateway before anything
// prints.
func (s *Server) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var req paymentStatusReq
    if !readJSON(w, r, &req) { return }
    if req.OrderID == "" { http.Error(w, "missing orderId", http.StatusBadRequest); return }

    phone := s.principal(r, req.Phone)
    job := s.buildJob(r.Context(), req.OrderID, phone)

    res, err := s.deps.Recon.HandleCallback(r.Context(), req.Result, req.OrderID, job)
    if err != nil {
        s.writeConfirmError(w, res, err)
        return
    }
    if res.Printed {
        s.finishOrder(r.Context(), req.OrderID)
    }
    writeJSON(w, http.StatusOK, res)
}

// buildJob assembles the print job for an order. While the document session
// is alive the raw PDF goes up with the job; after a restart or resume the
// stored transaction's file reference is used instead.
func (s *Server) buildJob(ctx context.Context, orderID, phone string) *backend.PrintJob {
    if ref, ok := s.orders.get(orderID); ok {
        if sess, ok := s.docs.get(ref.DocID); ok {
            data, _, err := s.deps.Docs.Get(ctx, ref.DocID)
            if err == nil {
                snap := sess.engine.CurrentSnapshot()
                return &backend.PrintJob{
                    OrderID:    orderID,
                    PrinterID:  ref.PrinterID,
                    Document:   data,
                    FileName:   sess.meta.OriginalName,
                    Copies:     snap.Copies,
                    ColorPages: snap.ColorPages,
                    BWPages:    snap.BWPages,
                    TotalCost:  snap.Cost,
                    TotalPages: len(snap.SelectedPages),
                    Phone:      ref.Phone,
                }
            }
            log.Warn().Err(err).Str("order_id", orderID).Msg("stored document unavailable, trying restored path")
        }
    }
    if phone == "" { return nil }

    txns, err := s.deps.Recon.ListPending(ctx, phone)
    if err != nil { return nil }
    for _, txn := range txns {
        if txn.OrderID == orderID {
            return restoredJob(txn)
        }
    }
    return nil
}

func restoredJob(txn backend.Transaction) *backend.PrintJob {
    snap := txn.Settings
    return &backend.PrintJob{
        OrderID:    txn.OrderID,
        PrinterID:  txn.PrinterID,
        FileRef:    txn.FileRef,
        FileName:   txn.File.Name,
        Copies:     snap.Copies,
        ColorPages: snap.ColorPages,
        BWPages:    snap.BWPages,
        TotalCost:  txn.Cost,
        TotalPages: len(snap.SelectedPages),
        Phone:      txn.Phone,
        Restored:   true,
    }
}

// finishOrder drops bookkeeping and the stored document after a successful
// print.
func (s *Server) finishOrder(ctx context.Context, orderID string) {
    if ref, ok := s.orders.get(orderID); ok {
        s.docs.drop(ref.DocID)
        if err := s.deps.Docs.Delete(ctx, ref.DocID); err != nil {
            log.Warn().Err(err).Str("doc_id", ref.DocID).Msg("document cleanup failed")
        }
    }
    s.orders.drop(orderID)
}

func (s *Server) writeConfirmError(w http.ResponseWriter, res recon.ConfirmResult, err error) {
    switch {
    case errors.Is(err, recon.ErrNotSettled):
        // Not an exceptional state: the client polls until settled or gives up.
        writeJSON(w, http.StatusConflict, res)
    case errors.Is(err, recon.ErrVerificationInFlight):
        writeJSON(w, http.StatusAccepted, map[string]string{"status": "verifying"})
    case errors.Is(err, recon.ErrNoDocument):
        http.Error(w, "document no longer available; resume the transaction", http.StatusGone)
    default:
        var pe *backend.PrintError
        if errors.As(err, &pe) {
            // Paid but not printed. The record is intact; the client offers retry.
            http.Error(w, pe.Reason, http.StatusBadGateway)
            return
        }
        var ge *gateway.Error
        if errors.As(err, &ge) && ge.Timeout {
            http.Error(w, "payment gateway timeout", http.StatusGatewayTimeout)
            return
        }
        log.Error().Err(err).Str("order_id", res.OrderID).Msg("payment confirmation failed")
        http.Error(w, "confirmation failed", http.StatusBadGateway)
    }
}
