package server

import (
    "encoding/json"
    "errors"
    "net/http"

    "github.com/rs/zerolog/log"

    "github.com/local/printkiosk/internal/recon"
)

// handlePendingList returns the caller's stored pending transactions as-is,
// without touching the gateway.
func (s *Server) handlePendingList(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    phone := s.principal(r, r.URL.Query().Get("phoneNumber"))
    if phone == "" { http.Error(w, "missing phoneNumber", http.StatusBadRequest); return }

    txns, err := s.deps.Recon.ListPending(r.Context(), phone)
    if err != nil {
        log.Error().Err(err).Msg("pending list failed")
        http.Error(w, "backend unavailable", http.StatusBadGateway)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"transactions": txns})
}

type syncReq struct {
    Phone string `json:"phoneNumber,omitempty"`
    Async bool   `json:"async,omitempty"`
}

// handlePendingSync reconciles the caller's pending transactions against the
// gateway. Synchronous by default so the kiosk gets the refreshed list back;
// async pushes a request onto the worker queue instead.
func (s *Server) handlePendingSync(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var req syncReq
    if !readJSON(w, r, &req) { return }
    phone := s.principal(r, req.Phone)
    if phone == "" { http.Error(w, "missing phoneNumber", http.StatusBadRequest); return }

    if req.Async {
        payload, _ := json.Marshal(map[string]any{"phone": phone, "attempt": 1})
        if err := s.deps.Queue.EnqueueSync(r.Context(), payload); err != nil {
            log.Error().Err(err).Msg("sync enqueue failed")
            http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
            return
        }
        writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
        return
    }

    report, err := s.deps.Recon.SyncPending(r.Context(), phone)
    if err != nil {
        log.Error().Err(err).Msg("sync failed")
        http.Error(w, "backend unavailable", http.StatusBadGateway)
        return
    }
    writeJSON(w, http.StatusOK, report)
}

type cancelReq struct {
    OrderID string `json:"orderId"`
    Phone   string `json:"phoneNumber,omitempty"`
}

func (s *Server) handlePendingCancel(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var req cancelReq
    if !readJSON(w, r, &req) { return }
    if req.OrderID == "" { http.Error(w, "missing orderId", http.StatusBadRequest); return }
    phone := s.principal(r, req.Phone)
    if phone == "" { http.Error(w, "missing phoneNumber", http.StatusBadRequest); return }

    if err := s.deps.Recon.Cancel(r.Context(), req.OrderID, phone); err != nil {
        switch {
        case errors.Is(err, recon.ErrOrderNotFound):
            http.Error(w, "order not found", http.StatusNotFound)
        case errors.Is(err, recon.ErrNotOwner):
            http.Error(w, "not your order", http.StatusForbidden)
        default:
            log.Error().Err(err).Str("order_id", req.OrderID).Msg("cancel failed")
            http.Error(w, "backend unavailable", http.StatusBadGateway)
        }
        return
    }
    s.finishOrder(r.Context(), req.OrderID)
    w.WriteHeader(http.StatusNoContent)
}

type resumeReq struct {
    OrderID string `json:"orderId"`
    Phone   string `json:"phoneNumber,omitempty"`
}

// handleResume re-opens a stored pending order. Already-settled orders go
// straight through confirmation and print with the stored document; unpaid
// ones get the saved checkout token back.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var req resumeReq
    if !readJSON(w, r, &req) { return }
    if req.OrderID == "" { http.Error(w, "missing orderId", http.StatusBadRequest); return }
    phone := s.principal(r, req.Phone)
    if phone == "" { http.Error(w, "missing phoneNumber", http.StatusBadRequest); return }

    res, err := s.deps.Recon.Resume(r.Context(), req.OrderID, phone)
    if err != nil {
        switch {
        case errors.Is(err, recon.ErrOrderNotFound):
            http.Error(w, "order not found", http.StatusNotFound)
        case errors.Is(err, recon.ErrNotOwner):
            http.Error(w, "not your order", http.StatusForbidden)
        default:
            log.Error().Err(err).Str("order_id", req.OrderID).Msg("resume failed")
            http.Error(w, "backend unavailable", http.StatusBadGateway)
        }
        return
    }

    if !res.Settled {
        writeJSON(w, http.StatusOK, res)
        return
    }

    job := restoredJob(res.Transaction)
    confirm, err := s.deps.Recon.ConfirmPayment(r.Context(), req.OrderID, job)
    if err != nil {
        s.writeConfirmError(w, confirm, err)
        return
    }
    if confirm.Printed {
        s.finishOrder(r.Context(), req.OrderID)
    }
    writeJSON(w, http.StatusOK, confirm)
}
