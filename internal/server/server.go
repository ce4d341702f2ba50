package server

import (
    "context"
    "encoding/json"
    "net/http"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog/log"

    "github.com/local/printkiosk/internal/backend"
    "github.com/local/printkiosk/internal/config"
    "github.com/local/printkiosk/internal/docstore"
    "github.com/local/printkiosk/internal/filetype"
    "github.com/local/printkiosk/internal/recon"
    "github.com/local/printkiosk/internal/statuscheck"
    "github.com/local/printkiosk/internal/store"
)

// SyncQueue is the async side-channel for reconciliation requests.
type SyncQueue interface {
    EnqueueSync(ctx context.Context, payload []byte) error
}

// Users is the backend surface for phone-identified accounts.
type Users interface {
    GetUserPoints(ctx context.Context, phone string) (backend.User, error)
    CreateUser(ctx context.Context, phone, name string) (backend.User, error)
}

// Printers is the backend surface for the printer directory.
type Printers interface {
    ListPrinters(ctx context.Context) ([]backend.Printer, error)
    GetPrinter(ctx context.Context, id string) (backend.Printer, error)
    NearbyPrinters(ctx context.Context, lat, lng float64) ([]backend.Printer, error)
    UpdatePaperCount(ctx context.Context, printerID string, used int) error
}

// Dependencies wires the HTTP layer to the rest of the service.
type Dependencies struct {
    Recon    *recon.Engine
    Users    Users
    Printers Printers
    Docs     docstore.Store
    Sessions *store.RedisSessions
    Queue    SyncQueue
    Checker  *statuscheck.Checker
    Config   config.Config
}

// Server is the kiosk HTTP API.
type Server struct {
    deps     Dependencies
    detector *filetype.Detector
    docs     *docRegistry
    orders   *orderIndex
}

func New(deps Dependencies) *Server {
    return &Server{
        deps:     deps,
        detector: filetype.New(),
        docs:     newDocRegistry(deps.Config.Transaction.DocumentTTL),
        orders:   newOrderIndex(),
    }
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
    mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); _, _ = w.Write([]byte("ok")) })
    mux.HandleFunc("/api/status", s.handleStatus)

    mux.HandleFunc("/api/documents", s.handleUpload)
    mux.HandleFunc("/api/documents/", s.handleDocument)

    mux.HandleFunc("/api/payment", s.handlePayment)
    mux.HandleFunc("/api/payment/status", s.handlePaymentStatus)

    mux.HandleFunc("/api/transactions/pending", s.handlePendingList)
    mux.HandleFunc("/api/transactions/pending/sync", s.handlePendingSync)
    mux.HandleFunc("/api/transactions/pending/cancel", s.handlePendingCancel)
    mux.HandleFunc("/api/transactions/resume", s.handleResume)

    mux.HandleFunc("/api/printers", s.handlePrinters)
    mux.HandleFunc("/api/printers/nearby", s.handlePrintersNearby)
    mux.HandleFunc("/api/printers/", s.handlePrinter)

    mux.HandleFunc("/api/users", s.handleUsers)
    mux.HandleFunc("/api/users/points", s.handleUserPoints)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
    if s.deps.Checker == nil {
        http.Error(w, "status checks disabled", http.StatusServiceUnavailable)
        return
    }
    writeJSON(w, http.StatusOK, s.deps.Checker.Summary(r.Context()))
}

// sessionID returns the kiosk session cookie, minting one when absent.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
    if c, err := r.Cookie("kiosk_session"); err == nil && c.Value != "" {
        return c.Value
    }
    id := uuid.NewString()
    http.SetCookie(w, &http.Cookie{
        Name:     "kiosk_session",
        Value:    id,
        Path:     "/",
        HttpOnly: true,
        SameSite: http.SameSiteLaxMode,
        MaxAge:   int(s.deps.Config.Transaction.SessionTTL / time.Second),
    })
    return id
}

// principal resolves the signed-in phone number, if any. An explicit
// phoneNumber in the request wins over the stored session.
func (s *Server) principal(r *http.Request, explicit string) string {
    if explicit != "" { return explicit }
    c, err := r.Cookie("kiosk_session")
    if err != nil || c.Value == "" { return "" }
    if s.deps.Sessions == nil { return "" }
    u, ok, err := s.deps.Sessions.Load(r.Context(), c.Value)
    if err != nil || !ok { return "" }
    return u.Phone
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    if err := json.NewEncoder(w).Encode(v); err != nil {
        log.Warn().Err(err).Msg("response encode failed")
    }
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
    defer r.Body.Close()
    if err := json.NewDecoder(r.Body).Decode(v); err != nil {
        http.Error(w, "invalid json", http.StatusBadRequest)
        return false
    }
    return true
}
