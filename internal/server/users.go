package server

import (
    "context"
    "encoding/json"
    "net/http"
    "time"

    "github.com/rs/zerolog/log"

    "github.com/local/printkiosk/internal/store"
)

type loginReq struct {
    Phone string `json:"phone"`
    Name  string `json:"name,omitempty"`
}

// validPhone requires at least ten digits, matching the backend's account
// format.
func validPhone(phone string) bool {
    digits := 0
    for _, r := range phone {
        if r >= '0' && r <= '9' { digits++ }
    }
    return digits >= 10
}

// handleUsers signs a phone number in (GET looks the account up, POST
// registers it) and pins it to the kiosk session cookie.
func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodGet:
        phone := r.URL.Query().Get("phone")
        if phone == "" { http.Error(w, "missing phone", http.StatusBadRequest); return }
        user, err := s.deps.Users.GetUserPoints(r.Context(), phone)
        if err != nil {
            http.Error(w, "user not found", http.StatusNotFound)
            return
        }
        s.saveSession(w, r, user.Phone, user.Name, user.Points)
        s.requestSync(r.Context(), user.Phone)
        writeJSON(w, http.StatusOK, user)

    case http.MethodPost:
        var req loginReq
        if !readJSON(w, r, &req) { return }
        if !validPhone(req.Phone) { http.Error(w, "invalid phone number", http.StatusBadRequest); return }
        user, err := s.deps.Users.CreateUser(r.Context(), req.Phone, req.Name)
        if err != nil {
            log.Error().Err(err).Msg("user create failed")
            http.Error(w, "backend unavailable", http.StatusBadGateway)
            return
        }
        s.saveSession(w, r, user.Phone, user.Name, user.Points)
        s.requestSync(r.Context(), user.Phone)
        writeJSON(w, http.StatusCreated, user)

    case http.MethodDelete:
        if c, err := r.Cookie("kiosk_session"); err == nil && s.deps.Sessions != nil {
            _ = s.deps.Sessions.Clear(r.Context(), c.Value)
        }
        w.WriteHeader(http.StatusNoContent)

    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// handleUserPoints refreshes the signed-in user's points balance.
func (s *Server) handleUserPoints(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    phone := s.principal(r, r.URL.Query().Get("phone"))
    if phone == "" { http.Error(w, "not signed in", http.StatusUnauthorized); return }

    user, err := s.deps.Users.GetUserPoints(r.Context(), phone)
    if err != nil {
        http.Error(w, "user not found", http.StatusNotFound)
        return
    }
    s.saveSession(w, r, user.Phone, user.Name, user.Points)
    writeJSON(w, http.StatusOK, user)
}

// requestSync queues a background reconciliation pass so the returning
// owner's stale pending orders heal without an explicit sync request.
// Best-effort: a queue outage never fails the login.
func (s *Server) requestSync(ctx context.Context, phone string) {
    if s.deps.Queue == nil || phone == "" { return }
    payload, _ := json.Marshal(map[string]any{"phone": phone, "attempt": 1})
    if err := s.deps.Queue.EnqueueSync(ctx, payload); err != nil {
        log.Warn().Err(err).Str("phone", phone).Msg("login sync enqueue failed")
    }
}

func (s *Server) saveSession(w http.ResponseWriter, r *http.Request, phone, name string, points float64) {
    if s.deps.Sessions == nil { return }
    now := time.Now()
    sid := s.sessionID(w, r)
    if err := s.deps.Sessions.Save(r.Context(), sid, store.UserSession{
        Phone: phone, Name: name, Points: points, Timestamp: &now,
    }); err != nil {
        log.Warn().Err(err).Msg("session save failed")
    }
}
