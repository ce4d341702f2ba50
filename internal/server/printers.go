package server

import (
    "net/http"
    "strconv"
    "strings"

    "github.com/rs/zerolog/log"
)

// Printer endpoints proxy the backend directory so the kiosk client never
// talks to the VPS API directly.

func (s *Server) handlePrinters(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    printers, err := s.deps.Printers.ListPrinters(r.Context())
    if err != nil {
        log.Error().Err(err).Msg("printer list failed")
        http.Error(w, "backend unavailable", http.StatusBadGateway)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"printers": printers})
}

func (s *Server) handlePrintersNearby(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    lat, err1 := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
    lng, err2 := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
    if err1 != nil || err2 != nil {
        http.Error(w, "invalid lat/lng", http.StatusBadRequest); return
    }
    printers, err := s.deps.Printers.NearbyPrinters(r.Context(), lat, lng)
    if err != nil {
        log.Error().Err(err).Msg("nearby printers failed")
        http.Error(w, "backend unavailable", http.StatusBadGateway)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"printers": printers})
}

func (s *Server) handlePrinter(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/api/printers/")
    if id, ok := strings.CutSuffix(rest, "/paper"); ok {
        s.handlePrinterPaper(w, r, id)
        return
    }
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    if rest == "" || strings.Contains(rest, "/") {
        http.Error(w, "invalid printer id", http.StatusBadRequest); return
    }
    printer, err := s.deps.Printers.GetPrinter(r.Context(), rest)
    if err != nil {
        http.Error(w, "printer not found", http.StatusNotFound)
        return
    }
    writeJSON(w, http.StatusOK, printer)
}

// handlePrinterPaper forwards a paper-count adjustment after a finished job.
func (s *Server) handlePrinterPaper(w http.ResponseWriter, r *http.Request, id string) {
    if r.Method != http.MethodPatch && r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    if id == "" || strings.Contains(id, "/") {
        http.Error(w, "invalid printer id", http.StatusBadRequest); return
    }
    var req struct {
        PagesUsed int `json:"pagesUsed"`
    }
    if !readJSON(w, r, &req) { return }
    if req.PagesUsed <= 0 { http.Error(w, "invalid pagesUsed", http.StatusBadRequest); return }
    if err := s.deps.Printers.UpdatePaperCount(r.Context(), id, req.PagesUsed); err != nil {
        log.Error().Err(err).Str("printer_id", id).Msg("paper count update failed")
        http.Error(w, "backend unavailable", http.StatusBadGateway)
        return
    }
    w.WriteHeader(http.StatusNoContent)
}
