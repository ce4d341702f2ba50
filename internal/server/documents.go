package server

import (
    "io"
    "net/http"
    "os"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog/log"

    "github.com/local/printkiosk/internal/docstore"
    "github.com/local/printkiosk/internal/pdf"
    "github.com/local/printkiosk/internal/preview"
    "github.com/local/printkiosk/internal/pricing"
)

// docSession holds the server-side page selection state for one upload.
type docSession struct {
    mu       sync.Mutex
    engine   *pricing.Engine
    meta     docstore.Metadata
    created  time.Time
    snapshot pricing.Snapshot
}

func (d *docSession) record(snap pricing.Snapshot) {
    d.mu.Lock()
    d.snapshot = snap
    d.mu.Unlock()
}

func (d *docSession) last() pricing.Snapshot {
    d.mu.Lock()
    defer d.mu.Unlock()
    return d.snapshot
}

// docRegistry is the in-memory table of live pricing sessions. Documents
// themselves live encrypted in the docstore; only selection state is here.
type docRegistry struct {
    mu   sync.Mutex
    docs map[string]*docSession
    ttl  time.Duration
}

func newDocRegistry(ttl time.Duration) *docRegistry {
    if ttl <= 0 { ttl = 2 * time.Hour }
    return &docRegistry{docs: map[string]*docSession{}, ttl: ttl}
}

func (reg *docRegistry) put(id string, d *docSession) {
    reg.mu.Lock()
    reg.docs[id] = d
    // opportunistic sweep of stale sessions
    cutoff := time.Now().Add(-reg.ttl)
    for k, v := range reg.docs {
        if v.created.Before(cutoff) { delete(reg.docs, k) }
    }
    reg.mu.Unlock()
}

func (reg *docRegistry) get(id string) (*docSession, bool) {
    reg.mu.Lock()
    defer reg.mu.Unlock()
    d, ok := reg.docs[id]
    return d, ok
}

func (reg *docRegistry) drop(id string) {
    reg.mu.Lock()
    delete(reg.docs, id)
    reg.mu.Unlock()
}

type uploadResp struct {
    DocumentID string           `json:"documentId"`
    FileName   string           `json:"fileName"`
    Pages      int              `json:"pages"`
    Snapshot   pricing.Snapshot `json:"settings"`
}

// handleUpload accepts a PDF, validates it by magic bytes, stores it
// encrypted, and opens a pricing session seeded with the default selection.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    maxBytes := s.deps.Config.Storage.UploadMaxBytes
    if maxBytes <= 0 { maxBytes = 32 << 20 }
    r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
    if err := r.ParseMultipartForm(maxBytes); err != nil {
        http.Error(w, "invalid multipart form", http.StatusBadRequest); return
    }
    file, hdr, err := r.FormFile("file")
    if err != nil { http.Error(w, "missing file", http.StatusBadRequest); return }
    defer file.Close()

    data, err := io.ReadAll(file)
    if err != nil { http.Error(w, "read failed", http.StatusBadRequest); return }

    info := s.detector.DetectBytes(data)
    if !info.Printable {
        log.Warn().Str("mime", info.MIMEType).Msg("upload rejected")
        http.Error(w, info.Description, http.StatusUnsupportedMediaType)
        return
    }

    // Page count needs a real file; pdfcpu works on paths.
    tmp, err := os.CreateTemp("", "upload-*.pdf")
    if err != nil { http.Error(w, "temp file failed", http.StatusInternalServerError); return }
    tmpPath := tmp.Name()
    defer os.Remove(tmpPath)
    if _, err := tmp.Write(data); err != nil { tmp.Close(); http.Error(w, "write failed", http.StatusInternalServerError); return }
    _ = tmp.Close()

    pages, err := pdf.PageCount(r.Context(), tmpPath)
    if err != nil {
        log.Warn().Err(err).Msg("page count failed")
        http.Error(w, "unreadable PDF", http.StatusUnprocessableEntity)
        return
    }

    name := hdr.Filename
    if name == "" { name = "upload.pdf" }
    docID := uuid.NewString()
    meta := docstore.Metadata{OriginalName: name, ContentType: info.MIMEType, Size: int64(len(data)), Pages: pages}
    if err := s.deps.Docs.Put(r.Context(), docID, data, meta); err != nil {
        log.Error().Err(err).Str("doc_id", docID).Msg("document store failed")
        http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
        return
    }

    sess := &docSession{meta: meta, created: time.Now()}
    sess.engine = pricing.NewEngine(pages, nil, s.ratesFromConfig(), sess.record)
    s.docs.put(docID, sess)

    log.Info().Str("doc_id", docID).Str("file", name).Int("pages", pages).Msg("document uploaded")
    writeJSON(w, http.StatusCreated, uploadResp{DocumentID: docID, FileName: name, Pages: pages, Snapshot: sess.last()})
}

func (s *Server) ratesFromConfig() pricing.Rates {
    rates := pricing.DefaultRates()
    p := s.deps.Config.Pricing
    if p.BWStandardPrice > 0 { rates.BWStandard = p.BWStandardPrice }
    if p.BWDiscountPrice > 0 { rates.BWDiscount = p.BWDiscountPrice }
    if p.BWDiscountSheets > 0 { rates.DiscountSheets = p.BWDiscountSheets }
    if p.QualitySurchargeHigh > 0 { rates.QualitySurcharge[pricing.QualityHigh] = p.QualitySurchargeHigh }
    return rates
}

// handleDocument routes /api/documents/{id}[/...] subresources.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/api/documents/")
    parts := strings.Split(rest, "/")
    if len(parts) == 0 || parts[0] == "" { http.Error(w, "missing document id", http.StatusBadRequest); return }
    docID := parts[0]

    sess, ok := s.docs.get(docID)
    if !ok { http.Error(w, "document not found", http.StatusNotFound); return }

    switch {
    case len(parts) == 1 && r.Method == http.MethodGet:
        s.docState(w, sess)
    case len(parts) == 1 && r.Method == http.MethodDelete:
        s.docs.drop(docID)
        _ = s.deps.Docs.Delete(r.Context(), docID)
        w.WriteHeader(http.StatusNoContent)
    case len(parts) == 2 && parts[1] == "pages":
        s.docAllPages(w, r, sess)
    case len(parts) == 3 && parts[1] == "pages":
        s.docOnePage(w, r, sess, parts[2])
    case len(parts) == 2 && parts[1] == "copies":
        s.docCopies(w, r, sess)
    case len(parts) == 2 && parts[1] == "settings":
        s.docSettings(w, r, sess)
    case len(parts) == 3 && parts[1] == "preview":
        s.docPreview(w, r, docID, sess, parts[2])
    default:
        http.Error(w, "unknown document operation", http.StatusNotFound)
    }
}

type docStateResp struct {
    Pages    []pricing.PageSelection `json:"pages"`
    Snapshot pricing.Snapshot        `json:"settings"`
    FileName string                  `json:"fileName"`
}

func (s *Server) docState(w http.ResponseWriter, sess *docSession) {
    writeJSON(w, http.StatusOK, docStateResp{
        Pages:    sess.engine.Pages(),
        Snapshot: sess.engine.CurrentSnapshot(),
        FileName: sess.meta.OriginalName,
    })
}

// docAllPages handles bulk operations: set mode for every page, select all,
// deselect all.
func (s *Server) docAllPages(w http.ResponseWriter, r *http.Request, sess *docSession) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var req struct {
        Mode      string `json:"type,omitempty"`
        Selection string `json:"selection,omitempty"` // "all" | "none"
    }
    if !readJSON(w, r, &req) { return }

    switch {
    case req.Mode != "":
        if err := sess.engine.SetAllPagesMode(req.Mode); err != nil {
            http.Error(w, err.Error(), http.StatusBadRequest); return
        }
    case req.Selection == "all":
        sess.engine.SelectAll()
    case req.Selection == "none":
        sess.engine.DeselectAll()
    default:
        http.Error(w, "nothing to do", http.StatusBadRequest); return
    }
    writeJSON(w, http.StatusOK, sess.engine.CurrentSnapshot())
}

func (s *Server) docOnePage(w http.ResponseWriter, r *http.Request, sess *docSession, pageStr string) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    page, err := strconv.Atoi(pageStr)
    if err != nil { http.Error(w, "invalid page number", http.StatusBadRequest); return }

    var req struct {
        Mode     *string `json:"type,omitempty"`
        Selected *bool   `json:"selected,omitempty"`
    }
    if !readJSON(w, r, &req) { return }

    if req.Mode != nil {
        if err := sess.engine.SetPageMode(page, *req.Mode); err != nil {
            http.Error(w, err.Error(), http.StatusBadRequest); return
        }
    }
    if req.Selected != nil {
        if err := sess.engine.SetPageIncluded(page, *req.Selected); err != nil {
            http.Error(w, err.Error(), http.StatusBadRequest); return
        }
    }
    writeJSON(w, http.StatusOK, sess.engine.CurrentSnapshot())
}

func (s *Server) docCopies(w http.ResponseWriter, r *http.Request, sess *docSession) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var req struct {
        Copies int `json:"copies"`
    }
    if !readJSON(w, r, &req) { return }
    sess.engine.SetCopies(req.Copies)
    writeJSON(w, http.StatusOK, sess.engine.CurrentSnapshot())
}

func (s *Server) docSettings(w http.ResponseWriter, r *http.Request, sess *docSession) {
    if r.Method != http.MethodPatch && r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var patch pricing.SettingsPatch
    if !readJSON(w, r, &patch) { return }
    sess.engine.ApplySettings(patch)
    writeJSON(w, http.StatusOK, sess.engine.CurrentSnapshot())
}

// docPreview renders one page as JPEG. Black/white pages render grayscale so
// the thumbnail matches the printed output.
func (s *Server) docPreview(w http.ResponseWriter, r *http.Request, docID string, sess *docSession, pageStr string) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    page, err := strconv.Atoi(pageStr)
    if err != nil { http.Error(w, "invalid page number", http.StatusBadRequest); return }

    mode := preview.ColorRGB
    for _, p := range sess.engine.Pages() {
        if p.Page == page && p.Mode == pricing.ModeBW { mode = preview.ColorGray }
    }

    dpi := parseQueryInt(r, "dpi", 96)
    quality := parseQueryInt(r, "quality", 70)

    data, _, err := s.deps.Docs.Get(r.Context(), docID)
    if err != nil {
        http.Error(w, "document unavailable", http.StatusNotFound); return
    }
    tmp, err := os.CreateTemp("", "preview-*.pdf")
    if err != nil { http.Error(w, "temp file failed", http.StatusInternalServerError); return }
    tmpPath := tmp.Name()
    defer os.Remove(tmpPath)
    if _, err := tmp.Write(data); err != nil { tmp.Close(); http.Error(w, "write failed", http.StatusInternalServerError); return }
    _ = tmp.Close()

    jpg, _, _, err := preview.RenderPageToJPEG(tmpPath, page, dpi, quality, mode)
    if err != nil {
        http.Error(w, "render failed", http.StatusUnprocessableEntity); return
    }
    w.Header().Set("Content-Type", "image/jpeg")
    w.Header().Set("Cache-Control", "no-store")
    _, _ = w.Write(jpg)
}

func parseQueryInt(r *http.Request, key string, def int) int {
    if v := r.URL.Query().Get(key); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n > 0 { return n }
    }
    return def
}
