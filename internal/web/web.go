package web

import (
    "bytes"
    "fmt"
    "html/template"
    "io"
    "mime/multipart"
    "net/http"
    "os"
    "path/filepath"
    "strings"
)

// Web is the kiosk touch-screen dashboard. It proxies to the local API so
// the browser only ever talks to this process.
type Web struct {
    tpl  *template.Template
    port string
}

func New() *Web {
    tpl := template.Must(template.ParseGlob(filepath.Join("web", "templates", "*.html")))
    return &Web{
        tpl:  tpl,
        port: getenv("PORT", "8080"),
    }
}

func (w *Web) RegisterRoutes(mux *http.ServeMux) {
    mux.HandleFunc("/web/", w.handleKiosk)
    mux.HandleFunc("/web/kiosk", w.handleKiosk)
    mux.HandleFunc("/web/upload", w.handleUpload)
    mux.HandleFunc("/web/pending", w.handlePending)
    mux.HandleFunc("/web/sync", w.handleSync)
    mux.HandleFunc("/web/preview/", w.handlePreview)
}

func (w *Web) render(wr http.ResponseWriter, name string, data any) {
    _ = w.tpl.ExecuteTemplate(wr, name, data)
}

func (w *Web) handleKiosk(wr http.ResponseWriter, r *http.Request) {
    w.render(wr, "kiosk.html", nil)
}

// handleUpload proxies the multipart upload from the dashboard to /api/documents.
func (w *Web) handleUpload(wr http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { wr.WriteHeader(http.StatusMethodNotAllowed); return }
    if err := r.ParseMultipartForm(64 << 20); err != nil { http.Error(wr, "invalid multipart form", 400); return }

    var b bytes.Buffer
    mw := multipart.NewWriter(&b)

    file, hdr, err := r.FormFile("file")
    if err != nil { http.Error(wr, "missing file", 400); return }
    defer file.Close()
    fw, err := mw.CreateFormFile("file", hdr.Filename)
    if err != nil { http.Error(wr, "upload error", 500); return }
    if _, err := io.Copy(fw, file); err != nil { http.Error(wr, "upload error", 500); return }
    _ = mw.Close()

    url := fmt.Sprintf("http://127.0.0.1:%s/api/documents", w.port)
    req, _ := http.NewRequest(http.MethodPost, url, &b)
    req.Header.Set("Content-Type", mw.FormDataContentType())
    w.copyCookies(req, r)
    resp, err := http.DefaultClient.Do(req)
    if err != nil { http.Error(wr, "request failed", 500); return }
    defer resp.Body.Close()
    wr.Header().Set("Content-Type", "application/json")
    wr.WriteHeader(resp.StatusCode)
    io.Copy(wr, resp.Body)
}

func (w *Web) handlePending(wr http.ResponseWriter, r *http.Request) {
    url := fmt.Sprintf("http://127.0.0.1:%s/api/transactions/pending?%s", w.port, r.URL.RawQuery)
    req, _ := http.NewRequest(http.MethodGet, url, nil)
    w.copyCookies(req, r)
    resp, err := http.DefaultClient.Do(req)
    if err != nil { http.Error(wr, "request failed", 500); return }
    defer resp.Body.Close()
    wr.Header().Set("Content-Type", "application/json")
    wr.WriteHeader(resp.StatusCode)
    io.Copy(wr, resp.Body)
}

func (w *Web) handleSync(wr http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { wr.WriteHeader(http.StatusMethodNotAllowed); return }
    url := fmt.Sprintf("http://127.0.0.1:%s/api/transactions/pending/sync", w.port)
    req, _ := http.NewRequest(http.MethodPost, url, r.Body)
    req.Header.Set("Content-Type", "application/json")
    w.copyCookies(req, r)
    resp, err := http.DefaultClient.Do(req)
    if err != nil { http.Error(wr, "request failed", 500); return }
    defer resp.Body.Close()
    wr.Header().Set("Content-Type", "application/json")
    wr.WriteHeader(resp.StatusCode)
    io.Copy(wr, resp.Body)
}

func (w *Web) handlePreview(wr http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/web/preview/")
    url := fmt.Sprintf("http://127.0.0.1:%s/api/documents/%s?%s", w.port, rest, r.URL.RawQuery)
    resp, err := http.Get(url)
    if err != nil { http.Error(wr, "preview failed", 500); return }
    defer resp.Body.Close()
    wr.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
    wr.WriteHeader(resp.StatusCode)
    io.Copy(wr, resp.Body)
}

func (w *Web) copyCookies(dst *http.Request, src *http.Request) {
    for _, c := range src.Cookies() {
        dst.AddCookie(c)
    }
}

func getenv(k, d string) string { if v := os.Getenv(k); v != "" { return v }; return d }
