package docstore

import (
    "bytes"
    "context"
    "os"
    "path/filepath"
    "strings"
    "testing"
    "time"
)

func TestLocalStoreRoundTrip(t *testing.T) {
    s, err := NewLocalStore(t.TempDir(), "pw")
    if err != nil {
        t.Fatalf("NewLocalStore: %v", err)
    }
    ctx := context.Background()
    data := []byte("%PDF-1.4 local store test")
    meta := Metadata{OriginalName: "laporan.pdf", ContentType: "application/pdf", Size: int64(len(data)), Pages: 3}

    if err := s.Put(ctx, "doc-1", data, meta); err != nil {
        t.Fatalf("Put: %v", err)
    }

    // On-disk blob must be encrypted, not plaintext.
    raw, err := os.ReadFile(s.path("doc-1"))
    if err != nil {
        t.Fatalf("read blob: %v", err)
    }
    if bytes.Contains(raw, data) {
        t.Error("stored blob contains plaintext")
    }

    got, gotMeta, err := s.Get(ctx, "doc-1")
    if err != nil {
        t.Fatalf("Get: %v", err)
    }
    if !bytes.Equal(got, data) {
        t.Error("document mismatch after round trip")
    }
    if gotMeta.OriginalName != "laporan.pdf" || gotMeta.Pages != 3 {
        t.Errorf("metadata = %+v", gotMeta)
    }
}

func TestLocalStoreRef(t *testing.T) {
    s, err := NewLocalStore(t.TempDir(), "pw")
    if err != nil {
        t.Fatalf("NewLocalStore: %v", err)
    }
    ref := s.Ref("doc-1")
    if !strings.HasPrefix(ref, "file://") {
        t.Errorf("ref = %q, want file:// scheme", ref)
    }
    if !strings.HasSuffix(ref, "doc-1.enc") {
        t.Errorf("ref = %q, want .enc suffix", ref)
    }
}

func TestLocalStoreDeleteIdempotent(t *testing.T) {
    s, err := NewLocalStore(t.TempDir(), "pw")
    if err != nil {
        t.Fatalf("NewLocalStore: %v", err)
    }
    ctx := context.Background()
    if err := s.Put(ctx, "doc-1", []byte("x"), Metadata{}); err != nil {
        t.Fatalf("Put: %v", err)
    }
    if err := s.Delete(ctx, "doc-1"); err != nil {
        t.Fatalf("Delete: %v", err)
    }
    if err := s.Delete(ctx, "doc-1"); err != nil {
        t.Errorf("second Delete: %v, want nil", err)
    }
    if _, _, err := s.Get(ctx, "doc-1"); err == nil {
        t.Error("Get succeeded after Delete")
    }
}

func TestLocalStoreSweep(t *testing.T) {
    dir := t.TempDir()
    s, err := NewLocalStore(dir, "pw")
    if err != nil {
        t.Fatalf("NewLocalStore: %v", err)
    }
    ctx := context.Background()
    if err := s.Put(ctx, "old", []byte("old"), Metadata{}); err != nil {
        t.Fatalf("Put: %v", err)
    }
    if err := s.Put(ctx, "fresh", []byte("fresh"), Metadata{}); err != nil {
        t.Fatalf("Put: %v", err)
    }

    stale := time.Now().Add(-2 * time.Hour)
    for _, name := range []string{"old.enc", "old.json"} {
        if err := os.Chtimes(filepath.Join(dir, name), stale, stale); err != nil {
            t.Fatalf("chtimes: %v", err)
        }
    }

    s.Sweep(time.Hour)

    if _, _, err := s.Get(ctx, "old"); err == nil {
        t.Error("expired document survived the sweep")
    }
    if _, _, err := s.Get(ctx, "fresh"); err != nil {
        t.Errorf("fresh document swept: %v", err)
    }
}
