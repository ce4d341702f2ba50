package docstore

import (
    "context"
    "encoding/json"
    "fmt"
    "os"
    "path/filepath"
    "time"

    "github.com/rs/zerolog/log"
)

// LocalStore keeps encrypted documents on the local filesystem. Used when no
// S3 bucket is configured, typically single-kiosk deployments.
type LocalStore struct {
    dir      string
    password string
}

// NewLocalStore creates the directory if needed.
func NewLocalStore(dir, password string) (*LocalStore, error) {
    if err := os.MkdirAll(dir, 0o755); err != nil {
        return nil, fmt.Errorf("failed to create upload dir: %w", err)
    }
    return &LocalStore{dir: dir, password: password}, nil
}

func (s *LocalStore) path(docID string) string {
    return filepath.Join(s.dir, docID+".enc")
}

func (s *LocalStore) metaPath(docID string) string {
    return filepath.Join(s.dir, docID+".json")
}

func (s *LocalStore) Put(ctx context.Context, docID string, data []byte, meta Metadata) error {
    blob, err := encrypt(data, s.password)
    if err != nil {
        return fmt.Errorf("failed to encrypt document: %w", err)
    }
    if err := os.WriteFile(s.path(docID), blob, 0o600); err != nil {
        return fmt.Errorf("failed to write document: %w", err)
    }
    mb, _ := json.Marshal(meta)
    if err := os.WriteFile(s.metaPath(docID), mb, 0o600); err != nil {
        return fmt.Errorf("failed to write metadata: %w", err)
    }
    log.Info().Str("doc_id", docID).Int("size", len(data)).Msg("stored encrypted document locally")
    return nil
}

func (s *LocalStore) Get(ctx context.Context, docID string) ([]byte, Metadata, error) {
    blob, err := os.ReadFile(s.path(docID))
    if err != nil {
        return nil, Metadata{}, fmt.Errorf("failed to read document: %w", err)
    }
    data, err := decrypt(blob, s.password)
    if err != nil {
        return nil, Metadata{}, err
    }
    meta := Metadata{Size: int64(len(data))}
    if mb, err := os.ReadFile(s.metaPath(docID)); err == nil {
        _ = json.Unmarshal(mb, &meta)
    }
    return data, meta, nil
}

func (s *LocalStore) Delete(ctx context.Context, docID string) error {
    err := os.Remove(s.path(docID))
    _ = os.Remove(s.metaPath(docID))
    if os.IsNotExist(err) { return nil }
    return err
}

func (s *LocalStore) Ref(docID string) string {
    abs, err := filepath.Abs(s.path(docID))
    if err != nil { abs = s.path(docID) }
    return "file://" + abs
}

// Sweep removes documents older than ttl. Pending transactions keep their
// documents alive through the backend record, so anything older than the
// transaction TTL plus slack is garbage.
func (s *LocalStore) Sweep(ttl time.Duration) {
    entries, err := os.ReadDir(s.dir)
    if err != nil { return }
    cutoff := time.Now().Add(-ttl)
    removed := 0
    for _, e := range entries {
        info, err := e.Info()
        if err != nil || info.IsDir() { continue }
        if info.ModTime().Before(cutoff) {
            if os.Remove(filepath.Join(s.dir, e.Name())) == nil { removed++ }
        }
    }
    if removed > 0 {
        log.Info().Int("removed", removed).Msg("swept expired documents")
    }
}
