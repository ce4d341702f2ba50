package docstore

import "context"

// Metadata describes a stored document.
type Metadata struct {
    OriginalName string `json:"original_name"`
    ContentType  string `json:"content_type"`
    Size         int64  `json:"size"`
    Pages        int    `json:"pages"`
}

// Store holds uploaded documents between upload and print. Documents are
// encrypted at rest so a pending transaction can be resumed days later
// without the PDF ever sitting readable on shared infrastructure.
type Store interface {
    Put(ctx context.Context, docID string, data []byte, meta Metadata) error
    Get(ctx context.Context, docID string) ([]byte, Metadata, error)
    Delete(ctx context.Context, docID string) error
    // Ref returns an addressable reference (s3:// or file://) for the
    // stored, encrypted blob.
    Ref(docID string) string
}
