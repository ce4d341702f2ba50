package filetype

import (
    "fmt"

    "github.com/gabriel-vasile/mimetype"
    "github.com/rs/zerolog/log"
)

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
    MIMEType    string
    Extension   string
    Printable   bool
    Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
    return &Detector{}
}

// Detect detects the actual file type using magic bytes, not filename.
// The kiosk only prints PDFs, so everything else is reported unprintable
// with a description suitable for the rejection message.
func (d *Detector) Detect(filePath string) (*FileTypeInfo, error) {
    mtype, err := mimetype.DetectFile(filePath)
    if err != nil {
        return nil, fmt.Errorf("failed to detect file type: %w", err)
    }
    return d.classify(mtype), nil
}

// DetectBytes is Detect for in-memory uploads.
func (d *Detector) DetectBytes(data []byte) *FileTypeInfo {
    return d.classify(mimetype.Detect(data))
}

func (d *Detector) classify(mtype *mimetype.MIME) *FileTypeInfo {
    info := &FileTypeInfo{
        MIMEType:  mtype.String(),
        Extension: mtype.Extension(),
    }
    log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Msg("detected file type")

    switch info.MIMEType {
    case "application/pdf":
        info.Printable = true
        info.Description = "PDF document"
    case "application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/msword":
        info.Description = "Word document (convert to PDF before uploading)"
    case "application/vnd.openxmlformats-officedocument.presentationml.presentation", "application/vnd.ms-powerpoint":
        info.Description = "PowerPoint presentation (convert to PDF before uploading)"
    case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "application/vnd.ms-excel":
        info.Description = "Excel spreadsheet (convert to PDF before uploading)"
    default:
        info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
    }
    return info
}
