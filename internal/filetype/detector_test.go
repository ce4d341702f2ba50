package filetype

import (
    "strings"
    "testing"
)

// Minimal valid headers for magic-byte detection.
var (
    pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")
    pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}
)

func TestDetectBytesPDF(t *testing.T) {
    info := New().DetectBytes(pdfBytes)
    if info.MIMEType != "application/pdf" {
        t.Errorf("mime = %q, want application/pdf", info.MIMEType)
    }
    if !info.Printable {
        t.Error("PDF should be printable")
    }
}

func TestDetectBytesRejectsNonPDF(t *testing.T) {
    info := New().DetectBytes(pngBytes)
    if info.Printable {
        t.Errorf("%s reported printable", info.MIMEType)
    }
    if !strings.HasPrefix(info.Description, "Unsupported file type") {
        t.Errorf("description = %q", info.Description)
    }
}

func TestDetectIgnoresExtension(t *testing.T) {
    // Magic bytes win over whatever the client named the file; a renamed
    // PNG must not slip through as a PDF.
    info := New().DetectBytes(pngBytes)
    if info.MIMEType == "application/pdf" {
        t.Error("PNG content classified as PDF")
    }
}
