package preview

import (
    "bytes"
    "fmt"
    "image"
    "image/draw"
    "image/jpeg"

    "github.com/gen2brain/go-fitz"
    "github.com/rs/zerolog/log"
)

// Color modes for page thumbnails. Pages marked black/white render as
// grayscale so the preview matches what comes off the printer.
const (
    ColorRGB  = "rgb"
    ColorGray = "gray"
)

// RenderPageToJPEG renders one PDF page as a JPEG thumbnail (in-memory).
// Returns JPEG bytes, width, height, error.
func RenderPageToJPEG(pdfPath string, pageNum, dpi, quality int, colorMode string) ([]byte, int, int, error) {
    doc, err := fitz.New(pdfPath)
    if err != nil {
        return nil, 0, 0, fmt.Errorf("failed to open PDF: %w", err)
    }
    defer doc.Close()

    // go-fitz uses 0-based indexing
    img, err := doc.ImageDPI(pageNum-1, float64(dpi))
    if err != nil {
        return nil, 0, 0, fmt.Errorf("failed to render page %d: %w", pageNum, err)
    }

    bounds := img.Bounds()
    width := bounds.Dx()
    height := bounds.Dy()

    var finalImg image.Image
    if colorMode == ColorGray {
        grayImg := image.NewGray(bounds)
        draw.Draw(grayImg, bounds, img, image.Point{}, draw.Src)
        finalImg = grayImg
    } else {
        finalImg = img
    }

    var buf bytes.Buffer
    opts := &jpeg.Options{Quality: quality}
    if err := jpeg.Encode(&buf, finalImg, opts); err != nil {
        return nil, 0, 0, fmt.Errorf("failed to encode JPEG: %w", err)
    }

    log.Debug().
        Int("page", pageNum).
        Int("jpeg_size", buf.Len()).
        Str("color", colorMode).
        Int("dpi", dpi).
        Msg("rendered preview page")

    return buf.Bytes(), width, height, nil
}
