package pricing

// Page print modes.
const (
    ModeColor = "color"
    ModeBW    = "bw"
)

// Paper sizes offered by the kiosk.
const (
    PaperA4     = "A4"
    PaperA5     = "A5"
    PaperLetter = "LETTER"
    PaperLegal  = "LEGAL"
)

// Print quality levels.
const (
    QualityDraft  = "DRAFT"
    QualityNormal = "NORMAL"
    QualityHigh   = "HIGH"
)

// Orientations and margins.
const (
    OrientationPortrait  = "PORTRAIT"
    OrientationLandscape = "LANDSCAPE"

    MarginsNormal  = "NORMAL"
    MarginsMinimal = "MINIMAL"
    MarginsNone    = "NONE"
)

// Copies bounds for a single job.
const (
    MinCopies = 1
    MaxCopies = 50
)

// Rates is the full price table for one deployment. All amounts are rupiah
// per sheet. The A4 black/white price is volume-based: once the job reaches
// DiscountSheets sheets (pages x copies) the per-sheet price drops from
// BWStandard to BWDiscount. Other sizes use the fixed BW table.
type Rates struct {
    Color map[string]int
    BW    map[string]int

    BWStandard     int
    BWDiscount     int
    DiscountSheets int

    QualitySurcharge map[string]int

    ColorFallback int
    BWFallback    int
}

// DefaultRates returns the deployed price table.
func DefaultRates() Rates {
    return Rates{
        Color: map[string]int{
            PaperA4:     1500,
            PaperA5:     1500,
            PaperLetter: 2000,
            PaperLegal:  2500,
        },
        BW: map[string]int{
            PaperA5:     400,
            PaperLetter: 500,
            PaperLegal:  600,
        },
        BWStandard:     400,
        BWDiscount:     200,
        DiscountSheets: 10,
        QualitySurcharge: map[string]int{
            QualityDraft:  0,
            QualityNormal: 0,
            QualityHigh:   500,
        },
        ColorFallback: 1500,
        BWFallback:    500,
    }
}

// colorUnit returns the per-sheet color price for a paper size.
func (r Rates) colorUnit(paperSize string) int {
    if p, ok := r.Color[paperSize]; ok { return p }
    return r.ColorFallback
}

// bwUnit returns the per-sheet black/white price. The volume discount only
// applies to A4; sheets is pages x copies.
func (r Rates) bwUnit(paperSize string, sheets int) int {
    if paperSize == PaperA4 {
        if sheets >= r.DiscountSheets { return r.BWDiscount }
        return r.BWStandard
    }
    if p, ok := r.BW[paperSize]; ok { return p }
    return r.BWFallback
}

func (r Rates) surcharge(quality string) int {
    if s, ok := r.QualitySurcharge[quality]; ok { return s }
    return 0
}
