package pricing

import (
    "sync"

    "github.com/rs/zerolog/log"
)

// PageSelection is the per-page state of one uploaded document.
type PageSelection struct {
    Page     int    `json:"page"`
    Mode     string `json:"type"`
    Included bool   `json:"selected"`
}

// PrintSettings applies to the whole job.
type PrintSettings struct {
    PaperSize   string `json:"paperSize"`
    Orientation string `json:"orientation"`
    Quality     string `json:"quality"`
    Margins     string `json:"margins"`
    Duplex      bool   `json:"duplex"`
}

// DefaultSettings returns the settings a fresh upload starts with.
func DefaultSettings() PrintSettings {
    return PrintSettings{
        PaperSize:   PaperA4,
        Orientation: OrientationPortrait,
        Quality:     QualityNormal,
        Margins:     MarginsNormal,
        Duplex:      false,
    }
}

// SettingsPatch carries partial updates to PrintSettings. Nil fields keep the
// current value.
type SettingsPatch struct {
    PaperSize   *string `json:"paperSize,omitempty"`
    Orientation *string `json:"orientation,omitempty"`
    Quality     *string `json:"quality,omitempty"`
    Margins     *string `json:"margins,omitempty"`
    Duplex      *bool   `json:"duplex,omitempty"`
}

// Snapshot is the single settings-changed payload emitted after every
// mutation. Cost is always consistent with the rest of the fields.
type Snapshot struct {
    ColorPages    []int         `json:"colorPages"`
    BWPages       []int         `json:"bwPages"`
    SelectedPages []int         `json:"selectedPages"`
    Copies        int           `json:"copies"`
    Settings      PrintSettings `json:"printSettings"`
    Cost          int           `json:"cost"`
}

// Seed optionally restores a prior selection when a document is re-opened
// (e.g. resuming a pending transaction).
type Seed struct {
    ColorPages []int
    BWPages    []int
    Copies     int
    Settings   *PrintSettings
}

// Engine owns page-level selection state for one document and derives the
// job cost deterministically on every mutation.
type Engine struct {
    mu       sync.Mutex
    rates    Rates
    pages    []PageSelection
    settings PrintSettings
    copies   int
    notify   func(Snapshot)
}

// NewEngine builds one PageSelection per page and emits the initial cost.
// Default layout: page 1 prints in color, the rest black/white, everything
// included. A seed overrides the per-page modes and job settings.
func NewEngine(totalPages int, seed *Seed, rates Rates, notify func(Snapshot)) *Engine {
    e := &Engine{
        rates:    rates,
        settings: DefaultSettings(),
        copies:   MinCopies,
        notify:   notify,
    }
    if seed != nil {
        if seed.Settings != nil { e.settings = *seed.Settings }
        e.copies = clampCopies(seed.Copies)
    }

    e.pages = make([]PageSelection, 0, totalPages)
    for i := 1; i <= totalPages; i++ {
        mode := ModeBW
        switch {
        case seed != nil && (len(seed.ColorPages) > 0 || len(seed.BWPages) > 0):
            if containsInt(seed.ColorPages, i) { mode = ModeColor }
        case i == 1:
            mode = ModeColor
        }
        e.pages = append(e.pages, PageSelection{Page: i, Mode: mode, Included: true})
    }

    e.emit()
    return e
}

// Pages returns a copy of the current per-page state.
func (e *Engine) Pages() []PageSelection {
    e.mu.Lock()
    defer e.mu.Unlock()
    out := make([]PageSelection, len(e.pages))
    copy(out, e.pages)
    return out
}

// Settings returns the current job settings and copy count.
func (e *Engine) Settings() (PrintSettings, int) {
    e.mu.Lock()
    defer e.mu.Unlock()
    return e.settings, e.copies
}

// SetPageMode updates one page's print mode. Out-of-range pages are rejected
// without mutating state.
func (e *Engine) SetPageMode(page int, mode string) error {
    e.mu.Lock()
    defer e.mu.Unlock()
    idx := page - 1
    if idx < 0 || idx >= len(e.pages) {
        log.Warn().Int("page", page).Int("total", len(e.pages)).Msg("page mode change rejected: out of range")
        return errPageOutOfRange(page, len(e.pages))
    }
    if mode != ModeColor && mode != ModeBW {
        return &ValidationError{Message: "unknown print mode: " + mode}
    }
    e.pages[idx].Mode = mode
    e.emit()
    return nil
}

// SetAllPagesMode sets the print mode uniformly across all pages. Inclusion
// flags are untouched.
func (e *Engine) SetAllPagesMode(mode string) error {
    e.mu.Lock()
    defer e.mu.Unlock()
    if mode != ModeColor && mode != ModeBW {
        return &ValidationError{Message: "unknown print mode: " + mode}
    }
    for i := range e.pages {
        e.pages[i].Mode = mode
    }
    e.emit()
    return nil
}

// SetPageIncluded toggles whether a page is part of the job. Excluded pages
// keep their mode, so re-including restores the prior per-page contribution.
func (e *Engine) SetPageIncluded(page int, included bool) error {
    e.mu.Lock()
    defer e.mu.Unlock()
    idx := page - 1
    if idx < 0 || idx >= len(e.pages) {
        log.Warn().Int("page", page).Int("total", len(e.pages)).Msg("page selection change rejected: out of range")
        return errPageOutOfRange(page, len(e.pages))
    }
    e.pages[idx].Included = included
    e.emit()
    return nil
}

// SelectAll includes every page in the job.
func (e *Engine) SelectAll() {
    e.mu.Lock()
    defer e.mu.Unlock()
    for i := range e.pages {
        e.pages[i].Included = true
    }
    e.emit()
}

// DeselectAll excludes every page from the job.
func (e *Engine) DeselectAll() {
    e.mu.Lock()
    defer e.mu.Unlock()
    for i := range e.pages {
        e.pages[i].Included = false
    }
    e.emit()
}

// SetCopies clamps to the allowed range and recomputes cost.
func (e *Engine) SetCopies(n int) {
    e.mu.Lock()
    defer e.mu.Unlock()
    e.copies = clampCopies(n)
    e.emit()
}

// ApplySettings merges a partial settings update and recomputes cost, since
// paper size and quality affect unit prices.
func (e *Engine) ApplySettings(patch SettingsPatch) {
    e.mu.Lock()
    defer e.mu.Unlock()
    if patch.PaperSize != nil { e.settings.PaperSize = *patch.PaperSize }
    if patch.Orientation != nil { e.settings.Orientation = *patch.Orientation }
    if patch.Quality != nil { e.settings.Quality = *patch.Quality }
    if patch.Margins != nil { e.settings.Margins = *patch.Margins }
    if patch.Duplex != nil { e.settings.Duplex = *patch.Duplex }
    e.emit()
}

// CurrentCost is a pure function of current state. It always equals the cost
// carried by the last emitted snapshot.
func (e *Engine) CurrentCost() int {
    e.mu.Lock()
    defer e.mu.Unlock()
    return e.cost()
}

// CurrentSnapshot returns the same payload the change notification carries.
func (e *Engine) CurrentSnapshot() Snapshot {
    e.mu.Lock()
    defer e.mu.Unlock()
    return e.snapshot()
}

// cost tallies included pages by mode, prices black/white sheets with the
// volume rule, applies the quality surcharge per sheet, and multiplies the
// complete per-copy subtotal by the copy count. The discount decision is
// made on sheets (pages x copies), not pages alone. Callers hold mu.
func (e *Engine) cost() int {
    colorCount, bwCount := 0, 0
    for _, p := range e.pages {
        if !p.Included { continue }
        if p.Mode == ModeColor { colorCount++ } else { bwCount++ }
    }

    colorUnit := e.rates.colorUnit(e.settings.PaperSize)
    bwUnit := e.rates.bwUnit(e.settings.PaperSize, bwCount*e.copies)
    surcharge := e.rates.surcharge(e.settings.Quality)

    perCopy := colorCount*(colorUnit+surcharge) + bwCount*(bwUnit+surcharge)
    return perCopy * e.copies
}

func (e *Engine) snapshot() Snapshot {
    snap := Snapshot{
        ColorPages:    []int{},
        BWPages:       []int{},
        SelectedPages: []int{},
        Copies:        e.copies,
        Settings:      e.settings,
        Cost:          e.cost(),
    }
    for _, p := range e.pages {
        if !p.Included { continue }
        snap.SelectedPages = append(snap.SelectedPages, p.Page)
        if p.Mode == ModeColor {
            snap.ColorPages = append(snap.ColorPages, p.Page)
        } else {
            snap.BWPages = append(snap.BWPages, p.Page)
        }
    }
    return snap
}

func (e *Engine) emit() {
    if e.notify == nil { return }
    e.notify(e.snapshot())
}

func clampCopies(n int) int {
    if n < MinCopies { return MinCopies }
    if n > MaxCopies { return MaxCopies }
    return n
}

func containsInt(xs []int, v int) bool {
    for _, x := range xs {
        if x == v { return true }
    }
    return false
}
