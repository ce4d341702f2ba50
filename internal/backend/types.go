package backend

import (
    "time"

    "github.com/local/printkiosk/internal/pricing"
)

// Local transaction statuses stored at the backend. "pending" is the only
// state with multiple outcomes; completed records are removed entirely.
const (
    TxnPending    = "pending"
    TxnSettlement = "settlement"
    TxnExpired    = "expired"
    TxnCancelled  = "cancelled"
)

// Printer is the backend's view of one kiosk printer.
type Printer struct {
    ID         string  `json:"id"`
    Name       string  `json:"name"`
    Status     string  `json:"status"` // online|offline|maintenance
    PaperCount int     `json:"paperCount"`
    Location   string  `json:"location"`
    Latitude   float64 `json:"latitude,omitempty"`
    Longitude  float64 `json:"longitude,omitempty"`
}

// FileInfo describes the uploaded document attached to a transaction.
type FileInfo struct {
    Name    string `json:"name"`
    Size    int64  `json:"size"`
    Pages   int    `json:"pages"`
    Type    string `json:"type"`
    HasFile bool   `json:"hasFile"`
}

// Transaction is one print-order attempt persisted at the backend so it
// survives page reloads until its TTL expires.
type Transaction struct {
    OrderID      string           `json:"orderId"`
    Phone        string           `json:"phoneNumber"`
    PrinterID    string           `json:"printerId"`
    Status       string           `json:"status"`
    Cost         int              `json:"cost"`
    Settings     pricing.Snapshot `json:"settings"`
    File         FileInfo         `json:"fileData"`
    FileRef      string           `json:"fileRef,omitempty"`
    PaymentToken string           `json:"paymentToken"`
    RedirectURL  string           `json:"redirectUrl,omitempty"`
    CreatedAt    time.Time        `json:"createdAt"`
    ExpiresAt    time.Time        `json:"expiresAt"`
}

// PrintJob is a print submission. Document carries raw PDF bytes on first
// submission; restored submissions reference previously stored content via
// FileRef instead.
type PrintJob struct {
    OrderID     string
    PrinterID   string
    Document    []byte
    FileName    string
    FileRef     string
    Copies      int
    ColorPages  []int
    BWPages     []int
    TotalCost   int
    TotalPages  int
    PointsToAdd float64
    Phone       string
    Restored    bool
}

// User is a phone-identified kiosk account.
type User struct {
    Phone  string  `json:"phone"`
    Name   string  `json:"name,omitempty"`
    Points float64 `json:"points"`
}
