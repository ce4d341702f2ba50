package backend

import "fmt"

// Error represents a print-backend failure: unreachable service or a
// rejected request.
type Error struct {
    Operation  string
    StatusCode int
    Message    string
    Timeout    bool
}

func (e *Error) Error() string {
    if e.Timeout {
        return fmt.Sprintf("backend %s timed out", e.Operation)
    }
    if e.StatusCode != 0 {
        return fmt.Sprintf("backend %s: HTTP %d: %s", e.Operation, e.StatusCode, e.Message)
    }
    return fmt.Sprintf("backend %s: %s", e.Operation, e.Message)
}

// PrintError means the backend rejected a print submission (offline printer,
// insufficient paper, invalid payload). The transaction record must stay
// intact so the job can be retried.
type PrintError struct {
    OrderID string
    Reason  string
}

func (e *PrintError) Error() string {
    return fmt.Sprintf("print submission rejected for %s: %s", e.OrderID, e.Reason)
}
