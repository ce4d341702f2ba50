package gateway

import (
    "context"
    "errors"
    "fmt"
    "strings"
)

// Error represents a payment gateway failure: unreachable, rejected session,
// or unparseable status.
type Error struct {
    Operation  string
    StatusCode int
    Message    string
    Timeout    bool
}

func (e *Error) Error() string {
    if e.Timeout {
        return fmt.Sprintf("gateway %s timed out", e.Operation)
    }
    if e.StatusCode != 0 {
        return fmt.Sprintf("gateway %s: HTTP %d: %s", e.Operation, e.StatusCode, e.Message)
    }
    return fmt.Sprintf("gateway %s: %s", e.Operation, e.Message)
}

// IsTimeout reports whether err is a gateway timeout. Timeouts are transient:
// they mean "no answer this cycle", never a definitive payment status.
func IsTimeout(err error) bool {
    var ge *Error
    if errors.As(err, &ge) && ge.Timeout { return true }
    if errors.Is(err, context.DeadlineExceeded) { return true }
    return strings.Contains(strings.ToLower(errString(err)), "timeout")
}

func errString(err error) string {
    if err == nil { return "" }
    return err.Error()
}
