package pricing

import "fmt"

// ValidationError represents malformed input to the engine. It never reaches
// the network: callers reject the input and keep the previous state.
type ValidationError struct {
    Message string
}

func (e *ValidationError) Error() string {
    return fmt.Sprintf("validation error: %s", e.Message)
}

func errPageOutOfRange(page, total int) *ValidationError {
    return &ValidationError{Message: fmt.Sprintf("page %d out of range 1..%d", page, total)}
}
