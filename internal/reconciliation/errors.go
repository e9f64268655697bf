package reconciliation

import "fmt"

// LogicError marks a decision the engine itself should never have reached,
// like pricing a protective stop on the same side as the group it covers. It
// is not retryable and is allowed to surface to the caller.
type LogicError struct {
	Op     string
	Detail string
}

func (e *LogicError) Error() string {
	return fmt.Sprintf("logic error in %s: %s", e.Op, e.Detail)
}

func logicErrorf(op, format string, args ...any) *LogicError {
	return &LogicError{Op: op, Detail: fmt.Sprintf(format, args...)}
}
