package ai

import (
	"context"
	"errors"
)

// ErrToolLoopExceeded is returned when the model keeps requesting tools past
// the round budget without ever producing a final answer.
var ErrToolLoopExceeded = errors.New("tool loop exceeded maximum rounds")

// ErrorType categorizes tool errors for structured handling by the agent loop.
type ErrorType string

const (
	ErrValidation ErrorType = "validation" // bad arguments, missing params
	ErrTimeout    ErrorType = "timeout"    // tool exceeded its deadline
	ErrExecution  ErrorType = "execution"  // executor returned an error
)

// ToolError wraps a tool execution failure with type classification.
// Message is what the model sees; keep it short and human-readable.
type ToolError struct {
	Type    ErrorType
	Message string
}

func (e *ToolError) Error() string { return e.Message }

// errorReason converts a tool failure into the short reason string surfaced
// to the model inside the tool-result payload.
func errorReason(err error) string {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "tool timed out"
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "executor_failed"
}
