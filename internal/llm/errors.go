package llm

import (
	"context"
	"errors"
	"fmt"
)

// UpstreamError indicates that a model, embedding or retrieval call failed or timed out.
// It aborts the enclosing request; nothing in the pipeline retries it.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("upstream %s failed", e.Op)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline.
func (e *UpstreamError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// IsUpstream reports whether err is, or wraps, an *UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
