// Package errors implements the typed error taxonomy tool responses are
// built from. Each component either returns a result envelope or one of
// these typed errors; there is no silent swallowing except the two
// documented fall-throughs (vector backend -> lexical fallback, native BM25
// -> lexical fallback), which live in internal/retriever, not here.
package errors

import (
	"fmt"
	"time"
)

// Code is the wire-facing error code in the tool error envelope
// {error:{code, reason, recoverable, hint?}}.
type Code string

const (
	CodeInvalidInput        Code = "INVALID_INPUT"
	CodeWorkspaceNotFound   Code = "WORKSPACE_NOT_FOUND"
	CodeSourceDirNotFound   Code = "SOURCE_DIR_NOT_FOUND"
	CodeWorkspaceSandboxed  Code = "WORKSPACE_PATH_SANDBOXED"
	CodeElementNotFound     Code = "ELEMENT_NOT_FOUND"
	CodeAnchorNotFound      Code = "ANCHOR_NOT_FOUND"
	CodeBackendTransient    Code = "BACKEND_TRANSIENT"
	CodeBackendNonTransient Code = "BACKEND_ERROR"
	CodeConflict            Code = "CONFLICT"
	CodeFatal               Code = "FATAL"
)

// recoverableByCode records which codes are recoverable by default. A
// caller needing a one-off override builds a ToolError directly instead of
// going through NewByCode.
var recoverableByCode = map[Code]bool{
	CodeInvalidInput:        true,
	CodeWorkspaceNotFound:   true,
	CodeSourceDirNotFound:   true,
	CodeWorkspaceSandboxed:  true,
	CodeElementNotFound:     true,
	CodeAnchorNotFound:      true,
	CodeBackendTransient:    true,
	CodeBackendNonTransient: false,
	CodeConflict:            false,
	CodeFatal:               false,
}

// ToolError is the typed error every tool handler surfaces instead of a bare
// error, so the response envelope can carry code/recoverable/hint without
// string sniffing.
type ToolError struct {
	Code       Code
	Reason     string
	Hint       string
	Underlying error
	ProjectID  string
	Timestamp  time.Time
}

func NewByCode(code Code, reason string) *ToolError {
	return &ToolError{
		Code:      code,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

func (e *ToolError) WithHint(hint string) *ToolError {
	e.Hint = hint
	return e
}

func (e *ToolError) WithProject(projectID string) *ToolError {
	e.ProjectID = projectID
	return e
}

func (e *ToolError) WithUnderlying(err error) *ToolError {
	e.Underlying = err
	return e
}

func (e *ToolError) Recoverable() bool {
	return recoverableByCode[e.Code]
}

func (e *ToolError) Error() string {
	if e.ProjectID != "" {
		return fmt.Sprintf("[%s] %s (project=%s): %s", e.Code, e.Reason, e.ProjectID, e.underlyingString())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Reason, e.underlyingString())
}

func (e *ToolError) underlyingString() string {
	if e.Underlying == nil {
		return "<none>"
	}
	return e.Underlying.Error()
}

func (e *ToolError) Unwrap() error {
	return e.Underlying
}

// BuildWarning is a single-file or single-statement failure collected during
// a build transaction rather than aborting it. Orchestrator and GraphBuilder
// accumulate these into result.Warnings/result.Errors.
type BuildWarning struct {
	Path      string
	Operation string
	Err       error
	Fatal     bool
}

func (w BuildWarning) String() string {
	kind := "warning"
	if w.Fatal {
		kind = "error"
	}
	return fmt.Sprintf("%s: %s (%s): %v", kind, w.Path, w.Operation, w.Err)
}

// MultiError aggregates independent failures (e.g. per-statement batch
// failures) without aborting the remaining work.
type MultiError struct {
	Errors []error
}

func NewMultiError(errs []error) *MultiError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return &MultiError{Errors: filtered}
}

func (e *MultiError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
}

func (e *MultiError) Unwrap() []error {
	return e.Errors
}

// IsTransient classifies a backend error using substring heuristics the
// store client applies before deciding whether to retry once.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"service unavailable", "ServiceUnavailable",
		"connection reset", "broken pipe",
		"temporary", "i/o timeout", "EOF",
		"context deadline exceeded",
	} {
		if contains(msg, marker) {
			return true
		}
	}
	return false
}

func contains(haystack, needle string) bool {
	return len(needle) == 0 || indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	n, m := len(haystack), len(needle)
	if m > n {
		return -1
	}
	for i := 0; i <= n-m; i++ {
		if haystack[i:i+m] == needle {
			return i
		}
	}
	return -1
}
