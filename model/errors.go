package model

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrExtraction       = errors.New("extraction error")
	ErrEmbedding        = errors.New("embedding error")
	ErrSummarization    = errors.New("summarization error")
	ErrQA               = errors.New("qa error")
	ErrNoContext        = errors.New("no context error")
	ErrTimeout          = errors.New("timeout error")
	ErrDocumentNotFound = errors.New("document not found")
)

// PipelineError is the typed failure returned to callers of the core.
// Kind is one of the sentinel errors above and can be matched with errors.Is.
type PipelineError struct {
	Kind        error
	Fingerprint string
	// Retryable is true when the same request may succeed later
	// (transient model failure or deadline), false when the document
	// itself cannot be processed.
	Retryable bool
	Err       error
}

func (e *PipelineError) Error() string {
	msg := e.Kind.Error()
	if e.Fingerprint != "" {
		msg = fmt.Sprintf("%s [%s]", msg, shortFingerprint(e.Fingerprint))
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func (e *PipelineError) Is(target error) bool {
	return target == e.Kind
}

// NewPipelineError creates a typed error of the given kind
func NewPipelineError(kind error, fingerprint string, retryable bool, err error) *PipelineError {
	return &PipelineError{
		Kind:        kind,
		Fingerprint: fingerprint,
		Retryable:   retryable,
		Err:         err,
	}
}

// IsRetryable reports whether err is a typed error that may succeed on retry
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// AsTimeout converts context cancellation and deadline errors into ErrTimeout.
// Other errors, including already typed ones, are returned as they are.
func AsTimeout(fingerprint string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewPipelineError(ErrTimeout, fingerprint, true, err)
	}
	return err
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
