package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration indicates missing credentials or settings; reported before any work starts.
	ErrConfiguration = errors.New("configuration error")
	// ErrValidation indicates invalid caller input.
	ErrValidation = errors.New("validation failed")
	// ErrPersistence indicates a store write or read failed mid-stage.
	ErrPersistence = errors.New("persistence error")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
)

// maxExcerpt bounds the raw upstream body kept for diagnosis.
const maxExcerpt = 512

// UpstreamError describes an ERP failure: a non-2xx status or a body that could not be decoded.
type UpstreamError struct {
	Op      string
	Status  int
	Excerpt string
	Err     error
}

// NewUpstreamError builds an UpstreamError keeping at most 512 bytes of the raw body.
func NewUpstreamError(op string, status int, body []byte, err error) *UpstreamError {
	excerpt := string(body)
	if len(excerpt) > maxExcerpt {
		excerpt = excerpt[:maxExcerpt]
	}
	return &UpstreamError{Op: op, Status: status, Excerpt: excerpt, Err: err}
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("upstream %s", e.Op)
	if e.Status > 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Excerpt != "" {
		msg += fmt.Sprintf(" (body: %q)", e.Excerpt)
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsUpstream reports whether err carries an UpstreamError.
func IsUpstream(err error) bool {
	var upstream *UpstreamError
	return errors.As(err, &upstream)
}

// Persistence wraps a store error so the HTTP layer can classify it.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
