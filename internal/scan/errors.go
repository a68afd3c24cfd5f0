package scan

import (
	"errors"
	"fmt"
)

// Scan error taxonomy
var (
	ErrValidation          = errors.New("validation error")
	ErrUnsupportedScanKind = errors.New("unsupported scan kind")
	ErrProviderDispatch    = errors.New("provider dispatch failed")
	ErrProviderPoll        = errors.New("provider poll failed")
	ErrNormalization       = errors.New("normalization failed")
	ErrNotFound            = errors.New("not found")
	ErrTimeout             = errors.New("scan timed out")
	ErrQuotaExceeded       = errors.New("scan quota exceeded")
	ErrInvalidTransition   = errors.New("invalid scan state transition")
	ErrShuttingDown        = errors.New("orchestrator is shutting down")
)

// Error codes stored on failed scans
const (
	CodeValidation          = "ValidationError"
	CodeUnsupportedScanKind = "UnsupportedScanKind"
	CodeProviderDispatch    = "ProviderDispatchError"
	CodeProviderPoll        = "ProviderPollError"
	CodeNormalization       = "NormalizationError"
	CodeNotFound            = "NotFoundError"
	CodeTimeout             = "Timeout"
	CodeQuotaExceeded       = "QuotaExceeded"
	CodeInternal            = "InternalError"
)

// ErrorCode returns the machine-readable tag of err
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrUnsupportedScanKind):
		return CodeUnsupportedScanKind
	case errors.Is(err, ErrProviderDispatch):
		return CodeProviderDispatch
	case errors.Is(err, ErrProviderPoll):
		return CodeProviderPoll
	case errors.Is(err, ErrNormalization):
		return CodeNormalization
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrQuotaExceeded):
		return CodeQuotaExceeded
	}
	return CodeInternal
}

func wrap(sentinel error, err error) error {
	return fmt.Errorf("%w: %v", sentinel, err)
}

// failure is a lifecycle error that carries the raw provider output for diagnosis
type failure struct {
	err error
	raw []byte
}

func (f *failure) Error() string { return f.err.Error() }
func (f *failure) Unwrap() error { return f.err }
