package apperrors

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrEmptyGrid            = errors.New("grid is empty")
	ErrUnsupportedFormat    = errors.New("unsupported file format")
	ErrExtractorUnavailable = errors.New("extractor unavailable")
	ErrSessionComplete      = errors.New("session already complete")
	ErrCriticalPending      = errors.New("critical questions pending")
	ErrInvalidCatalog       = errors.New("invalid field catalog")
)
