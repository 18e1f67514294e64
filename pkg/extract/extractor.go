package extract

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/census-engine/pkg/apperrors"
	"github.com/ekaya-inc/census-engine/pkg/models"
)

// Result is what an extractor produces for one file.
type Result struct {
	Grid     *models.RawGrid
	FreeText string
	// Method describes how the grid was obtained, for traceability.
	Method string
	// LowFidelity marks grids reconstructed from layout or OCR.
	LowFidelity bool
}

// GridExtractor turns raw file bytes into a grid of cells.
type GridExtractor interface {
	Extract(ctx context.Context, file models.FileIdentity, content []byte, det models.FormatDetection) (*Result, error)
}

// Registry selects the extractor for a source kind.
type Registry struct {
	extractors map[models.SourceKind]GridExtractor
	fallback   GridExtractor
	logger     *zap.Logger
}

// NewRegistry creates an empty registry. Kinds without an extractor,
// including unknown, fall back to fallback.
func NewRegistry(fallback GridExtractor, logger *zap.Logger) *Registry {
	return &Registry{
		extractors: make(map[models.SourceKind]GridExtractor),
		fallback:   fallback,
		logger:     logger.Named("extractor-registry"),
	}
}

// Register sets the extractor for a kind.
func (r *Registry) Register(kind models.SourceKind, e GridExtractor) {
	r.extractors[kind] = e
}

// Extract runs the extractor for the detected kind. A result without a
// usable grid is a fatal precondition failure.
func (r *Registry) Extract(ctx context.Context, file models.FileIdentity, content []byte, det models.FormatDetection) (*Result, error) {
	e, ok := r.extractors[det.Kind]
	if !ok {
		if r.fallback == nil {
			return nil, fmt.Errorf("no extractor for %s: %w", det.Kind, apperrors.ErrUnsupportedFormat)
		}
		r.logger.Debug("Using fallback extractor",
			zap.String("file_name", file.Name),
			zap.String("kind", string(det.Kind)))
		e = r.fallback
	}

	res, err := e.Extract(ctx, file, content, det)
	if err != nil {
		return nil, err
	}
	if res.Grid == nil || res.Grid.IsEmpty() {
		return nil, fmt.Errorf("%s produced no cells: %w", res.Method, apperrors.ErrUnsupportedFormat)
	}
	return res, nil
}

var _ GridExtractor = (*Registry)(nil)
