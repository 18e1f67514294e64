package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/census-engine/pkg/apperrors"
	"github.com/ekaya-inc/census-engine/pkg/models"
)

type stubExtractor struct {
	name  string
	grid  *models.RawGrid
	err   error
	calls int
}

func (s *stubExtractor) Extract(ctx context.Context, file models.FileIdentity, content []byte, det models.FormatDetection) (*Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &Result{Grid: s.grid, Method: s.name}, nil
}

func TestRegistry_Extract(t *testing.T) {
	grid := models.GridFromStrings([][]string{{"a", "b"}})
	file := models.FileIdentity{Name: "f"}

	t.Run("registered kind", func(t *testing.T) {
		csv := &stubExtractor{name: "csv", grid: grid}
		fallback := &stubExtractor{name: "fallback", grid: grid}
		reg := NewRegistry(fallback, zap.NewNop())
		reg.Register(models.SourceKindDelimited, csv)

		res, err := reg.Extract(context.Background(), file, nil, models.FormatDetection{Kind: models.SourceKindDelimited})

		require.NoError(t, err)
		assert.Equal(t, "csv", res.Method)
		assert.Zero(t, fallback.calls)
	})

	t.Run("unknown kind falls back", func(t *testing.T) {
		fallback := &stubExtractor{name: "fallback", grid: grid}
		reg := NewRegistry(fallback, zap.NewNop())

		res, err := reg.Extract(context.Background(), file, nil, models.FormatDetection{Kind: models.SourceKindUnknown})

		require.NoError(t, err)
		assert.Equal(t, "fallback", res.Method)
	})

	t.Run("no fallback", func(t *testing.T) {
		reg := NewRegistry(nil, zap.NewNop())

		_, err := reg.Extract(context.Background(), file, nil, models.FormatDetection{Kind: models.SourceKindUnknown})

		assert.ErrorIs(t, err, apperrors.ErrUnsupportedFormat)
	})

	t.Run("empty grid", func(t *testing.T) {
		reg := NewRegistry(&stubExtractor{name: "empty", grid: models.GridFromStrings([][]string{{"", " "}})}, zap.NewNop())

		_, err := reg.Extract(context.Background(), file, nil, models.FormatDetection{Kind: models.SourceKindPlainText})

		assert.ErrorIs(t, err, apperrors.ErrUnsupportedFormat)
	})

	t.Run("extractor error passes through", func(t *testing.T) {
		boom := errors.New("boom")
		reg := NewRegistry(&stubExtractor{err: boom}, zap.NewNop())

		_, err := reg.Extract(context.Background(), file, nil, models.FormatDetection{Kind: models.SourceKindPlainText})

		assert.ErrorIs(t, err, boom)
	})
}
