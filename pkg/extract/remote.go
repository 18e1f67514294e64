package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/census-engine/pkg/apperrors"
	"github.com/ekaya-inc/census-engine/pkg/config"
	"github.com/ekaya-inc/census-engine/pkg/logging"
	"github.com/ekaya-inc/census-engine/pkg/models"
	"github.com/ekaya-inc/census-engine/pkg/retry"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 512

// ocrResponse is the layout service reply.
// Response format: { "rows": [["a","b"],...], "text": "...", "method": "..." }
type ocrResponse struct {
	Rows   [][]string `json:"rows"`
	Text   string     `json:"text"`
	Method string     `json:"method"`
}

// RemoteExtractor sends PDFs and images to an external OCR/layout service.
// Its grids are low fidelity.
type RemoteExtractor struct {
	endpoint   string
	httpClient *http.Client
	retry      *retry.Config
	logger     *zap.Logger
}

// NewRemoteExtractor creates an extractor for the configured OCR service.
// An empty service URL yields an extractor that always reports
// ErrExtractorUnavailable.
func NewRemoteExtractor(cfg config.ExtractionConfig, logger *zap.Logger) *RemoteExtractor {
	rc := retry.DefaultConfig()
	rc.MaxRetries = cfg.MaxRetries
	endpoint := ""
	if cfg.OCRServiceURL != "" {
		endpoint = config.ResolveServiceURL(cfg.OCRServiceURL)
	}
	return &RemoteExtractor{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.OCRTimeoutSeconds) * time.Second,
		},
		retry:  rc,
		logger: logger.Named("remote-extractor"),
	}
}

func (e *RemoteExtractor) Extract(ctx context.Context, file models.FileIdentity, content []byte, det models.FormatDetection) (*Result, error) {
	if e.endpoint == "" {
		return nil, fmt.Errorf("no OCR service configured for %s: %w", det.Kind, apperrors.ErrExtractorUnavailable)
	}

	e.logger.Info("Sending file to OCR service",
		zap.String("url", logging.SanitizeURL(e.endpoint)),
		zap.String("file_name", file.Name),
		zap.String("kind", string(det.Kind)),
		zap.Int("bytes", len(content)))

	resp, err := retry.DoWithResult(ctx, e.retry, func() (*ocrResponse, error) {
		return e.call(ctx, file, content)
	})
	if err != nil {
		e.logger.Error("OCR service failed",
			zap.String("url", logging.SanitizeURL(e.endpoint)),
			zap.String("file_name", file.Name),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("failed to extract %s: %w", file.Name, err)
	}

	rows := make([]models.Row, len(resp.Rows))
	for i, r := range resp.Rows {
		rows[i] = typedRow(r)
	}
	method := resp.Method
	if method == "" {
		method = "remote OCR"
	}
	return &Result{
		Grid:        models.NewRawGrid(rows),
		FreeText:    resp.Text,
		Method:      fmt.Sprintf("%s (%s)", method, det.Kind),
		LowFidelity: true,
	}, nil
}

// call performs one upload. Non-2xx responses come back as retry.StatusError
// so the retry policy can tell transient failures from permanent ones.
func (e *RemoteExtractor) call(ctx context.Context, file models.FileIdentity, content []byte) (*ocrResponse, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", file.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call OCR service: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &retry.StatusError{
			StatusCode: resp.StatusCode,
			Body:       logging.TruncateString(string(data), maxErrorBody),
		}
	}

	var out ocrResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &out, nil
}

var _ GridExtractor = (*RemoteExtractor)(nil)
