package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/census-engine/pkg/apperrors"
	"github.com/ekaya-inc/census-engine/pkg/detect"
	"github.com/ekaya-inc/census-engine/pkg/models"
)

var (
	wideGap   = regexp.MustCompile(`\s{2,}|\t`)
	ruleLine  = regexp.MustCompile(`^[\s\-=+|_*]+$`)
	pipeTrims = "| \t"
)

// PlainTextExtractor reads fixed-width or pipe-aligned text reports. It is
// also the fallback for files whose kind could not be detected.
type PlainTextExtractor struct {
	logger *zap.Logger
}

// NewPlainTextExtractor creates a plain text extractor.
func NewPlainTextExtractor(logger *zap.Logger) *PlainTextExtractor {
	return &PlainTextExtractor{logger: logger.Named("plaintext-extractor")}
}

func (e *PlainTextExtractor) Extract(ctx context.Context, file models.FileIdentity, content []byte, det models.FormatDetection) (*Result, error) {
	text, encoding, err := DecodeText(content)
	if err != nil {
		return nil, err
	}
	// UTF-16 without a byte order mark decodes to text interleaved with NULs.
	text = strings.ReplaceAll(text, "\x00", "")
	if !detect.IsMostlyPrintable([]byte(text)) {
		return nil, fmt.Errorf("%s is not readable text: %w", file.Name, apperrors.ErrUnsupportedFormat)
	}

	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	pipes := 0
	for _, l := range lines {
		if strings.Count(l, "|") >= 2 {
			pipes++
		}
	}
	usePipes := pipes*2 >= nonBlank(lines)

	var rows []models.Row
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			rows = append(rows, models.Row{})
			continue
		}
		// Table rules drawn with dashes or equals signs carry no data.
		if ruleLine.MatchString(l) {
			continue
		}
		rows = append(rows, splitLine(l, usePipes))
	}

	method := "aligned plain text"
	if usePipes {
		method = "pipe-delimited plain text"
	}
	return &Result{
		Grid:     models.NewRawGrid(rows),
		FreeText: text,
		Method:   fmt.Sprintf("%s (%s)", method, encoding),
	}, nil
}

func splitLine(line string, usePipes bool) models.Row {
	var fields []string
	if usePipes {
		fields = strings.Split(strings.Trim(line, pipeTrims), "|")
	} else {
		fields = wideGap.Split(strings.TrimSpace(line), -1)
	}
	row := make(models.Row, len(fields))
	for i, f := range fields {
		row[i] = models.TextCell(strings.TrimSpace(f))
	}
	return row
}

func nonBlank(lines []string) int {
	n := 0
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			n++
		}
	}
	return n
}

var _ GridExtractor = (*PlainTextExtractor)(nil)
