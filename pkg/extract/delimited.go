package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ekaya-inc/census-engine/pkg/detect"
	"github.com/ekaya-inc/census-engine/pkg/models"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// DecodeText converts file bytes to UTF-8. A byte order mark selects UTF-8 or
// UTF-16; otherwise valid UTF-8 is kept and anything else is read as
// Windows-1252, the usual encoding of spreadsheet exports on Spanish Windows.
func DecodeText(data []byte) (string, string, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF8), bytes.HasPrefix(data, bomUTF16LE), bytes.HasPrefix(data, bomUTF16BE):
		out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
		if err != nil {
			return "", "", fmt.Errorf("failed to decode text: %w", err)
		}
		enc := "utf-8-bom"
		if !bytes.HasPrefix(data, bomUTF8) {
			enc = "utf-16"
		}
		return string(out), enc, nil
	case utf8.Valid(data):
		return string(data), "utf-8", nil
	default:
		out, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
		if err != nil {
			return "", "", fmt.Errorf("failed to decode text: %w", err)
		}
		return string(out), "windows-1252", nil
	}
}

// DelimitedExtractor reads CSV, TSV and other single-character delimited text.
type DelimitedExtractor struct {
	logger *zap.Logger
}

// NewDelimitedExtractor creates a delimited text extractor.
func NewDelimitedExtractor(logger *zap.Logger) *DelimitedExtractor {
	return &DelimitedExtractor{logger: logger.Named("delimited-extractor")}
}

func (e *DelimitedExtractor) Extract(ctx context.Context, file models.FileIdentity, content []byte, det models.FormatDetection) (*Result, error) {
	text, encoding, err := DecodeText(content)
	if err != nil {
		return nil, err
	}

	delim := det.Delimiter
	if delim == "" {
		delim = detect.SniffDelimiter([]byte(text))
	}
	if delim == "" {
		delim = ","
	}

	reader := csv.NewReader(strings.NewReader(keepBlankLines(text, delim)))
	reader.Comma = []rune(delim)[0]
	// Real-world exports are ragged and loosely quoted.
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows []models.Row
	skipped := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		row := make(models.Row, len(record))
		for i, v := range record {
			row[i] = models.TextCell(v)
		}
		rows = append(rows, row)
	}

	if skipped > 0 {
		e.logger.Warn("Skipped malformed delimited rows",
			zap.String("file_name", file.Name),
			zap.Int("skipped", skipped))
	}

	return &Result{
		Grid:   models.NewRawGrid(rows),
		Method: fmt.Sprintf("delimited text (%s, delimiter %q)", encoding, delim),
	}, nil
}

// keepBlankLines turns blank lines into single-delimiter lines, which the CSV
// reader would otherwise drop. Blank lines separate tables.
func keepBlankLines(text, delim string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		if strings.TrimRight(l, "\r") == "" && i < len(lines)-1 {
			lines[i] = delim
		}
	}
	return strings.Join(lines, "\n")
}

var _ GridExtractor = (*DelimitedExtractor)(nil)
