package extract

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/census-engine/pkg/apperrors"
	"github.com/ekaya-inc/census-engine/pkg/models"
)

// sheetGap is the number of empty rows placed between sheets, enough for
// structure analysis to segment them into separate tables.
const sheetGap = 2

var oleSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// Plain decimal numbers. Values with leading zeros (codes, NSS) stay text.
var plainNumber = regexp.MustCompile(`^-?(0|[1-9]\d*)(\.\d+)?$`)

// SpreadsheetExtractor reads XLSX workbooks. Every visible sheet is stacked
// into one grid, separated by empty rows.
type SpreadsheetExtractor struct {
	logger *zap.Logger
}

// NewSpreadsheetExtractor creates a spreadsheet extractor.
func NewSpreadsheetExtractor(logger *zap.Logger) *SpreadsheetExtractor {
	return &SpreadsheetExtractor{logger: logger.Named("spreadsheet-extractor")}
}

func (e *SpreadsheetExtractor) Extract(ctx context.Context, file models.FileIdentity, content []byte, det models.FormatDetection) (*Result, error) {
	if bytes.HasPrefix(content, oleSignature) {
		return nil, fmt.Errorf("legacy binary workbook %s (save it as .xlsx): %w", file.Name, apperrors.ErrUnsupportedFormat)
	}

	wb, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", file.Name, err)
	}
	defer wb.Close()

	var rows []models.Row
	sheets := 0
	for _, sheet := range wb.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if visible, err := wb.GetSheetVisible(sheet); err == nil && !visible {
			continue
		}
		raw, err := wb.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		if len(raw) == 0 {
			continue
		}
		if sheets > 0 {
			for i := 0; i < sheetGap; i++ {
				rows = append(rows, models.Row{})
			}
		}
		sheets++
		for _, r := range raw {
			rows = append(rows, typedRow(r))
		}

		e.logger.Debug("Sheet read",
			zap.String("file_name", file.Name),
			zap.String("sheet", sheet),
			zap.Int("rows", len(raw)))
	}

	return &Result{
		Grid:   models.NewRawGrid(rows),
		Method: fmt.Sprintf("xlsx workbook (%d sheets)", sheets),
	}, nil
}

func typedRow(values []string) models.Row {
	row := make(models.Row, len(values))
	for i, v := range values {
		row[i] = typedCell(v)
	}
	return row
}

// typedCell keeps formatted text except for plain numbers.
func typedCell(v string) models.Cell {
	s := strings.TrimSpace(v)
	if plainNumber.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return models.NumberCell(f)
		}
	}
	return models.TextCell(v)
}

var _ GridExtractor = (*SpreadsheetExtractor)(nil)
