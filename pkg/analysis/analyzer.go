package analysis

import (
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ekaya-inc/census-engine/pkg/apperrors"
	"github.com/ekaya-inc/census-engine/pkg/config"
	"github.com/ekaya-inc/census-engine/pkg/models"
)

const previewRows = 5

// NoHeaderRow marks a table whose rows are all data.
const NoHeaderRow = -1

// Options tune a single analysis run.
type Options struct {
	// ConfidenceCeiling caps every column confidence. Zero means 1.0.
	ConfidenceCeiling float64
}

// StructureAnalyzer segments a grid into tables and types their columns.
// It holds no per-run state and is safe for concurrent use.
type StructureAnalyzer struct {
	scoring    config.ScoringConfig
	validators *Validators
	logger     *zap.Logger
}

// NewStructureAnalyzer creates a structure analyzer.
func NewStructureAnalyzer(scoring config.ScoringConfig, validators *Validators, logger *zap.Logger) *StructureAnalyzer {
	return &StructureAnalyzer{
		scoring:    scoring,
		validators: validators,
		logger:     logger.Named("structure-analyzer"),
	}
}

// span is a half-open row range [start, end) of a candidate table.
type span struct {
	start, end int
}

// Analyze converts a grid into detected tables. An empty grid is a fatal
// precondition error; everything else is reported as data.
func (a *StructureAnalyzer) Analyze(grid *models.RawGrid, opts Options) (*models.StructureAnalysis, error) {
	if grid.IsEmpty() {
		return nil, apperrors.ErrEmptyGrid
	}

	ceiling := opts.ConfidenceCeiling
	if ceiling <= 0 || ceiling > 1 {
		ceiling = 1
	}

	spans := a.segment(grid)
	result := &models.StructureAnalysis{
		Segmented:         len(spans) > 1,
		ConfidenceCeiling: ceiling,
		SuggestedMapping:  map[string]string{},
	}

	for i, sp := range spans {
		headerRow, score, found := a.detectHeader(grid, sp)
		table := a.buildTable(grid, sp, fmt.Sprintf("table_%d", i+1), headerRow, ceiling)
		table.HeaderScore = score
		table.HeaderFound = found
		result.Tables = append(result.Tables, table)
	}

	a.finish(result)

	a.logger.Debug("Structure analyzed",
		zap.Int("tables", len(result.Tables)),
		zap.Bool("segmented", result.Segmented),
		zap.Float64("overall_confidence", result.OverallConfidence),
		zap.Int("anomalies", len(result.Anomalies)))

	return result, nil
}

// Reanalyze rebuilds one table with an explicit header row (or NoHeaderRow),
// typically after a user corrected the header. The previous analysis is not
// modified.
func (a *StructureAnalyzer) Reanalyze(grid *models.RawGrid, prev *models.StructureAnalysis, tableID string, headerRow int) (*models.StructureAnalysis, error) {
	if grid.IsEmpty() {
		return nil, apperrors.ErrEmptyGrid
	}
	old := prev.Table(tableID)
	if old == nil {
		return nil, fmt.Errorf("table %s: %w", tableID, apperrors.ErrNotFound)
	}
	sp := span{start: old.StartRow, end: old.DataEnd}
	if headerRow != NoHeaderRow && (headerRow < sp.start || headerRow >= sp.end) {
		return nil, fmt.Errorf("header row %d outside table rows %d-%d", headerRow+1, sp.start+1, sp.end)
	}

	result := &models.StructureAnalysis{
		Segmented:         prev.Segmented,
		ConfidenceCeiling: prev.ConfidenceCeiling,
		SuggestedMapping:  map[string]string{},
	}
	for _, t := range prev.Tables {
		if t.ID != tableID {
			result.Tables = append(result.Tables, t)
			continue
		}
		table := a.buildTable(grid, sp, t.ID, headerRow, prev.ConfidenceCeiling)
		if headerRow != NoHeaderRow {
			table.HeaderScore = a.scoreHeaderRow(grid.Row(headerRow))
		}
		table.HeaderFound = true
		result.Tables = append(result.Tables, table)
	}
	a.finish(result)
	return result, nil
}

// segment splits the grid on runs of EmptyRowRun or more empty rows.
// Leading and trailing empty rows never belong to a table.
func (a *StructureAnalyzer) segment(grid *models.RawGrid) []span {
	var spans []span
	start, lastNonEmpty, emptyRun := -1, -1, 0

	for i, row := range grid.Rows {
		if row.IsEmpty() {
			emptyRun++
			if start >= 0 && emptyRun >= a.scoring.EmptyRowRun {
				spans = append(spans, span{start: start, end: lastNonEmpty + 1})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
		lastNonEmpty = i
		emptyRun = 0
	}
	if start >= 0 {
		spans = append(spans, span{start: start, end: lastNonEmpty + 1})
	}
	return spans
}

// detectHeader scores the first HeaderSearchDepth rows of a table and picks
// the best; the earliest row wins ties. found is false when the winner lacks
// header evidence (no keyword, or mostly numeric cells).
func (a *StructureAnalyzer) detectHeader(grid *models.RawGrid, sp span) (row int, score float64, found bool) {
	row, score = sp.start, -1
	limit := min(sp.start+a.scoring.HeaderSearchDepth, sp.end)
	for i := sp.start; i < limit; i++ {
		s := a.scoreHeaderRow(grid.Row(i))
		if s > score {
			row, score = i, s
		}
	}

	cells := grid.Row(row)
	textCells, keywordCells := 0, 0
	for _, c := range cells {
		if c.IsEmpty() {
			continue
		}
		v := c.String()
		if c.Kind == models.CellText && !isNumeric(v) {
			textCells++
		}
		if IsHeaderKeyword(v) {
			keywordCells++
		}
	}
	nonEmpty := cells.NonEmptyCount()
	found = nonEmpty > 0 && keywordCells > 0 &&
		float64(textCells) >= a.scoring.HeaderThreshold*float64(nonEmpty)
	return row, score, found
}

// scoreHeaderRow sums per-cell header evidence: +1 non-numeric text longer than
// 2 chars, +1 leading uppercase, +0.5 contains a space, +2 header keyword.
func (a *StructureAnalyzer) scoreHeaderRow(row models.Row) float64 {
	score := 0.0
	for _, c := range row {
		if c.IsEmpty() || c.Kind != models.CellText {
			continue
		}
		v := c.String()
		if !isNumeric(v) && len([]rune(v)) > 2 {
			score++
		}
		if r, _ := utf8.DecodeRuneInString(v); unicode.IsUpper(r) {
			score++
		}
		if strings.Contains(v, " ") {
			score += 0.5
		}
		if IsHeaderKeyword(v) {
			score += 2
		}
	}
	return score
}

// buildTable types the columns of one span given its header row.
func (a *StructureAnalyzer) buildTable(grid *models.RawGrid, sp span, id string, headerRow int, ceiling float64) models.DetectedTable {
	dataStart := sp.start
	var headers []string
	if headerRow != NoHeaderRow {
		headers = grid.Row(headerRow).Strings()
		dataStart = headerRow + 1
	}

	var dataRows []models.Row
	width := len(headers)
	for i := dataStart; i < sp.end; i++ {
		row := grid.Row(i)
		if row.IsEmpty() {
			continue
		}
		dataRows = append(dataRows, row)
		width = max(width, len(row))
	}

	table := models.DetectedTable{
		ID:        id,
		Name:      fmt.Sprintf("Table %s (rows %d-%d)", strings.TrimPrefix(id, "table_"), sp.start+1, sp.end),
		RowCount:  len(dataRows),
		StartRow:  sp.start,
		HeaderRow: headerRow,
		DataStart: dataStart,
		DataEnd:   sp.end,
		Purpose:   models.PurposeOther,
	}

	for i := sp.start; i < sp.end && len(table.Preview) < previewRows; i++ {
		if row := grid.Row(i); !row.IsEmpty() {
			table.Preview = append(table.Preview, row.Strings())
		}
	}

	for col := 0; col < width; col++ {
		header := ""
		if col < len(headers) {
			header = strings.TrimSpace(headers[col])
		}
		values := make([]string, len(dataRows))
		empty := true
		for r, row := range dataRows {
			values[r] = row.At(col).String()
			if values[r] != "" {
				empty = false
			}
		}
		if header == "" && empty {
			continue
		}
		table.Columns = append(table.Columns, a.inferColumn(col, header, values, ceiling))
	}

	if len(table.Columns) > 0 {
		sum := 0.0
		for _, c := range table.Columns {
			sum += c.Confidence
		}
		table.Confidence = round4(sum / float64(len(table.Columns)))
	}

	table.Purpose, table.PurposeScore = a.classifyPurpose(table.Columns)
	return table
}

// inferColumn scores every candidate semantic type and keeps the best.
func (a *StructureAnalyzer) inferColumn(index int, header string, values []string, ceiling float64) models.DetectedColumn {
	var nonEmpty []string
	for _, v := range values {
		if v != "" {
			nonEmpty = append(nonEmpty, v)
		}
	}
	sample := Stride(nonEmpty, a.scoring.SampleSize)
	folded, singular := HeaderForms(header)

	best, bestScore := models.SemanticUnknown, 0.0
	for _, rule := range semanticRules {
		keyword := 0.0
		if matchesAny(folded, singular, rule.Keywords) {
			keyword = 1
		}
		pattern, valid := 0.0, 0.0
		if len(sample) > 0 {
			hits := 0
			for _, v := range sample {
				if rule.matches(v) {
					hits++
				}
			}
			pattern = float64(hits) / float64(len(sample))
			valid = a.validators.Rate(rule.Validator, sample)
		}
		score := math.Min(1, a.scoring.TypeKeywordWeight*keyword+
			a.scoring.TypePatternWeight*pattern+
			a.scoring.TypeValidatorWeight*valid)
		if score > bestScore {
			best, bestScore = rule.Type, score
		}
	}
	if bestScore < a.scoring.MinTypeScore {
		best = models.SemanticUnknown
	}

	col := models.DetectedColumn{
		Index:        index,
		Header:       header,
		SemanticType: best,
		DataType:     best.DataType(),
		Confidence:   round4(math.Min(bestScore, ceiling)),
		SampleValues: sample,
	}
	if len(values) > 0 {
		col.MissingRate = round4(float64(len(values)-len(nonEmpty)) / float64(len(values)))
	}
	col.Issues = a.qualityIssues(col, nonEmpty)
	return col
}

// qualityIssues produces the advisory text attached to a column.
func (a *StructureAnalyzer) qualityIssues(col models.DetectedColumn, nonEmpty []string) []string {
	var issues []string
	if col.MissingRate > a.scoring.MissingRateFlag {
		issues = append(issues, fmt.Sprintf("%.0f%% missing", col.MissingRate*100))
	}

	switch col.SemanticType {
	case models.SemanticSalary:
		nonNumeric, implausible := 0, 0
		for _, v := range nonEmpty {
			if _, ok := ParseAmount(v); !ok {
				nonNumeric++
			} else if !a.validators.IsSalary(v) {
				implausible++
			}
		}
		if nonNumeric > 0 {
			issues = append(issues, fmt.Sprintf("%d non-numeric values in numeric column", nonNumeric))
		}
		if implausible > 0 {
			issues = append(issues, fmt.Sprintf("%d amounts outside the plausible salary range", implausible))
		}
	case models.SemanticPersonName:
		short := 0
		for _, v := range nonEmpty {
			if len([]rune(strings.TrimSpace(v))) < 5 {
				short++
			}
		}
		if short > 0 {
			issues = append(issues, fmt.Sprintf("%d implausibly short names", short))
		}
	case models.SemanticDate:
		bad := 0
		for _, v := range nonEmpty {
			if _, ok := a.validators.ParseDate(v); !ok {
				bad++
			}
		}
		if bad > 0 {
			issues = append(issues, fmt.Sprintf("%d unparseable dates", bad))
		}
	case models.SemanticNationalID:
		bad := 0
		for _, v := range nonEmpty {
			if !a.validators.Validate(models.ValidatorNationalID, v) {
				bad++
			}
		}
		if bad > 0 {
			issues = append(issues, fmt.Sprintf("%d malformed identifiers", bad))
		}
	}
	return issues
}

// classifyPurpose sums purpose keyword weights across headers.
func (a *StructureAnalyzer) classifyPurpose(columns []models.DetectedColumn) (models.TablePurpose, float64) {
	scores := make(map[models.TablePurpose]float64)
	for _, c := range columns {
		folded, singular := HeaderForms(c.Header)
		for _, p := range models.RecordPurposes {
			for keyword, weight := range purposeKeywords[p] {
				if ContainsWord(folded, keyword) || ContainsWord(singular, keyword) {
					scores[p] += weight
				}
			}
		}
	}

	active := scores[models.PurposeActivePersonnel]
	term := scores[models.PurposeTerminations]
	switch {
	case active > term && active >= a.scoring.PurposeMinScore:
		return models.PurposeActivePersonnel, active
	case term > active && term >= a.scoring.PurposeMinScore:
		return models.PurposeTerminations, term
	default:
		return models.PurposeOther, math.Max(active, term)
	}
}

// finish computes anomalies and the overall confidence.
func (a *StructureAnalyzer) finish(result *models.StructureAnalysis) {
	result.Anomalies = nil
	sum := 0.0
	for _, t := range result.Tables {
		sum += t.Confidence
		result.Anomalies = append(result.Anomalies, a.tableAnomalies(t, result.Segmented)...)
	}
	if len(result.Tables) > 0 {
		result.OverallConfidence = round4(sum / float64(len(result.Tables)))
	}
}

func (a *StructureAnalyzer) tableAnomalies(t models.DetectedTable, segmented bool) []models.Anomaly {
	var out []models.Anomaly
	if !segmented && !t.HeaderFound {
		out = append(out, models.Anomaly{
			Kind:        models.AnomalyUnconfirmedLayout,
			TableID:     t.ID,
			ColumnIndex: -1,
			Message:     fmt.Sprintf("%s: no clear header row; the whole grid was read as one table", t.Name),
		})
	}
	if t.RowCount < a.scoring.SmallTableRows {
		out = append(out, models.Anomaly{
			Kind:        models.AnomalySmallTable,
			TableID:     t.ID,
			ColumnIndex: -1,
			Message:     fmt.Sprintf("%s has only %d data rows", t.Name, t.RowCount),
		})
	}

	identified := 0
	for _, c := range t.Columns {
		if c.SemanticType != models.SemanticUnknown {
			identified++
		}
		if c.Confidence < a.scoring.LowConfidenceColumn {
			out = append(out, models.Anomaly{
				Kind:        models.AnomalyLowConfidenceColumn,
				TableID:     t.ID,
				ColumnIndex: c.Index,
				Message:     fmt.Sprintf("column %q has low confidence (%.0f%%)", c.Label(), c.Confidence*100),
			})
		}
	}
	if identified == 0 {
		out = append(out, models.Anomaly{
			Kind:        models.AnomalyNoColumns,
			TableID:     t.ID,
			ColumnIndex: -1,
			Message:     fmt.Sprintf("%s has no identifiable columns", t.Name),
		})
	}
	return out
}

// Stride returns up to n values evenly subsampled from values.
func Stride(values []string, n int) []string {
	if len(values) <= n {
		out := make([]string, len(values))
		copy(out, values)
		return out
	}
	out := make([]string, n)
	for i := range n {
		out[i] = values[i*len(values)/n]
	}
	return out
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
