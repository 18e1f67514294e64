package detect

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ekaya-inc/census-engine/pkg/analysis"
	"github.com/ekaya-inc/census-engine/pkg/config"
	"github.com/ekaya-inc/census-engine/pkg/models"
)

// Format refinements.
const (
	RefinementStructured     = "structured"
	RefinementSemiStructured = "semi_structured"
	RefinementUnstructured   = "unstructured"
)

// Header cell weights. A row is a header when its weighted sum reaches
// HeaderThreshold of the row width.
const (
	headerNonNumericWeight = 0.5
	headerKeywordWeight    = 0.3
	headerCapitalWeight    = 0.2
)

var errorMarkers = []string{"#N/A", "#REF!", "#VALUE!", "#DIV/0!", "#NAME?", "#NUM!", "#NULL!"}

// Classifier estimates structural characteristics of a grid and picks an
// advisory processing strategy. Nothing downstream depends on its output.
type Classifier struct {
	scoring    config.ScoringConfig
	validators *analysis.Validators
	logger     *zap.Logger
}

// NewClassifier creates a format characteristics classifier.
func NewClassifier(scoring config.ScoringConfig, validators *analysis.Validators, logger *zap.Logger) *Classifier {
	return &Classifier{
		scoring:    scoring,
		validators: validators,
		logger:     logger.Named("format-classifier"),
	}
}

// Classify analyzes a grid extracted from a file of the given kind. Free text
// alone, with no usable grid, is classified unstructured.
func (c *Classifier) Classify(kind models.SourceKind, grid *models.RawGrid, freeText string) models.FormatAnalysis {
	ch := c.characteristics(grid)
	result := models.FormatAnalysis{
		Kind:            kind,
		Refinement:      refine(ch, grid),
		Characteristics: ch,
	}
	result.Strategy = strategy(kind, result.Refinement, ch)
	if strings.TrimSpace(freeText) != "" {
		result.Strategy.ExpectedChallenges = append(result.Strategy.ExpectedChallenges, "free text around the tabular data")
	}

	c.logger.Debug("Format characteristics",
		zap.String("kind", string(kind)),
		zap.String("refinement", result.Refinement),
		zap.Bool("has_headers", ch.HasHeaders),
		zap.Float64("consistency", ch.StructuralConsistency),
		zap.String("quality", string(ch.DataQuality)),
		zap.Int("estimated_records", ch.EstimatedRecords))
	return result
}

func (c *Classifier) characteristics(grid *models.RawGrid) models.FormatCharacteristics {
	var ch models.FormatCharacteristics
	if grid == nil || grid.IsEmpty() {
		ch.DataQuality = models.DataQualityLow
		return ch
	}

	var rows []models.Row
	emptyRun := 0
	for _, row := range grid.Rows {
		if row.IsEmpty() {
			emptyRun++
			continue
		}
		if len(rows) > 0 && emptyRun >= c.scoring.MultiTableEmptyRun {
			ch.HasMultipleTables = true
		}
		emptyRun = 0
		rows = append(rows, row)
	}

	ch.HeaderScore, ch.HasHeaders = c.headerScore(rows[0])
	ch.StructuralConsistency = consistency(rows)

	width := grid.Width()
	cells, filled, markers := 0, 0, 0
	for i, row := range rows {
		cells += width
		for _, cell := range row {
			if cell.IsEmpty() {
				continue
			}
			filled++
			if isErrorMarker(cell.String()) {
				markers++
			}
		}
		if (i > 0 || !ch.HasHeaders) && c.isRecordRow(row) {
			ch.EstimatedRecords++
		}
	}
	if cells > 0 {
		ch.FillRate = round4(float64(filled) / float64(cells))
	}
	if filled > 0 {
		ch.ErrorMarkerRate = round4(float64(markers) / float64(filled))
	}
	ch.DataQuality = qualityTier(ch.FillRate, ch.ErrorMarkerRate)
	return ch
}

// headerScore weighs each cell of the first row: non-numeric text, a known
// header keyword and a leading capital letter.
func (c *Classifier) headerScore(row models.Row) (float64, bool) {
	if len(row) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, cell := range row {
		s := strings.TrimSpace(cell.String())
		if s == "" || cell.Kind != models.CellText {
			continue
		}
		if _, numeric := analysis.ParseAmount(s); !numeric {
			sum += headerNonNumericWeight
		}
		if analysis.IsHeaderKeyword(s) {
			sum += headerKeywordWeight
		}
		if r, _ := utf8.DecodeRuneInString(s); unicode.IsUpper(r) {
			sum += headerCapitalWeight
		}
	}
	score := sum / float64(len(row))
	return round4(score), score >= c.scoring.HeaderThreshold
}

// consistency is the fraction of rows after the first whose populated width
// is within one cell of the first row's.
func consistency(rows []models.Row) float64 {
	if len(rows) < 2 {
		return 1
	}
	first := populatedWidth(rows[0])
	ok := 0
	for _, row := range rows[1:] {
		if d := populatedWidth(row) - first; d >= -1 && d <= 1 {
			ok++
		}
	}
	return round4(float64(ok) / float64(len(rows)-1))
}

func populatedWidth(row models.Row) int {
	for i := len(row) - 1; i >= 0; i-- {
		if !row[i].IsEmpty() {
			return i + 1
		}
	}
	return 0
}

// isRecordRow is true when most populated cells look like data: numbers,
// dates or identifiers.
func (c *Classifier) isRecordRow(row models.Row) bool {
	populated, shaped := 0, 0
	for _, cell := range row {
		if cell.IsEmpty() {
			continue
		}
		populated++
		switch cell.Kind {
		case models.CellNumber, models.CellDate:
			shaped++
			continue
		}
		s := strings.TrimSpace(cell.String())
		if _, ok := analysis.ParseAmount(s); ok {
			shaped++
		} else if _, ok := c.validators.ParseDate(s); ok {
			shaped++
		} else if analysis.IsRFC(strings.ToUpper(s)) || analysis.IsCURP(strings.ToUpper(s)) || analysis.IsNSS(s) || analysis.IsEmployeeCode(s) {
			shaped++
		}
	}
	return populated > 0 && float64(shaped)/float64(populated) >= 0.5
}

func isErrorMarker(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if strings.Trim(s, "#") == "" {
		return true
	}
	for _, m := range errorMarkers {
		if strings.EqualFold(s, m) {
			return true
		}
	}
	return false
}

func qualityTier(fill, errRate float64) models.DataQualityTier {
	switch {
	case fill >= 0.8 && errRate < 0.01:
		return models.DataQualityHigh
	case fill >= 0.5 && errRate < 0.05:
		return models.DataQualityMedium
	default:
		return models.DataQualityLow
	}
}

func refine(ch models.FormatCharacteristics, grid *models.RawGrid) string {
	if grid == nil || grid.IsEmpty() {
		return RefinementUnstructured
	}
	switch {
	case ch.HasHeaders && ch.StructuralConsistency >= 0.8 && !ch.HasMultipleTables:
		return RefinementStructured
	case ch.StructuralConsistency >= 0.5 && grid.Width() > 1:
		return RefinementSemiStructured
	default:
		return RefinementUnstructured
	}
}

// strategy builds the advisory descriptor. Priority 1 is the easiest path.
func strategy(kind models.SourceKind, refinement string, ch models.FormatCharacteristics) models.ProcessingStrategy {
	s := models.ProcessingStrategy{Method: "direct_tabular", Priority: 1}

	switch {
	case kind.IsLowFidelity():
		s.Method, s.Priority = "layout_reconstruction", 3
		s.ExpectedChallenges = append(s.ExpectedChallenges, "OCR misreads digits and accented letters")
		s.Mitigations = append(s.Mitigations, "cap column confidence and confirm mappings with the user")
	case kind == models.SourceKindPlainText:
		s.Method, s.Priority = "aligned_text_parsing", 2
		s.ExpectedChallenges = append(s.ExpectedChallenges, "column boundaries inferred from spacing")
		s.Mitigations = append(s.Mitigations, "confirm the table interpretation before mapping")
	case ch.HasMultipleTables:
		s.Method, s.Priority = "segmented_tabular", 2
	}

	if ch.HasMultipleTables {
		s.ExpectedChallenges = append(s.ExpectedChallenges, "several tables in one sheet")
		s.Mitigations = append(s.Mitigations, "segment on empty rows and select one table per record type")
	}
	if !ch.HasHeaders {
		s.ExpectedChallenges = append(s.ExpectedChallenges, "no clear header row")
		s.Mitigations = append(s.Mitigations, "search the first rows for the header and ask when unsure")
	}
	if ch.StructuralConsistency < 0.8 {
		s.ExpectedChallenges = append(s.ExpectedChallenges, "ragged rows")
	}
	if ch.DataQuality == models.DataQualityLow {
		s.ExpectedChallenges = append(s.ExpectedChallenges, "sparse or error-marked cells")
		s.Mitigations = append(s.Mitigations, "report missing-value rates per column")
	}
	if refinement == RefinementUnstructured && s.Priority < 3 {
		s.Priority++
	}
	return s
}

func round4(f float64) float64 {
	return float64(int64(f*10000+0.5)) / 10000
}
