package mapping

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/ekaya-inc/census-engine/pkg/analysis"
	"github.com/ekaya-inc/census-engine/pkg/config"
	"github.com/ekaya-inc/census-engine/pkg/models"
)

// ColumnMapper classifies detected columns against the standard field
// catalogue and aggregates the result per field. It is stateless; answers
// reach it only through a models.Resolution.
type ColumnMapper struct {
	scoring    config.ScoringConfig
	catalog    *Catalog
	validators *analysis.Validators
	logger     *zap.Logger
}

// NewColumnMapper creates a column mapper.
func NewColumnMapper(scoring config.ScoringConfig, catalog *Catalog, validators *analysis.Validators, logger *zap.Logger) *ColumnMapper {
	return &ColumnMapper{
		scoring:    scoring,
		catalog:    catalog,
		validators: validators,
		logger:     logger.Named("column-mapper"),
	}
}

// Catalog returns the catalogue the mapper scores against.
func (m *ColumnMapper) Catalog() *Catalog {
	return m.catalog
}

// Classify scores every column of a table against the candidate fields.
// A nil resolution means no answers yet.
func (m *ColumnMapper) Classify(table *models.DetectedTable, res *models.Resolution, ceiling float64) []models.ColumnClassification {
	if ceiling <= 0 {
		ceiling = 1
	}
	target := table.Purpose.TargetPurpose()
	cands := m.catalog.candidates(target)

	// Fields pinned by the user are reserved for their column.
	reserved := make(map[string]int)
	if res != nil {
		for col, field := range res.Assigned {
			reserved[field] = col
		}
	}

	out := make([]models.ColumnClassification, 0, len(table.Columns))
	for i := range table.Columns {
		col := &table.Columns[i]
		cls := models.ColumnClassification{
			ColumnIndex: col.Index,
			Header:      col.Label(),
		}

		folded, singular := analysis.HeaderForms(col.Header)
		var lost models.FieldScore
		for _, c := range cands {
			if res.IsExcluded(col.Index, c.field.Name) {
				continue
			}
			fs := m.scoreField(col, folded, singular, c)
			if owner, ok := reserved[c.field.Name]; ok && owner != col.Index {
				if fs.Score > lost.Score {
					lost = fs
				}
				continue
			}
			cls.Candidates = append(cls.Candidates, fs)
		}
		sort.SliceStable(cls.Candidates, func(a, b int) bool {
			return cls.Candidates[a].Score > cls.Candidates[b].Score
		})

		var top float64
		if len(cls.Candidates) > 0 {
			top = cls.Candidates[0].Score
		}
		cls.Confidence = round4(math.Min(top, ceiling))
		// A column whose best field was pinned to another column does not
		// fall back to its runner-up silently; the user picks or omits.
		if lost.Score >= m.scoring.MinMappingScore && lost.Score >= top {
			cls.DisplacedFrom = lost.Field
		}

		switch {
		case res != nil && res.Assigned[col.Index] != "":
			cls.BestField = res.Assigned[col.Index]
			cls.Confidence = 1
			cls.UserAssigned = true
			cls.DisplacedFrom = ""
		case res != nil && res.Omitted[col.Index]:
			// left unmapped on request
		case cls.DisplacedFrom != "":
			// unmapped until the user confirms a runner-up
		case top >= m.scoring.MinMappingScore:
			cls.BestField = cls.Candidates[0].Field
		}
		out = append(out, cls)
	}
	return out
}

// scoreField combines name similarity, type compatibility, content validation
// and purpose context for one column/field pair.
func (m *ColumnMapper) scoreField(col *models.DetectedColumn, folded, singular string, c candidate) models.FieldScore {
	fs := models.FieldScore{Field: c.field.Name}
	fs.Name = m.nameSimilarity(folded, singular, c.field)
	if col.DataType == c.field.ExpectedType {
		fs.Type = m.scoring.TypeMatch
	} else {
		fs.Type = m.scoring.TypeMismatch
	}
	fs.Content = round4(m.validators.Rate(c.field.Validator, col.SampleValues))
	if c.inTarget {
		fs.Context = 1
	}
	fs.Score = round4(math.Min(1, m.scoring.NameWeight*fs.Name+
		m.scoring.TypeWeight*fs.Type+
		m.scoring.ContentWeight*fs.Content+
		m.scoring.ContextWeight*fs.Context))
	return fs
}

// nameSimilarity returns the best tier reached by any synonym: exact match,
// whole-word containment either way, or a shared significant word.
func (m *ColumnMapper) nameSimilarity(folded, singular string, field models.StandardField) float64 {
	if folded == "" {
		return 0
	}
	headerWords := analysis.SignificantWords(folded + " " + singular)
	best := 0.0
	names := append([]string{field.Name}, field.Synonyms...)
	for _, syn := range names {
		synFolded, synSingular := analysis.HeaderForms(syn)
		if synFolded == "" {
			continue
		}
		switch {
		case folded == synFolded || singular == synSingular:
			return m.scoring.SimilarityExact
		case analysis.ContainsWord(folded, synFolded) || analysis.ContainsWord(synFolded, folded) ||
			analysis.ContainsWord(singular, synSingular) || analysis.ContainsWord(synSingular, singular):
			best = math.Max(best, m.scoring.SimilarityContains)
		case sharesWord(headerWords, analysis.SignificantWords(synFolded+" "+synSingular)):
			best = math.Max(best, m.scoring.SimilaritySharedWord)
		}
	}
	return best
}

func sharesWord(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// Map classifies a table's columns and aggregates them into per-field
// mappings, ambiguities and an overall confidence. Output is deterministic
// for identical inputs.
func (m *ColumnMapper) Map(table *models.DetectedTable, res *models.Resolution, ceiling float64) models.MappingResult {
	target := table.Purpose.TargetPurpose()
	result := models.MappingResult{
		TableID:         table.ID,
		Purpose:         table.Purpose,
		Target:          target,
		Classifications: m.Classify(table, res, ceiling),
		Ambiguities:     []models.AmbiguousMapping{},
		UnmappedColumns: []int{},
	}

	listed := make(map[string]bool)
	for _, f := range m.catalog.Fields(target) {
		result.Fields = append(result.Fields, m.aggregate(f, result.Classifications, res))
		listed[f.Name] = true
	}
	// Columns that best match another purpose's field keep that mapping.
	for _, c := range m.catalog.candidates(target) {
		if listed[c.field.Name] {
			continue
		}
		agg := m.aggregate(c.field, result.Classifications, res)
		if agg.IsMapped() {
			agg.Required = false
			result.Fields = append(result.Fields, agg)
		}
	}

	for _, cls := range result.Classifications {
		if cls.BestField == "" {
			result.UnmappedColumns = append(result.UnmappedColumns, cls.ColumnIndex)
		}
	}

	result.Ambiguities = append(result.Ambiguities, m.fieldConflicts(table.ID, result.Fields)...)
	result.Ambiguities = append(result.Ambiguities, m.uncertainColumns(table.ID, result.Classifications, res)...)
	result.OverallConfidence = m.rollup(result)

	m.logger.Debug("Table mapped",
		zap.String("table_id", table.ID),
		zap.String("purpose", string(table.Purpose)),
		zap.Int("columns", len(result.Classifications)),
		zap.Int("unmapped", len(result.UnmappedColumns)),
		zap.Int("ambiguities", len(result.Ambiguities)),
		zap.Float64("confidence", result.OverallConfidence))

	return result
}

// aggregate collects the columns whose best match is the field.
func (m *ColumnMapper) aggregate(f models.StandardField, classes []models.ColumnClassification, res *models.Resolution) models.StandardFieldMapping {
	fm := models.StandardFieldMapping{
		Field:         f.Name,
		Label:         f.Label,
		Required:      f.Priority >= m.scoring.RequiredPriority,
		Priority:      f.Priority,
		MappedColumns: []int{},
	}

	type alt struct {
		column int
		score  float64
	}
	var alts []alt
	for _, cls := range classes {
		if cls.BestField == f.Name {
			fm.MappedColumns = append(fm.MappedColumns, cls.ColumnIndex)
			fm.Confidence = math.Max(fm.Confidence, cls.Confidence)
			continue
		}
		if fs := cls.Candidate(f.Name); fs != nil && fs.Score >= m.scoring.MinMappingScore {
			alts = append(alts, alt{column: cls.ColumnIndex, score: fs.Score})
		}
	}
	sort.SliceStable(alts, func(i, j int) bool { return alts[i].score > alts[j].score })
	for _, a := range alts {
		fm.Alternatives = append(fm.Alternatives, a.column)
	}
	if res != nil && res.Absent[f.Name] && !fm.IsMapped() {
		fm.Absent = true
	}
	return fm
}

// fieldConflicts flags fields claimed by more than one column.
func (m *ColumnMapper) fieldConflicts(tableID string, fields []models.StandardFieldMapping) []models.AmbiguousMapping {
	var out []models.AmbiguousMapping
	for _, f := range fields {
		if len(f.MappedColumns) < 2 {
			continue
		}
		out = append(out, models.AmbiguousMapping{
			Key:           ConflictKey(tableID, f.Field),
			Kind:          models.AmbiguityFieldConflict,
			TableID:       tableID,
			Columns:       append([]int(nil), f.MappedColumns...),
			Fields:        []string{f.Field},
			RequiresInput: true,
		})
	}
	return out
}

// uncertainColumns flags columns whose best score is weak while the runner-up
// shares a header word with the column, and columns displaced from their best
// field that still have plausible runners-up.
func (m *ColumnMapper) uncertainColumns(tableID string, classes []models.ColumnClassification, res *models.Resolution) []models.AmbiguousMapping {
	var out []models.AmbiguousMapping
	for _, cls := range classes {
		if cls.UserAssigned || (res != nil && res.Omitted[cls.ColumnIndex]) {
			continue
		}
		if cls.DisplacedFrom != "" {
			var fields []string
			for _, c := range cls.Candidates {
				if c.Score >= m.scoring.MinMappingScore {
					fields = append(fields, c.Field)
				}
			}
			if len(fields) > 0 {
				out = append(out, models.AmbiguousMapping{
					Key:           ColumnKey(tableID, cls.ColumnIndex),
					Kind:          models.AmbiguityColumnUncertain,
					TableID:       tableID,
					Columns:       []int{cls.ColumnIndex},
					Fields:        fields,
					RequiresInput: true,
				})
			}
			continue
		}
		if len(cls.Candidates) < 2 {
			continue
		}
		if cls.Candidates[0].Score >= m.scoring.AmbiguityThreshold {
			continue
		}
		if cls.Candidates[1].Name < m.scoring.SimilaritySharedWord {
			continue
		}
		fields := []string{cls.Candidates[0].Field}
		for _, c := range cls.Candidates[1:] {
			if c.Name >= m.scoring.SimilaritySharedWord {
				fields = append(fields, c.Field)
			}
		}
		out = append(out, models.AmbiguousMapping{
			Key:           ColumnKey(tableID, cls.ColumnIndex),
			Kind:          models.AmbiguityColumnUncertain,
			TableID:       tableID,
			Columns:       []int{cls.ColumnIndex},
			Fields:        fields,
			RequiresInput: cls.BestField == "",
		})
	}
	return out
}

// rollup = w_col * mean column confidence + w_cov * mapped required / required.
func (m *ColumnMapper) rollup(result models.MappingResult) float64 {
	mean := 0.0
	if n := len(result.Classifications); n > 0 {
		for _, c := range result.Classifications {
			mean += c.Confidence
		}
		mean /= float64(n)
	}

	required, mapped := 0, 0
	for _, f := range result.Fields {
		if !f.Required {
			continue
		}
		required++
		if f.IsMapped() {
			mapped++
		}
	}
	coverage := 1.0
	if required > 0 {
		coverage = float64(mapped) / float64(required)
	}
	return round4(m.scoring.RollupColumnWeight*mean + m.scoring.RollupCoverageWeight*coverage)
}

// ConflictKey identifies a field claimed by several columns.
func ConflictKey(tableID, field string) string {
	return fmt.Sprintf("conflict:%s:%s", tableID, field)
}

// ColumnKey identifies a column with several plausible fields.
func ColumnKey(tableID string, column int) string {
	return fmt.Sprintf("column:%s:%d", tableID, column)
}

// MissingKey identifies a required field with no column.
func MissingKey(tableID, field string) string {
	return fmt.Sprintf("missing:%s:%s", tableID, field)
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
