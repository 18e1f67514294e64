package questions

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/census-engine/pkg/config"
	"github.com/ekaya-inc/census-engine/pkg/mapping"
	"github.com/ekaya-inc/census-engine/pkg/models"
)

// Option ids shared by several question kinds.
const (
	OptionConfirm  = "confirm"
	OptionWrong    = "wrong"
	OptionSkip     = "skip"
	OptionOmit     = "omit"
	OptionAbsent   = "absent"
	OptionClarify  = "clarify"
	OptionAccept   = "accept"
	OptionReject   = "reject"
	OptionNoRow    = "none"
	OptionOtherRow = "other"
)

// Target keys for questions that are not derived from an ambiguity.
const (
	KeyFormat       = "format"
	KeyFormatManual = "format_manual"
	KeyAnomalies    = "anomalies"
	KeyFinalReview  = "final_review"
)

// State is the pipeline or session state questions are generated from.
type State struct {
	Detection models.FormatDetection
	Structure *models.StructureAnalysis
	Selected  []models.TableSelection
	Mappings  []models.MappingResult
	Grid      *models.RawGrid
}

func (s *State) mapping(tableID string) *models.MappingResult {
	for i := range s.Mappings {
		if s.Mappings[i].TableID == tableID {
			return &s.Mappings[i]
		}
	}
	return nil
}

func (s *State) isSelected(tableID string) bool {
	for _, sel := range s.Selected {
		if sel.TableID == tableID {
			return true
		}
	}
	return false
}

// Generator turns unresolved state into severity-ordered questions.
// It never mutates the state it reads.
type Generator struct {
	scoring config.ScoringConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewGenerator creates a question generator.
func NewGenerator(scoring config.ScoringConfig, logger *zap.Logger) *Generator {
	return &Generator{
		scoring: scoring,
		logger:  logger.Named("question-generator"),
		now:     time.Now,
	}
}

// Initial generates the first batch of questions for a processed file.
func (g *Generator) Initial(st State) []*models.ConversationalQuestion {
	var out []*models.ConversationalQuestion

	if st.Detection.Confidence < g.scoring.FormatConfirmThreshold {
		out = append(out, g.formatCheck(st.Detection))
	}
	if st.Structure != nil {
		for _, t := range st.Structure.Tables {
			if !st.isSelected(t.ID) {
				continue
			}
			if (!st.Structure.Segmented && !t.HeaderFound) || st.Detection.Kind == models.SourceKindUnknown {
				out = append(out, g.tableInterpretation(st, &t))
			}
		}
	}

	out = append(out, g.Reconcilable(st)...)

	if q := g.anomalyBatch(st); q != nil {
		out = append(out, q)
	}
	if len(st.Mappings) > 0 {
		out = append(out, g.finalReview(st, nil))
	}

	Sort(out)
	g.logger.Debug("Generated initial questions", zap.Int("questions", len(out)))
	return out
}

// Reconcilable generates the questions derived from the current mapping:
// field conflicts, uncertain columns and missing required fields. Their keys
// are stable, so callers can diff them against pending questions.
func (g *Generator) Reconcilable(st State) []*models.ConversationalQuestion {
	var out []*models.ConversationalQuestion
	for i := range st.Mappings {
		m := &st.Mappings[i]
		table := st.Structure.Table(m.TableID)
		if table == nil {
			continue
		}
		for _, amb := range m.Ambiguities {
			switch amb.Kind {
			case models.AmbiguityFieldConflict:
				out = append(out, g.fieldConflict(table, m, amb, nil, false))
			case models.AmbiguityColumnUncertain:
				out = append(out, g.columnUncertain(table, m, amb, nil, false))
			}
		}
		for _, f := range m.MissingRequired() {
			out = append(out, g.missingRequired(table, m, f, nil, false))
		}
	}
	return out
}

// FollowUps derives new questions from an accepted answer. The state must
// already reflect the answer.
func (g *Generator) FollowUps(q *models.ConversationalQuestion, rec *models.AnswerRecord, st State) []*models.ConversationalQuestion {
	var out []*models.ConversationalQuestion
	parent := q.ID

	switch rec.Action {
	case models.ActionRequestClarification:
		out = append(out, g.clarify(q, st)...)
	case models.ActionReject:
		switch q.Kind {
		case models.KindFormatCheck:
			out = append(out, g.formatManual(st.Detection, &parent))
		case models.KindTableInterpretation:
			if table := st.Structure.Table(q.Target.TableID); table != nil {
				out = append(out, g.headerRow(st, table, &parent))
			}
		}
	case models.ActionAcceptSuggestion, models.ActionManualOverride:
		if column, field, ok := chosenMapping(q, rec); ok {
			if sanity := g.mappingSanity(st, q.Target.TableID, column, field, &parent); sanity != nil {
				out = append(out, sanity)
			}
		}
	}

	Sort(out)
	return out
}

// chosenMapping extracts the column/field pair an answer settled on.
func chosenMapping(q *models.ConversationalQuestion, rec *models.AnswerRecord) (column int, field string, ok bool) {
	switch q.Kind {
	case models.KindFieldConflict, models.KindMissingRequired:
		col, err := strconv.Atoi(rec.Value)
		if err != nil {
			return 0, "", false
		}
		return col, q.Target.Field, true
	case models.KindColumnUncertain:
		if len(q.Target.Columns) != 1 || rec.Value == "" {
			return 0, "", false
		}
		return q.Target.Columns[0], rec.Value, true
	}
	return 0, "", false
}

// clarify re-issues a question with more context under a new identity.
func (g *Generator) clarify(q *models.ConversationalQuestion, st State) []*models.ConversationalQuestion {
	parent := q.ID
	switch q.Kind {
	case models.KindAnomalyBatch:
		return g.anomalyReviews(st, &parent)
	case models.KindFinalReview:
		return []*models.ConversationalQuestion{g.finalReview(st, &parent)}
	}

	table := st.Structure.Table(q.Target.TableID)
	m := st.mapping(q.Target.TableID)
	if table == nil || m == nil {
		return nil
	}

	switch q.Kind {
	case models.KindFieldConflict:
		for _, amb := range m.Ambiguities {
			if amb.Key == q.Target.Key {
				return []*models.ConversationalQuestion{g.fieldConflict(table, m, amb, &parent, true)}
			}
		}
	case models.KindColumnUncertain:
		for _, amb := range m.Ambiguities {
			if amb.Key == q.Target.Key {
				return []*models.ConversationalQuestion{g.columnUncertain(table, m, amb, &parent, true)}
			}
		}
	case models.KindMissingRequired:
		if f := m.Field(q.Target.Field); f != nil && !f.IsMapped() {
			return []*models.ConversationalQuestion{g.missingRequired(table, m, *f, &parent, true)}
		}
	}
	return nil
}

// ============================================================================
// Question builders
// ============================================================================

func (g *Generator) newQuestion(kind models.QuestionKind, category models.QuestionCategory, severity models.Severity, parent *uuid.UUID) *models.ConversationalQuestion {
	return &models.ConversationalQuestion{
		ID:        uuid.New(),
		ParentID:  parent,
		Kind:      kind,
		Category:  category,
		Severity:  severity,
		CreatedAt: g.now(),
	}
}

func (g *Generator) seal(q *models.ConversationalQuestion) *models.ConversationalQuestion {
	q.ContentHash = q.ComputeContentHash()
	return q
}

func (g *Generator) formatCheck(d models.FormatDetection) *models.ConversationalQuestion {
	q := g.newQuestion(models.KindFormatCheck, models.CategoryFormatConfirmation, models.SeverityCritical, nil)
	q.Target = models.QuestionTarget{Key: KeyFormat}
	if d.Kind == models.SourceKindUnknown {
		q.Prompt = "I could not tell what kind of file this is. I read it as plain text. Is that right?"
	} else {
		q.Prompt = fmt.Sprintf("This file looks like %s. Is that right?", KindLabel(d.Kind))
	}
	q.Rationale = fmt.Sprintf("Detected from %s with %.0f%% confidence.", strings.ReplaceAll(d.Signal, "_", " "), d.Confidence*100)
	q.Options = []models.QuestionOption{
		{ID: OptionConfirm, Label: "Yes, that's right", Action: models.ActionAcceptSuggestion},
		{ID: OptionWrong, Label: "No, this is wrong", Action: models.ActionReject},
	}
	return g.seal(q)
}

func (g *Generator) formatManual(d models.FormatDetection, parent *uuid.UUID) *models.ConversationalQuestion {
	q := g.newQuestion(models.KindFormatManual, models.CategoryFormatConfirmation, models.SeverityCritical, parent)
	q.Target = models.QuestionTarget{Key: KeyFormatManual}
	q.Prompt = "What kind of file is this?"
	q.Rationale = fmt.Sprintf("The detected kind (%s) was rejected.", KindLabel(d.Kind))
	for _, k := range models.ValidSourceKinds {
		if k == models.SourceKindUnknown {
			continue
		}
		q.Options = append(q.Options, models.QuestionOption{
			ID:     string(k),
			Label:  KindLabel(k),
			Action: models.ActionManualOverride,
			Value:  string(k),
		})
	}
	return g.seal(q)
}

func (g *Generator) tableInterpretation(st State, t *models.DetectedTable) *models.ConversationalQuestion {
	q := g.newQuestion(models.KindTableInterpretation, models.CategoryFormatConfirmation, models.SeverityCritical, nil)
	q.Target = models.QuestionTarget{Key: "layout:" + t.ID, TableID: t.ID}
	if t.HeaderRow < 0 {
		q.Prompt = fmt.Sprintf("I couldn't find a clearly labelled table. I read rows %d-%d as one table without a header. Please confirm this interpretation.",
			t.StartRow+1, t.DataEnd)
	} else {
		q.Prompt = fmt.Sprintf("I couldn't find a clearly labelled table. I read rows %d-%d as one table with row %d as the header. Please confirm this interpretation.",
			t.StartRow+1, t.DataEnd, t.HeaderRow+1)
	}
	q.Rationale = "Accepting a wrong layout would map data rows as headers or headers as data."
	if st.Detection.Kind == models.SourceKindUnknown {
		q.Rationale = "The file kind was not recognized, so the whole content was read as a single table. " + q.Rationale
	}
	for _, row := range t.Preview {
		q.SampleData = append(q.SampleData, joinRow(row))
	}
	q.Options = []models.QuestionOption{
		{ID: OptionConfirm, Label: "Yes, use this interpretation", Action: models.ActionAcceptSuggestion},
		{ID: OptionWrong, Label: "No, the header is on another row", Action: models.ActionReject},
	}
	return g.seal(q)
}

func (g *Generator) headerRow(st State, t *models.DetectedTable, parent *uuid.UUID) *models.ConversationalQuestion {
	q := g.newQuestion(models.KindHeaderRow, models.CategoryFormatConfirmation, models.SeverityCritical, parent)
	q.Target = models.QuestionTarget{Key: "header_row:" + t.ID, TableID: t.ID}
	q.Prompt = "Which row holds the column names?"
	q.Rationale = fmt.Sprintf("Rows %d-%d were read as one table.", t.StartRow+1, t.DataEnd)

	shown := 0
	for i := t.StartRow; i < t.DataEnd && shown < g.scoring.HeaderSearchDepth; i++ {
		row := st.Grid.Row(i)
		if row.IsEmpty() {
			continue
		}
		shown++
		q.Options = append(q.Options, models.QuestionOption{
			ID:     fmt.Sprintf("row_%d", i+1),
			Label:  fmt.Sprintf("Row %d: %s", i+1, truncate(joinRow(row.Strings()), 80)),
			Action: models.ActionManualOverride,
			Value:  strconv.Itoa(i),
		})
	}
	q.Options = append(q.Options,
		models.QuestionOption{ID: OptionOtherRow, Label: "Another row (enter its number)", Action: models.ActionManualOverride},
		models.QuestionOption{ID: OptionNoRow, Label: "There is no header row", Action: models.ActionManualOverride, Value: OptionNoRow},
	)
	return g.seal(q)
}

func (g *Generator) fieldConflict(t *models.DetectedTable, m *models.MappingResult, amb models.AmbiguousMapping, parent *uuid.UUID, detailed bool) *models.ConversationalQuestion {
	field := amb.Fields[0]
	label := fieldLabel(m, field)

	q := g.newQuestion(models.KindFieldConflict, models.CategoryColumnMapping, models.SeverityRecommended, parent)
	q.Target = models.QuestionTarget{Key: amb.Key, TableID: t.ID, Field: field, Columns: amb.Columns}
	q.Prompt = fmt.Sprintf("Several columns look like %s. Which one should be used?", label)

	var names []string
	for _, col := range amb.Columns {
		names = append(names, quoted(t, col))
	}
	q.Rationale = fmt.Sprintf("Columns %s all match %s; only one can be its source.", strings.Join(names, ", "), field)

	// Strongest claim first; it is the suggestion.
	cols := append([]int(nil), amb.Columns...)
	sort.SliceStable(cols, func(i, j int) bool {
		return m.Classification(cols[i]).Confidence > m.Classification(cols[j]).Confidence
	})
	n := g.sampleCount(detailed)
	for i, col := range cols {
		action := models.ActionManualOverride
		if i == 0 {
			action = models.ActionAcceptSuggestion
		}
		q.Options = append(q.Options, models.QuestionOption{
			ID:     columnOptionID(col),
			Label:  fmt.Sprintf("%s (e.g. %s)", quoted(t, col), strings.Join(samples(t, col, 3), ", ")),
			Action: action,
			Value:  strconv.Itoa(col),
		})
		for _, s := range samples(t, col, n) {
			q.SampleData = append(q.SampleData, fmt.Sprintf("%s: %s", t.Column(col).Label(), s))
		}
	}
	q.Options = append(q.Options, models.QuestionOption{ID: OptionSkip, Label: "Skip this column", Action: models.ActionSkip})
	if !detailed {
		q.Options = append(q.Options, models.QuestionOption{ID: OptionClarify, Label: "Show me more sample values", Action: models.ActionRequestClarification})
	}
	return g.seal(q)
}

func (g *Generator) columnUncertain(t *models.DetectedTable, m *models.MappingResult, amb models.AmbiguousMapping, parent *uuid.UUID, detailed bool) *models.ConversationalQuestion {
	col := amb.Columns[0]

	q := g.newQuestion(models.KindColumnUncertain, models.CategoryColumnMapping, models.SeverityRecommended, parent)
	q.Target = models.QuestionTarget{Key: amb.Key, TableID: t.ID, Columns: amb.Columns}
	q.Prompt = fmt.Sprintf("What does column %s contain?", quoted(t, col))
	cls := m.Classification(col)
	q.Rationale = fmt.Sprintf("No field matched column %s with enough confidence; %d fields are plausible.", quoted(t, col), len(amb.Fields))
	if cls.DisplacedFrom != "" {
		q.Rationale = fmt.Sprintf("Column %s best matched %s, which is now assigned to another column; it stays unmapped unless you pick another field.", quoted(t, col), cls.DisplacedFrom)
	}
	q.SampleData = samples(t, col, g.sampleCount(detailed))

	for i, field := range amb.Fields {
		action := models.ActionManualOverride
		label := fieldLabel(m, field)
		if i == 0 {
			action = models.ActionAcceptSuggestion
			label += " (suggested)"
		}
		if fs := cls.Candidate(field); fs != nil {
			label += fmt.Sprintf(" - %.0f%% match", fs.Score*100)
		}
		q.Options = append(q.Options, models.QuestionOption{
			ID:     "field_" + field,
			Label:  label,
			Action: action,
			Value:  field,
		})
	}
	q.Options = append(q.Options, models.QuestionOption{ID: OptionOmit, Label: "Omit this column", Action: models.ActionReject})
	if !detailed {
		q.Options = append(q.Options, models.QuestionOption{ID: OptionClarify, Label: "Show me more sample values", Action: models.ActionRequestClarification})
	}
	return g.seal(q)
}

func (g *Generator) missingRequired(t *models.DetectedTable, m *models.MappingResult, f models.StandardFieldMapping, parent *uuid.UUID, detailed bool) *models.ConversationalQuestion {
	q := g.newQuestion(models.KindMissingRequired, models.CategoryColumnMapping, models.SeverityCritical, parent)
	q.Target = models.QuestionTarget{Key: mapping.MissingKey(t.ID, f.Field), TableID: t.ID, Field: f.Field}
	q.Prompt = fmt.Sprintf("Missing required field: %s. Which column contains the %s?", f.Field, strings.ToLower(f.Label))
	q.Rationale = fmt.Sprintf("%s is required for %s records and no column matched it.", f.Label, strings.ReplaceAll(string(m.Target), "_", " "))

	candidates := f.Alternatives
	if detailed || len(candidates) == 0 {
		candidates = nil
		for _, c := range t.Columns {
			candidates = append(candidates, c.Index)
		}
		q.Rationale += " All columns are listed."
	}
	q.Target.Columns = candidates
	for _, col := range candidates {
		q.Options = append(q.Options, models.QuestionOption{
			ID:     columnOptionID(col),
			Label:  fmt.Sprintf("%s (e.g. %s)", quoted(t, col), strings.Join(samples(t, col, 3), ", ")),
			Action: models.ActionManualOverride,
			Value:  strconv.Itoa(col),
		})
	}
	q.Options = append(q.Options, models.QuestionOption{ID: OptionAbsent, Label: "This data is not in the file", Action: models.ActionReject})
	if !detailed && len(f.Alternatives) > 0 {
		q.Options = append(q.Options, models.QuestionOption{ID: OptionClarify, Label: "Show all columns", Action: models.ActionRequestClarification})
	}
	return g.seal(q)
}

// anomalyBatch bundles structural anomalies into one question. Layout
// anomalies are excluded; they get their own critical question.
func (g *Generator) anomalyBatch(st State) *models.ConversationalQuestion {
	anomalies := reviewable(st)
	if len(anomalies) == 0 {
		return nil
	}
	severity := models.SeverityOptional
	for _, a := range anomalies {
		if affectsRequired(st, a) {
			severity = models.SeverityCritical
			break
		}
	}

	q := g.newQuestion(models.KindAnomalyBatch, models.CategoryDataValidation, severity, nil)
	q.Target = models.QuestionTarget{Key: KeyAnomalies}
	q.Prompt = fmt.Sprintf("I found %d possible problems in the file's structure. Accept them as they are?", len(anomalies))
	q.Rationale = "Small tables and low-confidence columns are often fine but can hide misread data."
	for _, a := range anomalies {
		q.SampleData = append(q.SampleData, a.Message)
	}
	q.Options = []models.QuestionOption{
		{ID: OptionAccept, Label: "Accept as is", Action: models.ActionAcceptSuggestion},
		{ID: OptionClarify, Label: "Review each individually", Action: models.ActionRequestClarification},
	}
	if severity != models.SeverityCritical {
		q.Options = append(q.Options, models.QuestionOption{ID: OptionSkip, Label: "Skip", Action: models.ActionSkip})
	}
	return g.seal(q)
}

func (g *Generator) anomalyReviews(st State, parent *uuid.UUID) []*models.ConversationalQuestion {
	var out []*models.ConversationalQuestion
	for _, a := range reviewable(st) {
		severity := models.SeverityOptional
		if affectsRequired(st, a) {
			severity = models.SeverityCritical
		}
		anomaly := a
		q := g.newQuestion(models.KindAnomalyReview, models.CategoryDataValidation, severity, parent)
		q.Target = models.QuestionTarget{Key: AnomalyKey(a), TableID: a.TableID, Anomaly: &anomaly}
		q.Prompt = a.Message + ". Keep it?"
		q.Options = []models.QuestionOption{
			{ID: OptionAccept, Label: "Keep it", Action: models.ActionAcceptSuggestion},
		}
		if a.ColumnIndex >= 0 {
			q.Target.Columns = []int{a.ColumnIndex}
			if t := st.Structure.Table(a.TableID); t != nil {
				q.SampleData = samples(t, a.ColumnIndex, g.scoring.SanitySampleSize)
			}
			q.Options = append(q.Options, models.QuestionOption{ID: OptionReject, Label: "Leave this column out", Action: models.ActionReject})
		}
		if severity != models.SeverityCritical {
			q.Options = append(q.Options, models.QuestionOption{ID: OptionSkip, Label: "Skip", Action: models.ActionSkip})
		}
		out = append(out, g.seal(q))
	}
	return out
}

func (g *Generator) mappingSanity(st State, tableID string, column int, field string, parent *uuid.UUID) *models.ConversationalQuestion {
	t := st.Structure.Table(tableID)
	m := st.mapping(tableID)
	if t == nil || m == nil || t.Column(column) == nil {
		return nil
	}
	q := g.newQuestion(models.KindMappingSanity, models.CategoryDataValidation, models.SeverityOptional, parent)
	q.Target = models.QuestionTarget{
		Key:     fmt.Sprintf("sanity:%s:%d", tableID, column),
		TableID: tableID,
		Field:   field,
		Columns: []int{column},
	}
	q.Prompt = fmt.Sprintf("Do these values from %s look like %s?", quoted(t, column), fieldLabel(m, field))
	q.SampleData = samples(t, column, g.scoring.SanitySampleSize)
	q.Options = []models.QuestionOption{
		{ID: OptionAccept, Label: "Yes", Action: models.ActionAcceptSuggestion},
		{ID: OptionReject, Label: "No, unmap this column", Action: models.ActionReject},
		{ID: OptionSkip, Label: "Skip", Action: models.ActionSkip},
	}
	return g.seal(q)
}

func (g *Generator) finalReview(st State, parent *uuid.UUID) *models.ConversationalQuestion {
	q := g.newQuestion(models.KindFinalReview, models.CategoryConfirmation, models.SeverityOptional, parent)
	q.Target = models.QuestionTarget{Key: KeyFinalReview}
	q.Prompt = "Review the proposed mapping before the dataset is finalized."
	for _, m := range st.Mappings {
		t := st.Structure.Table(m.TableID)
		if t == nil {
			continue
		}
		for _, f := range m.Fields {
			if !f.IsMapped() {
				if parent != nil {
					q.SampleData = append(q.SampleData, fmt.Sprintf("%s: %s <- (none)", m.Target, f.Field))
				}
				continue
			}
			var cols []string
			for _, c := range f.MappedColumns {
				cols = append(cols, quoted(t, c))
			}
			q.SampleData = append(q.SampleData, fmt.Sprintf("%s: %s <- %s", m.Target, f.Field, strings.Join(cols, ", ")))
		}
	}
	q.Options = []models.QuestionOption{
		{ID: OptionAccept, Label: "Approve", Action: models.ActionAcceptSuggestion},
		{ID: OptionSkip, Label: "Skip", Action: models.ActionSkip},
	}
	if parent == nil {
		q.Options = append(q.Options, models.QuestionOption{ID: OptionClarify, Label: "Show the full mapping", Action: models.ActionRequestClarification})
	}
	return g.seal(q)
}

func (g *Generator) sampleCount(detailed bool) int {
	if detailed {
		return g.scoring.SampleSize
	}
	return g.scoring.SanitySampleSize
}

// ============================================================================
// Helpers
// ============================================================================

// Sort orders questions by conversation step, then severity, keeping
// generation order otherwise.
func Sort(qs []*models.ConversationalQuestion) {
	sort.SliceStable(qs, func(i, j int) bool {
		si, sj := stepOf(qs[i].Category), stepOf(qs[j].Category)
		if si != sj {
			return si < sj
		}
		return qs[i].Severity.Rank() < qs[j].Severity.Rank()
	})
}

// StepFor returns the conversation step a question category is attributed to.
func StepFor(c models.QuestionCategory) models.SessionStep {
	switch c {
	case models.CategoryFormatConfirmation:
		return models.StepFormatConfirmation
	case models.CategoryColumnMapping:
		return models.StepColumnMapping
	case models.CategoryDataValidation:
		return models.StepDataValidation
	default:
		return models.StepFinalConfirmation
	}
}

func stepOf(c models.QuestionCategory) int {
	return StepFor(c).Index()
}

// AnomalyKey identifies one anomaly across recomputations.
func AnomalyKey(a models.Anomaly) string {
	return fmt.Sprintf("anomaly:%s:%s:%d", a.TableID, a.Kind, a.ColumnIndex)
}

func reviewable(st State) []models.Anomaly {
	if st.Structure == nil {
		return nil
	}
	var out []models.Anomaly
	for _, a := range st.Structure.Anomalies {
		if a.Kind == models.AnomalyUnconfirmedLayout || !st.isSelected(a.TableID) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// affectsRequired reports whether an anomaly sits on a column mapped to a
// required field.
func affectsRequired(st State, a models.Anomaly) bool {
	if a.ColumnIndex < 0 {
		return false
	}
	m := st.mapping(a.TableID)
	if m == nil {
		return false
	}
	field := m.FieldForColumn(a.ColumnIndex)
	if field == "" {
		return false
	}
	f := m.Field(field)
	return f != nil && f.Required
}

// KindLabel is the human name of a source kind.
func KindLabel(k models.SourceKind) string {
	switch k {
	case models.SourceKindSpreadsheet:
		return "a spreadsheet"
	case models.SourceKindDelimited:
		return "a delimited text file (CSV)"
	case models.SourceKindDocument:
		return "a PDF document"
	case models.SourceKindImage:
		return "a scanned image"
	case models.SourceKindPlainText:
		return "a plain text file"
	default:
		return "an unknown file type"
	}
}

func fieldLabel(m *models.MappingResult, field string) string {
	if f := m.Field(field); f != nil && f.Label != "" {
		return f.Label
	}
	return field
}

func quoted(t *models.DetectedTable, col int) string {
	if c := t.Column(col); c != nil {
		return strconv.Quote(c.Label())
	}
	return fmt.Sprintf("column %d", col+1)
}

func samples(t *models.DetectedTable, col, n int) []string {
	c := t.Column(col)
	if c == nil {
		return nil
	}
	if len(c.SampleValues) <= n {
		return append([]string(nil), c.SampleValues...)
	}
	return append([]string(nil), c.SampleValues[:n]...)
}

func columnOptionID(col int) string {
	return fmt.Sprintf("col_%d", col)
}

func joinRow(cells []string) string {
	return strings.Join(cells, " | ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
