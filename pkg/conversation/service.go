package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/census-engine/pkg/analysis"
	"github.com/ekaya-inc/census-engine/pkg/apperrors"
	"github.com/ekaya-inc/census-engine/pkg/logging"
	"github.com/ekaya-inc/census-engine/pkg/mapping"
	"github.com/ekaya-inc/census-engine/pkg/models"
	"github.com/ekaya-inc/census-engine/pkg/questions"
)

// ConversationService runs the question/answer loop for processed files.
type ConversationService interface {
	// StartSession opens a session over a processed file and issues its
	// initial questions.
	StartSession(ctx context.Context, clientID string, processed *models.ProcessedFileData) (*SessionView, error)

	// ProcessAnswer applies an answer. Rejected answers return Accepted=false
	// with a reason and leave the session unchanged.
	ProcessAnswer(ctx context.Context, sessionID, questionID uuid.UUID, answer models.Answer) (*models.AnswerResult, error)

	// GetSession returns a snapshot of a live session.
	GetSession(ctx context.Context, sessionID uuid.UUID) (*SessionView, error)

	// PendingQuestions returns a session's pending questions in presentation order.
	PendingQuestions(ctx context.Context, sessionID uuid.UUID) ([]*models.ConversationalQuestion, error)

	// Finalize emits the dataset of a session with no pending critical
	// question and closes it.
	Finalize(ctx context.Context, sessionID uuid.UUID) (*models.NormalizedDataset, error)
}

type conversationService struct {
	store     SessionStore
	generator *questions.Generator
	mapper    *mapping.ColumnMapper
	analyzer  *analysis.StructureAnalyzer
	logger    *zap.Logger
	now       func() time.Time
}

// NewConversationService creates a conversation service.
func NewConversationService(
	store SessionStore,
	generator *questions.Generator,
	mapper *mapping.ColumnMapper,
	analyzer *analysis.StructureAnalyzer,
	logger *zap.Logger,
) ConversationService {
	return &conversationService{
		store:     store,
		generator: generator,
		mapper:    mapper,
		analyzer:  analyzer,
		logger:    logger.Named("conversation"),
		now:       time.Now,
	}
}

var _ ConversationService = (*conversationService)(nil)

// errRejected marks answers that are refused without touching the session.
var errRejected = errors.New("answer rejected")

func rejectf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errRejected}, args...)...)
}

func (c *conversationService) StartSession(ctx context.Context, clientID string, processed *models.ProcessedFileData) (*SessionView, error) {
	if processed == nil || processed.Structure == nil || processed.Grid == nil {
		return nil, fmt.Errorf("start session: %w", apperrors.ErrEmptyGrid)
	}

	s := newSession(clientID, processed, c.now())
	s.issue(processed.Questions)
	s.recomputeStep()
	c.store.Put(s)

	c.logger.Info("Session started",
		zap.String("session_id", s.ID.String()),
		zap.String("client_id", clientID),
		zap.String("file_name", s.File.FileName),
		zap.Int("questions", len(s.Pending)),
		zap.Int("pending_critical", s.PendingCritical()),
		zap.String("step", string(s.Step)))

	return s.View(), nil
}

func (c *conversationService) GetSession(ctx context.Context, sessionID uuid.UUID) (*SessionView, error) {
	var view *SessionView
	err := c.store.WithSession(sessionID, func(s *Session) error {
		view = s.View()
		return nil
	})
	return view, err
}

func (c *conversationService) PendingQuestions(ctx context.Context, sessionID uuid.UUID) ([]*models.ConversationalQuestion, error) {
	var pending []*models.ConversationalQuestion
	err := c.store.WithSession(sessionID, func(s *Session) error {
		pending = s.PendingQuestions()
		return nil
	})
	return pending, err
}

func (c *conversationService) Finalize(ctx context.Context, sessionID uuid.UUID) (*models.NormalizedDataset, error) {
	var ds *models.NormalizedDataset
	err := c.store.WithSession(sessionID, func(s *Session) error {
		if n := s.PendingCritical(); n > 0 {
			return fmt.Errorf("%d critical questions pending: %w", n, apperrors.ErrCriticalPending)
		}
		ds = c.complete(s)
		return nil
	})
	return ds, err
}

func (c *conversationService) ProcessAnswer(ctx context.Context, sessionID, questionID uuid.UUID, answer models.Answer) (*models.AnswerResult, error) {
	var result *models.AnswerResult
	err := c.store.WithSession(sessionID, func(s *Session) error {
		r, err := c.processAnswer(s, questionID, answer)
		if errors.Is(err, errRejected) {
			c.logger.Info("Answer rejected",
				zap.String("session_id", s.ID.String()),
				zap.String("question_id", questionID.String()),
				zap.String("reason", logging.SanitizeError(err)))
			result = &models.AnswerResult{
				Accepted:      false,
				Reason:        strings.TrimPrefix(err.Error(), errRejected.Error()+": "),
				NextQuestions: []*models.ConversationalQuestion{},
				Step:          s.Step,
			}
			return nil
		}
		result = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *conversationService) processAnswer(s *Session, questionID uuid.UUID, answer models.Answer) (*models.AnswerResult, error) {
	q, ok := s.Questions[questionID]
	if !ok {
		return nil, rejectf("question %s does not belong to this session", questionID)
	}
	if !s.isPending(questionID) {
		return nil, rejectf("question %s is not pending", questionID)
	}
	opt := q.Option(answer.OptionID)
	if opt == nil {
		return nil, rejectf("unknown option %q", answer.OptionID)
	}
	if opt.Action == models.ActionSkip && q.IsCritical() {
		return nil, rejectf("critical questions cannot be skipped")
	}

	value := opt.Value
	if opt.Action == models.ActionManualOverride && value == "" {
		value = strings.TrimSpace(answer.Value)
		if value == "" {
			return nil, rejectf("option %q needs a value", opt.ID)
		}
	}

	if err := c.apply(s, q, opt, value); err != nil {
		return nil, err
	}

	now := c.now()
	rec := &models.AnswerRecord{
		QuestionID: q.ID,
		Kind:       q.Kind,
		Category:   q.Category,
		Severity:   q.Severity,
		TargetKey:  q.Target.Key,
		Answer:     answer,
		Action:     opt.Action,
		Value:      value,
		Summary:    summarize(q, opt, value),
		AnsweredAt: now,
	}
	s.record(rec)
	s.dropPending(q.ID)
	s.LastActivity = now

	c.remap(s)
	// Follow-ups go first so a clarified question is not re-raised in its
	// plain form by reconciliation.
	next := s.issue(c.generator.FollowUps(q, rec, s.state()))
	for _, f := range next {
		rec.FollowUpIDs = append(rec.FollowUpIDs, f.ID)
	}
	next = append(next, c.reconcile(s)...)
	questions.Sort(next)
	s.recomputeStep()

	c.logger.Info("Answer applied",
		zap.String("session_id", s.ID.String()),
		zap.String("question_id", q.ID.String()),
		zap.String("kind", string(q.Kind)),
		zap.String("action", string(opt.Action)),
		zap.String("value", logging.SanitizeCell(value)),
		zap.String("step", string(s.Step)),
		zap.Int("pending_critical", s.PendingCritical()),
		zap.Int("next_questions", len(next)))

	result := &models.AnswerResult{
		Accepted:      true,
		NextQuestions: next,
		Step:          s.Step,
	}
	if next == nil {
		result.NextQuestions = []*models.ConversationalQuestion{}
	}
	if s.IsComplete() {
		result.FinalizedDataset = c.complete(s)
		result.IsComplete = true
		result.Step = s.Step
	}
	return result, nil
}

// apply turns an answer into state changes. Validation failures are
// returned before anything is mutated.
func (c *conversationService) apply(s *Session, q *models.ConversationalQuestion, opt *models.QuestionOption, value string) error {
	switch q.Kind {
	case models.KindFormatManual:
		kind := models.SourceKind(value)
		if !models.IsValidSourceKind(kind) {
			return rejectf("unknown file kind %q", value)
		}
		s.FormatOverride = kind

	case models.KindHeaderRow:
		return c.applyHeaderRow(s, q, opt, value)

	case models.KindFieldConflict, models.KindMissingRequired:
		res := s.resolution(q.Target.TableID)
		switch opt.Action {
		case models.ActionAcceptSuggestion, models.ActionManualOverride:
			col, err := c.column(s, q.Target.TableID, value)
			if err != nil {
				return err
			}
			res.Assign(col, q.Target.Field)
		case models.ActionReject:
			res.MarkAbsent(q.Target.Field)
		}

	case models.KindColumnUncertain:
		res := s.resolution(q.Target.TableID)
		col := q.Target.Columns[0]
		switch opt.Action {
		case models.ActionAcceptSuggestion, models.ActionManualOverride:
			if !c.anyField(value) {
				return rejectf("unknown field %q", value)
			}
			res.Assign(col, value)
		case models.ActionReject:
			res.Omit(col)
		}

	case models.KindAnomalyReview:
		if opt.Action == models.ActionReject && len(q.Target.Columns) == 1 {
			s.resolution(q.Target.TableID).Omit(q.Target.Columns[0])
		}

	case models.KindMappingSanity:
		if opt.Action == models.ActionReject && len(q.Target.Columns) == 1 {
			res := s.resolution(q.Target.TableID)
			res.Exclude(q.Target.Columns[0], q.Target.Field)
			res.Omit(q.Target.Columns[0])
		}
	}
	return nil
}

// applyHeaderRow rebuilds a table around the confirmed header row. Earlier
// mapping decisions for that table no longer refer to the same columns, so
// they are dropped.
func (c *conversationService) applyHeaderRow(s *Session, q *models.ConversationalQuestion, opt *models.QuestionOption, value string) error {
	row := analysis.NoHeaderRow
	if value != questions.OptionNoRow {
		n, err := strconv.Atoi(value)
		if err != nil {
			return rejectf("row %q is not a number", value)
		}
		row = n
		// Typed row numbers are 1-based.
		if opt.Value == "" {
			row = n - 1
		}
	}

	structure, err := c.analyzer.Reanalyze(s.Processed.Grid, s.Processed.Structure, q.Target.TableID, row)
	if err != nil {
		return rejectf("%v", err)
	}
	s.Processed.Structure = structure
	s.Resolutions[q.Target.TableID] = models.NewResolution()

	for i, sel := range s.Processed.Selected {
		if sel.TableID == q.Target.TableID {
			if t := structure.Table(sel.TableID); t != nil {
				s.Processed.Selected[i].Purpose = t.Purpose.TargetPurpose()
			}
		}
	}
	return nil
}

func (c *conversationService) column(s *Session, tableID, value string) (int, error) {
	col, err := strconv.Atoi(value)
	if err != nil {
		return 0, rejectf("column %q is not a number", value)
	}
	t := s.Processed.Structure.Table(tableID)
	if t == nil || t.Column(col) == nil {
		return 0, rejectf("column %d does not exist", col)
	}
	return col, nil
}

func (c *conversationService) anyField(name string) bool {
	for _, p := range models.RecordPurposes {
		if _, ok := c.mapper.Catalog().Field(p, name); ok {
			return true
		}
	}
	return false
}

// remap recomputes every selected table's mapping from the current structure
// and resolutions.
func (c *conversationService) remap(s *Session) {
	p := s.Processed
	p.Mappings = c.mapper.MapSelected(p.Structure, p.Selected, s.Resolutions)
	mapping.ApplySuggestions(p.Structure, p.Mappings)
}

// reconcile supersedes mapping questions whose ambiguity is gone and issues
// questions for ambiguities that are new. Keys already settled by an answer
// are not asked again.
func (c *conversationService) reconcile(s *Session) []*models.ConversationalQuestion {
	current := c.generator.Reconcilable(s.state())
	live := make(map[string]bool, len(current))
	for _, q := range current {
		live[q.Target.Key] = true
	}

	pendingKeys := make(map[string]bool)
	for _, q := range s.PendingQuestions() {
		if !q.Kind.IsReconciled() {
			continue
		}
		if !live[q.Target.Key] {
			s.dropPending(q.ID)
			s.Superseded = append(s.Superseded, q.ID)
			continue
		}
		pendingKeys[q.Target.Key] = true
	}

	resolved := s.resolvedKeys()
	var fresh []*models.ConversationalQuestion
	for _, q := range current {
		if pendingKeys[q.Target.Key] || resolved[q.Target.Key] {
			continue
		}
		fresh = append(fresh, q)
	}
	return s.issue(fresh)
}

// complete finalizes the session and removes it from the store.
func (c *conversationService) complete(s *Session) *models.NormalizedDataset {
	s.Step = models.StepComplete
	s.Approved = true
	ds := c.buildDataset(s)
	c.store.Remove(s.ID)

	c.logger.Info("Session finalized",
		zap.String("session_id", s.ID.String()),
		zap.Int("answers", len(s.AnswerOrder)),
		zap.Int("pending_optional", len(s.Pending)),
		zap.String("summary", ds.ValidationSummary))
	return ds
}

func (c *conversationService) buildDataset(s *Session) *models.NormalizedDataset {
	p := s.Processed
	ds := &models.NormalizedDataset{
		SessionID:          s.ID,
		FileName:           s.File.FileName,
		Records:            make(map[models.TablePurpose][]models.NormalizedRecord),
		AnswerHistory:      s.History(),
		ResolvedBySeverity: make(map[models.Severity]int),
		FormatOverride:     s.FormatOverride,
		FinalizedAt:        c.now(),
	}

	var absent []string
	records := 0
	for _, sel := range p.Selected {
		table := p.Structure.Table(sel.TableID)
		m := p.Mapping(sel.TableID)
		if table == nil || m == nil {
			continue
		}
		rows := c.mapper.ConvertRows(p.Grid, table, m)
		ds.Records[sel.Purpose] = append(ds.Records[sel.Purpose], rows...)
		records += len(rows)

		confirmed := models.ConfirmedTableMapping{
			TableID: table.ID,
			Purpose: sel.Purpose,
			Fields:  make(map[string][]string),
		}
		for _, f := range m.Fields {
			if f.Absent {
				absent = append(absent, f.Field)
			}
			for _, col := range f.MappedColumns {
				confirmed.Fields[f.Field] = append(confirmed.Fields[f.Field], table.Column(col).Label())
			}
		}
		ds.ConfirmedMapping = append(ds.ConfirmedMapping, confirmed)
	}

	for _, rec := range ds.AnswerHistory {
		if rec.Resolves() {
			ds.ResolvedBySeverity[rec.Severity]++
		}
	}

	summary := fmt.Sprintf("%d records; resolved %d critical, %d recommended, %d optional questions",
		records,
		ds.ResolvedBySeverity[models.SeverityCritical],
		ds.ResolvedBySeverity[models.SeverityRecommended],
		ds.ResolvedBySeverity[models.SeverityOptional])
	if len(s.Pending) > 0 {
		summary += fmt.Sprintf("; %d non-critical questions left unanswered", len(s.Pending))
	}
	if len(absent) > 0 {
		sort.Strings(absent)
		summary += "; confirmed absent: " + strings.Join(absent, ", ")
	}
	ds.ValidationSummary = summary
	return ds
}

func summarize(q *models.ConversationalQuestion, opt *models.QuestionOption, value string) string {
	if value != "" && value != opt.Value {
		return fmt.Sprintf("%s: %s (%s)", q.Target.Key, opt.Label, value)
	}
	return fmt.Sprintf("%s: %s", q.Target.Key, opt.Label)
}
