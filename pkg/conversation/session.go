package conversation

import (
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/census-engine/pkg/models"
	"github.com/ekaya-inc/census-engine/pkg/questions"
)

// Session is the conversation state for one file. It is only touched while
// its store lock is held.
type Session struct {
	ID             uuid.UUID
	ClientID       string
	File           models.FileMetadata
	Step           models.SessionStep
	Processed      *models.ProcessedFileData
	Resolutions    map[string]*models.Resolution // table id -> user decisions
	Questions      map[uuid.UUID]*models.ConversationalQuestion
	Pending        []uuid.UUID
	Answers        map[uuid.UUID]*models.AnswerRecord
	AnswerOrder    []uuid.UUID
	Superseded     []uuid.UUID
	Approved       bool
	FormatOverride models.SourceKind
	CreatedAt      time.Time
	LastActivity   time.Time
}

func newSession(clientID string, processed *models.ProcessedFileData, now time.Time) *Session {
	s := &Session{
		ID:           uuid.New(),
		ClientID:     clientID,
		File:         processed.Metadata,
		Step:         models.StepFormatConfirmation,
		Processed:    processed,
		Resolutions:  make(map[string]*models.Resolution),
		Questions:    make(map[uuid.UUID]*models.ConversationalQuestion),
		Answers:      make(map[uuid.UUID]*models.AnswerRecord),
		CreatedAt:    now,
		LastActivity: now,
	}
	for _, sel := range processed.Selected {
		s.Resolutions[sel.TableID] = models.NewResolution()
	}
	return s
}

// state exposes the session's current pipeline state to the generator.
func (s *Session) state() questions.State {
	return questions.State{
		Detection: s.Processed.Detection,
		Structure: s.Processed.Structure,
		Selected:  s.Processed.Selected,
		Mappings:  s.Processed.Mappings,
		Grid:      s.Processed.Grid,
	}
}

// issue adds questions to the pending list, dropping any whose content hash
// is already pending. It returns the questions actually added.
func (s *Session) issue(qs []*models.ConversationalQuestion) []*models.ConversationalQuestion {
	hashes := make(map[string]bool, len(s.Pending))
	for _, id := range s.Pending {
		hashes[s.Questions[id].ContentHash] = true
	}

	var added []*models.ConversationalQuestion
	for _, q := range qs {
		if hashes[q.ContentHash] {
			continue
		}
		hashes[q.ContentHash] = true
		s.Questions[q.ID] = q
		s.Pending = append(s.Pending, q.ID)
		added = append(added, q)
	}
	s.sortPending()
	return added
}

func (s *Session) sortPending() {
	qs := s.PendingQuestions()
	questions.Sort(qs)
	for i, q := range qs {
		s.Pending[i] = q.ID
	}
}

func (s *Session) isPending(id uuid.UUID) bool {
	for _, p := range s.Pending {
		if p == id {
			return true
		}
	}
	return false
}

func (s *Session) dropPending(id uuid.UUID) {
	for i, p := range s.Pending {
		if p == id {
			s.Pending = append(s.Pending[:i], s.Pending[i+1:]...)
			return
		}
	}
}

// PendingQuestions returns the pending questions in presentation order.
func (s *Session) PendingQuestions() []*models.ConversationalQuestion {
	out := make([]*models.ConversationalQuestion, 0, len(s.Pending))
	for _, id := range s.Pending {
		out = append(out, s.Questions[id])
	}
	return out
}

// PendingCritical counts pending critical questions.
func (s *Session) PendingCritical() int {
	n := 0
	for _, id := range s.Pending {
		if s.Questions[id].IsCritical() {
			n++
		}
	}
	return n
}

// IsComplete is true when no critical question is pending.
func (s *Session) IsComplete() bool {
	return s.PendingCritical() == 0
}

// record appends an answer to the history.
func (s *Session) record(rec *models.AnswerRecord) {
	s.Answers[rec.QuestionID] = rec
	s.AnswerOrder = append(s.AnswerOrder, rec.QuestionID)
}

// History returns the answer records in the order they were given.
func (s *Session) History() []models.AnswerRecord {
	out := make([]models.AnswerRecord, 0, len(s.AnswerOrder))
	for _, id := range s.AnswerOrder {
		out = append(out, *s.Answers[id])
	}
	return out
}

// resolvedKeys returns the target keys settled by an answer.
func (s *Session) resolvedKeys() map[string]bool {
	keys := make(map[string]bool, len(s.Answers))
	for _, rec := range s.Answers {
		if rec.Resolves() {
			keys[rec.TargetKey] = true
		}
	}
	return keys
}

// recomputeStep moves the session to the earliest step that still has a
// pending critical question. With none left it sits at final confirmation
// until it is finalized.
func (s *Session) recomputeStep() {
	step := models.StepFinalConfirmation
	for _, q := range s.PendingQuestions() {
		if !q.IsCritical() {
			continue
		}
		if qs := questions.StepFor(q.Category); qs.Index() < step.Index() {
			step = qs
		}
	}
	s.Step = step
}

// resolution returns the decisions recorded for a table, creating them if needed.
func (s *Session) resolution(tableID string) *models.Resolution {
	res, ok := s.Resolutions[tableID]
	if !ok {
		res = models.NewResolution()
		s.Resolutions[tableID] = res
	}
	return res
}

// SessionView is a read-only snapshot of a session.
type SessionView struct {
	ID              uuid.UUID                        `json:"id"`
	ClientID        string                           `json:"client_id"`
	File            models.FileMetadata              `json:"file"`
	Step            models.SessionStep               `json:"step"`
	Approved        bool                             `json:"approved"`
	PendingCritical int                              `json:"pending_critical"`
	Pending         []*models.ConversationalQuestion `json:"pending"`
	Answers         []models.AnswerRecord            `json:"answers"`
	Superseded      []uuid.UUID                      `json:"superseded,omitempty"`
	Structure       *models.StructureAnalysis        `json:"structure"`
	Mappings        []models.MappingResult           `json:"mappings"`
	FormatOverride  models.SourceKind                `json:"format_override,omitempty"`
	CreatedAt       time.Time                        `json:"created_at"`
	LastActivity    time.Time                        `json:"last_activity"`
}

// View snapshots the session. The snapshot shares no mutable state with the
// session, so it can be read after the store lock is released.
func (s *Session) View() *SessionView {
	return &SessionView{
		ID:              s.ID,
		ClientID:        s.ClientID,
		File:            s.File,
		Step:            s.Step,
		Approved:        s.Approved,
		PendingCritical: s.PendingCritical(),
		Pending:         s.PendingQuestions(),
		Answers:         s.History(),
		Superseded:      append([]uuid.UUID(nil), s.Superseded...),
		Structure:       s.Processed.Structure.Clone(),
		Mappings:        models.CloneMappings(s.Processed.Mappings),
		FormatOverride:  s.FormatOverride,
		CreatedAt:       s.CreatedAt,
		LastActivity:    s.LastActivity,
	}
}
