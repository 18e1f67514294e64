package models

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Question Categories
// ============================================================================

// QuestionCategory attributes a question to a conversation step.
type QuestionCategory string

const (
	CategoryFormatConfirmation QuestionCategory = "format_confirmation"
	CategoryColumnMapping      QuestionCategory = "column_mapping"
	CategoryDataValidation     QuestionCategory = "data_validation"
	CategoryConfirmation       QuestionCategory = "confirmation"
)

// ValidQuestionCategories contains all valid question category values.
var ValidQuestionCategories = []QuestionCategory{
	CategoryFormatConfirmation,
	CategoryColumnMapping,
	CategoryDataValidation,
	CategoryConfirmation,
}

// IsValidQuestionCategory checks if the given category is valid.
func IsValidQuestionCategory(c QuestionCategory) bool {
	return slices.Contains(ValidQuestionCategories, c)
}

// ============================================================================
// Severity
// ============================================================================

// Severity decides whether a question blocks finalization.
type Severity string

const (
	SeverityCritical    Severity = "critical"
	SeverityRecommended Severity = "recommended"
	SeverityOptional    Severity = "optional"
)

// ValidSeverities contains all valid severities, most severe first.
var ValidSeverities = []Severity{
	SeverityCritical,
	SeverityRecommended,
	SeverityOptional,
}

// Rank orders severities; lower is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityRecommended:
		return 1
	default:
		return 2
	}
}

// ============================================================================
// Options
// ============================================================================

// OptionAction is the verb an option applies when chosen.
type OptionAction string

const (
	ActionAcceptSuggestion     OptionAction = "accept_suggestion"
	ActionReject               OptionAction = "reject"
	ActionManualOverride       OptionAction = "manual_override"
	ActionSkip                 OptionAction = "skip"
	ActionRequestClarification OptionAction = "request_clarification"
)

// QuestionOption is one selectable answer. Value carries the option payload
// (a column index, field name, row number or source kind). A manual override
// option with an empty Value expects the answer to supply one.
type QuestionOption struct {
	ID     string       `json:"id"`
	Label  string       `json:"label"`
	Action OptionAction `json:"action"`
	Value  string       `json:"value,omitempty"`
}

// ============================================================================
// Question Kinds
// ============================================================================

// QuestionKind identifies what state a question resolves.
type QuestionKind string

const (
	KindFormatCheck         QuestionKind = "format_check"
	KindFormatManual        QuestionKind = "format_manual"
	KindTableInterpretation QuestionKind = "table_interpretation"
	KindHeaderRow           QuestionKind = "header_row"
	KindFieldConflict       QuestionKind = "field_conflict"
	KindColumnUncertain     QuestionKind = "column_uncertain"
	KindMissingRequired     QuestionKind = "missing_required"
	KindAnomalyBatch        QuestionKind = "anomaly_batch"
	KindAnomalyReview       QuestionKind = "anomaly_review"
	KindMappingSanity       QuestionKind = "mapping_sanity"
	KindFinalReview         QuestionKind = "final_review"
)

// IsReconciled returns true for kinds derived from the current mapping, which
// are superseded when the state that raised them goes away.
func (k QuestionKind) IsReconciled() bool {
	return k == KindFieldConflict || k == KindColumnUncertain || k == KindMissingRequired
}

// ============================================================================
// Question Model
// ============================================================================

// QuestionTarget is what a question is about. Key is the stable identity of
// the underlying state, used for deduplication and reconciliation.
type QuestionTarget struct {
	Key     string   `json:"key"`
	TableID string   `json:"table_id,omitempty"`
	Field   string   `json:"field,omitempty"`
	Columns []int    `json:"columns,omitempty"`
	Anomaly *Anomaly `json:"anomaly,omitempty"`
}

// ConversationalQuestion is immutable once issued. Follow-ups get new ids and
// point at their parent.
type ConversationalQuestion struct {
	ID          uuid.UUID        `json:"id"`
	ParentID    *uuid.UUID       `json:"parent_id,omitempty"`
	Kind        QuestionKind     `json:"kind"`
	Category    QuestionCategory `json:"category"`
	Severity    Severity         `json:"severity"`
	Prompt      string           `json:"prompt"`
	Rationale   string           `json:"rationale,omitempty"`
	Options     []QuestionOption `json:"options"`
	SampleData  []string         `json:"sample_data,omitempty"`
	Target      QuestionTarget   `json:"target"`
	ContentHash string           `json:"content_hash"`
	CreatedAt   time.Time        `json:"created_at"`
}

// IsCritical returns true if the question blocks finalization.
func (q *ConversationalQuestion) IsCritical() bool {
	return q.Severity == SeverityCritical
}

// Option returns the option with the given id, or nil.
func (q *ConversationalQuestion) Option(id string) *QuestionOption {
	for i := range q.Options {
		if q.Options[i].ID == id {
			return &q.Options[i]
		}
	}
	return nil
}

// ComputeContentHash creates a SHA256 hash of category + key + prompt for deduplication.
// Returns the first 16 characters of the hex-encoded hash.
func (q *ConversationalQuestion) ComputeContentHash() string {
	h := sha256.New()
	h.Write([]byte(string(q.Category) + "|" + q.Target.Key + "|" + q.Prompt))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// ============================================================================
// Answers
// ============================================================================

// Answer is what an external actor submits for a question.
type Answer struct {
	OptionID string `json:"option_id"`
	Value    string `json:"value,omitempty"`
	Comment  string `json:"comment,omitempty"`
}

// AnswerRecord is the audit entry kept for every accepted answer.
type AnswerRecord struct {
	QuestionID  uuid.UUID        `json:"question_id"`
	Kind        QuestionKind     `json:"kind"`
	Category    QuestionCategory `json:"category"`
	Severity    Severity         `json:"severity"`
	TargetKey   string           `json:"target_key"`
	Answer      Answer           `json:"answer"`
	Action      OptionAction     `json:"action"`
	Value       string           `json:"value,omitempty"` // resolved option or free-form value
	Summary     string           `json:"summary"`
	FollowUpIDs []uuid.UUID      `json:"follow_up_ids,omitempty"`
	AnsweredAt  time.Time        `json:"answered_at"`
}

// Resolves returns true if the answer settled its target rather than asking
// for more detail.
func (a *AnswerRecord) Resolves() bool {
	return a.Action != ActionRequestClarification
}
