package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Session Steps
// ============================================================================

// SessionStep is a state of the conversation state machine.
type SessionStep string

const (
	StepFormatConfirmation SessionStep = "format_confirmation"
	StepColumnMapping      SessionStep = "column_mapping"
	StepDataValidation     SessionStep = "data_validation"
	StepFinalConfirmation  SessionStep = "final_confirmation"
	StepComplete           SessionStep = "complete"
)

// SessionSteps lists the steps in transition order.
var SessionSteps = []SessionStep{
	StepFormatConfirmation,
	StepColumnMapping,
	StepDataValidation,
	StepFinalConfirmation,
	StepComplete,
}

// Index returns the position of the step in transition order.
func (s SessionStep) Index() int {
	for i, v := range SessionSteps {
		if v == s {
			return i
		}
	}
	return -1
}

// ============================================================================
// Pipeline Output
// ============================================================================

// FileMetadata is extraction traceability for one file.
type FileMetadata struct {
	FileName         string        `json:"file_name"`
	Size             int64         `json:"size"`
	MediaType        string        `json:"media_type,omitempty"`
	Duration         time.Duration `json:"duration"`
	ExtractionMethod string        `json:"extraction_method"`
	LowFidelity      bool          `json:"low_fidelity"`
}

// TableSelection names the authoritative table for a record purpose.
type TableSelection struct {
	Purpose TablePurpose `json:"purpose"`
	TableID string       `json:"table_id"`
}

// ProcessedFileData is the pipeline output handed to a conversation session.
type ProcessedFileData struct {
	Detection      FormatDetection           `json:"detection"`
	FormatAnalysis FormatAnalysis            `json:"format_analysis"`
	Structure      *StructureAnalysis        `json:"structure"`
	Selected       []TableSelection          `json:"selected"`
	Mappings       []MappingResult           `json:"mappings"`
	Grid           *RawGrid                  `json:"-"`
	FreeText       string                    `json:"free_text,omitempty"`
	Metadata       FileMetadata              `json:"metadata"`
	Questions      []*ConversationalQuestion `json:"questions"`
}

// Mapping returns the mapping result for a table, or nil.
func (p *ProcessedFileData) Mapping(tableID string) *MappingResult {
	for i := range p.Mappings {
		if p.Mappings[i].TableID == tableID {
			return &p.Mappings[i]
		}
	}
	return nil
}

// ============================================================================
// Conversation Output
// ============================================================================

// ConfirmedTableMapping is the final column assignment for one table.
type ConfirmedTableMapping struct {
	TableID string              `json:"table_id"`
	Purpose TablePurpose        `json:"purpose"`
	Fields  map[string][]string `json:"fields"` // standard field -> column headers
}

// NormalizedDataset is emitted once per finalized session.
type NormalizedDataset struct {
	SessionID          uuid.UUID                           `json:"session_id"`
	FileName           string                              `json:"file_name"`
	Records            map[TablePurpose][]NormalizedRecord `json:"records"`
	ConfirmedMapping   []ConfirmedTableMapping             `json:"confirmed_mapping"`
	AnswerHistory      []AnswerRecord                      `json:"answer_history"`
	ResolvedBySeverity map[Severity]int                    `json:"resolved_by_severity"`
	ValidationSummary  string                              `json:"validation_summary"`
	FormatOverride     SourceKind                          `json:"format_override,omitempty"`
	FinalizedAt        time.Time                           `json:"finalized_at"`
}

// AnswerResult is returned for every submitted answer.
type AnswerResult struct {
	Accepted         bool                      `json:"accepted"`
	Reason           string                    `json:"reason,omitempty"`
	NextQuestions    []*ConversationalQuestion `json:"next_questions"`
	IsComplete       bool                      `json:"is_complete"`
	Step             SessionStep               `json:"step"`
	FinalizedDataset *NormalizedDataset        `json:"finalized_dataset,omitempty"`
}
