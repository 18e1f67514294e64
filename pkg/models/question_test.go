package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversationalQuestion_ComputeContentHash(t *testing.T) {
	base := func() *ConversationalQuestion {
		return &ConversationalQuestion{
			Category: CategoryColumnMapping,
			Prompt:   "Missing required field: Hire date. Which column contains the Hire date?",
			Target:   QuestionTarget{Key: "missing:table_1:hire_date"},
		}
	}

	q := base()
	hash := q.ComputeContentHash()
	assert.Len(t, hash, 16)
	assert.Equal(t, hash, base().ComputeContentHash(), "hash must be deterministic")

	tests := []struct {
		name   string
		mutate func(q *ConversationalQuestion)
	}{
		{"category", func(q *ConversationalQuestion) { q.Category = CategoryDataValidation }},
		{"key", func(q *ConversationalQuestion) { q.Target.Key = "missing:table_2:hire_date" }},
		{"prompt", func(q *ConversationalQuestion) { q.Prompt = "Which column is the hire date?" }},
	}
	for _, tt := range tests {
		t.Run(tt.name+" changes hash", func(t *testing.T) {
			other := base()
			tt.mutate(other)
			assert.NotEqual(t, hash, other.ComputeContentHash())
		})
	}

	t.Run("severity and options do not change hash", func(t *testing.T) {
		other := base()
		other.Severity = SeverityOptional
		other.Options = []QuestionOption{{ID: "absent", Action: ActionReject}}
		assert.Equal(t, hash, other.ComputeContentHash())
	})
}

func TestConversationalQuestion_Option(t *testing.T) {
	q := &ConversationalQuestion{
		Severity: SeverityCritical,
		Options: []QuestionOption{
			{ID: "col_2", Action: ActionAcceptSuggestion, Value: "2"},
			{ID: "absent", Action: ActionReject},
		},
	}

	assert.True(t, q.IsCritical())
	if opt := q.Option("col_2"); assert.NotNil(t, opt) {
		assert.Equal(t, "2", opt.Value)
	}
	assert.Nil(t, q.Option("skip"))
}

func TestSeverity_Rank(t *testing.T) {
	assert.Less(t, SeverityCritical.Rank(), SeverityRecommended.Rank())
	assert.Less(t, SeverityRecommended.Rank(), SeverityOptional.Rank())
	for i, s := range ValidSeverities {
		assert.Equal(t, i, s.Rank())
	}
}

func TestAnswerRecord_Resolves(t *testing.T) {
	tests := []struct {
		action OptionAction
		want   bool
	}{
		{ActionAcceptSuggestion, true},
		{ActionReject, true},
		{ActionManualOverride, true},
		{ActionSkip, true},
		{ActionRequestClarification, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			rec := AnswerRecord{Action: tt.action}
			assert.Equal(t, tt.want, rec.Resolves())
		})
	}
}

func TestQuestionKind_IsReconciled(t *testing.T) {
	assert.True(t, KindFieldConflict.IsReconciled())
	assert.True(t, KindColumnUncertain.IsReconciled())
	assert.True(t, KindMissingRequired.IsReconciled())
	assert.False(t, KindAnomalyBatch.IsReconciled())
	assert.False(t, KindFinalReview.IsReconciled())
}

func TestSessionStep_Index(t *testing.T) {
	assert.Equal(t, 0, StepFormatConfirmation.Index())
	assert.Equal(t, 4, StepComplete.Index())
	assert.Equal(t, -1, SessionStep("bogus").Index())
}
