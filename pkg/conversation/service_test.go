package conversation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/census-engine/pkg/analysis"
	"github.com/ekaya-inc/census-engine/pkg/apperrors"
	"github.com/ekaya-inc/census-engine/pkg/models"
	"github.com/ekaya-inc/census-engine/pkg/questions"
)

func TestStartSession(t *testing.T) {
	h := newHarness(t)

	view := h.start(t, rosterRows)

	assert.NotEqual(t, uuid.Nil, view.ID)
	assert.Equal(t, "client-1", view.ClientID)
	assert.Equal(t, "plantilla.csv", view.File.FileName)
	assert.Equal(t, models.StepColumnMapping, view.Step)
	assert.Equal(t, 1, view.PendingCritical)
	require.Len(t, view.Pending, 2)
	assert.Equal(t, models.KindMissingRequired, view.Pending[0].Kind)
	assert.Equal(t, models.KindFinalReview, view.Pending[1].Kind)
	assert.Equal(t, 1, h.store.Len())
}

func TestStartSession_RequiresGrid(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.StartSession(context.Background(), "c", &models.ProcessedFileData{})
	assert.ErrorIs(t, err, apperrors.ErrEmptyGrid)
}

func TestProcessAnswer_CompletesWhenLastCriticalAnswered(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	data := h.process(t, rosterRows)
	// Three optional questions on top of the one critical question.
	for _, key := range []string{"extra:1", "extra:2"} {
		q := &models.ConversationalQuestion{
			ID:       uuid.New(),
			Kind:     models.KindMappingSanity,
			Category: models.CategoryDataValidation,
			Severity: models.SeverityOptional,
			Prompt:   "Looks right?",
			Target:   models.QuestionTarget{Key: key},
			Options:  []models.QuestionOption{{ID: questions.OptionSkip, Label: "Skip", Action: models.ActionSkip}},
		}
		q.ContentHash = q.ComputeContentHash()
		data.Questions = append(data.Questions, q)
	}
	view, err := h.svc.StartSession(ctx, "client-1", data)
	require.NoError(t, err)
	require.Len(t, view.Pending, 4)
	assert.Equal(t, 1, view.PendingCritical)

	_, err = h.svc.Finalize(ctx, view.ID)
	require.ErrorIs(t, err, apperrors.ErrCriticalPending)

	missing := findQuestion(view.Pending, models.KindMissingRequired, "missing:table_1:hire_date")
	require.NotNil(t, missing)

	result, err := h.svc.ProcessAnswer(ctx, view.ID, missing.ID, models.Answer{OptionID: questions.OptionAbsent})
	require.NoError(t, err)

	assert.True(t, result.Accepted)
	assert.True(t, result.IsComplete)
	assert.Equal(t, models.StepComplete, result.Step)
	require.NotNil(t, result.FinalizedDataset)

	ds := result.FinalizedDataset
	assert.Equal(t, view.ID, ds.SessionID)
	assert.Len(t, ds.Records[models.PurposeActivePersonnel], 6)
	assert.Equal(t, "1985-03-15", ds.Records[models.PurposeActivePersonnel][0].Fields["birth_date"])
	require.Len(t, ds.AnswerHistory, 1)
	assert.Equal(t, "missing:table_1:hire_date", ds.AnswerHistory[0].TargetKey)
	assert.Equal(t, 1, ds.ResolvedBySeverity[models.SeverityCritical])
	assert.Contains(t, ds.ValidationSummary, "6 records")
	assert.Contains(t, ds.ValidationSummary, "3 non-critical questions left unanswered")
	assert.Contains(t, ds.ValidationSummary, "confirmed absent: hire_date")
	require.Len(t, ds.ConfirmedMapping, 1)
	assert.Equal(t, []string{"Sueldo"}, ds.ConfirmedMapping[0].Fields["base_salary"])

	// A finalized session is gone.
	assert.Equal(t, 0, h.store.Len())
	_, err = h.svc.GetSession(ctx, view.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestProcessAnswer_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	data := h.process(t, rosterRows)
	manual := &models.ConversationalQuestion{
		ID:       uuid.New(),
		Kind:     models.KindFormatManual,
		Category: models.CategoryFormatConfirmation,
		Severity: models.SeverityCritical,
		Prompt:   "What kind of file is this?",
		Target:   models.QuestionTarget{Key: questions.KeyFormatManual},
		Options: []models.QuestionOption{
			{ID: "typed", Label: "Type it", Action: models.ActionManualOverride},
			{ID: questions.OptionSkip, Label: "Skip", Action: models.ActionSkip},
		},
	}
	manual.ContentHash = manual.ComputeContentHash()
	data.Questions = append(data.Questions, manual)
	view, err := h.svc.StartSession(ctx, "client-1", data)
	require.NoError(t, err)
	assert.Equal(t, models.StepFormatConfirmation, view.Step)

	tests := []struct {
		name       string
		questionID uuid.UUID
		answer     models.Answer
		reason     string
	}{
		{
			name:       "unknown question",
			questionID: uuid.New(),
			answer:     models.Answer{OptionID: "typed"},
			reason:     "does not belong to this session",
		},
		{
			name:       "unknown option",
			questionID: manual.ID,
			answer:     models.Answer{OptionID: "nope"},
			reason:     `unknown option "nope"`,
		},
		{
			name:       "skipping a critical question",
			questionID: manual.ID,
			answer:     models.Answer{OptionID: questions.OptionSkip},
			reason:     "critical questions cannot be skipped",
		},
		{
			name:       "manual override without value",
			questionID: manual.ID,
			answer:     models.Answer{OptionID: "typed", Value: "  "},
			reason:     `option "typed" needs a value`,
		},
		{
			name:       "invalid manual value",
			questionID: manual.ID,
			answer:     models.Answer{OptionID: "typed", Value: "floppy"},
			reason:     `unknown file kind "floppy"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.svc.ProcessAnswer(ctx, view.ID, tt.questionID, tt.answer)
			require.NoError(t, err)
			assert.False(t, result.Accepted)
			assert.Contains(t, result.Reason, tt.reason)
			assert.Empty(t, result.NextQuestions)
			assert.Equal(t, models.StepFormatConfirmation, result.Step)
		})
	}

	// Rejections leave the session untouched.
	after, err := h.svc.GetSession(ctx, view.ID)
	require.NoError(t, err)
	assert.Empty(t, after.Answers)
	assert.Len(t, after.Pending, len(view.Pending))

	t.Run("valid manual value is accepted", func(t *testing.T) {
		result, err := h.svc.ProcessAnswer(ctx, view.ID, manual.ID, models.Answer{OptionID: "typed", Value: "spreadsheet"})
		require.NoError(t, err)
		assert.True(t, result.Accepted)
		assert.False(t, result.IsComplete, "the missing hire date is still critical")
		assert.Equal(t, models.StepColumnMapping, result.Step)

		view, err := h.svc.GetSession(ctx, view.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SourceKindSpreadsheet, view.FormatOverride)
		require.Len(t, view.Answers, 1)
		assert.Equal(t, "spreadsheet", view.Answers[0].Value)
	})

	t.Run("answered question is no longer pending", func(t *testing.T) {
		result, err := h.svc.ProcessAnswer(ctx, view.ID, manual.ID, models.Answer{OptionID: "typed", Value: "image"})
		require.NoError(t, err)
		assert.False(t, result.Accepted)
		assert.Contains(t, result.Reason, "is not pending")
	})
}

func TestProcessAnswer_UnknownSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.ProcessAnswer(context.Background(), uuid.New(), uuid.New(), models.Answer{OptionID: "x"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestProcessAnswer_SupersedesResolvedConflict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	view := h.start(t, codesRows)
	conflict := findQuestion(view.Pending, models.KindFieldConflict, "conflict:table_1:employee_code")
	require.NotNil(t, conflict)
	hire := findQuestion(view.Pending, models.KindMissingRequired, "missing:table_1:hire_date")
	require.NotNil(t, hire)
	require.NotNil(t, findQuestion(view.Pending, models.KindMissingRequired, "missing:table_1:birth_date"))
	assert.Equal(t, 2, view.PendingCritical)

	// Using "Clave" as the hire date leaves one employee_code column.
	opt := hire.Option("col_2")
	require.NotNil(t, opt, "with no plausible column every column is offered")
	result, err := h.svc.ProcessAnswer(ctx, view.ID, hire.ID, models.Answer{OptionID: opt.ID})
	require.NoError(t, err)
	require.True(t, result.Accepted)
	assert.False(t, result.IsComplete)

	sanity := findQuestion(result.NextQuestions, models.KindMappingSanity, "sanity:table_1:2")
	require.NotNil(t, sanity)
	require.NotNil(t, sanity.ParentID)
	assert.Equal(t, hire.ID, *sanity.ParentID)

	after, err := h.svc.GetSession(ctx, view.ID)
	require.NoError(t, err)
	assert.Contains(t, after.Superseded, conflict.ID)
	assert.Nil(t, findQuestion(after.Pending, models.KindFieldConflict, ""))
	assert.Equal(t, 1, after.PendingCritical)
	m := after.Mappings[0]
	assert.Equal(t, "hire_date", m.FieldForColumn(2))
	assert.Equal(t, []int{1}, m.Field("employee_code").MappedColumns)
	require.Len(t, after.Answers, 1)
	assert.Equal(t, []uuid.UUID{sanity.ID}, after.Answers[0].FollowUpIDs)

	t.Run("rejecting the sanity check unmaps the column", func(t *testing.T) {
		result, err := h.svc.ProcessAnswer(ctx, view.ID, sanity.ID, models.Answer{OptionID: questions.OptionReject})
		require.NoError(t, err)
		require.True(t, result.Accepted)

		after, err := h.svc.GetSession(ctx, view.ID)
		require.NoError(t, err)
		m := after.Mappings[0]
		assert.Empty(t, m.FieldForColumn(2))
		assert.Contains(t, m.UnmappedColumns, 2)
		assert.Nil(t, findQuestion(after.Pending, models.KindMissingRequired, "missing:table_1:hire_date"),
			"an answered key is not asked again")
	})
}

func TestProcessAnswer_ConflictLoserIsAskedNotRemapped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	view := h.start(t, codesRows)
	conflict := findQuestion(view.Pending, models.KindFieldConflict, "conflict:table_1:employee_code")
	require.NotNil(t, conflict)
	require.NotNil(t, conflict.Option("col_2"))

	result, err := h.svc.ProcessAnswer(ctx, view.ID, conflict.ID, models.Answer{OptionID: "col_2"})
	require.NoError(t, err)
	require.True(t, result.Accepted)

	column := findQuestion(result.NextQuestions, models.KindColumnUncertain, "column:table_1:1")
	require.NotNil(t, column, "the losing column is put to the user")
	assert.Equal(t, []int{1}, column.Target.Columns)
	assert.NotNil(t, column.Option("field_nss"))
	assert.NotNil(t, column.Option(questions.OptionOmit))
	assert.Contains(t, column.Rationale, "employee_code")

	after, err := h.svc.GetSession(ctx, view.ID)
	require.NoError(t, err)
	m := after.Mappings[0]
	assert.Equal(t, "employee_code", m.FieldForColumn(2))
	assert.Empty(t, m.FieldForColumn(1))
	assert.Contains(t, m.UnmappedColumns, 1)
	assert.False(t, m.Field("nss").IsMapped())
	assert.NotContains(t, after.Structure.SuggestedMapping, "Numero Empleado")

	t.Run("omitting the column keeps it unmapped", func(t *testing.T) {
		result, err := h.svc.ProcessAnswer(ctx, view.ID, column.ID, models.Answer{OptionID: questions.OptionOmit})
		require.NoError(t, err)
		require.True(t, result.Accepted)
		assert.Nil(t, findQuestion(result.NextQuestions, models.KindColumnUncertain, "column:table_1:1"))

		after, err := h.svc.GetSession(ctx, view.ID)
		require.NoError(t, err)
		assert.Empty(t, after.Mappings[0].FieldForColumn(1))
		assert.Nil(t, findQuestion(after.Pending, models.KindColumnUncertain, "column:table_1:1"))
	})
}

func TestGetSession_ViewIsIsolatedFromLaterAnswers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	view := h.start(t, codesRows)
	before, err := h.svc.GetSession(ctx, view.ID)
	require.NoError(t, err)
	require.Equal(t, "employee_code", before.Structure.Tables[0].Columns[1].SuggestedField)
	require.Equal(t, "employee_code", before.Structure.SuggestedMapping["Numero Empleado"])
	require.Equal(t, []int{1, 2}, before.Mappings[0].Field("employee_code").MappedColumns)
	pendingBefore := len(before.Pending)

	conflict := findQuestion(before.Pending, models.KindFieldConflict, "conflict:table_1:employee_code")
	require.NotNil(t, conflict)
	_, err = h.svc.ProcessAnswer(ctx, view.ID, conflict.ID, models.Answer{OptionID: "col_2"})
	require.NoError(t, err)

	assert.Equal(t, "employee_code", before.Structure.Tables[0].Columns[1].SuggestedField)
	assert.Equal(t, "employee_code", before.Structure.SuggestedMapping["Numero Empleado"])
	assert.Equal(t, []int{1, 2}, before.Mappings[0].Field("employee_code").MappedColumns)
	assert.Equal(t, "employee_code", before.Mappings[0].FieldForColumn(1))
	assert.Len(t, before.Pending, pendingBefore)

	after, err := h.svc.GetSession(ctx, view.ID)
	require.NoError(t, err)
	assert.Empty(t, after.Structure.Tables[0].Columns[1].SuggestedField)
	assert.Equal(t, []int{2}, after.Mappings[0].Field("employee_code").MappedColumns)
}

func TestProcessAnswer_ClarificationReissuesWithMoreDetail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	view := h.start(t, rosterRows)
	missing := findQuestion(view.Pending, models.KindMissingRequired, "")
	require.NotNil(t, missing)
	require.NotNil(t, missing.Option(questions.OptionClarify))

	result, err := h.svc.ProcessAnswer(ctx, view.ID, missing.ID, models.Answer{OptionID: questions.OptionClarify})
	require.NoError(t, err)
	require.True(t, result.Accepted)
	require.Len(t, result.NextQuestions, 1)

	detailed := result.NextQuestions[0]
	assert.Equal(t, missing.Target.Key, detailed.Target.Key)
	assert.NotEqual(t, missing.ID, detailed.ID)
	assert.Equal(t, missing.ID, *detailed.ParentID)
	assert.Equal(t, []int{0, 1, 2}, detailed.Target.Columns)
	assert.Nil(t, detailed.Option(questions.OptionClarify))
	assert.False(t, result.IsComplete)

	after, err := h.svc.GetSession(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.PendingCritical)
}

func TestProcessAnswer_HeaderRowCorrection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var rows [][]string
	for i := range 6 {
		rows = append(rows, []string{"Juan Pérez", "1500" + string(rune('0'+i))})
	}
	view := h.start(t, rows)

	layout := findQuestion(view.Pending, models.KindTableInterpretation, "layout:table_1")
	require.NotNil(t, layout)
	assert.True(t, layout.IsCritical())
	assert.Equal(t, models.StepFormatConfirmation, view.Step)

	result, err := h.svc.ProcessAnswer(ctx, view.ID, layout.ID, models.Answer{OptionID: questions.OptionWrong})
	require.NoError(t, err)
	require.True(t, result.Accepted)
	headerQ := findQuestion(result.NextQuestions, models.KindHeaderRow, "header_row:table_1")
	require.NotNil(t, headerQ)

	result, err = h.svc.ProcessAnswer(ctx, view.ID, headerQ.ID, models.Answer{OptionID: questions.OptionNoRow})
	require.NoError(t, err)
	require.True(t, result.Accepted)

	after, err := h.svc.GetSession(ctx, view.ID)
	require.NoError(t, err)
	table := after.Structure.Tables[0]
	assert.Equal(t, analysis.NoHeaderRow, table.HeaderRow)
	assert.Equal(t, 6, table.RowCount)
	assert.Equal(t, "column_1", table.Columns[0].Label())
	assert.Equal(t, "employee_name", after.Mappings[0].FieldForColumn(0))
	assert.Equal(t, "base_salary", after.Mappings[0].FieldForColumn(1))
}

func TestFinalize(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	view := h.start(t, [][]string{
		{"Nombre", "Fecha Nacimiento", "Fecha Ingreso", "Sueldo"},
		{"Juan Pérez", "15/03/1985", "01/02/2010", "15000"},
		{"Ana López", "02/11/1990", "15/06/2015", "16000"},
		{"Luis Gómez", "20/07/1978", "03/09/2001", "17000"},
		{"Eva Ríos", "05/01/1995", "10/10/2019", "18000"},
		{"Raúl Díaz", "30/09/1982", "22/04/2008", "19000"},
	})
	assert.Zero(t, view.PendingCritical)
	assert.Equal(t, models.StepFinalConfirmation, view.Step)

	ds, err := h.svc.Finalize(ctx, view.ID)
	require.NoError(t, err)
	assert.Len(t, ds.Records[models.PurposeActivePersonnel], 5)
	assert.Equal(t, "2010-02-01", ds.Records[models.PurposeActivePersonnel][0].Fields["hire_date"])
	assert.Contains(t, ds.ValidationSummary, "1 non-critical questions left unanswered")

	_, err = h.svc.Finalize(ctx, view.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPendingQuestions(t *testing.T) {
	h := newHarness(t)
	view := h.start(t, rosterRows)

	pending, err := h.svc.PendingQuestions(context.Background(), view.ID)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.True(t, pending[0].IsCritical(), "critical questions come first")

	_, err = h.svc.PendingQuestions(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
