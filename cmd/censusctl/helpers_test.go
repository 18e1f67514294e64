package main

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/census-engine/pkg/config"
	"github.com/ekaya-inc/census-engine/pkg/conversation"
	"github.com/ekaya-inc/census-engine/pkg/mapping"
	"github.com/ekaya-inc/census-engine/pkg/models"
	"github.com/ekaya-inc/census-engine/pkg/pipeline"
)

const rosterCSV = "Empleado,Fecha Nacimiento,Sueldo\n" +
	"Juan Pérez López,15/03/1985,15000\n" +
	"María García,02/11/1990,18500\n" +
	"Pedro Ramírez,20/07/1978,22000\n" +
	"Ana Torres Ruiz,05/01/1995,12500.50\n" +
	"Luis Hernández,30/09/1982,30000\n" +
	"Sofía Méndez,12/12/1988,17800\n"

func TestReadAnswer(t *testing.T) {
	q := &models.ConversationalQuestion{
		Options: []models.QuestionOption{
			{ID: "col_1", Label: "Column 1", Action: models.ActionAcceptSuggestion, Value: "1"},
			{ID: "other", Label: "Another field", Action: models.ActionManualOverride},
			{ID: "skip", Label: "Skip", Action: models.ActionSkip},
		},
	}

	tests := []struct {
		name   string
		input  string
		want   models.Answer
		wantOK bool
	}{
		{name: "by number", input: "3\n", want: models.Answer{OptionID: "skip"}, wantOK: true},
		{name: "by id", input: "col_1\n", want: models.Answer{OptionID: "col_1"}, wantOK: true},
		{name: "manual value", input: "2\n hire_date \n", want: models.Answer{OptionID: "other", Value: "hire_date"}, wantOK: true},
		{name: "retries invalid choice", input: "9\nnope\n1\n", want: models.Answer{OptionID: "col_1"}, wantOK: true},
		{name: "quit", input: "q\n", wantOK: false},
		{name: "end of input", input: "", wantOK: false},
		{name: "end of input before value", input: "other\n", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got, ok := readAnswer(bufio.NewScanner(strings.NewReader(tt.input)), &out, q)

			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestReadAnswer_PromptsOnInvalidChoice(t *testing.T) {
	q := &models.ConversationalQuestion{Options: []models.QuestionOption{{ID: "a"}, {ID: "b"}}}
	var out bytes.Buffer

	_, ok := readAnswer(bufio.NewScanner(strings.NewReader("0\nb\n")), &out, q)

	assert.True(t, ok)
	assert.Contains(t, out.String(), "Choose 1-2.")
}

func TestExpandArgs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.csv", "b.csv", "c.xlsx"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}

	files, err := expandArgs([]string{filepath.Join(dir, "*.csv"), filepath.Join(dir, "c.xlsx")})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.csv"),
		filepath.Join(dir, "b.csv"),
		filepath.Join(dir, "c.xlsx"),
	}, files)

	_, err = expandArgs([]string{filepath.Join(dir, "*.pdf")})
	assert.ErrorContains(t, err, "no files match")

	_, err = expandArgs([]string{"[bad"})
	assert.ErrorContains(t, err, "invalid pattern")
}

func TestReadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plantilla.csv")
	require.NoError(t, os.WriteFile(path, []byte(rosterCSV), 0o600))

	in, err := readInput(path)

	require.NoError(t, err)
	assert.Equal(t, "plantilla.csv", in.Identity.Name)
	assert.Equal(t, int64(len(rosterCSV)), in.Identity.Size)

	_, err = readInput(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func newTestPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	cfg := &config.Config{
		Scoring:    config.DefaultScoring(),
		Extraction: config.ExtractionConfig{HeadBytes: 8192},
		Pipeline:   config.PipelineConfig{BatchConcurrency: 1},
	}
	catalog, err := mapping.DefaultCatalog()
	require.NoError(t, err)
	return pipeline.NewWithExtractor(cfg, catalog, pipeline.NewRegistry(cfg.Extraction, zap.NewNop()), zap.NewNop())
}

func TestInterview(t *testing.T) {
	pl := newTestPipeline(t)
	data, err := pl.Process(context.Background(), pipeline.FileInput{
		Identity: models.FileIdentity{Name: "plantilla.csv", MediaType: "text/csv"},
		Content:  []byte(rosterCSV),
	})
	require.NoError(t, err)

	svc := conversation.NewConversationService(conversation.NewSessionStore(zap.NewNop()),
		pl.Generator(), pl.Mapper(), pl.Analyzer(), zap.NewNop())
	view, err := svc.StartSession(context.Background(), "", data)
	require.NoError(t, err)

	var prompts bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetIn(strings.NewReader("nope\nabsent\n"))
	cmd.SetErr(&prompts)

	dataset, err := interview(cmd, svc, view)

	require.NoError(t, err)
	assert.Len(t, dataset.Records[models.PurposeActivePersonnel], 6)
	assert.Contains(t, prompts.String(), "[CRITICAL, 2 pending]")
}

func TestInterview_StopsBeforeCritical(t *testing.T) {
	pl := newTestPipeline(t)
	data, err := pl.Process(context.Background(), pipeline.FileInput{
		Identity: models.FileIdentity{Name: "plantilla.csv", MediaType: "text/csv"},
		Content:  []byte(rosterCSV),
	})
	require.NoError(t, err)

	svc := conversation.NewConversationService(conversation.NewSessionStore(zap.NewNop()),
		pl.Generator(), pl.Mapper(), pl.Analyzer(), zap.NewNop())
	view, err := svc.StartSession(context.Background(), "", data)
	require.NoError(t, err)

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetIn(strings.NewReader("q\n"))
	cmd.SetErr(&bytes.Buffer{})

	_, err = interview(cmd, svc, view)

	assert.ErrorContains(t, err, "interview stopped before all critical questions were answered")
}

func TestWriteResult(t *testing.T) {
	dir := t.TempDir()
	r := pipeline.BatchResult{
		FileName: "plantilla.xlsx",
		Data:     &models.ProcessedFileData{Metadata: models.FileMetadata{FileName: "plantilla.xlsx"}},
	}

	require.NoError(t, writeResult(dir, r))

	content, err := os.ReadFile(filepath.Join(dir, "plantilla.json"))
	require.NoError(t, err)
	assert.Contains(t, string(content), `"file_name": "plantilla.xlsx"`)
}
