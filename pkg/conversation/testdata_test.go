package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/census-engine/pkg/config"
	"github.com/ekaya-inc/census-engine/pkg/mapping"
	"github.com/ekaya-inc/census-engine/pkg/models"
	"github.com/ekaya-inc/census-engine/pkg/pipeline"
)

var rosterRows = [][]string{
	{"Empleado", "Fecha Nacimiento", "Sueldo"},
	{"Juan Pérez López", "15/03/1985", "15000"},
	{"María García", "02/11/1990", "$18,500.00"},
	{"Pedro Ramírez", "20/07/1978", "22000"},
	{"Ana Torres Ruiz", "05/01/1995", "12500.50"},
	{"Luis Hernández", "30/09/1982", "30000"},
	{"Sofía Méndez", "12/12/1988", "17800"},
}

// codesRows has two columns claiming employee_code and no date columns.
var codesRows = [][]string{
	{"Nombre", "Numero Empleado", "Clave", "Sueldo"},
	{"Juan Pérez", "E-1001", "E-1001", "15000"},
	{"Ana López", "E-1002", "E-1002", "16000"},
	{"Luis Gómez", "E-1003", "E-1003", "17000"},
	{"Eva Ríos", "E-1004", "E-1004", "18000"},
	{"Raúl Díaz", "E-1005", "E-1005", "19000"},
}

type harness struct {
	pipeline *pipeline.Pipeline
	store    SessionStore
	svc      ConversationService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zap.NewNop()
	cfg := &config.Config{
		Scoring:  config.DefaultScoring(),
		Pipeline: config.PipelineConfig{BatchConcurrency: 1},
	}
	catalog, err := mapping.DefaultCatalog()
	require.NoError(t, err)
	pl := pipeline.NewWithExtractor(cfg, catalog, pipeline.NewRegistry(cfg.Extraction, logger), logger)
	store := NewSessionStore(logger)
	return &harness{
		pipeline: pl,
		store:    store,
		svc:      NewConversationService(store, pl.Generator(), pl.Mapper(), pl.Analyzer(), logger),
	}
}

func (h *harness) process(t *testing.T, rows [][]string) *models.ProcessedFileData {
	t.Helper()
	det := models.FormatDetection{Kind: models.SourceKindDelimited, Confidence: 0.95, Signal: models.DetectionSignalNameAndMedia, Delimiter: ","}
	data, err := h.pipeline.ProcessGrid(context.Background(),
		models.FileIdentity{Name: "plantilla.csv", MediaType: "text/csv"}, det, models.GridFromStrings(rows))
	require.NoError(t, err)
	return data
}

func (h *harness) start(t *testing.T, rows [][]string) *SessionView {
	t.Helper()
	view, err := h.svc.StartSession(context.Background(), "client-1", h.process(t, rows))
	require.NoError(t, err)
	return view
}

func findQuestion(qs []*models.ConversationalQuestion, kind models.QuestionKind, key string) *models.ConversationalQuestion {
	for _, q := range qs {
		if q.Kind == kind && (key == "" || q.Target.Key == key) {
			return q
		}
	}
	return nil
}
