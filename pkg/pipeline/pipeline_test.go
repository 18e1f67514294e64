package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/census-engine/pkg/apperrors"
	"github.com/ekaya-inc/census-engine/pkg/config"
	"github.com/ekaya-inc/census-engine/pkg/extract"
	"github.com/ekaya-inc/census-engine/pkg/mapping"
	"github.com/ekaya-inc/census-engine/pkg/models"
)

const rosterCSV = "Empleado,Fecha Nacimiento,Sueldo\n" +
	"Juan Pérez López,15/03/1985,15000\n" +
	"María García,02/11/1990,18500\n" +
	"Pedro Ramírez,20/07/1978,22000\n" +
	"Ana Torres Ruiz,05/01/1995,12500.50\n" +
	"Luis Hernández,30/09/1982,30000\n" +
	"Sofía Méndez,12/12/1988,17800\n"

func testConfig() *config.Config {
	return &config.Config{
		Scoring:    config.DefaultScoring(),
		Extraction: config.ExtractionConfig{HeadBytes: 8192},
		Pipeline:   config.PipelineConfig{BatchConcurrency: 2},
	}
}

func newTestPipeline(t *testing.T, extractor extract.GridExtractor) *Pipeline {
	t.Helper()
	cfg := testConfig()
	catalog, err := mapping.DefaultCatalog()
	require.NoError(t, err)
	if extractor == nil {
		extractor = NewRegistry(cfg.Extraction, zap.NewNop())
	}
	return NewWithExtractor(cfg, catalog, extractor, zap.NewNop())
}

func csvInput(name, content string) FileInput {
	return FileInput{
		Identity: models.FileIdentity{Name: name, MediaType: "text/csv", Size: int64(len(content))},
		Content:  []byte(content),
	}
}

func TestPipeline_Process(t *testing.T) {
	p := newTestPipeline(t, nil)

	data, err := p.Process(context.Background(), csvInput("plantilla.csv", rosterCSV))

	require.NoError(t, err)
	assert.Equal(t, models.SourceKindDelimited, data.Detection.Kind)
	assert.Equal(t, 0.95, data.Detection.Confidence)
	assert.Contains(t, data.Metadata.ExtractionMethod, "delimited text")
	assert.False(t, data.Metadata.LowFidelity)
	assert.Equal(t, "plantilla.csv", data.Metadata.FileName)

	require.Len(t, data.Structure.Tables, 1)
	assert.Equal(t, 1.0, data.Structure.ConfidenceCeiling)
	require.Len(t, data.Mappings, 1)
	m := data.Mappings[0]
	assert.Equal(t, "employee_name", m.FieldForColumn(0))
	assert.Equal(t, "birth_date", m.FieldForColumn(1))
	assert.Equal(t, "base_salary", m.FieldForColumn(2))

	require.NotEmpty(t, data.Questions)
	assert.Equal(t, models.KindMissingRequired, data.Questions[0].Kind)
	assert.True(t, data.Questions[0].IsCritical())
}

func TestPipeline_Detect(t *testing.T) {
	p := newTestPipeline(t, nil)

	det := p.Detect(csvInput("export", "a;b\n1;2\n3;4\n"))

	assert.Equal(t, models.SourceKindDelimited, det.Kind)
	assert.Equal(t, ";", det.Delimiter)
}

// gridExtractor returns a fixed grid regardless of content, standing in for
// the OCR service.
type gridExtractor struct {
	grid *models.RawGrid
}

func (g gridExtractor) Extract(ctx context.Context, file models.FileIdentity, content []byte, det models.FormatDetection) (*extract.Result, error) {
	return &extract.Result{Grid: g.grid, Method: "stub layout", LowFidelity: true}, nil
}

func TestPipeline_LowFidelityCeiling(t *testing.T) {
	grid := models.GridFromStrings([][]string{
		{"Empleado", "Fecha Nacimiento", "Sueldo"},
		{"Juan Pérez", "15/03/1985", "15000"},
		{"Ana Torres", "05/01/1995", "12500"},
		{"Luis Hernández", "30/09/1982", "30000"},
	})
	p := newTestPipeline(t, gridExtractor{grid: grid})

	data, err := p.Process(context.Background(), FileInput{
		Identity: models.FileIdentity{Name: "scan.pdf", MediaType: "application/pdf"},
		Content:  []byte("%PDF-1.4"),
	})

	require.NoError(t, err)
	assert.True(t, data.Metadata.LowFidelity)
	assert.Equal(t, 0.7, data.Structure.ConfidenceCeiling)
	for _, tbl := range data.Structure.Tables {
		for _, col := range tbl.Columns {
			assert.LessOrEqual(t, col.Confidence, 0.7, col.Label())
		}
	}
	assert.Equal(t, "layout_reconstruction", data.FormatAnalysis.Strategy.Method)
}

func TestPipeline_ProcessBatch(t *testing.T) {
	p := newTestPipeline(t, nil)
	inputs := []FileInput{
		csvInput("plantilla.csv", rosterCSV),
		{Identity: models.FileIdentity{Name: "scan.pdf", MediaType: "application/pdf"}, Content: []byte("%PDF-1.4")},
		csvInput("vacio.csv", ""),
	}

	var mu sync.Mutex
	var last int
	results := p.ProcessBatch(context.Background(), inputs, func(completed, total int) {
		mu.Lock()
		defer mu.Unlock()
		if completed > last {
			last = completed
		}
	})

	require.Len(t, results, 3)
	assert.Equal(t, "plantilla.csv", results[0].FileName)
	require.NoError(t, results[0].Err)
	assert.NotNil(t, results[0].Data)

	assert.Equal(t, "scan.pdf", results[1].FileName)
	assert.ErrorIs(t, results[1].Err, apperrors.ErrExtractorUnavailable)

	assert.Equal(t, "vacio.csv", results[2].FileName)
	assert.ErrorIs(t, results[2].Err, apperrors.ErrUnsupportedFormat)

	assert.Equal(t, 3, last)
}

func TestPipeline_ProcessGrid(t *testing.T) {
	p := newTestPipeline(t, nil)
	grid := models.GridFromStrings([][]string{
		{"Nombre", "Fecha Baja", "Causa", "Finiquito"},
		{"Juan Pérez", "31/01/2023", "Renuncia", "15000"},
		{"Ana Torres", "15/02/2023", "Despido", "22000"},
		{"Luis Hernández", "01/03/2023", "Renuncia", "9000"},
	})

	data, err := p.ProcessGrid(context.Background(), models.FileIdentity{Name: "bajas.csv"},
		models.FormatDetection{Kind: models.SourceKindDelimited, Confidence: 0.95}, grid)

	require.NoError(t, err)
	require.Len(t, data.Mappings, 1)
	assert.Equal(t, "termination_date", data.Mappings[0].FieldForColumn(1))
	assert.Equal(t, "in-memory grid", data.Metadata.ExtractionMethod)
}

func TestPipeline_Process_EmitsStageEvents(t *testing.T) {
	cfg := testConfig()
	catalog, err := mapping.DefaultCatalog()
	require.NoError(t, err)
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)
	p := NewWithExtractor(cfg, catalog, NewRegistry(cfg.Extraction, logger), logger)

	_, err = p.Process(context.Background(), csvInput("plantilla.csv", rosterCSV))
	require.NoError(t, err)

	var stages []string
	for _, entry := range logs.FilterMessage("Pipeline stage completed").All() {
		fields := entry.ContextMap()
		assert.Equal(t, "plantilla.csv", fields["file_name"])
		stages = append(stages, fields["stage"].(string))
	}
	assert.Equal(t, []string{"detect", "extract", "characteristics", "structure", "mapping", "questions"}, stages)
}
