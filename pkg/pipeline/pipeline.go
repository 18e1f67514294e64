package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/census-engine/pkg/analysis"
	"github.com/ekaya-inc/census-engine/pkg/config"
	"github.com/ekaya-inc/census-engine/pkg/detect"
	"github.com/ekaya-inc/census-engine/pkg/extract"
	"github.com/ekaya-inc/census-engine/pkg/mapping"
	"github.com/ekaya-inc/census-engine/pkg/models"
	"github.com/ekaya-inc/census-engine/pkg/questions"
)

// FileInput is one uploaded file.
type FileInput struct {
	Identity models.FileIdentity
	Content  []byte
}

// Pipeline runs detection, extraction, structure analysis, mapping and
// question generation for one file. Every stage is a pure function of the
// previous stage's output, so a Pipeline is safe for concurrent use.
type Pipeline struct {
	scoring    config.ScoringConfig
	headBytes  int
	detector   *detect.Detector
	extractor  extract.GridExtractor
	classifier *detect.Classifier
	analyzer   *analysis.StructureAnalyzer
	mapper     *mapping.ColumnMapper
	generator  *questions.Generator
	pool       *WorkerPool
	logger     *zap.Logger
}

// New wires a pipeline from configuration: the field catalogue, the
// extractor registry and every scoring component.
func New(cfg *config.Config, logger *zap.Logger) (*Pipeline, error) {
	catalog, err := mapping.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load field catalog: %w", err)
	}
	return NewWithExtractor(cfg, catalog, NewRegistry(cfg.Extraction, logger), logger), nil
}

// NewRegistry builds the extractor registry: one extractor per source kind,
// with plain text as the fallback for unknown kinds.
func NewRegistry(cfg config.ExtractionConfig, logger *zap.Logger) *extract.Registry {
	plain := extract.NewPlainTextExtractor(logger)
	remote := extract.NewRemoteExtractor(cfg, logger)

	reg := extract.NewRegistry(plain, logger)
	reg.Register(models.SourceKindSpreadsheet, extract.NewSpreadsheetExtractor(logger))
	reg.Register(models.SourceKindDelimited, extract.NewDelimitedExtractor(logger))
	reg.Register(models.SourceKindPlainText, plain)
	reg.Register(models.SourceKindDocument, remote)
	reg.Register(models.SourceKindImage, remote)
	return reg
}

// NewWithExtractor wires a pipeline around a given extractor.
func NewWithExtractor(cfg *config.Config, catalog *mapping.Catalog, extractor extract.GridExtractor, logger *zap.Logger) *Pipeline {
	validators := analysis.NewValidators(cfg.Scoring)
	return &Pipeline{
		scoring:    cfg.Scoring,
		headBytes:  cfg.Extraction.HeadBytes,
		detector:   detect.NewDetector(logger),
		extractor:  extractor,
		classifier: detect.NewClassifier(cfg.Scoring, validators, logger),
		analyzer:   analysis.NewStructureAnalyzer(cfg.Scoring, validators, logger),
		mapper:     mapping.NewColumnMapper(cfg.Scoring, catalog, validators, logger),
		generator:  questions.NewGenerator(cfg.Scoring, logger),
		pool:       NewWorkerPool(cfg.Pipeline.BatchConcurrency, logger),
		logger:     logger.Named("pipeline"),
	}
}

// Analyzer returns the structure analyzer, shared with conversation sessions.
func (p *Pipeline) Analyzer() *analysis.StructureAnalyzer { return p.analyzer }

// Mapper returns the column mapper, shared with conversation sessions.
func (p *Pipeline) Mapper() *mapping.ColumnMapper { return p.mapper }

// Generator returns the question generator, shared with conversation sessions.
func (p *Pipeline) Generator() *questions.Generator { return p.generator }

// Detect runs only the format signature detector.
func (p *Pipeline) Detect(in FileInput) models.FormatDetection {
	return p.detector.Detect(in.Identity, p.head(in.Content))
}

// Process runs the full pipeline for one file. Failures are fatal for this
// file only: an empty grid or an unsupported or unreachable extractor.
func (p *Pipeline) Process(ctx context.Context, in FileInput) (*models.ProcessedFileData, error) {
	start := time.Now()
	name := in.Identity.Name

	stageStart := time.Now()
	det := p.Detect(in)
	p.stage("detect", name, stageStart,
		zap.String("kind", string(det.Kind)),
		zap.Float64("confidence", det.Confidence),
		zap.String("signal", det.Signal))

	stageStart = time.Now()
	res, err := p.extractor.Extract(ctx, in.Identity, in.Content, det)
	if err != nil {
		p.logger.Warn("Extraction failed",
			zap.String("file_name", name),
			zap.String("kind", string(det.Kind)),
			zap.Error(err))
		return nil, fmt.Errorf("extract %s: %w", name, err)
	}
	p.stage("extract", name, stageStart,
		zap.String("method", res.Method),
		zap.Int("rows", res.Grid.RowCount()),
		zap.Int("width", res.Grid.Width()),
		zap.Bool("low_fidelity", res.LowFidelity))

	data, err := p.process(in.Identity, det, res)
	if err != nil {
		return nil, err
	}
	data.Metadata.Duration = time.Since(start)
	return data, nil
}

// ProcessGrid runs the pipeline from an already extracted grid.
func (p *Pipeline) ProcessGrid(ctx context.Context, id models.FileIdentity, det models.FormatDetection, grid *models.RawGrid) (*models.ProcessedFileData, error) {
	start := time.Now()
	data, err := p.process(id, det, &extract.Result{Grid: grid, Method: "in-memory grid"})
	if err != nil {
		return nil, err
	}
	data.Metadata.Duration = time.Since(start)
	return data, nil
}

func (p *Pipeline) process(id models.FileIdentity, det models.FormatDetection, res *extract.Result) (*models.ProcessedFileData, error) {
	name := id.Name
	lowFidelity := res.LowFidelity || det.Kind.IsLowFidelity()

	stageStart := time.Now()
	formatAnalysis := p.classifier.Classify(det.Kind, res.Grid, res.FreeText)
	p.stage("characteristics", name, stageStart,
		zap.String("refinement", formatAnalysis.Refinement),
		zap.String("method", formatAnalysis.Strategy.Method),
		zap.Int("estimated_records", formatAnalysis.Characteristics.EstimatedRecords))

	ceiling := 1.0
	if lowFidelity {
		ceiling = p.scoring.LowFidelityCeiling
	}

	stageStart = time.Now()
	structure, err := p.analyzer.Analyze(res.Grid, analysis.Options{ConfidenceCeiling: ceiling})
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", name, err)
	}
	columns := 0
	for _, t := range structure.Tables {
		columns += len(t.Columns)
	}
	p.stage("structure", name, stageStart,
		zap.Int("tables", len(structure.Tables)),
		zap.Int("columns", columns),
		zap.Float64("confidence", structure.OverallConfidence),
		zap.Int("anomalies", len(structure.Anomalies)))

	stageStart = time.Now()
	selected := mapping.SelectTables(structure)
	mappings := p.mapper.MapSelected(structure, selected, nil)
	mapping.ApplySuggestions(structure, mappings)
	ambiguities := 0
	for _, m := range mappings {
		ambiguities += len(m.Ambiguities)
	}
	p.stage("mapping", name, stageStart,
		zap.Int("selected_tables", len(selected)),
		zap.Int("ambiguities", ambiguities))

	data := &models.ProcessedFileData{
		Detection:      det,
		FormatAnalysis: formatAnalysis,
		Structure:      structure,
		Selected:       selected,
		Mappings:       mappings,
		Grid:           res.Grid,
		FreeText:       res.FreeText,
		Metadata: models.FileMetadata{
			FileName:         name,
			Size:             id.Size,
			MediaType:        id.MediaType,
			ExtractionMethod: res.Method,
			LowFidelity:      lowFidelity,
		},
	}

	stageStart = time.Now()
	data.Questions = p.generator.Initial(questions.State{
		Detection: det,
		Structure: structure,
		Selected:  selected,
		Mappings:  mappings,
		Grid:      res.Grid,
	})
	critical := 0
	for _, q := range data.Questions {
		if q.IsCritical() {
			critical++
		}
	}
	p.stage("questions", name, stageStart,
		zap.Int("questions", len(data.Questions)),
		zap.Int("critical", critical))

	return data, nil
}

// BatchResult is the outcome for one file of a batch.
type BatchResult struct {
	FileName string
	Data     *models.ProcessedFileData
	Err      error
}

// ProcessBatch runs independent files in parallel and returns results in
// input order.
func (p *Pipeline) ProcessBatch(ctx context.Context, inputs []FileInput, onProgress func(completed, total int)) []BatchResult {
	items := make([]WorkItem[*models.ProcessedFileData], len(inputs))
	for i, in := range inputs {
		in := in
		items[i] = WorkItem[*models.ProcessedFileData]{
			ID: in.Identity.Name,
			Execute: func(ctx context.Context) (*models.ProcessedFileData, error) {
				return p.Process(ctx, in)
			},
		}
	}

	start := time.Now()
	results := Run(ctx, p.pool, items, onProgress)

	out := make([]BatchResult, len(results))
	failed := 0
	for i, r := range results {
		out[i] = BatchResult{FileName: r.ID, Data: r.Result, Err: r.Err}
		if r.Err != nil {
			failed++
		}
	}
	p.logger.Info("Batch processed",
		zap.Int("files", len(inputs)),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)))
	return out
}

func (p *Pipeline) head(content []byte) []byte {
	if p.headBytes > 0 && len(content) > p.headBytes {
		return content[:p.headBytes]
	}
	return content
}

// stage emits the structured event for one completed stage.
func (p *Pipeline) stage(name, fileName string, start time.Time, fields ...zap.Field) {
	base := []zap.Field{
		zap.String("stage", name),
		zap.String("file_name", fileName),
		zap.Duration("duration", time.Since(start)),
	}
	p.logger.Info("Pipeline stage completed", append(base, fields...)...)
}
