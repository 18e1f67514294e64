package config

import (
	"fmt"
	"math"
)

// ScoringConfig holds every weight and threshold used by structure analysis,
// column classification, mapping and question generation.
type ScoringConfig struct {
	// Column type inference (structure analysis)
	TypeKeywordWeight   float64 `yaml:"type_keyword_weight" env:"SCORING_TYPE_KEYWORD_WEIGHT" env-default:"0.3"`
	TypePatternWeight   float64 `yaml:"type_pattern_weight" env:"SCORING_TYPE_PATTERN_WEIGHT" env-default:"0.4"`
	TypeValidatorWeight float64 `yaml:"type_validator_weight" env:"SCORING_TYPE_VALIDATOR_WEIGHT" env-default:"0.3"`
	MinTypeScore        float64 `yaml:"min_type_score" env:"SCORING_MIN_TYPE_SCORE" env-default:"0.25"`

	// Column to standard field classification
	NameWeight    float64 `yaml:"name_weight" env:"SCORING_NAME_WEIGHT" env-default:"0.4"`
	TypeWeight    float64 `yaml:"type_weight" env:"SCORING_TYPE_WEIGHT" env-default:"0.3"`
	ContentWeight float64 `yaml:"content_weight" env:"SCORING_CONTENT_WEIGHT" env-default:"0.2"`
	ContextWeight float64 `yaml:"context_weight" env:"SCORING_CONTEXT_WEIGHT" env-default:"0.1"`

	SimilarityExact      float64 `yaml:"similarity_exact" env:"SCORING_SIMILARITY_EXACT" env-default:"1.0"`
	SimilarityContains   float64 `yaml:"similarity_contains" env:"SCORING_SIMILARITY_CONTAINS" env-default:"0.8"`
	SimilaritySharedWord float64 `yaml:"similarity_shared_word" env:"SCORING_SIMILARITY_SHARED_WORD" env-default:"0.6"`
	TypeMatch            float64 `yaml:"type_match" env:"SCORING_TYPE_MATCH" env-default:"1.0"`
	TypeMismatch         float64 `yaml:"type_mismatch" env:"SCORING_TYPE_MISMATCH" env-default:"0.2"`

	// Mapping aggregation
	RequiredPriority     int     `yaml:"required_priority" env:"SCORING_REQUIRED_PRIORITY" env-default:"8"`
	AmbiguityThreshold   float64 `yaml:"ambiguity_threshold" env:"SCORING_AMBIGUITY_THRESHOLD" env-default:"0.6"`
	MinMappingScore      float64 `yaml:"min_mapping_score" env:"SCORING_MIN_MAPPING_SCORE" env-default:"0.45"`
	RollupColumnWeight   float64 `yaml:"rollup_column_weight" env:"SCORING_ROLLUP_COLUMN_WEIGHT" env-default:"0.7"`
	RollupCoverageWeight float64 `yaml:"rollup_coverage_weight" env:"SCORING_ROLLUP_COVERAGE_WEIGHT" env-default:"0.3"`

	// Structure thresholds
	HeaderThreshold    float64 `yaml:"header_threshold" env:"SCORING_HEADER_THRESHOLD" env-default:"0.6"`
	HeaderSearchDepth  int     `yaml:"header_search_depth" env:"SCORING_HEADER_SEARCH_DEPTH" env-default:"5"`
	EmptyRowRun        int     `yaml:"empty_row_run" env:"SCORING_EMPTY_ROW_RUN" env-default:"2"`
	MultiTableEmptyRun int     `yaml:"multi_table_empty_run" env:"SCORING_MULTI_TABLE_EMPTY_RUN" env-default:"3"`
	SampleSize         int     `yaml:"sample_size" env:"SCORING_SAMPLE_SIZE" env-default:"20"`
	MissingRateFlag    float64 `yaml:"missing_rate_flag" env:"SCORING_MISSING_RATE_FLAG" env-default:"0.2"`
	SmallTableRows     int     `yaml:"small_table_rows" env:"SCORING_SMALL_TABLE_ROWS" env-default:"5"`
	PurposeMinScore    float64 `yaml:"purpose_min_score" env:"SCORING_PURPOSE_MIN_SCORE" env-default:"2"`
	LowFidelityCeiling float64 `yaml:"low_fidelity_ceiling" env:"SCORING_LOW_FIDELITY_CEILING" env-default:"0.7"`

	// Question generation
	LowConfidenceColumn    float64 `yaml:"low_confidence_column" env:"SCORING_LOW_CONFIDENCE_COLUMN" env-default:"0.5"`
	FormatConfirmThreshold float64 `yaml:"format_confirm_threshold" env:"SCORING_FORMAT_CONFIRM_THRESHOLD" env-default:"0.9"`
	SanitySampleSize       int     `yaml:"sanity_sample_size" env:"SCORING_SANITY_SAMPLE_SIZE" env-default:"5"`

	// Salary plausibility band
	SalaryMin float64 `yaml:"salary_min" env:"SCORING_SALARY_MIN" env-default:"100"`
	SalaryMax float64 `yaml:"salary_max" env:"SCORING_SALARY_MAX" env-default:"10000000"`
}

// DefaultScoring returns the built-in weights, identical to the env-default tags.
func DefaultScoring() ScoringConfig {
	return ScoringConfig{
		TypeKeywordWeight:   0.3,
		TypePatternWeight:   0.4,
		TypeValidatorWeight: 0.3,
		MinTypeScore:        0.25,

		NameWeight:    0.4,
		TypeWeight:    0.3,
		ContentWeight: 0.2,
		ContextWeight: 0.1,

		SimilarityExact:      1.0,
		SimilarityContains:   0.8,
		SimilaritySharedWord: 0.6,
		TypeMatch:            1.0,
		TypeMismatch:         0.2,

		RequiredPriority:     8,
		AmbiguityThreshold:   0.6,
		MinMappingScore:      0.45,
		RollupColumnWeight:   0.7,
		RollupCoverageWeight: 0.3,

		HeaderThreshold:    0.6,
		HeaderSearchDepth:  5,
		EmptyRowRun:        2,
		MultiTableEmptyRun: 3,
		SampleSize:         20,
		MissingRateFlag:    0.2,
		SmallTableRows:     5,
		PurposeMinScore:    2,
		LowFidelityCeiling: 0.7,

		LowConfidenceColumn:    0.5,
		FormatConfirmThreshold: 0.9,
		SanitySampleSize:       5,

		SalaryMin: 100,
		SalaryMax: 10000000,
	}
}

// Validate checks that weight groups sum to one and thresholds are in range.
func (s ScoringConfig) Validate() error {
	if err := checkWeights("type inference", s.TypeKeywordWeight, s.TypePatternWeight, s.TypeValidatorWeight); err != nil {
		return err
	}
	if err := checkWeights("classifier", s.NameWeight, s.TypeWeight, s.ContentWeight, s.ContextWeight); err != nil {
		return err
	}
	if err := checkWeights("confidence rollup", s.RollupColumnWeight, s.RollupCoverageWeight); err != nil {
		return err
	}
	if s.SampleSize <= 0 || s.HeaderSearchDepth <= 0 || s.EmptyRowRun <= 0 {
		return fmt.Errorf("sample_size, header_search_depth and empty_row_run must be positive")
	}
	if s.SalaryMin >= s.SalaryMax {
		return fmt.Errorf("salary_min must be below salary_max")
	}
	if s.LowFidelityCeiling <= 0 || s.LowFidelityCeiling > 1 {
		return fmt.Errorf("low_fidelity_ceiling must be in (0, 1]")
	}
	return nil
}

func checkWeights(group string, weights ...float64) error {
	sum := 0.0
	for _, w := range weights {
		if w < 0 {
			return fmt.Errorf("%s weights must not be negative", group)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("%s weights must sum to 1.0, got %.3f", group, sum)
	}
	return nil
}
