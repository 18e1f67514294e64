package models

import "slices"

// ============================================================================
// Source Kinds
// ============================================================================

// SourceKind classifies an input file before extraction.
type SourceKind string

const (
	SourceKindSpreadsheet SourceKind = "tabular_spreadsheet"
	SourceKindDelimited   SourceKind = "delimited_text"
	SourceKindDocument    SourceKind = "portable_document"
	SourceKindImage       SourceKind = "raster_image"
	SourceKindPlainText   SourceKind = "plain_text"
	SourceKindUnknown     SourceKind = "unknown"
)

// ValidSourceKinds contains all valid source kind values.
var ValidSourceKinds = []SourceKind{
	SourceKindSpreadsheet,
	SourceKindDelimited,
	SourceKindDocument,
	SourceKindImage,
	SourceKindPlainText,
	SourceKindUnknown,
}

// IsValidSourceKind checks if the given kind is valid.
func IsValidSourceKind(k SourceKind) bool {
	return slices.Contains(ValidSourceKinds, k)
}

// IsLowFidelity returns true for kinds whose grids come from OCR or layout
// reconstruction rather than structured cells.
func (k SourceKind) IsLowFidelity() bool {
	return k == SourceKindDocument || k == SourceKindImage
}

// FileIdentity is what the caller knows about an upload before extraction.
type FileIdentity struct {
	Name      string `json:"name"`
	MediaType string `json:"media_type,omitempty"`
	Size      int64  `json:"size"`
}

// Detection signals record which evidence decided the source kind.
const (
	DetectionSignalNameAndMedia = "name_and_media_type"
	DetectionSignalName         = "file_name"
	DetectionSignalMedia        = "media_type"
	DetectionSignalMagicBytes   = "magic_bytes"
	DetectionSignalTextDensity  = "text_density"
	DetectionSignalNone         = "none"
)

// FormatDetection is the FormatSignatureDetector output.
type FormatDetection struct {
	Kind       SourceKind `json:"kind"`
	Confidence float64    `json:"confidence"`
	Signal     string     `json:"signal"`
	Delimiter  string     `json:"delimiter,omitempty"` // set for delimited text
}

// ============================================================================
// Format Characteristics
// ============================================================================

// DataQualityTier is a coarse data quality grade for a whole grid.
type DataQualityTier string

const (
	DataQualityHigh   DataQualityTier = "high"
	DataQualityMedium DataQualityTier = "medium"
	DataQualityLow    DataQualityTier = "low"
)

// FormatCharacteristics are structural estimates computed over the raw grid.
type FormatCharacteristics struct {
	HasHeaders            bool            `json:"has_headers"`
	HeaderScore           float64         `json:"header_score"`
	StructuralConsistency float64         `json:"structural_consistency"`
	DataQuality           DataQualityTier `json:"data_quality"`
	FillRate              float64         `json:"fill_rate"`
	ErrorMarkerRate       float64         `json:"error_marker_rate"`
	HasMultipleTables     bool            `json:"has_multiple_tables"`
	EstimatedRecords      int             `json:"estimated_records"`
}

// ProcessingStrategy is advisory metadata for operators. The mapping logic
// never reads it.
type ProcessingStrategy struct {
	Method             string   `json:"method"`
	Priority           int      `json:"priority"`
	ExpectedChallenges []string `json:"expected_challenges,omitempty"`
	Mitigations        []string `json:"mitigations,omitempty"`
}

// FormatAnalysis is the FormatCharacteristicsClassifier output.
type FormatAnalysis struct {
	Kind            SourceKind            `json:"kind"`
	Refinement      string                `json:"refinement"`
	Characteristics FormatCharacteristics `json:"characteristics"`
	Strategy        ProcessingStrategy    `json:"strategy"`
}
