package models

import (
	"fmt"
	"maps"
	"slices"
)

// ============================================================================
// Column Types
// ============================================================================

// DataType is the primitive type inferred for a column.
type DataType string

const (
	DataTypeName       DataType = "name"
	DataTypeIdentifier DataType = "identifier"
	DataTypeDate       DataType = "date"
	DataTypeNumber     DataType = "number"
	DataTypeText       DataType = "text"
	DataTypeUnknown    DataType = "unknown"
)

// ValidDataTypes contains all valid primitive type values.
var ValidDataTypes = []DataType{
	DataTypeName,
	DataTypeIdentifier,
	DataTypeDate,
	DataTypeNumber,
	DataTypeText,
	DataTypeUnknown,
}

// IsValidDataType checks if the given type is valid.
func IsValidDataType(t DataType) bool {
	return slices.Contains(ValidDataTypes, t)
}

// SemanticType is the candidate meaning scored by the StructureAnalyzer.
type SemanticType string

const (
	SemanticPersonName   SemanticType = "person_name"
	SemanticNationalID   SemanticType = "national_id"
	SemanticSalary       SemanticType = "salary"
	SemanticDate         SemanticType = "date"
	SemanticCategorical  SemanticType = "categorical"
	SemanticEmployeeCode SemanticType = "employee_code"
	SemanticUnknown      SemanticType = "unknown"
)

// SemanticTypes is the fixed candidate list in declaration order.
// Ties are broken by this order.
var SemanticTypes = []SemanticType{
	SemanticPersonName,
	SemanticNationalID,
	SemanticSalary,
	SemanticDate,
	SemanticCategorical,
	SemanticEmployeeCode,
}

// DataType returns the primitive type a semantic type implies.
func (s SemanticType) DataType() DataType {
	switch s {
	case SemanticPersonName:
		return DataTypeName
	case SemanticNationalID, SemanticEmployeeCode:
		return DataTypeIdentifier
	case SemanticSalary:
		return DataTypeNumber
	case SemanticDate:
		return DataTypeDate
	case SemanticCategorical:
		return DataTypeText
	default:
		return DataTypeUnknown
	}
}

// ============================================================================
// Detected Columns and Tables
// ============================================================================

// DetectedColumn is one column of a DetectedTable.
type DetectedColumn struct {
	Index          int          `json:"index"`
	Header         string       `json:"header"`
	DataType       DataType     `json:"data_type"`
	SemanticType   SemanticType `json:"semantic_type"`
	Confidence     float64      `json:"confidence"`
	SampleValues   []string     `json:"sample_values,omitempty"`
	MissingRate    float64      `json:"missing_rate"`
	Issues         []string     `json:"issues,omitempty"`
	SuggestedField string       `json:"suggested_field,omitempty"`
}

// Label returns the header, or a positional name for headerless columns.
func (c *DetectedColumn) Label() string {
	if c.Header != "" {
		return c.Header
	}
	return fmt.Sprintf("column_%d", c.Index+1)
}

// TablePurpose is the record type a table appears to hold.
type TablePurpose string

const (
	PurposeActivePersonnel TablePurpose = "active_personnel"
	PurposeTerminations    TablePurpose = "terminations"
	PurposeOther           TablePurpose = "other"
)

// RecordPurposes are the purposes the field catalogue is organized around.
var RecordPurposes = []TablePurpose{
	PurposeActivePersonnel,
	PurposeTerminations,
}

// TargetPurpose returns the catalogue a table of this purpose is mapped against.
// Unclassified tables are mapped as active personnel rosters.
func (p TablePurpose) TargetPurpose() TablePurpose {
	if p == PurposeTerminations {
		return PurposeTerminations
	}
	return PurposeActivePersonnel
}

// DetectedTable is one logical table found inside a RawGrid.
// Row indexes are absolute positions in the grid; DataEnd is exclusive.
// HeaderRow is -1 when the table has no header row.
type DetectedTable struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Confidence   float64          `json:"confidence"`
	Columns      []DetectedColumn `json:"columns"`
	RowCount     int              `json:"row_count"`
	StartRow     int              `json:"start_row"`
	HeaderRow    int              `json:"header_row"`
	HeaderScore  float64          `json:"header_score"`
	HeaderFound  bool             `json:"header_found"` // false when the header row is a low-evidence guess
	DataStart    int              `json:"data_start"`
	DataEnd      int              `json:"data_end"`
	Preview      [][]string       `json:"preview,omitempty"`
	Purpose      TablePurpose     `json:"purpose"`
	PurposeScore float64          `json:"purpose_score"`
}

// Column returns the column with the given index, or nil.
func (t *DetectedTable) Column(index int) *DetectedColumn {
	for i := range t.Columns {
		if t.Columns[i].Index == index {
			return &t.Columns[i]
		}
	}
	return nil
}

// ============================================================================
// Anomalies and Analysis Output
// ============================================================================

// AnomalyKind identifies a structural anomaly.
type AnomalyKind string

const (
	AnomalySmallTable          AnomalyKind = "small_table"
	AnomalyLowConfidenceColumn AnomalyKind = "low_confidence_column"
	AnomalyNoColumns           AnomalyKind = "no_identifiable_columns"
	AnomalyUnconfirmedLayout   AnomalyKind = "unconfirmed_layout"
)

// Anomaly is a structural finding recorded as data. ColumnIndex is -1 for
// table-level anomalies.
type Anomaly struct {
	Kind        AnomalyKind `json:"kind"`
	TableID     string      `json:"table_id"`
	ColumnIndex int         `json:"column_index"`
	Message     string      `json:"message"`
}

// StructureAnalysis is the StructureAnalyzer output for one grid.
type StructureAnalysis struct {
	Tables            []DetectedTable   `json:"tables"`
	OverallConfidence float64           `json:"overall_confidence"`
	SuggestedMapping  map[string]string `json:"suggested_mapping"` // header -> standard field
	Anomalies         []Anomaly         `json:"anomalies,omitempty"`
	Segmented         bool              `json:"segmented"`          // true if an empty-row boundary was found
	ConfidenceCeiling float64           `json:"confidence_ceiling"` // below 1.0 for low-fidelity extraction
}

// Table returns the table with the given id, or nil.
func (a *StructureAnalysis) Table(id string) *DetectedTable {
	for i := range a.Tables {
		if a.Tables[i].ID == id {
			return &a.Tables[i]
		}
	}
	return nil
}

// Clone returns a deep copy that shares no slices or maps with a.
func (a *StructureAnalysis) Clone() *StructureAnalysis {
	if a == nil {
		return nil
	}
	out := *a
	out.Tables = slices.Clone(a.Tables)
	for i := range out.Tables {
		out.Tables[i] = out.Tables[i].clone()
	}
	out.SuggestedMapping = maps.Clone(a.SuggestedMapping)
	out.Anomalies = slices.Clone(a.Anomalies)
	return &out
}

func (t DetectedTable) clone() DetectedTable {
	t.Columns = slices.Clone(t.Columns)
	for i := range t.Columns {
		t.Columns[i].SampleValues = slices.Clone(t.Columns[i].SampleValues)
		t.Columns[i].Issues = slices.Clone(t.Columns[i].Issues)
	}
	if t.Preview != nil {
		preview := make([][]string, len(t.Preview))
		for i, row := range t.Preview {
			preview[i] = slices.Clone(row)
		}
		t.Preview = preview
	}
	return t
}
