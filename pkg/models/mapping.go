package models

import (
	"slices"
	"sort"
)

// ============================================================================
// Standard Field Catalogue
// ============================================================================

// ValidatorKind names a value validator shared by structure analysis and mapping.
type ValidatorKind string

const (
	ValidatorPersonName   ValidatorKind = "person_name"
	ValidatorNationalID   ValidatorKind = "national_id"
	ValidatorRFC          ValidatorKind = "rfc"
	ValidatorCURP         ValidatorKind = "curp"
	ValidatorNSS          ValidatorKind = "nss"
	ValidatorSalary       ValidatorKind = "salary"
	ValidatorDate         ValidatorKind = "date"
	ValidatorGender       ValidatorKind = "gender"
	ValidatorEmployeeCode ValidatorKind = "employee_code"
	ValidatorText         ValidatorKind = "text"
)

// StandardField is one catalogue entry for a record purpose.
type StandardField struct {
	Name         string        `yaml:"name" json:"name"`
	Label        string        `yaml:"label" json:"label"`
	Priority     int           `yaml:"priority" json:"priority"`
	ExpectedType DataType      `yaml:"type" json:"expected_type"`
	Validator    ValidatorKind `yaml:"validator" json:"validator"`
	Synonyms     []string      `yaml:"synonyms" json:"synonyms"`
}

// ============================================================================
// Classification
// ============================================================================

// FieldScore is one candidate field scored for a column.
type FieldScore struct {
	Field   string  `json:"field"`
	Score   float64 `json:"score"`
	Name    float64 `json:"name"`
	Type    float64 `json:"type"`
	Content float64 `json:"content"`
	Context float64 `json:"context"`
}

// ColumnClassification is the ColumnFieldClassifier output for one column.
// BestField is empty when no candidate cleared the minimum mapping score, and
// for displaced columns until the user confirms a runner-up.
type ColumnClassification struct {
	ColumnIndex   int          `json:"column_index"`
	Header        string       `json:"header"`
	BestField     string       `json:"best_field,omitempty"`
	Confidence    float64      `json:"confidence"`
	Candidates    []FieldScore `json:"candidates"` // ranked, best first
	UserAssigned  bool         `json:"user_assigned,omitempty"`
	DisplacedFrom string       `json:"displaced_from,omitempty"` // best field, pinned to another column
}

// Candidate returns the score for the named field, or nil.
func (c *ColumnClassification) Candidate(field string) *FieldScore {
	for i := range c.Candidates {
		if c.Candidates[i].Field == field {
			return &c.Candidates[i]
		}
	}
	return nil
}

// ============================================================================
// Mapping Output
// ============================================================================

// StandardFieldMapping aggregates the columns that claim one standard field.
type StandardFieldMapping struct {
	Field         string  `json:"field"`
	Label         string  `json:"label"`
	Required      bool    `json:"required"`
	Priority      int     `json:"priority"`
	MappedColumns []int   `json:"mapped_columns"`
	Confidence    float64 `json:"confidence"`
	Alternatives  []int   `json:"alternatives,omitempty"`
	Absent        bool    `json:"absent,omitempty"` // confirmed missing from the file
}

// IsMapped returns true if at least one column claims the field.
func (m *StandardFieldMapping) IsMapped() bool {
	return len(m.MappedColumns) > 0
}

// AmbiguityKind separates the two ambiguity shapes.
type AmbiguityKind string

const (
	// AmbiguityFieldConflict: one field claimed by several columns.
	AmbiguityFieldConflict AmbiguityKind = "field_conflict"
	// AmbiguityColumnUncertain: one column with several plausible fields.
	AmbiguityColumnUncertain AmbiguityKind = "column_uncertain"
)

// AmbiguousMapping is an unresolved column/field pairing. Key is stable across
// recomputations so questions can be reconciled against it.
type AmbiguousMapping struct {
	Key           string        `json:"key"`
	Kind          AmbiguityKind `json:"kind"`
	TableID       string        `json:"table_id"`
	Columns       []int         `json:"columns"`
	Fields        []string      `json:"fields"`
	RequiresInput bool          `json:"requires_input"`
}

// MappingResult is the ColumnMapper output for one table.
type MappingResult struct {
	TableID           string                 `json:"table_id"`
	Purpose           TablePurpose           `json:"purpose"`
	Target            TablePurpose           `json:"target"`
	Classifications   []ColumnClassification `json:"classifications"`
	Fields            []StandardFieldMapping `json:"fields"`
	Ambiguities       []AmbiguousMapping     `json:"ambiguities"`
	UnmappedColumns   []int                  `json:"unmapped_columns"`
	OverallConfidence float64                `json:"overall_confidence"`
}

// Clone returns a deep copy that shares no slices with r.
func (r MappingResult) Clone() MappingResult {
	r.Classifications = slices.Clone(r.Classifications)
	for i := range r.Classifications {
		r.Classifications[i].Candidates = slices.Clone(r.Classifications[i].Candidates)
	}
	r.Fields = slices.Clone(r.Fields)
	for i := range r.Fields {
		r.Fields[i].MappedColumns = slices.Clone(r.Fields[i].MappedColumns)
		r.Fields[i].Alternatives = slices.Clone(r.Fields[i].Alternatives)
	}
	r.Ambiguities = slices.Clone(r.Ambiguities)
	for i := range r.Ambiguities {
		r.Ambiguities[i].Columns = slices.Clone(r.Ambiguities[i].Columns)
		r.Ambiguities[i].Fields = slices.Clone(r.Ambiguities[i].Fields)
	}
	r.UnmappedColumns = slices.Clone(r.UnmappedColumns)
	return r
}

// CloneMappings deep-copies a slice of mapping results.
func CloneMappings(results []MappingResult) []MappingResult {
	if results == nil {
		return nil
	}
	out := make([]MappingResult, len(results))
	for i, r := range results {
		out[i] = r.Clone()
	}
	return out
}

// Field returns the mapping for the named field, or nil.
func (r *MappingResult) Field(name string) *StandardFieldMapping {
	for i := range r.Fields {
		if r.Fields[i].Field == name {
			return &r.Fields[i]
		}
	}
	return nil
}

// Classification returns the classification for a column index, or nil.
func (r *MappingResult) Classification(column int) *ColumnClassification {
	for i := range r.Classifications {
		if r.Classifications[i].ColumnIndex == column {
			return &r.Classifications[i]
		}
	}
	return nil
}

// MissingRequired returns required fields that have no column and were not
// confirmed absent, in catalogue order.
func (r *MappingResult) MissingRequired() []StandardFieldMapping {
	var out []StandardFieldMapping
	for _, f := range r.Fields {
		if f.Required && !f.IsMapped() && !f.Absent {
			out = append(out, f)
		}
	}
	return out
}

// FieldForColumn returns the field a column resolved to, or "".
func (r *MappingResult) FieldForColumn(column int) string {
	if c := r.Classification(column); c != nil {
		return c.BestField
	}
	return ""
}

// NormalizedRecord is one data row after mapping. Fields is keyed by standard
// field name, Source by original column header.
type NormalizedRecord struct {
	Fields   map[string]string `json:"fields"`
	Source   map[string]string `json:"source"`
	Unmapped map[string]string `json:"unmapped,omitempty"`
}

// ============================================================================
// Answer-Driven Resolutions
// ============================================================================

// Resolution accumulates the mapping decisions a user made for one table.
// The mapper applies it on every recomputation.
type Resolution struct {
	Assigned map[int]string   `json:"assigned,omitempty"` // column -> field
	Excluded map[int][]string `json:"excluded,omitempty"` // column -> rejected fields
	Omitted  map[int]bool     `json:"omitted,omitempty"`  // columns left unmapped
	Absent   map[string]bool  `json:"absent,omitempty"`   // fields confirmed missing
}

// NewResolution returns an empty resolution.
func NewResolution() *Resolution {
	return &Resolution{
		Assigned: make(map[int]string),
		Excluded: make(map[int][]string),
		Omitted:  make(map[int]bool),
		Absent:   make(map[string]bool),
	}
}

// Assign pins a column to a field. Any other column pinned to the same field
// is released, and the column is no longer omitted.
func (r *Resolution) Assign(column int, field string) {
	for col, f := range r.Assigned {
		if f == field && col != column {
			delete(r.Assigned, col)
		}
	}
	r.Assigned[column] = field
	delete(r.Omitted, column)
	delete(r.Absent, field)
}

// Exclude records that a column must not map to a field.
func (r *Resolution) Exclude(column int, field string) {
	if slices.Contains(r.Excluded[column], field) {
		return
	}
	r.Excluded[column] = append(r.Excluded[column], field)
	sort.Strings(r.Excluded[column])
	if r.Assigned[column] == field {
		delete(r.Assigned, column)
	}
}

// Omit leaves a column unmapped.
func (r *Resolution) Omit(column int) {
	r.Omitted[column] = true
	delete(r.Assigned, column)
}

// MarkAbsent records that a field does not exist in the file.
func (r *Resolution) MarkAbsent(field string) {
	r.Absent[field] = true
}

// IsExcluded reports whether a field was rejected for a column.
func (r *Resolution) IsExcluded(column int, field string) bool {
	if r == nil {
		return false
	}
	return slices.Contains(r.Excluded[column], field)
}
