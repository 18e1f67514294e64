package mapping

import (
	"github.com/ekaya-inc/census-engine/pkg/models"
)

// ConvertRows turns each non-empty data row of a table into a normalized
// record. When several columns map to one field the first non-empty value in
// column order wins. Unmapped columns are passed through for review.
func (m *ColumnMapper) ConvertRows(grid *models.RawGrid, table *models.DetectedTable, result *models.MappingResult) []models.NormalizedRecord {
	labels := make(map[int]string, len(table.Columns))
	for _, c := range table.Columns {
		labels[c.Index] = c.Label()
	}

	validators := make(map[string]models.ValidatorKind, len(result.Fields))
	for _, f := range result.Fields {
		validators[f.Field] = m.validatorFor(result.Target, f.Field)
	}

	var records []models.NormalizedRecord
	for i := table.DataStart; i < table.DataEnd; i++ {
		row := grid.Row(i)
		if row.IsEmpty() {
			continue
		}

		rec := models.NormalizedRecord{
			Fields: make(map[string]string),
			Source: make(map[string]string, len(table.Columns)),
		}
		for _, c := range table.Columns {
			rec.Source[labels[c.Index]] = row.At(c.Index).String()
		}

		for _, f := range result.Fields {
			for _, col := range f.MappedColumns {
				raw := row.At(col).String()
				if raw == "" {
					continue
				}
				rec.Fields[f.Field] = m.validators.NormalizeValue(validators[f.Field], raw)
				break
			}
		}

		for _, col := range result.UnmappedColumns {
			raw := row.At(col).String()
			if raw == "" {
				continue
			}
			if rec.Unmapped == nil {
				rec.Unmapped = make(map[string]string)
			}
			rec.Unmapped[labels[col]] = raw
		}
		records = append(records, rec)
	}
	return records
}

func (m *ColumnMapper) validatorFor(target models.TablePurpose, field string) models.ValidatorKind {
	for _, c := range m.catalog.candidates(target) {
		if c.field.Name == field {
			return c.field.Validator
		}
	}
	return models.ValidatorText
}

// SelectTables picks the authoritative table per record purpose: the most
// confident active personnel table (an unclassified one when none exists) and
// the most confident terminations table. Earlier tables win ties.
func SelectTables(structure *models.StructureAnalysis) []models.TableSelection {
	best := func(purpose models.TablePurpose) *models.DetectedTable {
		var pick *models.DetectedTable
		for i := range structure.Tables {
			t := &structure.Tables[i]
			if t.Purpose != purpose || len(t.Columns) == 0 {
				continue
			}
			if pick == nil || t.Confidence > pick.Confidence {
				pick = t
			}
		}
		return pick
	}

	var out []models.TableSelection
	active := best(models.PurposeActivePersonnel)
	if active == nil {
		active = best(models.PurposeOther)
	}
	if active != nil {
		out = append(out, models.TableSelection{Purpose: models.PurposeActivePersonnel, TableID: active.ID})
	}
	if term := best(models.PurposeTerminations); term != nil {
		out = append(out, models.TableSelection{Purpose: models.PurposeTerminations, TableID: term.ID})
	}
	return out
}

// MapSelected maps every selected table with its resolution (which may be nil).
func (m *ColumnMapper) MapSelected(structure *models.StructureAnalysis, selected []models.TableSelection, resolutions map[string]*models.Resolution) []models.MappingResult {
	out := make([]models.MappingResult, 0, len(selected))
	for _, sel := range selected {
		table := structure.Table(sel.TableID)
		if table == nil {
			continue
		}
		out = append(out, m.Map(table, resolutions[sel.TableID], structure.ConfidenceCeiling))
	}
	return out
}

// ApplySuggestions copies each column's best field back onto the structure
// analysis so it can be read without the mapping results.
func ApplySuggestions(structure *models.StructureAnalysis, results []models.MappingResult) {
	structure.SuggestedMapping = make(map[string]string)
	for _, r := range results {
		table := structure.Table(r.TableID)
		if table == nil {
			continue
		}
		for i := range table.Columns {
			col := &table.Columns[i]
			col.SuggestedField = r.FieldForColumn(col.Index)
			if col.SuggestedField == "" {
				continue
			}
			if _, taken := structure.SuggestedMapping[col.Label()]; !taken {
				structure.SuggestedMapping[col.Label()] = col.SuggestedField
			}
		}
	}
}
