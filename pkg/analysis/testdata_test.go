package analysis

import (
	"testing"

	"go.uber.org/zap"

	"github.com/ekaya-inc/census-engine/pkg/config"
	"github.com/ekaya-inc/census-engine/pkg/models"
)

func newTestAnalyzer(t *testing.T) *StructureAnalyzer {
	t.Helper()
	scoring := config.DefaultScoring()
	return NewStructureAnalyzer(scoring, NewValidators(scoring), zap.NewNop())
}

// rosterRows is a clean six-employee roster with a header row.
var rosterRows = [][]string{
	{"Empleado", "Fecha Nacimiento", "Sueldo"},
	{"Juan Pérez López", "15/03/1985", "15000"},
	{"María García", "02/11/1990", "$18,500.00"},
	{"Pedro Ramírez", "20/07/1978", "22000"},
	{"Ana Torres Ruiz", "05/01/1995", "12500.50"},
	{"Luis Hernández", "30/09/1982", "30000"},
	{"Sofía Méndez", "12/12/1988", "17800"},
}

func rosterGrid() *models.RawGrid {
	return models.GridFromStrings(rosterRows)
}
