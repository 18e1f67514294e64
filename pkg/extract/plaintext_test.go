package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/census-engine/pkg/apperrors"
	"github.com/ekaya-inc/census-engine/pkg/models"
)

func extractPlain(content []byte) (*Result, error) {
	e := NewPlainTextExtractor(zap.NewNop())
	det := models.FormatDetection{Kind: models.SourceKindPlainText}
	return e.Extract(context.Background(), models.FileIdentity{Name: "reporte.txt"}, content, det)
}

func TestPlainTextExtractor_Aligned(t *testing.T) {
	report := "REPORTE DE PERSONAL\n" +
		"\n" +
		"Nombre        Sueldo    Puesto\n" +
		"------------  --------  ------\n" +
		"Juan Pérez    15000     Cajero\n" +
		"Ana Torres    12500\tGerente\n"

	res, err := extractPlain([]byte(report))

	require.NoError(t, err)
	require.Equal(t, 6, res.Grid.RowCount())
	assert.Equal(t, []string{"REPORTE DE PERSONAL"}, res.Grid.Row(0).Strings())
	assert.True(t, res.Grid.Row(1).IsEmpty())
	assert.Equal(t, []string{"Nombre", "Sueldo", "Puesto"}, res.Grid.Row(2).Strings())
	assert.Equal(t, []string{"Juan Pérez", "15000", "Cajero"}, res.Grid.Row(3).Strings())
	assert.Equal(t, []string{"Ana Torres", "12500", "Gerente"}, res.Grid.Row(4).Strings())
	assert.True(t, res.Grid.Row(5).IsEmpty())
	assert.Equal(t, "aligned plain text (utf-8)", res.Method)
	assert.Equal(t, report, res.FreeText)
}

func TestPlainTextExtractor_Pipes(t *testing.T) {
	report := "| Nombre | Sueldo |\n" +
		"|--------|--------|\n" +
		"| Juan   | 15000  |\n" +
		"| Ana    |        |\n"

	res, err := extractPlain([]byte(report))

	require.NoError(t, err)
	assert.Equal(t, "pipe-delimited plain text (utf-8)", res.Method)
	assert.Equal(t, []string{"Nombre", "Sueldo"}, res.Grid.Row(0).Strings())
	assert.Equal(t, []string{"Juan", "15000"}, res.Grid.Row(1).Strings())
	assert.Equal(t, []string{"Ana"}, res.Grid.Row(2).Strings(), "trailing empty cells are trimmed with the border")
}

func TestPlainTextExtractor_RejectsBinary(t *testing.T) {
	_, err := extractPlain([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08})

	assert.ErrorIs(t, err, apperrors.ErrUnsupportedFormat)
}

func TestPlainTextExtractor_StripsUTF16Nulls(t *testing.T) {
	res, err := extractPlain([]byte("N\x00o\x00m\x00b\x00r\x00e\x00 \x00 \x00A\x00\n\x00"))

	require.NoError(t, err)
	assert.Equal(t, []string{"Nombre", "A"}, res.Grid.Row(0).Strings())
}
