package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// ============================================================================
// Cell Values
// ============================================================================

// CellKind is the closed set of scalar kinds a grid cell can hold.
type CellKind int

const (
	CellEmpty CellKind = iota
	CellText
	CellNumber
	CellDate
)

// String returns the kind name used in logs and JSON.
func (k CellKind) String() string {
	switch k {
	case CellEmpty:
		return "empty"
	case CellText:
		return "text"
	case CellNumber:
		return "number"
	case CellDate:
		return "date"
	default:
		return "unknown"
	}
}

// Cell is a single grid value. Only the field matching Kind is meaningful.
type Cell struct {
	Kind   CellKind
	Text   string
	Number float64
	Date   time.Time
}

// EmptyCell returns an empty cell.
func EmptyCell() Cell {
	return Cell{Kind: CellEmpty}
}

// TextCell returns a text cell. Whitespace-only text is stored as empty.
func TextCell(s string) Cell {
	if strings.TrimSpace(s) == "" {
		return EmptyCell()
	}
	return Cell{Kind: CellText, Text: s}
}

// NumberCell returns a numeric cell.
func NumberCell(f float64) Cell {
	return Cell{Kind: CellNumber, Number: f}
}

// DateCell returns a date cell.
func DateCell(t time.Time) Cell {
	return Cell{Kind: CellDate, Date: t}
}

// IsEmpty returns true for empty cells and whitespace-only text.
func (c Cell) IsEmpty() bool {
	switch c.Kind {
	case CellEmpty:
		return true
	case CellText:
		return strings.TrimSpace(c.Text) == ""
	default:
		return false
	}
}

// String renders the cell the way a user would read it in the source file.
func (c Cell) String() string {
	switch c.Kind {
	case CellText:
		return strings.TrimSpace(c.Text)
	case CellNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	case CellDate:
		return c.Date.Format("2006-01-02")
	default:
		return ""
	}
}

// MarshalJSON emits the rendered value, or null for empty cells.
func (c Cell) MarshalJSON() ([]byte, error) {
	if c.IsEmpty() {
		return []byte("null"), nil
	}
	return json.Marshal(c.String())
}

// Row is an ordered sequence of cells.
type Row []Cell

// IsEmpty returns true if every cell in the row is empty.
func (r Row) IsEmpty() bool {
	for _, c := range r {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

// NonEmptyCount returns the number of non-empty cells.
func (r Row) NonEmptyCount() int {
	n := 0
	for _, c := range r {
		if !c.IsEmpty() {
			n++
		}
	}
	return n
}

// At returns the cell at index i, or an empty cell when the row is shorter.
func (r Row) At(i int) Cell {
	if i < 0 || i >= len(r) {
		return EmptyCell()
	}
	return r[i]
}

// Strings renders every cell of the row.
func (r Row) Strings() []string {
	out := make([]string, len(r))
	for i, c := range r {
		out[i] = c.String()
	}
	return out
}

// ============================================================================
// Raw Grid
// ============================================================================

// RawGrid is the 2-D grid produced once per file by a GridExtractor.
// It is treated as immutable after extraction.
type RawGrid struct {
	Rows []Row `json:"rows"`
}

// NewRawGrid builds a grid from already-typed rows.
func NewRawGrid(rows []Row) *RawGrid {
	return &RawGrid{Rows: rows}
}

// GridFromStrings builds a grid of text cells. Empty strings become empty cells.
// Useful for delimited text and for tests.
func GridFromStrings(rows [][]string) *RawGrid {
	out := make([]Row, len(rows))
	for i, r := range rows {
		row := make(Row, len(r))
		for j, v := range r {
			row[j] = TextCell(v)
		}
		out[i] = row
	}
	return &RawGrid{Rows: out}
}

// IsEmpty returns true if the grid is nil, has no rows, or every row is empty.
func (g *RawGrid) IsEmpty() bool {
	if g == nil || len(g.Rows) == 0 {
		return true
	}
	for _, r := range g.Rows {
		if !r.IsEmpty() {
			return false
		}
	}
	return true
}

// Width returns the length of the longest row.
func (g *RawGrid) Width() int {
	if g == nil {
		return 0
	}
	w := 0
	for _, r := range g.Rows {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}

// RowCount returns the number of rows including empty ones.
func (g *RawGrid) RowCount() int {
	if g == nil {
		return 0
	}
	return len(g.Rows)
}

// Row returns row i, or nil when out of range.
func (g *RawGrid) Row(i int) Row {
	if g == nil || i < 0 || i >= len(g.Rows) {
		return nil
	}
	return g.Rows[i]
}
