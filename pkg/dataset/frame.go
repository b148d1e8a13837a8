// Package dataset holds the in-memory tabular frame the workbench operates
// on. Frames are treated as immutable values: mutating operations build a
// new frame so concurrent readers never observe a half-applied change.
package dataset

import (
	"math"

	"github.com/tabularml/workbench/pkg/common/apperr"
)

type Kind int

const (
	KindNumeric Kind = iota
	KindString
)

func (k Kind) String() string {
	if k == KindNumeric {
		return "float64"
	}
	return "object"
}

type Column struct {
	Name    string
	Kind    Kind
	Floats  []float64
	Strings []string
	Missing []bool
}

func (c *Column) Len() int {
	return len(c.Missing)
}

func (c *Column) IsNumeric() bool {
	return c.Kind == KindNumeric
}

func (c *Column) MissingCount() int {
	count := 0
	for _, m := range c.Missing {
		if m {
			count++
		}
	}
	return count
}

// Value returns the cell at row i, nil when missing.
func (c *Column) Value(i int) interface{} {
	if c.Missing[i] {
		return nil
	}
	if c.Kind == KindNumeric {
		v := c.Floats[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return v
	}
	return c.Strings[i]
}

// NonMissingFloats returns the present numeric values of the column.
func (c *Column) NonMissingFloats() []float64 {
	if c.Kind != KindNumeric {
		return nil
	}
	out := make([]float64, 0, len(c.Floats))
	for i, v := range c.Floats {
		if !c.Missing[i] {
			out = append(out, v)
		}
	}
	return out
}

// Cell renders the cell at row i as a string (empty when missing).
func (c *Column) Cell(i int) string {
	if c.Missing[i] {
		return ""
	}
	if c.Kind == KindNumeric {
		return formatFloat(c.Floats[i])
	}
	return c.Strings[i]
}

func (c *Column) clone() Column {
	out := Column{Name: c.Name, Kind: c.Kind}
	out.Missing = append([]bool(nil), c.Missing...)
	if c.Kind == KindNumeric {
		out.Floats = append([]float64(nil), c.Floats...)
	} else {
		out.Strings = append([]string(nil), c.Strings...)
	}
	return out
}

func (c *Column) filter(keep []bool, kept int) Column {
	out := Column{Name: c.Name, Kind: c.Kind, Missing: make([]bool, 0, kept)}
	if c.Kind == KindNumeric {
		out.Floats = make([]float64, 0, kept)
	} else {
		out.Strings = make([]string, 0, kept)
	}
	for i, k := range keep {
		if !k {
			continue
		}
		out.Missing = append(out.Missing, c.Missing[i])
		if c.Kind == KindNumeric {
			out.Floats = append(out.Floats, c.Floats[i])
		} else {
			out.Strings = append(out.Strings, c.Strings[i])
		}
	}
	return out
}

type Frame struct {
	cols  []Column
	index map[string]int
	rows  int
}

func New(cols []Column) (*Frame, error) {
	f := &Frame{cols: cols, index: make(map[string]int, len(cols))}
	for i := range cols {
		if _, dup := f.index[cols[i].Name]; dup {
			return nil, apperr.New(apperr.KindInvalidCSV, "duplicate column name %q", cols[i].Name)
		}
		f.index[cols[i].Name] = i
		if i == 0 {
			f.rows = cols[i].Len()
		} else if cols[i].Len() != f.rows {
			return nil, apperr.New(apperr.KindInvalidCSV, "column %q has ragged length", cols[i].Name)
		}
	}
	return f, nil
}

func (f *Frame) Rows() int { return f.rows }
func (f *Frame) Cols() int { return len(f.cols) }

func (f *Frame) ColumnNames() []string {
	names := make([]string, len(f.cols))
	for i := range f.cols {
		names[i] = f.cols[i].Name
	}
	return names
}

func (f *Frame) Column(name string) (*Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return &f.cols[i], true
}

func (f *Frame) ColumnAt(i int) *Column { return &f.cols[i] }

func (f *Frame) HasColumn(name string) bool {
	_, ok := f.index[name]
	return ok
}

// NumericColumnNames returns the names of numeric columns in frame order.
func (f *Frame) NumericColumnNames() []string {
	var names []string
	for i := range f.cols {
		if f.cols[i].IsNumeric() {
			names = append(names, f.cols[i].Name)
		}
	}
	return names
}

// Copy returns a deep copy so the caller's buffer is never aliased.
func (f *Frame) Copy() *Frame {
	cols := make([]Column, len(f.cols))
	for i := range f.cols {
		cols[i] = f.cols[i].clone()
	}
	out, _ := New(cols)
	return out
}

// Filter builds a new frame keeping only rows where keep[i] is true.
func (f *Frame) Filter(keep []bool) *Frame {
	kept := 0
	for _, k := range keep {
		if k {
			kept++
		}
	}
	cols := make([]Column, len(f.cols))
	for i := range f.cols {
		cols[i] = f.cols[i].filter(keep, kept)
	}
	out, _ := New(cols)
	return out
}

// Select builds a new frame from the given rows of the given columns.
func (f *Frame) Select(names []string, rows []int) (*Frame, error) {
	cols := make([]Column, 0, len(names))
	for _, name := range names {
		src, ok := f.Column(name)
		if !ok {
			return nil, apperr.New(apperr.KindColumnNotFound, "column %q does not exist", name)
		}
		col := Column{Name: src.Name, Kind: src.Kind, Missing: make([]bool, len(rows))}
		if src.Kind == KindNumeric {
			col.Floats = make([]float64, len(rows))
		} else {
			col.Strings = make([]string, len(rows))
		}
		for i, r := range rows {
			col.Missing[i] = src.Missing[r]
			if src.Kind == KindNumeric {
				col.Floats[i] = src.Floats[r]
			} else {
				col.Strings[i] = src.Strings[r]
			}
		}
		cols = append(cols, col)
	}
	return New(cols)
}

// WithColumn returns a new frame with col appended (or replaced when a
// column of the same name exists).
func (f *Frame) WithColumn(col Column) (*Frame, error) {
	if col.Len() != f.rows {
		return nil, apperr.New(apperr.KindInternal, "column %q length %d does not match frame rows %d", col.Name, col.Len(), f.rows)
	}
	cols := make([]Column, 0, len(f.cols)+1)
	replaced := false
	for i := range f.cols {
		if f.cols[i].Name == col.Name {
			cols = append(cols, col)
			replaced = true
			continue
		}
		cols = append(cols, f.cols[i].clone())
	}
	if !replaced {
		cols = append(cols, col)
	}
	return New(cols)
}

// Records renders up to limit rows as JSON-friendly maps, missing and
// non-finite cells rendered as nil.
func (f *Frame) Records(limit int) []map[string]interface{} {
	n := f.rows
	if limit >= 0 && limit < n {
		n = limit
	}
	records := make([]map[string]interface{}, 0, n)
	for i := 0; i < n; i++ {
		row := make(map[string]interface{}, len(f.cols))
		for j := range f.cols {
			row[f.cols[j].Name] = f.cols[j].Value(i)
		}
		records = append(records, row)
	}
	return records
}

// DTypes returns the dtype label per column, pandas style.
func (f *Frame) DTypes() map[string]string {
	out := make(map[string]string, len(f.cols))
	for i := range f.cols {
		out[f.cols[i].Name] = f.cols[i].Kind.String()
	}
	return out
}
