package dataset

import (
	"bytes"
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/tabularml/workbench/pkg/common/apperr"
)

// Limits bounds the shape of a loadable dataset. Zero values disable the
// corresponding limit.
type Limits struct {
	MaxRows    int
	MaxColumns int
}

var missingTokens = map[string]bool{
	"":     true,
	"na":   true,
	"n/a":  true,
	"nan":  true,
	"null": true,
	"none": true,
}

func isMissingToken(s string) bool {
	return missingTokens[strings.ToLower(strings.TrimSpace(s))]
}

// ParseCSV decodes raw CSV bytes into a frame, inferring a numeric or
// string kind per column. The header row is required and the frame must
// contain at least one data row.
func ParseCSV(data []byte, limits Limits) (*Frame, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidCSV, "invalid CSV data")
	}
	if limits.MaxColumns > 0 && len(header) > limits.MaxColumns {
		return nil, apperr.New(apperr.KindDatasetTooLarge, "dataset has %d columns, limit is %d", len(header), limits.MaxColumns)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
		if header[i] == "" {
			return nil, apperr.New(apperr.KindInvalidCSV, "empty column name at position %d", i)
		}
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperr.New(apperr.KindInvalidCSV, "invalid CSV data")
		}
		if len(record) != len(header) {
			return nil, apperr.New(apperr.KindInvalidCSV, "row %d has %d fields, expected %d", len(rows)+1, len(record), len(header))
		}
		rows = append(rows, record)
		if limits.MaxRows > 0 && len(rows) > limits.MaxRows {
			return nil, apperr.New(apperr.KindDatasetTooLarge, "dataset exceeds %d rows", limits.MaxRows)
		}
	}
	if len(rows) == 0 {
		return nil, apperr.New(apperr.KindEmptyDataset, "CSV file must contain at least one row")
	}

	cols := make([]Column, len(header))
	for j, name := range header {
		cols[j] = inferColumn(name, rows, j)
	}
	return New(cols)
}

func inferColumn(name string, rows [][]string, j int) Column {
	numeric := true
	present := 0
	for i := range rows {
		cell := rows[i][j]
		if isMissingToken(cell) {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil {
			numeric = false
			break
		}
		// Non-finite values cannot flow into stats or training; treat
		// them as missing cells.
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		present++
	}
	if present == 0 {
		numeric = false
	}

	col := Column{Name: name, Missing: make([]bool, len(rows))}
	if numeric {
		col.Kind = KindNumeric
		col.Floats = make([]float64, len(rows))
		for i := range rows {
			cell := rows[i][j]
			if isMissingToken(cell) {
				col.Missing[i] = true
				continue
			}
			v, _ := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				col.Missing[i] = true
				continue
			}
			col.Floats[i] = v
		}
		return col
	}
	col.Kind = KindString
	col.Strings = make([]string, len(rows))
	for i := range rows {
		cell := rows[i][j]
		if isMissingToken(cell) {
			col.Missing[i] = true
			continue
		}
		col.Strings[i] = strings.TrimSpace(cell)
	}
	return col
}

// EncodeCSV serializes the frame back to CSV bytes, missing cells encoded
// as empty fields.
func EncodeCSV(f *Frame) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(f.ColumnNames()); err != nil {
		return nil, apperr.Wrap(err)
	}
	record := make([]string, f.Cols())
	for i := 0; i < f.Rows(); i++ {
		for j := 0; j < f.Cols(); j++ {
			record[j] = f.ColumnAt(j).Cell(i)
		}
		if err := writer.Write(record); err != nil {
			return nil, apperr.Wrap(err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, apperr.Wrap(err)
	}
	return buf.Bytes(), nil
}

func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
