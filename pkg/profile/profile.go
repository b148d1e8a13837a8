// Package profile computes column metadata and summary statistics for a
// session's current frame.
package profile

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/tabularml/workbench/pkg/common/apperr"
	"github.com/tabularml/workbench/pkg/dataset"
)

const previewRows = 5

type ColumnProfile struct {
	Name      string   `json:"name"`
	DType     string   `json:"dtype"`
	Missing   int      `json:"missing"`
	IsNumeric bool     `json:"is_numeric"`
	Mean      *float64 `json:"mean,omitempty"`
	Std       *float64 `json:"std,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
}

type DatasetProfile struct {
	Shape   [2]int                   `json:"shape"`
	Columns []ColumnProfile          `json:"columns"`
	DTypes  map[string]string        `json:"dtypes"`
	Head    []map[string]interface{} `json:"head"`
}

// Describe profiles every column of the frame and renders a head preview.
func Describe(frame *dataset.Frame) (*DatasetProfile, error) {
	if frame == nil || frame.Rows() == 0 {
		return nil, apperr.New(apperr.KindEmptyDataset, "dataset has no rows")
	}

	columns := make([]ColumnProfile, 0, frame.Cols())
	for i := 0; i < frame.Cols(); i++ {
		col := frame.ColumnAt(i)
		cp := ColumnProfile{
			Name:      col.Name,
			DType:     col.Kind.String(),
			Missing:   col.MissingCount(),
			IsNumeric: col.IsNumeric(),
		}
		if col.IsNumeric() {
			values := col.NonMissingFloats()
			cp.Mean = finiteOrNil(meanOf(values))
			cp.Std = finiteOrNil(stdOf(values))
			cp.Min = finiteOrNil(minOf(values))
			cp.Max = finiteOrNil(maxOf(values))
		}
		columns = append(columns, cp)
	}

	return &DatasetProfile{
		Shape:   [2]int{frame.Rows(), frame.Cols()},
		Columns: columns,
		DTypes:  frame.DTypes(),
		Head:    frame.Records(previewRows),
	}, nil
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return stat.Mean(values, nil)
}

func stdOf(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	return stat.StdDev(values, nil)
}

func minOf(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	min := values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

func maxOf(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	max := values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
