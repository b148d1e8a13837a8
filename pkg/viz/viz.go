// Package viz computes chart-ready summaries (histograms, box stats,
// correlation matrices) on demand from a session's current dataframe.
// Nothing here is persisted; every call recomputes from scratch.
package viz

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/tabularml/workbench/pkg/common/apperr"
	"github.com/tabularml/workbench/pkg/dataset"
)

const (
	minBins     = 2
	maxBins     = 200
	kdeGridSize = 100
)

// HistogramRequest selects a numeric column and shapes the histogram.
// Bins == 0 selects the automatic heuristic. Min/Max define an optional
// inclusive value range applied before binning.
type HistogramRequest struct {
	Column  string   `json:"column"`
	Bins    int      `json:"bins"`
	Min     *float64 `json:"min"`
	Max     *float64 `json:"max"`
	Log1p   bool     `json:"log1p"`
	Density bool     `json:"density"`
	KDE     bool     `json:"kde"`
}

type KDECurve struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

type Histogram struct {
	Column  string    `json:"column"`
	Counts  []float64 `json:"counts"`
	Edges   []float64 `json:"edges"`
	Centers []float64 `json:"centers"`
	N       int       `json:"n"`
	KDE     *KDECurve `json:"kde,omitempty"`
}

// ComputeHistogram bins the column's non-missing values. The optional
// range filter is inclusive on both ends; log1p clamps negatives to zero
// before transforming.
func ComputeHistogram(frame *dataset.Frame, req HistogramRequest) (*Histogram, error) {
	values, err := numericValues(frame, req.Column)
	if err != nil {
		return nil, err
	}
	if req.Min != nil || req.Max != nil {
		filtered := values[:0]
		for _, v := range values {
			if req.Min != nil && v < *req.Min {
				continue
			}
			if req.Max != nil && v > *req.Max {
				continue
			}
			filtered = append(filtered, v)
		}
		values = filtered
	}
	if req.Log1p {
		for i, v := range values {
			if v < 0 {
				v = 0
			}
			values[i] = math.Log1p(v)
		}
	}
	if len(values) == 0 {
		return nil, apperr.New(apperr.KindEmptyDataset, "column %q has no values in the requested range", req.Column)
	}

	bins := req.Bins
	if bins == 0 {
		bins = autoBins(len(values))
	}
	if bins < minBins || bins > maxBins {
		return nil, apperr.New(apperr.KindInvalidRequest, "bins must be between %d and %d, got %d", minBins, maxBins, bins)
	}

	lo, hi := values[0], values[0]
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}

	edges := make([]float64, bins+1)
	width := (hi - lo) / float64(bins)
	for i := range edges {
		edges[i] = lo + float64(i)*width
	}
	edges[bins] = hi

	counts := make([]float64, bins)
	for _, v := range values {
		idx := int((v - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		counts[idx]++
	}
	if req.Density {
		total := float64(len(values)) * width
		for i := range counts {
			counts[i] /= total
		}
	}

	centers := make([]float64, bins)
	for i := range centers {
		centers[i] = (edges[i] + edges[i+1]) / 2
	}

	hist := &Histogram{
		Column:  req.Column,
		Counts:  counts,
		Edges:   edges,
		Centers: centers,
		N:       len(values),
	}
	if req.KDE {
		hist.KDE = gaussianKDE(values, edges[0], edges[bins])
	}
	return hist, nil
}

func autoBins(n int) int {
	bins := int(math.Sqrt(float64(n)))
	if bins < 10 {
		bins = 10
	}
	if bins > 40 {
		bins = 40
	}
	return bins
}

// gaussianKDE evaluates a Gaussian kernel density estimate on a uniform
// grid over [lo, hi], with Silverman's rule-of-thumb bandwidth. A sample
// std of zero (or non-finite) falls back to a bandwidth of 1.
func gaussianKDE(values []float64, lo, hi float64) *KDECurve {
	n := float64(len(values))
	sd := stat.StdDev(values, nil)
	bw := 1.06 * sd * math.Pow(n, -0.2)
	if sd == 0 || math.IsNaN(bw) || math.IsInf(bw, 0) || bw <= 0 {
		bw = 1.0
	}

	xs := make([]float64, kdeGridSize)
	ys := make([]float64, kdeGridSize)
	step := (hi - lo) / float64(kdeGridSize-1)
	norm := 1 / (n * bw * math.Sqrt(2*math.Pi))
	for i := range xs {
		x := lo + float64(i)*step
		xs[i] = x
		sum := 0.0
		for _, v := range values {
			z := (x - v) / bw
			sum += math.Exp(-0.5 * z * z)
		}
		ys[i] = sum * norm
	}
	return &KDECurve{X: xs, Y: ys}
}

// BoxStats is a five-number summary for one group of a numeric column.
type BoxStats struct {
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
	Count  int     `json:"count"`
}

type BoxSummary struct {
	Column  string              `json:"column"`
	GroupBy string              `json:"group_by,omitempty"`
	Groups  map[string]BoxStats `json:"groups"`
}

// ComputeBox summarizes the column per level of groupBy, or as a single
// "overall" group when groupBy is empty.
func ComputeBox(frame *dataset.Frame, column, groupBy string) (*BoxSummary, error) {
	col, ok := frame.Column(column)
	if !ok {
		return nil, apperr.New(apperr.KindColumnNotFound, "column %q not found", column)
	}
	if !col.IsNumeric() {
		return nil, apperr.New(apperr.KindNonNumericColumn, "column %q is not numeric", column)
	}

	grouped := map[string][]float64{}
	if groupBy == "" {
		grouped["overall"] = col.NonMissingFloats()
	} else {
		groups, ok := frame.Column(groupBy)
		if !ok {
			return nil, apperr.New(apperr.KindColumnNotFound, "column %q not found", groupBy)
		}
		for i := 0; i < frame.Rows(); i++ {
			v := col.Value(i)
			if v == nil {
				continue
			}
			f, ok := v.(float64)
			if !ok {
				continue
			}
			key := groupLabel(groups, i)
			grouped[key] = append(grouped[key], f)
		}
	}

	summary := &BoxSummary{Column: column, GroupBy: groupBy, Groups: map[string]BoxStats{}}
	for key, values := range grouped {
		if len(values) == 0 {
			continue
		}
		sort.Float64s(values)
		summary.Groups[key] = BoxStats{
			Min:    values[0],
			Q1:     stat.Quantile(0.25, stat.Empirical, values, nil),
			Median: stat.Quantile(0.5, stat.Empirical, values, nil),
			Q3:     stat.Quantile(0.75, stat.Empirical, values, nil),
			Max:    values[len(values)-1],
			Count:  len(values),
		}
	}
	if len(summary.Groups) == 0 {
		return nil, apperr.New(apperr.KindEmptyDataset, "column %q has no values to summarize", column)
	}
	return summary, nil
}

func groupLabel(col *dataset.Column, row int) string {
	cell := col.Cell(row)
	if cell == "" {
		return "missing"
	}
	return cell
}

type Correlation struct {
	Columns []string    `json:"columns"`
	Matrix  [][]float64 `json:"matrix"`
}

// ComputeCorrelation builds a Pearson correlation matrix over the given
// columns, or over every numeric column when none are named. Undefined
// correlations (constant columns) come back as 0.
func ComputeCorrelation(frame *dataset.Frame, columns []string) (*Correlation, error) {
	if len(columns) == 0 {
		columns = frame.NumericColumnNames()
		if len(columns) == 0 {
			return nil, apperr.New(apperr.KindNoNumericColumns, "dataset has no numeric columns")
		}
	}
	series := make([][]float64, len(columns))
	for i, name := range columns {
		col, ok := frame.Column(name)
		if !ok {
			return nil, apperr.New(apperr.KindColumnNotFound, "column %q not found", name)
		}
		if !col.IsNumeric() {
			return nil, apperr.New(apperr.KindNonNumericColumn, "column %q is not numeric", name)
		}
		values := make([]float64, frame.Rows())
		mean := stat.Mean(col.NonMissingFloats(), nil)
		if math.IsNaN(mean) {
			mean = 0
		}
		for r := 0; r < frame.Rows(); r++ {
			if col.Missing[r] || math.IsNaN(col.Floats[r]) || math.IsInf(col.Floats[r], 0) {
				values[r] = mean
			} else {
				values[r] = col.Floats[r]
			}
		}
		series[i] = values
	}

	matrix := make([][]float64, len(columns))
	for i := range matrix {
		matrix[i] = make([]float64, len(columns))
		for j := range matrix[i] {
			if i == j {
				matrix[i][j] = 1
				continue
			}
			r := stat.Correlation(series[i], series[j], nil)
			if math.IsNaN(r) || math.IsInf(r, 0) {
				r = 0
			}
			matrix[i][j] = r
		}
	}
	return &Correlation{Columns: columns, Matrix: matrix}, nil
}

func numericValues(frame *dataset.Frame, name string) ([]float64, error) {
	col, ok := frame.Column(name)
	if !ok {
		return nil, apperr.New(apperr.KindColumnNotFound, "column %q not found", name)
	}
	if !col.IsNumeric() {
		return nil, apperr.New(apperr.KindNonNumericColumn, "column %q is not numeric", name)
	}
	return col.NonMissingFloats(), nil
}
