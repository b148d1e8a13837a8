// Package outliers computes per-row inlier masks with a selectable
// statistical method and builds the remediated frames a later apply step
// swaps into the session.
package outliers

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/tabularml/workbench/pkg/common/apperr"
	"github.com/tabularml/workbench/pkg/dataset"
	"github.com/tabularml/workbench/pkg/ml"
)

const (
	MethodIQR             = "iqr"
	MethodZScore          = "zscore"
	MethodIsolationForest = "iforest"

	iforestSeed     = 42
	sampleIndexCap  = 50
	defaultIQRK     = 1.5
	defaultZ        = 3.0
	defaultContamin = 0.05
)

// DetectRequest selects the method, an optional explicit column subset and
// the method's threshold: the IQR multiplier k, the z-score cutoff, or the
// isolation-forest contamination fraction.
type DetectRequest struct {
	Method    string   `json:"method"`
	Columns   []string `json:"columns,omitempty"`
	Threshold float64  `json:"threshold"`
}

// Report is the ephemeral result of a detection; the mask itself is cached
// on the session for the later apply step.
type Report struct {
	Method        string   `json:"method"`
	Threshold     float64  `json:"threshold"`
	Columns       []string `json:"columns"`
	TotalRows     int      `json:"total_rows"`
	OutlierRows   int      `json:"outlier_rows"`
	KeptRows      int      `json:"kept_rows"`
	SampleIndices []int    `json:"sample_indices"`
	Mask          []bool   `json:"-"`
}

// Detect computes the inlier mask over the inspected numeric columns.
func Detect(frame *dataset.Frame, req DetectRequest) (*Report, error) {
	threshold := req.Threshold
	if threshold == 0 {
		threshold = defaultThreshold(req.Method)
	}
	if threshold <= 0 || math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return nil, apperr.New(apperr.KindInvalidThreshold, "threshold must be a positive finite number")
	}
	if req.Method == MethodIsolationForest && threshold >= 0.5 {
		return nil, apperr.New(apperr.KindInvalidThreshold, "contamination must be in (0, 0.5)")
	}

	columns, err := inspectedColumns(frame, req.Columns)
	if err != nil {
		return nil, err
	}

	var mask []bool
	switch req.Method {
	case MethodIQR:
		mask = iqrMask(frame, columns, threshold)
	case MethodZScore:
		mask = zscoreMask(frame, columns, threshold)
	case MethodIsolationForest:
		mask, err = iforestMask(frame, columns, threshold)
		if err != nil {
			return nil, err
		}
	default:
		return nil, apperr.New(apperr.KindInvalidRequest, "unsupported outlier method %q", req.Method)
	}

	report := &Report{
		Method:    req.Method,
		Threshold: threshold,
		Columns:   columns,
		TotalRows: frame.Rows(),
		Mask:      mask,
	}
	for i, inlier := range mask {
		if inlier {
			report.KeptRows++
			continue
		}
		report.OutlierRows++
		if len(report.SampleIndices) < sampleIndexCap {
			report.SampleIndices = append(report.SampleIndices, i)
		}
	}
	if report.SampleIndices == nil {
		report.SampleIndices = []int{}
	}
	return report, nil
}

// Drop returns a new frame keeping only inlier rows. Dropping every row is
// refused so the session's dataset never becomes empty.
func Drop(frame *dataset.Frame, mask []bool) (*dataset.Frame, error) {
	if len(mask) != frame.Rows() {
		return nil, apperr.New(apperr.KindNoMaskComputed, "cached mask no longer matches the dataset")
	}
	kept := 0
	for _, inlier := range mask {
		if inlier {
			kept++
		}
	}
	if kept == 0 {
		return nil, apperr.New(apperr.KindEmptyDataset, "dropping outliers would leave zero rows")
	}
	return frame.Filter(mask), nil
}

// Winsorize clips the inspected numeric columns to their IQR bounds with
// multiplier k, leaving row count unchanged.
func Winsorize(frame *dataset.Frame, columns []string, k float64) (*dataset.Frame, error) {
	if k <= 0 || math.IsNaN(k) || math.IsInf(k, 0) {
		return nil, apperr.New(apperr.KindInvalidThreshold, "threshold must be a positive finite number")
	}
	result := frame
	for _, name := range columns {
		col, ok := result.Column(name)
		if !ok || !col.IsNumeric() {
			continue
		}
		values := col.NonMissingFloats()
		if len(values) == 0 {
			continue
		}
		lower, upper := iqrBounds(values, k)
		clipped := dataset.Column{
			Name:    col.Name,
			Kind:    dataset.KindNumeric,
			Floats:  make([]float64, col.Len()),
			Missing: append([]bool(nil), col.Missing...),
		}
		for i, v := range col.Floats {
			switch {
			case col.Missing[i]:
			case v < lower:
				v = lower
			case v > upper:
				v = upper
			}
			clipped.Floats[i] = v
		}
		next, err := result.WithColumn(clipped)
		if err != nil {
			return nil, err
		}
		result = next
	}
	return result, nil
}

func defaultThreshold(method string) float64 {
	switch method {
	case MethodZScore:
		return defaultZ
	case MethodIsolationForest:
		return defaultContamin
	default:
		return defaultIQRK
	}
}

func inspectedColumns(frame *dataset.Frame, requested []string) ([]string, error) {
	if len(requested) > 0 {
		for _, name := range requested {
			col, ok := frame.Column(name)
			if !ok {
				return nil, apperr.New(apperr.KindColumnNotFound, "column %q does not exist", name)
			}
			if !col.IsNumeric() {
				return nil, apperr.New(apperr.KindNonNumericColumn, "column %q is not numeric", name)
			}
		}
		return requested, nil
	}
	columns := frame.NumericColumnNames()
	if len(columns) == 0 {
		return nil, apperr.New(apperr.KindNoNumericColumns, "dataset does not contain numeric columns for outlier detection")
	}
	return columns, nil
}

// iqrMask marks a row inlier iff it is within [Q1-k*IQR, Q3+k*IQR] on every
// inspected column; missing values count as inlier for that column.
func iqrMask(frame *dataset.Frame, columns []string, k float64) []bool {
	mask := allTrue(frame.Rows())
	for _, name := range columns {
		col, _ := frame.Column(name)
		values := col.NonMissingFloats()
		if len(values) == 0 {
			continue
		}
		lower, upper := iqrBounds(values, k)
		for i, v := range col.Floats {
			if col.Missing[i] {
				continue
			}
			if v < lower || v > upper {
				mask[i] = false
			}
		}
	}
	return mask
}

// zscoreMask marks a row inlier iff |z| <= threshold on every inspected
// column; zero-variance columns contribute no constraint.
func zscoreMask(frame *dataset.Frame, columns []string, threshold float64) []bool {
	mask := allTrue(frame.Rows())
	for _, name := range columns {
		col, _ := frame.Column(name)
		values := col.NonMissingFloats()
		if len(values) == 0 {
			continue
		}
		mean := stat.Mean(values, nil)
		std := stat.PopStdDev(values, nil)
		if std == 0 || math.IsNaN(std) {
			continue
		}
		for i, v := range col.Floats {
			if col.Missing[i] {
				continue
			}
			if math.Abs((v-mean)/std) > threshold {
				mask[i] = false
			}
		}
	}
	return mask
}

// iforestMask runs an isolation forest over the mean-imputed numeric
// matrix with a deterministic seed.
func iforestMask(frame *dataset.Frame, columns []string, contamination float64) ([]bool, error) {
	X := make([][]float64, frame.Rows())
	for i := range X {
		X[i] = make([]float64, len(columns))
	}
	for j, name := range columns {
		col, _ := frame.Column(name)
		values := col.NonMissingFloats()
		var mean float64
		if len(values) > 0 {
			mean = stat.Mean(values, nil)
		}
		for i := 0; i < col.Len(); i++ {
			if col.Missing[i] {
				X[i][j] = mean
			} else {
				X[i][j] = col.Floats[i]
			}
		}
	}
	forest := ml.NewIsolationForest(contamination, iforestSeed)
	mask, err := forest.FitPredict(X)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return mask, nil
}

func iqrBounds(values []float64, k float64) (lower, upper float64) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	q1 := stat.Quantile(0.25, stat.Empirical, sorted, nil)
	q3 := stat.Quantile(0.75, stat.Empirical, sorted, nil)
	iqr := q3 - q1
	return q1 - k*iqr, q3 + k*iqr
}

func allTrue(n int) []bool {
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = true
	}
	return mask
}
