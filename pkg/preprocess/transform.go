package preprocess

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/tabularml/workbench/pkg/common/apperr"
	"github.com/tabularml/workbench/pkg/dataset"
)

type ImputeStrategy string

const (
	ImputeMean         ImputeStrategy = "mean"
	ImputeMedian       ImputeStrategy = "median"
	ImputeMostFrequent ImputeStrategy = "most_frequent"
	ImputeConstant     ImputeStrategy = "constant"
)

type ScaleMethod string

const (
	ScaleNone     ScaleMethod = "none"
	ScaleStandard ScaleMethod = "standard"
	ScaleMinMax   ScaleMethod = "minmax"
)

type ImputeConfig struct {
	Numeric     ImputeStrategy `json:"numeric"`
	Categorical ImputeStrategy `json:"categorical"`
	FillValue   string         `json:"fill_value"`
}

type ScaleConfig struct {
	Method ScaleMethod `json:"method"`
}

type EncodeConfig struct {
	// OneHot nil means enabled: categorical columns are expanded unless
	// the caller turns encoding off explicitly.
	OneHot    *bool `json:"one_hot"`
	DropFirst bool  `json:"drop_first"`
}

func (c EncodeConfig) oneHotEnabled() bool {
	return c.OneHot == nil || *c.OneHot
}

type numericState struct {
	name        string
	imputeValue float64
	offset      float64
	scale       float64
}

type categoricalState struct {
	name        string
	imputeValue string
	categories  []string
	encoded     bool
}

// ColumnTransform is the fitted column-wise impute/scale/encode pipeline.
// It is fit on the training split only and then applied to any row subset
// of a frame with the same columns.
type ColumnTransform struct {
	NumericColumns     []string
	CategoricalColumns []string
	Impute             ImputeConfig
	Scale              ScaleConfig
	Encode             EncodeConfig

	numeric      []numericState
	categorical  []categoricalState
	featureNames []string
	fitted       bool
}

func NewColumnTransform(numericCols, categoricalCols []string, impute ImputeConfig, scale ScaleConfig, encode EncodeConfig) *ColumnTransform {
	return &ColumnTransform{
		NumericColumns:     numericCols,
		CategoricalColumns: categoricalCols,
		Impute:             impute,
		Scale:              scale,
		Encode:             encode,
	}
}

// Clone returns an unfitted transform with the same configuration.
func (t *ColumnTransform) Clone() *ColumnTransform {
	return NewColumnTransform(
		append([]string(nil), t.NumericColumns...),
		append([]string(nil), t.CategoricalColumns...),
		t.Impute, t.Scale, t.Encode,
	)
}

// Fit learns imputation values, scaling parameters and categorical levels
// from the given rows of the frame.
func (t *ColumnTransform) Fit(frame *dataset.Frame, rows []int) error {
	t.numeric = t.numeric[:0]
	t.categorical = t.categorical[:0]
	t.featureNames = t.featureNames[:0]

	for _, name := range t.NumericColumns {
		col, ok := frame.Column(name)
		if !ok {
			return apperr.New(apperr.KindColumnNotFound, "column %q does not exist", name)
		}
		state := numericState{name: name, scale: 1}
		values := presentFloats(col, rows)
		state.imputeValue = imputeNumeric(values, t.Impute.Numeric)

		imputed := make([]float64, len(rows))
		for i, r := range rows {
			if col.Missing[r] {
				imputed[i] = state.imputeValue
			} else {
				imputed[i] = col.Floats[r]
			}
		}
		switch t.Scale.Method {
		case ScaleStandard:
			mean := stat.Mean(imputed, nil)
			std := stat.PopStdDev(imputed, nil)
			if std == 0 || math.IsNaN(std) {
				std = 1
			}
			state.offset = mean
			state.scale = std
		case ScaleMinMax:
			min, max := imputed[0], imputed[0]
			for _, v := range imputed {
				if v < min {
					min = v
				}
				if v > max {
					max = v
				}
			}
			span := max - min
			if span == 0 {
				span = 1
			}
			state.offset = min
			state.scale = span
		}
		t.numeric = append(t.numeric, state)
		t.featureNames = append(t.featureNames, name)
	}

	for _, name := range t.CategoricalColumns {
		col, ok := frame.Column(name)
		if !ok {
			return apperr.New(apperr.KindColumnNotFound, "column %q does not exist", name)
		}
		state := categoricalState{name: name, encoded: t.Encode.oneHotEnabled()}
		state.imputeValue = imputeCategorical(col, rows, t.Impute.Categorical, t.Impute.FillValue)

		levels := map[string]bool{}
		for _, r := range rows {
			if col.Missing[r] {
				levels[state.imputeValue] = true
			} else {
				levels[col.Cell(r)] = true
			}
		}
		state.categories = make([]string, 0, len(levels))
		for level := range levels {
			state.categories = append(state.categories, level)
		}
		sort.Strings(state.categories)

		if state.encoded {
			start := 0
			if t.Encode.DropFirst && len(state.categories) > 1 {
				start = 1
			}
			for _, category := range state.categories[start:] {
				t.featureNames = append(t.featureNames, fmt.Sprintf("%s_%s", name, category))
			}
		}
		t.categorical = append(t.categorical, state)
	}

	t.fitted = true
	return nil
}

// Transform maps the given rows to the fitted feature space. Unknown
// categorical levels encode to all zeros.
func (t *ColumnTransform) Transform(frame *dataset.Frame, rows []int) ([][]float64, error) {
	if !t.fitted {
		return nil, apperr.New(apperr.KindInternal, "column transform is not fitted")
	}
	width := len(t.featureNames)
	out := make([][]float64, len(rows))
	for i, r := range rows {
		vector := make([]float64, 0, width)
		for _, state := range t.numeric {
			col, ok := frame.Column(state.name)
			if !ok || !col.IsNumeric() {
				return nil, apperr.New(apperr.KindColumnNotFound, "numeric column %q missing from frame", state.name)
			}
			v := state.imputeValue
			if !col.Missing[r] {
				v = col.Floats[r]
			}
			switch t.Scale.Method {
			case ScaleStandard:
				v = (v - state.offset) / state.scale
			case ScaleMinMax:
				v = (v - state.offset) / state.scale
			}
			vector = append(vector, v)
		}
		for _, state := range t.categorical {
			if !state.encoded {
				continue
			}
			col, ok := frame.Column(state.name)
			if !ok {
				return nil, apperr.New(apperr.KindColumnNotFound, "categorical column %q missing from frame", state.name)
			}
			value := state.imputeValue
			if !col.Missing[r] {
				value = col.Cell(r)
			}
			start := 0
			if t.Encode.DropFirst && len(state.categories) > 1 {
				start = 1
			}
			for _, category := range state.categories[start:] {
				if value == category {
					vector = append(vector, 1)
				} else {
					vector = append(vector, 0)
				}
			}
		}
		out[i] = vector
	}
	return out, nil
}

// FeatureNames returns the resolved model-input feature names after
// categorical expansion.
func (t *ColumnTransform) FeatureNames() []string {
	return append([]string(nil), t.featureNames...)
}

func presentFloats(col *dataset.Column, rows []int) []float64 {
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		if !col.Missing[r] {
			out = append(out, col.Floats[r])
		}
	}
	return out
}

func imputeNumeric(values []float64, strategy ImputeStrategy) float64 {
	if len(values) == 0 {
		return 0
	}
	switch strategy {
	case ImputeMedian:
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		mid := len(sorted) / 2
		if len(sorted)%2 == 0 {
			return (sorted[mid-1] + sorted[mid]) / 2
		}
		return sorted[mid]
	case ImputeMostFrequent:
		counts := map[float64]int{}
		best, bestCount := values[0], 0
		for _, v := range values {
			counts[v]++
			if counts[v] > bestCount || (counts[v] == bestCount && v < best) {
				best, bestCount = v, counts[v]
			}
		}
		return best
	default: // mean
		return stat.Mean(values, nil)
	}
}

func imputeCategorical(col *dataset.Column, rows []int, strategy ImputeStrategy, fillValue string) string {
	if strategy == ImputeConstant {
		if fillValue == "" {
			return "missing"
		}
		return fillValue
	}
	counts := map[string]int{}
	best, bestCount := "missing", 0
	for _, r := range rows {
		if col.Missing[r] {
			continue
		}
		v := col.Cell(r)
		counts[v]++
		if counts[v] > bestCount || (counts[v] == bestCount && v < best) {
			best, bestCount = v, counts[v]
		}
	}
	return best
}
