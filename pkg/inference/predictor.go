// Package inference serves single-row and batch predictions against a
// completed training run, with strict feature presence and type checking.
package inference

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tabularml/workbench/pkg/common/apperr"
	"github.com/tabularml/workbench/pkg/dataset"
	"github.com/tabularml/workbench/pkg/ml"
	"github.com/tabularml/workbench/pkg/preprocess"
	"github.com/tabularml/workbench/pkg/train"
)

const previewRows = 5

// SingleResult is the outcome of a one-row prediction.
type SingleResult struct {
	RunID         string             `json:"run_id"`
	Prediction    interface{}        `json:"prediction"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
	Confidence    *float64           `json:"confidence,omitempty"`
}

// BatchResult is the outcome of a CSV batch prediction. CSV holds the full
// result serialized for a later download call.
type BatchResult struct {
	RunID   string                   `json:"run_id"`
	Columns []string                 `json:"columns"`
	Preview []map[string]interface{} `json:"preview"`
	Rows    int                      `json:"rows"`
	CSV     []byte                   `json:"-"`
}

// PredictSingle validates the feature map against the run's feature
// columns, applies the run's fitted scaler and estimator, and reports
// per-class probabilities when the model exposes them.
func PredictSingle(run *train.Run, features map[string]interface{}) (*SingleResult, error) {
	if run == nil {
		return nil, apperr.New(apperr.KindModelNotReady, "no trained model for this session")
	}
	row := make([]float64, len(run.FeatureNames))
	for j, name := range run.FeatureNames {
		raw, ok := features[name]
		if !ok {
			return nil, apperr.New(apperr.KindInvalidFeatureValue, "feature %q is required", name)
		}
		v, err := coerceFeature(raw)
		if err != nil {
			return nil, apperr.New(apperr.KindInvalidFeatureValue, "feature %q: %v", name, err)
		}
		row[j] = v
	}
	if run.Scaler != nil {
		row = run.Scaler.ApplyRow(row)
	}

	prediction := run.Model.Predict([][]float64{row})[0]
	result := &SingleResult{RunID: run.ID}
	if run.Task == preprocess.TaskClassification {
		result.Prediction = classLabel(run.Classes, int(prediction))
		if prob, ok := run.Model.(ml.Probabilistic); ok {
			proba := prob.PredictProba([][]float64{row})[0]
			result.Probabilities = make(map[string]float64, len(proba))
			best := 0.0
			for c, p := range proba {
				result.Probabilities[fmt.Sprint(classLabel(run.Classes, c))] = p
				if p > best {
					best = p
				}
			}
			result.Confidence = &best
		}
	} else {
		result.Prediction = prediction
	}
	return result, nil
}

// PredictBatch parses the CSV, requires every feature column to be present
// and numeric, and appends a prediction column named after the run's
// target (plus a confidence column when probabilities are available).
func PredictBatch(run *train.Run, csvBytes []byte, limits dataset.Limits) (*BatchResult, error) {
	if run == nil {
		return nil, apperr.New(apperr.KindModelNotReady, "no trained model for this session")
	}
	frame, err := dataset.ParseCSV(csvBytes, limits)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, name := range run.FeatureNames {
		if !frame.HasColumn(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, apperr.WithDetails(apperr.KindMissingFeatureColumns,
			map[string]interface{}{"columns": missing},
			"missing feature columns: %s", strings.Join(missing, ", "))
	}

	X := make([][]float64, frame.Rows())
	for i := range X {
		X[i] = make([]float64, len(run.FeatureNames))
	}
	for j, name := range run.FeatureNames {
		col, _ := frame.Column(name)
		for i := 0; i < frame.Rows(); i++ {
			v, err := coerceCell(col, i)
			if err != nil {
				return nil, apperr.New(apperr.KindInvalidBatchData, "column %q row %d: %v", name, i, err)
			}
			X[i][j] = v
		}
	}
	if run.Scaler != nil {
		X = run.Scaler.Apply(X)
	}

	predictions := run.Model.Predict(X)
	result := frame
	if run.Task == preprocess.TaskClassification {
		labels := dataset.Column{
			Name:    run.Target,
			Kind:    dataset.KindString,
			Strings: make([]string, len(predictions)),
			Missing: make([]bool, len(predictions)),
		}
		for i, p := range predictions {
			labels.Strings[i] = fmt.Sprint(classLabel(run.Classes, int(p)))
		}
		if result, err = result.WithColumn(labels); err != nil {
			return nil, err
		}
		if prob, ok := run.Model.(ml.Probabilistic); ok {
			proba := prob.PredictProba(X)
			confidence := dataset.Column{
				Name:    "confidence",
				Kind:    dataset.KindNumeric,
				Floats:  make([]float64, len(proba)),
				Missing: make([]bool, len(proba)),
			}
			for i, row := range proba {
				best := 0.0
				for _, p := range row {
					if p > best {
						best = p
					}
				}
				confidence.Floats[i] = best
			}
			if result, err = result.WithColumn(confidence); err != nil {
				return nil, err
			}
		}
	} else {
		values := dataset.Column{
			Name:    run.Target,
			Kind:    dataset.KindNumeric,
			Floats:  predictions,
			Missing: make([]bool, len(predictions)),
		}
		if result, err = result.WithColumn(values); err != nil {
			return nil, err
		}
	}

	serialized, err := dataset.EncodeCSV(result)
	if err != nil {
		return nil, err
	}
	return &BatchResult{
		RunID:   run.ID,
		Columns: result.ColumnNames(),
		Preview: result.Records(previewRows),
		Rows:    result.Rows(),
		CSV:     serialized,
	}, nil
}

func coerceFeature(raw interface{}) (float64, error) {
	var v float64
	switch value := raw.(type) {
	case float64:
		v = value
	case int:
		v = float64(value)
	case int64:
		v = float64(value)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not numeric", value)
		}
		v = parsed
	case bool:
		if value {
			v = 1
		}
	default:
		return 0, fmt.Errorf("value of type %T is not numeric", raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("value must be finite")
	}
	return v, nil
}

func coerceCell(col *dataset.Column, row int) (float64, error) {
	if col.Missing[row] {
		return 0, fmt.Errorf("value is missing")
	}
	if col.IsNumeric() {
		v := col.Floats[row]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("value must be finite")
		}
		return v, nil
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(col.Strings[row]), 64)
	if err != nil {
		return 0, fmt.Errorf("value %q is not numeric", col.Strings[row])
	}
	return parsed, nil
}

func classLabel(classes []string, index int) interface{} {
	if index >= 0 && index < len(classes) {
		return classes[index]
	}
	return index
}
