// Package ml implements the estimators consumed by the training registry:
// linear and logistic regression, CART trees, random forests, gradient
// boosting and isolation forests. Estimators expose optional capabilities
// (probabilities, importances) through separate interfaces so callers probe
// capability presence instead of reflecting on concrete types.
package ml

import "errors"

// Estimator is the minimal fit/predict contract. For classification, y and
// predictions hold class indices encoded as float64.
type Estimator interface {
	Fit(X [][]float64, y []float64) error
	Predict(X [][]float64) []float64
}

// Probabilistic is implemented by classifiers that expose per-class
// probabilities. Rows of PredictProba sum to 1 and are ordered by class
// index.
type Probabilistic interface {
	PredictProba(X [][]float64) [][]float64
	NumClasses() int
}

// Explainable is implemented by estimators that can report a per-feature
// importance or coefficient magnitude.
type Explainable interface {
	FeatureImportances() []float64
}

var (
	errEmptyTrainingSet = errors.New("ml: empty training set")
	errShapeMismatch    = errors.New("ml: X and y length mismatch")
	errNotFitted        = errors.New("ml: estimator is not fitted")
)

func checkTrainingSet(X [][]float64, y []float64) error {
	if len(X) == 0 || len(X[0]) == 0 {
		return errEmptyTrainingSet
	}
	if len(X) != len(y) {
		return errShapeMismatch
	}
	return nil
}

func classCount(y []float64) int {
	max := 0
	for _, v := range y {
		if int(v) > max {
			max = int(v)
		}
	}
	return max + 1
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
