// Package train maps (task, algorithm) pairs to estimator constructors with
// validated hyperparameter schemas, and turns a preprocessing artifact into
// a persisted training run with cross-validated metrics.
package train

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tabularml/workbench/pkg/common/apperr"
	"github.com/tabularml/workbench/pkg/common/logger"
	"github.com/tabularml/workbench/pkg/ml"
	"github.com/tabularml/workbench/pkg/preprocess"
)

// FeatureScaler standardises the model-input feature matrix. It is refit
// inside the training pipeline for estimators flagged UsesScaler and reused
// verbatim at inference time.
type FeatureScaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

func fitFeatureScaler(X [][]float64) *FeatureScaler {
	if len(X) == 0 || len(X[0]) == 0 {
		return &FeatureScaler{}
	}
	p := len(X[0])
	scaler := &FeatureScaler{Mean: make([]float64, p), Std: make([]float64, p)}
	for _, row := range X {
		for j, v := range row {
			scaler.Mean[j] += v
		}
	}
	n := float64(len(X))
	for j := range scaler.Mean {
		scaler.Mean[j] /= n
	}
	for _, row := range X {
		for j, v := range row {
			d := v - scaler.Mean[j]
			scaler.Std[j] += d * d
		}
	}
	for j := range scaler.Std {
		scaler.Std[j] = math.Sqrt(scaler.Std[j] / n)
		if scaler.Std[j] == 0 {
			scaler.Std[j] = 1
		}
	}
	return scaler
}

// Apply returns a scaled copy of X.
func (s *FeatureScaler) Apply(X [][]float64) [][]float64 {
	if len(s.Mean) == 0 {
		return X
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		scaled := make([]float64, len(row))
		for j, v := range row {
			if j < len(s.Mean) {
				scaled[j] = (v - s.Mean[j]) / s.Std[j]
			} else {
				scaled[j] = v
			}
		}
		out[i] = scaled
	}
	return out
}

// ApplyRow scales a single feature vector.
func (s *FeatureScaler) ApplyRow(row []float64) []float64 {
	return s.Apply([][]float64{row})[0]
}

type ROCCurve struct {
	FPR []float64 `json:"fpr"`
	TPR []float64 `json:"tpr"`
}

type PRCurve struct {
	Precision []float64 `json:"precision"`
	Recall    []float64 `json:"recall"`
}

type Curves struct {
	ROC *ROCCurve `json:"roc,omitempty"`
	PR  *PRCurve  `json:"pr,omitempty"`
}

// EvalRow is one line of the row-level evaluation table over the test
// split.
type EvalRow struct {
	Row        int         `json:"row"`
	Actual     interface{} `json:"actual"`
	Predicted  interface{} `json:"predicted"`
	Residual   float64     `json:"residual"`
	Confidence *float64    `json:"confidence,omitempty"`
}

// Run is one completed training attempt. Runs are immutable after creation
// and addressable by their id independently of the owning session.
type Run struct {
	ID           string
	Algorithm    string
	Label        string
	Task         preprocess.Task
	Target       string
	FeatureNames []string
	Classes      []string
	Metrics      map[string]float64
	Curves       *Curves
	Importances  map[string]float64
	EvalTable    []EvalRow
	Scaler       *FeatureScaler
	Model        ml.Estimator
	CreatedAt    time.Time
}

// Request carries a training call's inputs.
type Request struct {
	Algorithm       string                 `json:"algorithm"`
	Hyperparameters map[string]interface{} `json:"hyperparameters"`
	CVFolds         int                    `json:"cv"`
}

// Train validates hyperparameters, cross-validates on the training split,
// fits on the full training split and evaluates on the held-out test split.
func Train(artifact *preprocess.Artifact, req Request) (*Run, error) {
	if artifact == nil {
		return nil, apperr.New(apperr.KindPreprocessingRequired, "preprocessing must be run before training")
	}
	entry, err := Lookup(req.Algorithm, artifact.Task)
	if err != nil {
		return nil, err
	}
	params, err := entry.Schema.Resolve(req.Hyperparameters)
	if err != nil {
		return nil, err
	}

	xTrain, xTest := artifact.XTrain, artifact.XTest
	var scaler *FeatureScaler
	if entry.UsesScaler {
		scaler = fitFeatureScaler(xTrain)
		xTrain = scaler.Apply(xTrain)
		xTest = scaler.Apply(xTest)
	}

	cvScore := crossValidate(entry, params, xTrain, artifact.YTrain, req.CVFolds, artifact.Task)

	model := entry.construct(params)
	if err := model.Fit(xTrain, artifact.YTrain); err != nil {
		return nil, apperr.Wrap(err)
	}
	predictions := model.Predict(xTest)

	metrics := map[string]float64{}
	var curves *Curves
	classification := artifact.Task == preprocess.TaskClassification
	if classification {
		metrics["accuracy"] = accuracy(artifact.YTest, predictions)
		metrics["f1"] = weightedF1(artifact.YTest, predictions, len(artifact.Classes))
		metrics["cv_accuracy"] = cvScore
		curves = classificationCurves(model, xTest, artifact.YTest, len(artifact.Classes))
	} else {
		metrics["rmse"] = rmse(artifact.YTest, predictions)
		metrics["mae"] = mae(artifact.YTest, predictions)
		metrics["r2"] = r2(artifact.YTest, predictions)
		metrics["cv_r2"] = cvScore
	}

	run := &Run{
		ID:           strings.ReplaceAll(uuid.New().String(), "-", ""),
		Algorithm:    entry.Algorithm,
		Label:        entry.Label,
		Task:         artifact.Task,
		Target:       artifact.Target,
		FeatureNames: artifact.FeatureNames,
		Classes:      artifact.Classes,
		Metrics:      metrics,
		Curves:       curves,
		Importances:  importancesFor(model, artifact.FeatureNames),
		EvalTable:    evalTable(artifact, model, xTest, predictions),
		Scaler:       scaler,
		Model:        model,
		CreatedAt:    time.Now().UTC(),
	}

	logger.Log.WithFields(map[string]interface{}{
		"run_id":    run.ID,
		"algorithm": run.Algorithm,
		"task":      run.Task,
		"target":    run.Target,
	}).Info("Training run completed")
	return run, nil
}

// crossValidate reports the mean fold score (accuracy or r2) of a fresh
// estimator per fold. The score is purely informational: the final model
// is refit on the full training split afterwards.
func crossValidate(entry *Entry, params Params, X [][]float64, y []float64, folds int, task preprocess.Task) float64 {
	n := len(X)
	folds = clampFolds(folds, n)
	if n < 2 || folds < 2 {
		return 0
	}

	foldIndices := kFold(n, folds)
	var total float64
	scored := 0
	for _, testIdx := range foldIndices {
		if len(testIdx) == 0 || len(testIdx) == n {
			continue
		}
		inTest := make([]bool, n)
		for _, i := range testIdx {
			inTest[i] = true
		}
		var trainX, testX [][]float64
		var trainY, testY []float64
		for i := 0; i < n; i++ {
			if inTest[i] {
				testX = append(testX, X[i])
				testY = append(testY, y[i])
			} else {
				trainX = append(trainX, X[i])
				trainY = append(trainY, y[i])
			}
		}
		model := entry.construct(params)
		if err := model.Fit(trainX, trainY); err != nil {
			continue
		}
		predictions := model.Predict(testX)
		if task == preprocess.TaskClassification {
			total += accuracy(testY, predictions)
		} else {
			total += r2(testY, predictions)
		}
		scored++
	}
	if scored == 0 {
		return 0
	}
	return total / float64(scored)
}

// clampFolds bounds the requested fold count to [2, 10] and to the
// number of available rows.
func clampFolds(folds, n int) int {
	if folds < 2 {
		folds = 2
	}
	if folds > 10 {
		folds = 10
	}
	if folds > n {
		folds = n
	}
	return folds
}

// kFold assigns shuffled row indices to folds round-robin, seeded for
// reproducible CV scores.
func kFold(n, k int) [][]int {
	perm := deterministicPerm(n)
	folds := make([][]int, k)
	for i, idx := range perm {
		folds[i%k] = append(folds[i%k], idx)
	}
	return folds
}

func deterministicPerm(n int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	// xorshift walk keeps fold assignment stable across processes without
	// pulling global rand state into the trainer.
	state := uint64(0x9E3779B97F4A7C15)
	for i := n - 1; i > 0; i-- {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		j := int(state % uint64(i+1))
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}

func classificationCurves(model ml.Estimator, xTest [][]float64, yTest []float64, nClasses int) *Curves {
	prob, ok := model.(ml.Probabilistic)
	if !ok || nClasses < 2 || len(xTest) == 0 {
		return nil
	}
	proba := prob.PredictProba(xTest)
	scores := make([]float64, len(proba))
	for i, row := range proba {
		if len(row) > 1 {
			scores[i] = row[1]
		}
	}
	const posClass = 1
	curves := &Curves{}
	if fpr, tpr := rocCurve(yTest, scores, posClass); fpr != nil {
		curves.ROC = &ROCCurve{FPR: fpr, TPR: tpr}
	}
	if precision, recall := prCurve(yTest, scores, posClass); precision != nil {
		curves.PR = &PRCurve{Precision: precision, Recall: recall}
	}
	if curves.ROC == nil && curves.PR == nil {
		return nil
	}
	return curves
}

// importancesFor reads feature importances from the estimator when it
// exposes them, zeros otherwise.
func importancesFor(model ml.Estimator, featureNames []string) map[string]float64 {
	out := make(map[string]float64, len(featureNames))
	var values []float64
	if explainable, ok := model.(ml.Explainable); ok {
		values = explainable.FeatureImportances()
	}
	for j, name := range featureNames {
		if j < len(values) {
			out[name] = values[j]
		} else {
			out[name] = 0
		}
	}
	return out
}

func evalTable(artifact *preprocess.Artifact, model ml.Estimator, xTest [][]float64, predictions []float64) []EvalRow {
	var proba [][]float64
	if prob, ok := model.(ml.Probabilistic); ok && artifact.Task == preprocess.TaskClassification {
		proba = prob.PredictProba(xTest)
	}
	rows := make([]EvalRow, len(predictions))
	for i := range predictions {
		row := EvalRow{Row: testRowID(artifact, i)}
		if artifact.Task == preprocess.TaskClassification {
			actual := int(artifact.YTest[i])
			predicted := int(predictions[i])
			row.Actual = classLabel(artifact.Classes, actual)
			row.Predicted = classLabel(artifact.Classes, predicted)
			if actual != predicted {
				row.Residual = 1
			}
			if proba != nil && predicted < len(proba[i]) {
				confidence := proba[i][predicted]
				row.Confidence = &confidence
			}
		} else {
			row.Actual = artifact.YTest[i]
			row.Predicted = predictions[i]
			row.Residual = artifact.YTest[i] - predictions[i]
		}
		rows[i] = row
	}
	return rows
}

func testRowID(artifact *preprocess.Artifact, i int) int {
	if i < len(artifact.TestIndices) {
		return artifact.TestIndices[i]
	}
	return i
}

func classLabel(classes []string, index int) interface{} {
	if index >= 0 && index < len(classes) {
		return classes[index]
	}
	return index
}
