package train

import (
	"github.com/tabularml/workbench/pkg/common/apperr"
	"github.com/tabularml/workbench/pkg/ml"
	"github.com/tabularml/workbench/pkg/preprocess"
)

const (
	AlgorithmAuto             = "auto"
	AlgorithmLinearModel      = "linear_model"
	AlgorithmRandomForest     = "random_forest"
	AlgorithmGradientBoosting = "gradient_boosting"
)

// Entry describes one (algorithm, task) combination: how to build the
// estimator, whether a feature-space scaler should be refit inside the
// training pipeline, the display label and the hyperparameter schema.
type Entry struct {
	Algorithm  string
	Task       preprocess.Task
	Label      string
	UsesScaler bool
	Schema     Schema
	construct  func(p Params) ml.Estimator
}

// Lookup resolves the registry entry for an algorithm and task. The auto
// algorithm resolves to linear_model.
func Lookup(algorithm string, task preprocess.Task) (*Entry, error) {
	if algorithm == "" || algorithm == AlgorithmAuto {
		algorithm = AlgorithmLinearModel
	}
	classification := task == preprocess.TaskClassification
	switch algorithm {
	case AlgorithmLinearModel:
		if classification {
			return &Entry{
				Algorithm:  algorithm,
				Task:       task,
				Label:      "Logistic Regression",
				UsesScaler: true,
				Schema: Schema{
					"max_iter":      {Type: ParamInt, Default: 200, Min: 50, Max: 2000, Step: 50},
					"learning_rate": {Type: ParamFloat, Default: 0.1, Min: 0.001, Max: 1, Step: 0.001},
				},
				construct: func(p Params) ml.Estimator {
					return ml.NewLogisticRegression(p.Int("max_iter", 200), p.Float("learning_rate", 0.1))
				},
			}, nil
		}
		return &Entry{
			Algorithm:  algorithm,
			Task:       task,
			Label:      "Ridge Regression",
			UsesScaler: true,
			Schema: Schema{
				"alpha": {Type: ParamFloat, Default: 1.0, Min: 0, Max: 100, Step: 0.1},
			},
			construct: func(p Params) ml.Estimator {
				return ml.NewRidgeRegression(p.Float("alpha", 1.0))
			},
		}, nil
	case AlgorithmRandomForest:
		entry := &Entry{
			Algorithm: algorithm,
			Task:      task,
			Label:     "Random Forest",
			Schema: Schema{
				"n_estimators":      {Type: ParamInt, Default: 100, Min: 10, Max: 500, Step: 10},
				"max_depth":         {Type: ParamInt, Default: nil, Min: 1, Max: 50, Step: 1, Nullable: true},
				"min_samples_split": {Type: ParamInt, Default: 2, Min: 2, Max: 20, Step: 1},
				"random_state":      {Type: ParamInt, Default: 42, Min: 0, Max: 1 << 30, Step: 1},
			},
		}
		entry.construct = func(p Params) ml.Estimator {
			return ml.NewRandomForest(
				p.Int("n_estimators", 100),
				p.Int("max_depth", 0),
				p.Int("min_samples_split", 2),
				classification,
				int64(p.Int("random_state", 42)),
			)
		}
		return entry, nil
	case AlgorithmGradientBoosting:
		entry := &Entry{
			Algorithm: algorithm,
			Task:      task,
			Label:     "Gradient Boosting",
			Schema: Schema{
				"n_estimators":  {Type: ParamInt, Default: 100, Min: 10, Max: 500, Step: 10},
				"learning_rate": {Type: ParamFloat, Default: 0.1, Min: 0.01, Max: 1, Step: 0.01},
				"max_depth":     {Type: ParamInt, Default: 3, Min: 1, Max: 10, Step: 1},
				"random_state":  {Type: ParamInt, Default: 42, Min: 0, Max: 1 << 30, Step: 1},
			},
		}
		entry.construct = func(p Params) ml.Estimator {
			return ml.NewGradientBoosting(
				p.Int("n_estimators", 100),
				p.Float("learning_rate", 0.1),
				p.Int("max_depth", 3),
				classification,
				int64(p.Int("random_state", 42)),
			)
		}
		return entry, nil
	}
	return nil, apperr.New(apperr.KindInvalidRequest, "unsupported algorithm %q", algorithm)
}

// Algorithms lists the registry for a task: algorithm id, label and schema,
// used by callers to render hyperparameter forms.
func Algorithms(task preprocess.Task) []map[string]interface{} {
	ids := []string{AlgorithmLinearModel, AlgorithmRandomForest, AlgorithmGradientBoosting}
	out := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		entry, err := Lookup(id, task)
		if err != nil {
			continue
		}
		out = append(out, map[string]interface{}{
			"algorithm":   entry.Algorithm,
			"label":       entry.Label,
			"uses_scaler": entry.UsesScaler,
			"params":      entry.Schema,
		})
	}
	return out
}
