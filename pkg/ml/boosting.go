package ml

import "math"

// GradientBoosting fits shallow regression trees to pseudo-residuals.
// Regression uses squared loss; classification uses logistic loss with one
// booster per class when more than two classes are present.
type GradientBoosting struct {
	NEstimators    int
	LearningRate   float64
	MaxDepth       int
	Classification bool
	Seed           int64

	nClasses  int
	nFeatures int
	baselines []float64
	boosters  [][]*DecisionTree
}

func NewGradientBoosting(nEstimators int, learningRate float64, maxDepth int, classification bool, seed int64) *GradientBoosting {
	if nEstimators <= 0 {
		nEstimators = 100
	}
	if learningRate <= 0 {
		learningRate = 0.1
	}
	if maxDepth <= 0 {
		maxDepth = 3
	}
	return &GradientBoosting{
		NEstimators:    nEstimators,
		LearningRate:   learningRate,
		MaxDepth:       maxDepth,
		Classification: classification,
		Seed:           seed,
	}
}

func (gb *GradientBoosting) Fit(X [][]float64, y []float64) error {
	if err := checkTrainingSet(X, y); err != nil {
		return err
	}
	gb.nFeatures = len(X[0])
	if !gb.Classification {
		return gb.fitBooster(X, y, 0, 1, false)
	}

	gb.nClasses = classCount(y)
	models := 1
	if gb.nClasses > 2 {
		models = gb.nClasses
	}
	gb.baselines = make([]float64, models)
	gb.boosters = make([][]*DecisionTree, models)
	for m := 0; m < models; m++ {
		labels := make([]float64, len(y))
		for i, v := range y {
			if (models == 1 && int(v) == 1) || (models > 1 && int(v) == m) {
				labels[i] = 1
			}
		}
		if err := gb.fitBooster(X, labels, m, models, true); err != nil {
			return err
		}
	}
	return nil
}

func (gb *GradientBoosting) fitBooster(X [][]float64, y []float64, m, models int, logistic bool) error {
	if gb.boosters == nil {
		gb.baselines = make([]float64, models)
		gb.boosters = make([][]*DecisionTree, models)
	}
	n := len(y)
	scores := make([]float64, n)

	if logistic {
		var pos float64
		for _, v := range y {
			pos += v
		}
		p := clampProb(pos / float64(n))
		gb.baselines[m] = math.Log(p / (1 - p))
	} else {
		var sum float64
		for _, v := range y {
			sum += v
		}
		gb.baselines[m] = sum / float64(n)
	}
	for i := range scores {
		scores[i] = gb.baselines[m]
	}

	residuals := make([]float64, n)
	trees := make([]*DecisionTree, 0, gb.NEstimators)
	for round := 0; round < gb.NEstimators; round++ {
		for i := range residuals {
			if logistic {
				residuals[i] = y[i] - sigmoid(scores[i])
			} else {
				residuals[i] = y[i] - scores[i]
			}
		}
		tree := NewDecisionTree(gb.MaxDepth, 2, 0, false, gb.Seed+int64(m*gb.NEstimators+round))
		if err := tree.Fit(X, residuals); err != nil {
			return err
		}
		for i, row := range X {
			scores[i] += gb.LearningRate * tree.predictRow(row)
		}
		trees = append(trees, tree)
	}
	gb.boosters[m] = trees
	return nil
}

func (gb *GradientBoosting) score(row []float64, m int) float64 {
	score := gb.baselines[m]
	for _, tree := range gb.boosters[m] {
		score += gb.LearningRate * tree.predictRow(row)
	}
	return score
}

func (gb *GradientBoosting) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	if len(gb.boosters) == 0 {
		return out
	}
	if gb.Classification {
		proba := gb.PredictProba(X)
		for i := range proba {
			out[i] = float64(argmax(proba[i]))
		}
		return out
	}
	for i, row := range X {
		out[i] = gb.score(row, 0)
	}
	return out
}

func (gb *GradientBoosting) PredictProba(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	k := gb.NumClasses()
	for i, row := range X {
		proba := make([]float64, k)
		if len(gb.boosters) == 1 {
			p := sigmoid(gb.score(row, 0))
			proba[k-1] = p
			proba[0] = 1 - p
		} else {
			var total float64
			for m := range gb.boosters {
				proba[m] = sigmoid(gb.score(row, m))
				total += proba[m]
			}
			if total > 0 {
				for m := range proba {
					proba[m] /= total
				}
			}
		}
		out[i] = proba
	}
	return out
}

func (gb *GradientBoosting) NumClasses() int {
	if gb.nClasses < 2 {
		return 2
	}
	return gb.nClasses
}

func (gb *GradientBoosting) FeatureImportances() []float64 {
	out := make([]float64, gb.nFeatures)
	count := 0
	for _, trees := range gb.boosters {
		for _, tree := range trees {
			for j, v := range tree.importances {
				out[j] += v
			}
			count++
		}
	}
	if count > 0 {
		for j := range out {
			out[j] /= float64(count)
		}
	}
	return out
}

func clampProb(p float64) float64 {
	if p < 1e-6 {
		return 1e-6
	}
	if p > 1-1e-6 {
		return 1 - 1e-6
	}
	return p
}
