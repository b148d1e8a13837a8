package ml

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// RidgeRegression solves the L2-regularised least squares problem via the
// normal equations. Features are centred first so the intercept is not
// penalised.
type RidgeRegression struct {
	Alpha float64

	coef      []float64
	intercept float64
	fitted    bool
}

func NewRidgeRegression(alpha float64) *RidgeRegression {
	if alpha < 0 {
		alpha = 0
	}
	return &RidgeRegression{Alpha: alpha}
}

func (r *RidgeRegression) Fit(X [][]float64, y []float64) error {
	if err := checkTrainingSet(X, y); err != nil {
		return err
	}
	n := len(X)
	p := len(X[0])

	colMeans := make([]float64, p)
	for _, row := range X {
		for j, v := range row {
			colMeans[j] += v
		}
	}
	for j := range colMeans {
		colMeans[j] /= float64(n)
	}
	var yMean float64
	for _, v := range y {
		yMean += v
	}
	yMean /= float64(n)

	xc := mat.NewDense(n, p, nil)
	yc := mat.NewVecDense(n, nil)
	for i, row := range X {
		for j, v := range row {
			xc.Set(i, j, v-colMeans[j])
		}
		yc.SetVec(i, y[i]-yMean)
	}

	alpha := r.Alpha
	if alpha <= 0 {
		alpha = 1e-8
	}
	var gram mat.Dense
	gram.Mul(xc.T(), xc)
	for j := 0; j < p; j++ {
		gram.Set(j, j, gram.At(j, j)+alpha)
	}
	var xty mat.VecDense
	xty.MulVec(xc.T(), yc)

	var beta mat.VecDense
	if err := beta.SolveVec(&gram, &xty); err != nil {
		return err
	}

	r.coef = make([]float64, p)
	r.intercept = yMean
	for j := 0; j < p; j++ {
		r.coef[j] = beta.AtVec(j)
		r.intercept -= r.coef[j] * colMeans[j]
	}
	r.fitted = true
	return nil
}

func (r *RidgeRegression) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	if !r.fitted {
		return out
	}
	for i, row := range X {
		sum := r.intercept
		for j, v := range row {
			if j < len(r.coef) {
				sum += r.coef[j] * v
			}
		}
		out[i] = sum
	}
	return out
}

func (r *RidgeRegression) FeatureImportances() []float64 {
	out := make([]float64, len(r.coef))
	for j, c := range r.coef {
		out[j] = math.Abs(c)
	}
	return out
}

// LogisticRegression trains one gradient-descent binary model per class
// (one-vs-rest) and normalises the per-class scores into probabilities.
type LogisticRegression struct {
	MaxIter      int
	LearningRate float64

	nClasses int
	weights  [][]float64
	biases   []float64
	fitted   bool
}

func NewLogisticRegression(maxIter int, learningRate float64) *LogisticRegression {
	if maxIter <= 0 {
		maxIter = 200
	}
	if learningRate <= 0 {
		learningRate = 0.1
	}
	return &LogisticRegression{MaxIter: maxIter, LearningRate: learningRate}
}

func (l *LogisticRegression) Fit(X [][]float64, y []float64) error {
	if err := checkTrainingSet(X, y); err != nil {
		return err
	}
	l.nClasses = classCount(y)
	p := len(X[0])
	binary := l.nClasses <= 2

	models := 1
	if !binary {
		models = l.nClasses
	}
	l.weights = make([][]float64, models)
	l.biases = make([]float64, models)
	for m := 0; m < models; m++ {
		labels := make([]float64, len(y))
		for i, v := range y {
			target := 1.0
			if binary {
				if int(v) != 1 {
					target = 0
				}
			} else if int(v) != m {
				target = 0
			}
			labels[i] = target
		}
		l.weights[m] = make([]float64, p)
		l.fitBinary(X, labels, m)
	}
	l.fitted = true
	return nil
}

func (l *LogisticRegression) fitBinary(X [][]float64, labels []float64, m int) {
	n := float64(len(X))
	weights := l.weights[m]
	for iter := 0; iter < l.MaxIter; iter++ {
		grad := make([]float64, len(weights))
		var biasGrad float64
		for i, sample := range X {
			prediction := sigmoid(dot(weights, sample) + l.biases[m])
			residual := prediction - labels[i]
			for j, v := range sample {
				grad[j] += residual * v
			}
			biasGrad += residual
		}
		for j := range weights {
			weights[j] -= l.LearningRate * grad[j] / n
		}
		l.biases[m] -= l.LearningRate * biasGrad / n
	}
}

func (l *LogisticRegression) Predict(X [][]float64) []float64 {
	proba := l.PredictProba(X)
	out := make([]float64, len(X))
	for i := range proba {
		out[i] = float64(argmax(proba[i]))
	}
	return out
}

func (l *LogisticRegression) PredictProba(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, sample := range X {
		row := make([]float64, l.NumClasses())
		if !l.fitted {
			out[i] = row
			continue
		}
		if l.nClasses <= 2 {
			p := sigmoid(dot(l.weights[0], sample) + l.biases[0])
			row[len(row)-1] = p
			row[0] = 1 - p
		} else {
			var total float64
			for m := range l.weights {
				row[m] = sigmoid(dot(l.weights[m], sample) + l.biases[m])
				total += row[m]
			}
			if total > 0 {
				for m := range row {
					row[m] /= total
				}
			}
		}
		out[i] = row
	}
	return out
}

func (l *LogisticRegression) NumClasses() int {
	if l.nClasses < 2 {
		return 2
	}
	return l.nClasses
}

// FeatureImportances reports coefficient magnitudes, averaged across the
// per-class models when more than one was trained.
func (l *LogisticRegression) FeatureImportances() []float64 {
	if len(l.weights) == 0 {
		return nil
	}
	out := make([]float64, len(l.weights[0]))
	for _, weights := range l.weights {
		for j, w := range weights {
			out[j] += math.Abs(w)
		}
	}
	for j := range out {
		out[j] /= float64(len(l.weights))
	}
	return out
}

func dot(weights, sample []float64) float64 {
	var sum float64
	for i := 0; i < len(weights) && i < len(sample); i++ {
		sum += weights[i] * sample[i]
	}
	return sum
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
