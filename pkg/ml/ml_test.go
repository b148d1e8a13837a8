package ml

import (
	"math"
	"testing"
)

// Two well-separated clusters around (0,0) and (5,5).
func clusterData() (X [][]float64, y []float64) {
	offsets := []float64{-0.2, -0.1, 0, 0.1, 0.2}
	for _, d := range offsets {
		X = append(X, []float64{d, d})
		y = append(y, 0)
	}
	for _, d := range offsets {
		X = append(X, []float64{5 + d, 5 + d})
		y = append(y, 1)
	}
	return X, y
}

func TestLogisticRegressionSeparatesClusters(t *testing.T) {
	X, y := clusterData()
	model := NewLogisticRegression(500, 0.1)
	if err := model.Fit(X, y); err != nil {
		t.Fatalf("failed to fit: %v", err)
	}
	for i, pred := range model.Predict(X) {
		if pred != y[i] {
			t.Fatalf("row %d misclassified: got %v want %v", i, pred, y[i])
		}
	}

	proba := model.PredictProba(X)
	for i, row := range proba {
		sum := 0.0
		for _, p := range row {
			if p < 0 || p > 1 {
				t.Fatalf("row %d probability out of range: %v", i, row)
			}
			sum += p
		}
		if math.Abs(sum-1) > 1e-6 {
			t.Fatalf("row %d probabilities sum to %v", i, sum)
		}
	}
	if model.NumClasses() != 2 {
		t.Fatalf("expected 2 classes, got %d", model.NumClasses())
	}
}

func TestRidgeRegressionFitsLine(t *testing.T) {
	var X [][]float64
	var y []float64
	for i := 0; i < 20; i++ {
		x := float64(i)
		X = append(X, []float64{x})
		y = append(y, 3*x+2)
	}
	model := NewRidgeRegression(0.001)
	if err := model.Fit(X, y); err != nil {
		t.Fatalf("failed to fit: %v", err)
	}
	pred := model.Predict([][]float64{{10}})[0]
	if math.Abs(pred-32) > 0.5 {
		t.Fatalf("expected prediction near 32, got %v", pred)
	}
}

func TestDecisionTreeClassifier(t *testing.T) {
	X, y := clusterData()
	tree := &DecisionTree{MaxDepth: 4, MinSamplesSplit: 2, Classification: true}
	if err := tree.Fit(X, y); err != nil {
		t.Fatalf("failed to fit: %v", err)
	}
	for i, pred := range tree.Predict(X) {
		if pred != y[i] {
			t.Fatalf("row %d misclassified: got %v want %v", i, pred, y[i])
		}
	}
}

func TestRandomForestIsDeterministicPerSeed(t *testing.T) {
	X, y := clusterData()
	first := NewRandomForest(10, 3, 2, true, 7)
	if err := first.Fit(X, y); err != nil {
		t.Fatalf("failed to fit: %v", err)
	}
	second := NewRandomForest(10, 3, 2, true, 7)
	if err := second.Fit(X, y); err != nil {
		t.Fatalf("failed to fit: %v", err)
	}
	a, b := first.Predict(X), second.Predict(X)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("predictions differ at row %d for the same seed", i)
		}
	}

	importances := first.FeatureImportances()
	if len(importances) != 2 {
		t.Fatalf("expected 2 importances, got %v", importances)
	}
}

func TestGradientBoostingRegression(t *testing.T) {
	var X [][]float64
	var y []float64
	for i := 0; i < 40; i++ {
		x := float64(i) / 4
		X = append(X, []float64{x})
		y = append(y, 2*x+1)
	}
	model := NewGradientBoosting(50, 0.1, 3, false, 1)
	if err := model.Fit(X, y); err != nil {
		t.Fatalf("failed to fit: %v", err)
	}
	pred := model.Predict([][]float64{{5}})[0]
	if math.Abs(pred-11) > 2 {
		t.Fatalf("expected prediction near 11, got %v", pred)
	}
}

func TestFitRejectsDegenerateInput(t *testing.T) {
	model := NewLogisticRegression(10, 0.1)
	if err := model.Fit(nil, nil); err == nil {
		t.Fatal("expected error on empty training set")
	}
	if err := model.Fit([][]float64{{1}}, []float64{0, 1}); err == nil {
		t.Fatal("expected error on shape mismatch")
	}
}

func TestIsolationForestFlagsSpike(t *testing.T) {
	var X [][]float64
	for i := 0; i < 30; i++ {
		X = append(X, []float64{float64(10 + i%5)})
	}
	X = append(X, []float64{1000})

	forest := NewIsolationForest(0.05, 42)
	mask, err := forest.FitPredict(X)
	if err != nil {
		t.Fatalf("failed to fit: %v", err)
	}
	if mask[len(mask)-1] {
		t.Fatal("expected the spike to be flagged as an outlier")
	}
	inliers := 0
	for _, keep := range mask {
		if keep {
			inliers++
		}
	}
	if inliers == 0 {
		t.Fatal("expected most rows to be inliers")
	}
}
