package ml

import (
	"math"
	"math/rand"
	"sync"
)

// RandomForest bags decision trees over bootstrap samples. Trees are grown
// concurrently, each with its own deterministic seed derived from Seed.
type RandomForest struct {
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	MaxFeatures     int
	Classification  bool
	Seed            int64

	nClasses  int
	nFeatures int
	trees     []*DecisionTree
}

func NewRandomForest(nEstimators, maxDepth, minSamplesSplit int, classification bool, seed int64) *RandomForest {
	if nEstimators <= 0 {
		nEstimators = 100
	}
	return &RandomForest{
		NEstimators:     nEstimators,
		MaxDepth:        maxDepth,
		MinSamplesSplit: minSamplesSplit,
		Classification:  classification,
		Seed:            seed,
	}
}

func (rf *RandomForest) Fit(X [][]float64, y []float64) error {
	if err := checkTrainingSet(X, y); err != nil {
		return err
	}
	n := len(X)
	rf.nFeatures = len(X[0])
	if rf.Classification {
		rf.nClasses = classCount(y)
	}
	maxFeatures := rf.MaxFeatures
	if maxFeatures <= 0 {
		// sqrt(p) for classification, p/3 for regression, sklearn style.
		if rf.Classification {
			maxFeatures = int(math.Max(1, math.Sqrt(float64(rf.nFeatures))))
		} else {
			maxFeatures = int(math.Max(1, float64(rf.nFeatures)/3))
		}
	}

	rf.trees = make([]*DecisionTree, rf.NEstimators)
	var wg sync.WaitGroup
	errCh := make(chan error, rf.NEstimators)
	for i := 0; i < rf.NEstimators; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			treeRand := rand.New(rand.NewSource(rf.Seed + int64(idx)))
			sample := make([]int, n)
			for j := range sample {
				sample[j] = treeRand.Intn(n)
			}
			tree := NewDecisionTree(rf.MaxDepth, rf.MinSamplesSplit, maxFeatures, rf.Classification, rf.Seed+int64(idx))
			if err := tree.FitIndices(X, y, sample); err != nil {
				errCh <- err
				return
			}
			rf.trees[idx] = tree
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func (rf *RandomForest) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	if len(rf.trees) == 0 {
		return out
	}
	if rf.Classification {
		proba := rf.PredictProba(X)
		for i := range proba {
			out[i] = float64(argmax(proba[i]))
		}
		return out
	}
	for _, tree := range rf.trees {
		for i, row := range X {
			out[i] += tree.predictRow(row)
		}
	}
	for i := range out {
		out[i] /= float64(len(rf.trees))
	}
	return out
}

func (rf *RandomForest) PredictProba(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		acc := make([]float64, rf.NumClasses())
		for _, tree := range rf.trees {
			proba := tree.probaRow(row)
			for c := range proba {
				acc[c] += proba[c]
			}
		}
		if len(rf.trees) > 0 {
			for c := range acc {
				acc[c] /= float64(len(rf.trees))
			}
		}
		out[i] = acc
	}
	return out
}

func (rf *RandomForest) NumClasses() int {
	if rf.nClasses < 2 {
		return 2
	}
	return rf.nClasses
}

// FeatureImportances averages the normalised impurity decrease across trees.
func (rf *RandomForest) FeatureImportances() []float64 {
	out := make([]float64, rf.nFeatures)
	if len(rf.trees) == 0 {
		return out
	}
	for _, tree := range rf.trees {
		for j, v := range tree.importances {
			out[j] += v
		}
	}
	for j := range out {
		out[j] /= float64(len(rf.trees))
	}
	return out
}
