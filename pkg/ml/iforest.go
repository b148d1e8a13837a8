package ml

import (
	"math"
	"math/rand"
	"sort"
)

// IsolationForest scores anomalies by how quickly random axis-aligned
// splits isolate a sample. Fitting is deterministic for a fixed Seed.
type IsolationForest struct {
	NEstimators   int
	MaxSamples    int
	Contamination float64
	Seed          int64

	trees      []*isoNode
	sampleSize int
}

type isoNode struct {
	feature   int
	threshold float64
	left      *isoNode
	right     *isoNode
	size      int
}

func NewIsolationForest(contamination float64, seed int64) *IsolationForest {
	return &IsolationForest{
		NEstimators:   100,
		MaxSamples:    256,
		Contamination: contamination,
		Seed:          seed,
	}
}

// FitPredict fits the forest on X and returns a per-row inlier flag where
// the Contamination fraction of highest-scoring rows are marked outliers.
func (f *IsolationForest) FitPredict(X [][]float64) ([]bool, error) {
	if len(X) == 0 || len(X[0]) == 0 {
		return nil, errEmptyTrainingSet
	}
	n := len(X)
	f.sampleSize = f.MaxSamples
	if f.sampleSize <= 0 || f.sampleSize > n {
		f.sampleSize = n
	}
	maxDepth := int(math.Ceil(math.Log2(float64(f.sampleSize)))) + 1

	rng := rand.New(rand.NewSource(f.Seed))
	f.trees = make([]*isoNode, f.NEstimators)
	for i := range f.trees {
		sample := make([]int, f.sampleSize)
		for j := range sample {
			sample[j] = rng.Intn(n)
		}
		f.trees[i] = buildIsoTree(X, sample, 0, maxDepth, rng)
	}

	scores := make([]float64, n)
	for i, row := range X {
		scores[i] = f.scoreRow(row)
	}

	cutoff := quantileOf(scores, 1-f.Contamination)
	inliers := make([]bool, n)
	for i, s := range scores {
		inliers[i] = s <= cutoff
	}
	return inliers, nil
}

func (f *IsolationForest) scoreRow(row []float64) float64 {
	var total float64
	for _, tree := range f.trees {
		total += pathLength(tree, row, 0)
	}
	avg := total / float64(len(f.trees))
	return math.Pow(2, -avg/averagePathLength(float64(f.sampleSize)))
}

func buildIsoTree(X [][]float64, indices []int, depth, maxDepth int, rng *rand.Rand) *isoNode {
	node := &isoNode{size: len(indices)}
	if depth >= maxDepth || len(indices) <= 1 {
		return node
	}
	feature := rng.Intn(len(X[0]))
	min, max := math.Inf(1), math.Inf(-1)
	for _, i := range indices {
		v := X[i][feature]
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if min == max {
		return node
	}
	threshold := min + rng.Float64()*(max-min)
	var left, right []int
	for _, i := range indices {
		if X[i][feature] < threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return node
	}
	node.feature = feature
	node.threshold = threshold
	node.left = buildIsoTree(X, left, depth+1, maxDepth, rng)
	node.right = buildIsoTree(X, right, depth+1, maxDepth, rng)
	return node
}

func pathLength(node *isoNode, row []float64, depth float64) float64 {
	if node.left == nil {
		return depth + averagePathLength(float64(node.size))
	}
	if row[node.feature] < node.threshold {
		return pathLength(node.left, row, depth+1)
	}
	return pathLength(node.right, row, depth+1)
}

// averagePathLength is c(n), the expected path length of an unsuccessful
// BST search over n nodes.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	return 2*(math.Log(n-1)+0.5772156649) - 2*(n-1)/n
}

func quantileOf(values []float64, q float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	low := int(math.Floor(pos))
	high := int(math.Ceil(pos))
	if low == high {
		return sorted[low]
	}
	frac := pos - float64(low)
	return sorted[low]*(1-frac) + sorted[high]*frac
}
