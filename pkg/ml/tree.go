package ml

import (
	"math/rand"
	"sort"
)

// DecisionTree is a CART tree supporting both tasks: gini impurity for
// classification, squared error for regression. MaxDepth 0 means unlimited
// and MaxFeatures 0 considers every feature at each split.
type DecisionTree struct {
	MaxDepth        int
	MinSamplesSplit int
	MaxFeatures     int
	Classification  bool
	Seed            int64

	nClasses    int
	nFeatures   int
	root        *treeNode
	importances []float64
}

type treeNode struct {
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
	value     float64
	proba     []float64
}

func (n *treeNode) isLeaf() bool { return n.left == nil }

func NewDecisionTree(maxDepth, minSamplesSplit, maxFeatures int, classification bool, seed int64) *DecisionTree {
	if minSamplesSplit < 2 {
		minSamplesSplit = 2
	}
	return &DecisionTree{
		MaxDepth:        maxDepth,
		MinSamplesSplit: minSamplesSplit,
		MaxFeatures:     maxFeatures,
		Classification:  classification,
		Seed:            seed,
	}
}

func (t *DecisionTree) Fit(X [][]float64, y []float64) error {
	if err := checkTrainingSet(X, y); err != nil {
		return err
	}
	indices := make([]int, len(X))
	for i := range indices {
		indices[i] = i
	}
	return t.FitIndices(X, y, indices)
}

// FitIndices trains on the given row subset, allowing forests to pass
// bootstrap samples without copying the data.
func (t *DecisionTree) FitIndices(X [][]float64, y []float64, indices []int) error {
	if err := checkTrainingSet(X, y); err != nil {
		return err
	}
	if len(indices) == 0 {
		return errEmptyTrainingSet
	}
	t.nFeatures = len(X[0])
	if t.Classification {
		t.nClasses = classCount(y)
	}
	t.importances = make([]float64, t.nFeatures)
	rng := rand.New(rand.NewSource(t.Seed))
	t.root = t.build(X, y, indices, 0, rng)
	normalize(t.importances)
	return nil
}

func (t *DecisionTree) build(X [][]float64, y []float64, indices []int, depth int, rng *rand.Rand) *treeNode {
	node := t.leafFor(y, indices)
	if len(indices) < t.MinSamplesSplit {
		return node
	}
	if t.MaxDepth > 0 && depth >= t.MaxDepth {
		return node
	}
	parentImpurity := t.impurity(y, indices)
	if parentImpurity == 0 {
		return node
	}

	feature, threshold, gain := t.bestSplit(X, y, indices, parentImpurity, rng)
	if feature < 0 {
		return node
	}

	var left, right []int
	for _, i := range indices {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return node
	}

	t.importances[feature] += gain * float64(len(indices))
	node.feature = feature
	node.threshold = threshold
	node.left = t.build(X, y, left, depth+1, rng)
	node.right = t.build(X, y, right, depth+1, rng)
	return node
}

func (t *DecisionTree) leafFor(y []float64, indices []int) *treeNode {
	node := &treeNode{}
	if t.Classification {
		counts := make([]float64, t.nClasses)
		for _, i := range indices {
			counts[int(y[i])]++
		}
		proba := make([]float64, t.nClasses)
		for c := range counts {
			proba[c] = counts[c] / float64(len(indices))
		}
		node.proba = proba
		node.value = float64(argmax(proba))
		return node
	}
	var sum float64
	for _, i := range indices {
		sum += y[i]
	}
	node.value = sum / float64(len(indices))
	return node
}

func (t *DecisionTree) impurity(y []float64, indices []int) float64 {
	n := float64(len(indices))
	if t.Classification {
		counts := make([]float64, t.nClasses)
		for _, i := range indices {
			counts[int(y[i])]++
		}
		gini := 1.0
		for _, c := range counts {
			p := c / n
			gini -= p * p
		}
		return gini
	}
	var sum, sumSq float64
	for _, i := range indices {
		sum += y[i]
		sumSq += y[i] * y[i]
	}
	mean := sum / n
	return sumSq/n - mean*mean
}

func (t *DecisionTree) bestSplit(X [][]float64, y []float64, indices []int, parentImpurity float64, rng *rand.Rand) (int, float64, float64) {
	features := t.candidateFeatures(rng)
	bestFeature := -1
	var bestThreshold, bestGain float64

	type pair struct {
		value float64
		row   int
	}
	pairs := make([]pair, len(indices))

	for _, feature := range features {
		for i, row := range indices {
			pairs[i] = pair{value: X[row][feature], row: row}
		}
		sort.Slice(pairs, func(a, b int) bool { return pairs[a].value < pairs[b].value })

		n := float64(len(pairs))
		if t.Classification {
			leftCounts := make([]float64, t.nClasses)
			rightCounts := make([]float64, t.nClasses)
			for _, p := range pairs {
				rightCounts[int(y[p.row])]++
			}
			for i := 0; i < len(pairs)-1; i++ {
				c := int(y[pairs[i].row])
				leftCounts[c]++
				rightCounts[c]--
				if pairs[i].value == pairs[i+1].value {
					continue
				}
				nl := float64(i + 1)
				nr := n - nl
				gain := parentImpurity - (nl/n)*gini(leftCounts, nl) - (nr/n)*gini(rightCounts, nr)
				if gain > bestGain {
					bestGain = gain
					bestFeature = feature
					bestThreshold = (pairs[i].value + pairs[i+1].value) / 2
				}
			}
		} else {
			var leftSum, leftSq float64
			var rightSum, rightSq float64
			for _, p := range pairs {
				rightSum += y[p.row]
				rightSq += y[p.row] * y[p.row]
			}
			for i := 0; i < len(pairs)-1; i++ {
				v := y[pairs[i].row]
				leftSum += v
				leftSq += v * v
				rightSum -= v
				rightSq -= v * v
				if pairs[i].value == pairs[i+1].value {
					continue
				}
				nl := float64(i + 1)
				nr := n - nl
				gain := parentImpurity - (nl/n)*variance(leftSum, leftSq, nl) - (nr/n)*variance(rightSum, rightSq, nr)
				if gain > bestGain {
					bestGain = gain
					bestFeature = feature
					bestThreshold = (pairs[i].value + pairs[i+1].value) / 2
				}
			}
		}
	}
	return bestFeature, bestThreshold, bestGain
}

func (t *DecisionTree) candidateFeatures(rng *rand.Rand) []int {
	all := make([]int, t.nFeatures)
	for j := range all {
		all[j] = j
	}
	if t.MaxFeatures <= 0 || t.MaxFeatures >= t.nFeatures {
		return all
	}
	rng.Shuffle(len(all), func(a, b int) { all[a], all[b] = all[b], all[a] })
	return all[:t.MaxFeatures]
}

func (t *DecisionTree) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = t.predictRow(row)
	}
	return out
}

func (t *DecisionTree) predictRow(row []float64) float64 {
	node := t.root
	if node == nil {
		return 0
	}
	for !node.isLeaf() {
		if row[node.feature] <= node.threshold {
			node = node.left
		} else {
			node = node.right
		}
	}
	return node.value
}

func (t *DecisionTree) probaRow(row []float64) []float64 {
	node := t.root
	if node == nil {
		return nil
	}
	for !node.isLeaf() {
		if row[node.feature] <= node.threshold {
			node = node.left
		} else {
			node = node.right
		}
	}
	return node.proba
}

func (t *DecisionTree) FeatureImportances() []float64 {
	return append([]float64(nil), t.importances...)
}

func gini(counts []float64, n float64) float64 {
	g := 1.0
	for _, c := range counts {
		p := c / n
		g -= p * p
	}
	return g
}

func variance(sum, sumSq, n float64) float64 {
	mean := sum / n
	return sumSq/n - mean*mean
}

func normalize(values []float64) {
	var total float64
	for _, v := range values {
		total += v
	}
	if total <= 0 {
		return
	}
	for i := range values {
		values[i] /= total
	}
}
