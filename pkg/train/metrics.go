package train

import (
	"math"
	"sort"
)

func accuracy(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	correct := 0
	for i := range yTrue {
		if int(yTrue[i]) == int(yPred[i]) {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue))
}

// weightedF1 averages per-class F1 scores weighted by class support.
func weightedF1(yTrue, yPred []float64, nClasses int) float64 {
	if len(yTrue) == 0 || nClasses == 0 {
		return 0
	}
	var total float64
	for c := 0; c < nClasses; c++ {
		tp, fp, fn, support := 0, 0, 0, 0
		for i := range yTrue {
			actual := int(yTrue[i]) == c
			predicted := int(yPred[i]) == c
			if actual {
				support++
			}
			switch {
			case actual && predicted:
				tp++
			case !actual && predicted:
				fp++
			case actual && !predicted:
				fn++
			}
		}
		var precision, recall, f1 float64
		if tp+fp > 0 {
			precision = float64(tp) / float64(tp+fp)
		}
		if tp+fn > 0 {
			recall = float64(tp) / float64(tp+fn)
		}
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}
		total += f1 * float64(support)
	}
	return total / float64(len(yTrue))
}

func mse(yTrue, yPred []float64) float64 {
	var sum float64
	for i := range yTrue {
		d := yPred[i] - yTrue[i]
		sum += d * d
	}
	return sum / float64(len(yTrue))
}

func rmse(yTrue, yPred []float64) float64 { return math.Sqrt(mse(yTrue, yPred)) }

func mae(yTrue, yPred []float64) float64 {
	var sum float64
	for i := range yTrue {
		sum += math.Abs(yPred[i] - yTrue[i])
	}
	return sum / float64(len(yTrue))
}

func r2(yTrue, yPred []float64) float64 {
	var mean float64
	for _, v := range yTrue {
		mean += v
	}
	mean /= float64(len(yTrue))
	var ssTot, ssRes float64
	for i := range yTrue {
		d := yTrue[i] - mean
		ssTot += d * d
		r := yTrue[i] - yPred[i]
		ssRes += r * r
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

// rocCurve sweeps score thresholds from high to low and returns false/true
// positive rates for the positive class.
func rocCurve(yTrue []float64, scores []float64, posClass int) (fpr, tpr []float64) {
	order := scoreOrder(scores)
	var pos, neg float64
	for _, y := range yTrue {
		if int(y) == posClass {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return nil, nil
	}
	fpr = append(fpr, 0)
	tpr = append(tpr, 0)
	var tp, fp float64
	for i := 0; i < len(order); {
		j := i
		for j < len(order) && scores[order[j]] == scores[order[i]] {
			if int(yTrue[order[j]]) == posClass {
				tp++
			} else {
				fp++
			}
			j++
		}
		fpr = append(fpr, fp/neg)
		tpr = append(tpr, tp/pos)
		i = j
	}
	return fpr, tpr
}

// prCurve returns precision/recall pairs per descending score threshold.
func prCurve(yTrue []float64, scores []float64, posClass int) (precision, recall []float64) {
	order := scoreOrder(scores)
	var pos float64
	for _, y := range yTrue {
		if int(y) == posClass {
			pos++
		}
	}
	if pos == 0 {
		return nil, nil
	}
	var tp, fp float64
	for i := 0; i < len(order); {
		j := i
		for j < len(order) && scores[order[j]] == scores[order[i]] {
			if int(yTrue[order[j]]) == posClass {
				tp++
			} else {
				fp++
			}
			j++
		}
		precision = append(precision, tp/(tp+fp))
		recall = append(recall, tp/pos)
		i = j
	}
	// terminal point, sklearn convention
	precision = append(precision, 1)
	recall = append(recall, 0)
	return precision, recall
}

func scoreOrder(scores []float64) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
	return order
}
