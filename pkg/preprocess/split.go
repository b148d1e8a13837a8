package preprocess

import (
	"math"
	"math/rand"
	"sort"
)

// SplitConfig controls the train/test partition.
type SplitConfig struct {
	Train float64 `json:"train"`
	Seed  int64   `json:"seed"`
}

func (c SplitConfig) normalized() SplitConfig {
	if c.Train <= 0 || c.Train >= 1 {
		c.Train = 0.8
	}
	return c
}

// trainTestSplit partitions row indices 0..n-1. For classification it
// attempts a stratified split and falls back to a plain shuffle split,
// enlarging the test fraction up to 0.5 when some class is too small to
// stratify. Datasets under 5 rows always reserve at least half for test.
func trainTestSplit(n int, labels []int, cfg SplitConfig) (train, test []int, stratified bool) {
	cfg = cfg.normalized()
	testFrac := 1 - cfg.Train
	if n < 5 && testFrac < 0.5 {
		testFrac = 0.5
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	if labels != nil {
		if train, test, ok := stratifiedSplit(n, labels, testFrac, rng); ok {
			return train, test, true
		}
		classes := distinctCount(labels)
		required := float64(classes) / float64(n)
		if required > testFrac {
			testFrac = math.Min(0.5, required)
		}
	}

	perm := rng.Perm(n)
	nTest := int(math.Round(float64(n) * testFrac))
	if nTest < 1 {
		nTest = 1
	}
	if nTest >= n {
		nTest = n - 1
	}
	test = append(test, perm[:nTest]...)
	train = append(train, perm[nTest:]...)
	return train, test, false
}

func stratifiedSplit(n int, labels []int, testFrac float64, rng *rand.Rand) (train, test []int, ok bool) {
	groups := map[int][]int{}
	for i, c := range labels {
		groups[c] = append(groups[c], i)
	}
	if len(groups) < 2 {
		return nil, nil, false
	}
	for _, members := range groups {
		// both splits need at least one member of each class
		if len(members) < 2 {
			return nil, nil, false
		}
	}

	classes := make([]int, 0, len(groups))
	for c := range groups {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	for _, c := range classes {
		members := groups[c]
		rng.Shuffle(len(members), func(a, b int) { members[a], members[b] = members[b], members[a] })
		nTest := int(math.Round(float64(len(members)) * testFrac))
		if nTest < 1 {
			nTest = 1
		}
		if nTest >= len(members) {
			nTest = len(members) - 1
		}
		test = append(test, members[:nTest]...)
		train = append(train, members[nTest:]...)
	}
	rng.Shuffle(len(train), func(a, b int) { train[a], train[b] = train[b], train[a] })
	rng.Shuffle(len(test), func(a, b int) { test[a], test[b] = test[b], test[a] })
	return train, test, true
}

func distinctCount(labels []int) int {
	seen := map[int]bool{}
	for _, c := range labels {
		seen[c] = true
	}
	return len(seen)
}
