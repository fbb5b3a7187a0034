package model

import (
	"math/rand"
	"sort"
)

type node struct {
	leaf      bool
	prob      float64 // fraction of positive samples at a leaf
	feature   int
	threshold float64
	left      *node
	right     *node
}

// tree is a binary CART classifier using Gini impurity
type tree struct {
	root       *node
	importance []float64
}

type treeBuilder struct {
	x           [][]float64
	y           []int
	maxDepth    int
	minLeaf     int
	maxFeatures int
	rng         *rand.Rand
	importance  []float64
}

func fitTree(x [][]float64, y []int, sample []int, p Params, rng *rand.Rand) *tree {
	nFeatures := len(x[0])
	b := &treeBuilder{
		x:           x,
		y:           y,
		maxDepth:    p.MaxDepth,
		minLeaf:     max(p.MinSamplesLeaf, 1),
		maxFeatures: p.featuresPerSplit(nFeatures),
		rng:         rng,
		importance:  make([]float64, nFeatures),
	}
	root := b.build(sample, 0)
	return &tree{root: root, importance: b.importance}
}

func (b *treeBuilder) build(idx []int, depth int) *node {
	pos := 0
	for _, i := range idx {
		pos += b.y[i]
	}
	n := len(idx)
	leaf := &node{leaf: true, prob: float64(pos) / float64(n)}

	if depth >= b.maxDepth || n < 2*b.minLeaf || pos == 0 || pos == n {
		return leaf
	}

	parentGini := gini(pos, n)
	bestGain := 0.0
	bestFeature := -1
	bestThreshold := 0.0

	sorted := make([]int, n)
	for _, f := range b.rng.Perm(len(b.importance))[:b.maxFeatures] {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, c int) bool { return b.x[sorted[a]][f] < b.x[sorted[c]][f] })

		leftPos := 0
		for k := 0; k < n-1; k++ {
			leftPos += b.y[sorted[k]]
			leftN := k + 1
			rightN := n - leftN
			lo, hi := b.x[sorted[k]][f], b.x[sorted[k+1]][f]
			if lo == hi || leftN < b.minLeaf || rightN < b.minLeaf {
				continue
			}
			weighted := (float64(leftN)*gini(leftPos, leftN) + float64(rightN)*gini(pos-leftPos, rightN)) / float64(n)
			if gain := parentGini - weighted; gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = (lo + hi) / 2
			}
		}
	}

	if bestFeature < 0 {
		return leaf
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][bestFeature] <= bestThreshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	b.importance[bestFeature] += float64(n) * bestGain

	return &node{
		feature:   bestFeature,
		threshold: bestThreshold,
		left:      b.build(left, depth+1),
		right:     b.build(right, depth+1),
	}
}

func (t *tree) predict(x []float64) float64 {
	n := t.root
	for !n.leaf {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.prob
}

func gini(pos, n int) float64 {
	if n == 0 {
		return 0
	}
	p := float64(pos) / float64(n)
	return 2 * p * (1 - p)
}
