// Package model implements a bagged decision-tree classifier that outputs a
// probability for the positive class, with grid-search model selection.
package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/segmentio/fasthash/jody"
)

var (
	// ErrInsufficientData is returned when there are too few rows to fit
	ErrInsufficientData = errors.New("insufficient training data")
	// ErrInvalidInput is returned for ragged, empty or non-finite rows
	ErrInvalidInput = errors.New("invalid training input")
)

// Params configures a forest
type Params struct {
	Trees          int   `json:"n_estimators"`
	MaxDepth       int   `json:"max_depth"`
	MinSamplesLeaf int   `json:"min_samples_leaf"`
	MaxFeatures    int   `json:"max_features"` // 0 means sqrt(n_features)
	Seed           int64 `json:"random_state"`
}

func (p Params) featuresPerSplit(nFeatures int) int {
	k := p.MaxFeatures
	if k <= 0 {
		k = int(math.Sqrt(float64(nFeatures)))
	}
	return min(max(k, 1), nFeatures)
}

// Forest is a bagged ensemble of depth-bounded trees
type Forest struct {
	params    Params
	nFeatures int
	trees     []*tree
}

// Fit trains a forest on rows x with binary labels y (0 or 1)
func Fit(x [][]float64, y []int, p Params) (*Forest, error) {
	if err := validate(x, y); err != nil {
		return nil, err
	}
	if p.Trees < 1 || p.MaxDepth < 1 {
		return nil, fmt.Errorf("%w: trees=%d depth=%d", ErrInvalidInput, p.Trees, p.MaxDepth)
	}

	n := len(x)
	f := &Forest{params: p, nFeatures: len(x[0]), trees: make([]*tree, 0, p.Trees)}
	for t := 0; t < p.Trees; t++ {
		rng := rand.New(rand.NewSource(treeSeed(p.Seed, t)))
		sample := make([]int, n)
		for i := range sample {
			sample[i] = rng.Intn(n)
		}
		f.trees = append(f.trees, fitTree(x, y, sample, p, rng))
	}
	return f, nil
}

// treeSeed derives an independent, reproducible seed per tree
func treeSeed(seed int64, index int) int64 {
	h := jody.HashUint64(uint64(seed))
	h = jody.AddUint64(h, uint64(index))
	return int64(h & math.MaxInt64)
}

// Params returns the parameters the forest was fit with
func (f *Forest) Params() Params {
	return f.params
}

// PredictProba returns the probability of the positive class for x
func (f *Forest) PredictProba(x []float64) (float64, error) {
	if len(x) != f.nFeatures {
		return 0, fmt.Errorf("%w: expected %d features, got %d", ErrInvalidInput, f.nFeatures, len(x))
	}
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: non-finite feature value", ErrInvalidInput)
		}
	}
	sum := 0.0
	for _, t := range f.trees {
		sum += t.predict(x)
	}
	return sum / float64(len(f.trees)), nil
}

// FeatureImportance returns the mean impurity decrease per feature, summing to 1
// (all zeros when no tree ever split).
func (f *Forest) FeatureImportance() []float64 {
	out := make([]float64, f.nFeatures)
	for _, t := range f.trees {
		total := 0.0
		for _, v := range t.importance {
			total += v
		}
		if total == 0 {
			continue
		}
		for i, v := range t.importance {
			out[i] += v / total
		}
	}
	total := 0.0
	for _, v := range out {
		total += v
	}
	if total > 0 {
		for i := range out {
			out[i] /= total
		}
	}
	return out
}

func validate(x [][]float64, y []int) error {
	if len(x) != len(y) {
		return fmt.Errorf("%w: %d rows but %d labels", ErrInvalidInput, len(x), len(y))
	}
	if len(x) < 2 {
		return fmt.Errorf("%w: %d rows", ErrInsufficientData, len(x))
	}
	width := len(x[0])
	if width == 0 {
		return fmt.Errorf("%w: empty feature rows", ErrInvalidInput)
	}
	for i, row := range x {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d features, want %d", ErrInvalidInput, i, len(row), width)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: row %d has a non-finite value", ErrInvalidInput, i)
			}
		}
		if y[i] != 0 && y[i] != 1 {
			return fmt.Errorf("%w: label %d at row %d", ErrInvalidInput, y[i], i)
		}
	}
	return nil
}
