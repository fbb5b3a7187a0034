package model

import (
	"fmt"
	"math/rand"
)

// Grid is the hyper-parameter space searched by GridSearch
type Grid struct {
	Trees  []int
	Depths []int
}

// DefaultGrid mirrors the production search space
var DefaultGrid = Grid{Trees: []int{100, 200}, Depths: []int{6, 8, 10}}

// SearchConfig controls GridSearch
type SearchConfig struct {
	Grid           Grid
	Folds          int
	Seed           int64
	MinSamplesLeaf int
}

// CVScore is the cross-validated accuracy of one parameter set
type CVScore struct {
	Params   Params  `json:"params"`
	Accuracy float64 `json:"accuracy"`
}

// SearchResult describes the outcome of a grid search
type SearchResult struct {
	Best   Params    `json:"best_params"`
	Score  float64   `json:"best_score"`
	Folds  int       `json:"folds"`
	Scores []CVScore `json:"scores"`
}

// GridSearch picks the parameter set with the best k-fold accuracy and refits
// it on all rows. Ties keep the earlier (smaller) configuration.
func GridSearch(x [][]float64, y []int, cfg SearchConfig) (*Forest, *SearchResult, error) {
	if err := validate(x, y); err != nil {
		return nil, nil, err
	}
	if len(cfg.Grid.Trees) == 0 || len(cfg.Grid.Depths) == 0 {
		return nil, nil, fmt.Errorf("%w: empty grid", ErrInvalidInput)
	}

	folds := min(max(cfg.Folds, 2), len(x))
	assignment := foldAssignment(len(x), folds, cfg.Seed)

	result := &SearchResult{Folds: folds, Score: -1}
	for _, trees := range cfg.Grid.Trees {
		for _, depth := range cfg.Grid.Depths {
			p := Params{Trees: trees, MaxDepth: depth, MinSamplesLeaf: cfg.MinSamplesLeaf, Seed: cfg.Seed}
			acc, err := crossValidate(x, y, assignment, folds, p)
			if err != nil {
				return nil, nil, err
			}
			result.Scores = append(result.Scores, CVScore{Params: p, Accuracy: acc})
			if acc > result.Score {
				result.Score = acc
				result.Best = p
			}
		}
	}

	forest, err := Fit(x, y, result.Best)
	if err != nil {
		return nil, nil, err
	}
	return forest, result, nil
}

// foldAssignment shuffles rows into folds of near-equal size
func foldAssignment(n, folds int, seed int64) []int {
	rng := rand.New(rand.NewSource(seed))
	assignment := make([]int, n)
	for pos, row := range rng.Perm(n) {
		assignment[row] = pos % folds
	}
	return assignment
}

func crossValidate(x [][]float64, y []int, assignment []int, folds int, p Params) (float64, error) {
	correct, total := 0, 0
	for k := 0; k < folds; k++ {
		var trainX, testX [][]float64
		var trainY, testY []int
		for i, fold := range assignment {
			if fold == k {
				testX = append(testX, x[i])
				testY = append(testY, y[i])
			} else {
				trainX = append(trainX, x[i])
				trainY = append(trainY, y[i])
			}
		}
		if len(testX) == 0 {
			continue
		}
		if len(trainX) < 2 {
			return 0, fmt.Errorf("%w: fold %d leaves %d training rows", ErrInsufficientData, k, len(trainX))
		}

		forest, err := Fit(trainX, trainY, p)
		if err != nil {
			return 0, err
		}
		for i, row := range testX {
			prob, err := forest.PredictProba(row)
			if err != nil {
				return 0, err
			}
			label := 0
			if prob > 0.5 {
				label = 1
			}
			if label == testY[i] {
				correct++
			}
			total++
		}
	}
	if total == 0 {
		return 0, ErrInsufficientData
	}
	return float64(correct) / float64(total), nil
}

// SelfCheck fits a tiny synthetic problem and reports whether the classifier works
// in this process.
func SelfCheck() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classifier self-check panicked: %v", r)
		}
	}()

	x := [][]float64{{0.9, 0.1}, {0.8, 0.2}, {0.7, 0.2}, {0.2, 0.8}, {0.1, 0.9}, {0.3, 0.7}}
	y := []int{1, 1, 1, 0, 0, 0}
	forest, _, err := GridSearch(x, y, SearchConfig{Grid: Grid{Trees: []int{5}, Depths: []int{2}}, Folds: 2, Seed: 1})
	if err != nil {
		return fmt.Errorf("classifier self-check fit failed: %w", err)
	}
	p, err := forest.PredictProba([]float64{0.85, 0.15})
	if err != nil {
		return fmt.Errorf("classifier self-check inference failed: %w", err)
	}
	if p < 0 || p > 1 {
		return fmt.Errorf("classifier self-check returned probability %f", p)
	}
	return nil
}
