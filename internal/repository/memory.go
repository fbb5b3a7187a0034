package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"nflpicks/engine/internal/models"
)

// MemoryGameStore is an in-process game store with the same query semantics as
// GameRepository. It backs tests and local runs without Postgres.
type MemoryGameStore struct {
	mu     sync.RWMutex
	games  map[int]*models.Game
	nextID int

	// Err, when set, is returned by every read
	Err error
}

// NewMemoryGameStore creates a store seeded with games
func NewMemoryGameStore(games ...*models.Game) *MemoryGameStore {
	s := &MemoryGameStore{games: make(map[int]*models.Game)}
	for _, g := range games {
		s.Add(g)
	}
	return s
}

// Add stores a copy of game, assigning an ID when it has none
func (s *MemoryGameStore) Add(game *models.Game) *models.Game {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *game
	if cp.ID == 0 {
		s.nextID++
		cp.ID = s.nextID
	} else if cp.ID > s.nextID {
		s.nextID = cp.ID
	}
	s.games[cp.ID] = &cp
	game.ID = cp.ID
	return &cp
}

func (s *MemoryGameStore) filter(keep func(g *models.Game) bool, newestFirst bool) []*models.Game {
	var out []*models.Game
	for _, g := range s.games {
		if keep(g) {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].GameDate.Equal(out[j].GameDate) {
			return out[i].ID < out[j].ID
		}
		if newestFirst {
			return out[i].GameDate.After(out[j].GameDate)
		}
		return out[i].GameDate.Before(out[j].GameDate)
	})
	return out
}

// GetByID returns a game or ErrNotFound
func (s *MemoryGameStore) GetByID(ctx context.Context, id int) (*models.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	g, ok := s.games[id]
	if !ok {
		return nil, fmt.Errorf("game id=%d: %w", id, ErrNotFound)
	}
	cp := *g
	return &cp, nil
}

// ListCompletedByTeam mirrors GameRepository.ListCompletedByTeam
func (s *MemoryGameStore) ListCompletedByTeam(ctx context.Context, team string, before time.Time, limit int) ([]*models.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	games := s.filter(func(g *models.Game) bool {
		return g.IsCompleted() && g.Involves(team) && (before.IsZero() || g.GameDate.Before(before))
	}, true)
	if limit > 0 && len(games) > limit {
		games = games[:limit]
	}
	return games, nil
}

// ListCompleted returns completed games newest first
func (s *MemoryGameStore) ListCompleted(ctx context.Context) ([]*models.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return s.filter(func(g *models.Game) bool { return g.IsCompleted() }, true), nil
}

// CountCompleted returns the number of completed games
func (s *MemoryGameStore) CountCompleted(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return 0, s.Err
	}
	n := 0
	for _, g := range s.games {
		if g.IsCompleted() {
			n++
		}
	}
	return n, nil
}

// ListByWeek returns the games of a week ordered by kickoff
func (s *MemoryGameStore) ListByWeek(ctx context.Context, season, week int) ([]*models.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return s.filter(func(g *models.Game) bool {
		return g.Week == week && (season == 0 || g.Season == season)
	}, false), nil
}

// UpdateResult mirrors GameRepository.UpdateResult
func (s *MemoryGameStore) UpdateResult(ctx context.Context, espnGameID string, status models.GameStatus, homeScore, awayScore int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	for _, g := range s.games {
		if !g.ESPNGameID.Valid || g.ESPNGameID.String != espnGameID {
			continue
		}
		g.Status = status
		g.HomeScore, g.AwayScore = resultScores(status, homeScore, awayScore)
		g.UpdatedAt = time.Now().UTC()
		return true, nil
	}
	return false, nil
}

// MemoryPredictionStore is an in-process prediction store enforcing one
// prediction per game.
type MemoryPredictionStore struct {
	mu     sync.RWMutex
	byGame map[int]*models.Prediction
	nextID int

	// Inserts counts successful Create calls
	Inserts int
	// Err, when set, is returned by every call
	Err error
	// CreateErr, when set, is returned by Create only
	CreateErr error
}

// NewMemoryPredictionStore creates an empty store
func NewMemoryPredictionStore() *MemoryPredictionStore {
	return &MemoryPredictionStore{byGame: make(map[int]*models.Prediction)}
}

// GetByGameID returns the stored prediction or nil
func (s *MemoryPredictionStore) GetByGameID(ctx context.Context, gameID int) (*models.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	p, ok := s.byGame[gameID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// Exists reports whether the game has a prediction
func (s *MemoryPredictionStore) Exists(ctx context.Context, gameID int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return false, s.Err
	}
	_, ok := s.byGame[gameID]
	return ok, nil
}

// Create stores pred, rejecting a second prediction for the same game
func (s *MemoryPredictionStore) Create(ctx context.Context, pred *models.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if s.CreateErr != nil {
		return s.CreateErr
	}
	if err := validatePredictionData(pred); err != nil {
		return fmt.Errorf("prediction validation failed: %w", err)
	}
	if _, ok := s.byGame[pred.GameID]; ok {
		return fmt.Errorf("game_id=%d: %w", pred.GameID, ErrPredictionExists)
	}

	s.nextID++
	pred.ID = s.nextID
	if pred.CreatedAt.IsZero() {
		pred.CreatedAt = time.Now().UTC()
	}
	cp := *pred
	s.byGame[pred.GameID] = &cp
	s.Inserts++
	return nil
}
