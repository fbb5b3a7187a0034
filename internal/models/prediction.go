package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// PredictionMethod identifies which path produced a prediction
type PredictionMethod string

const (
	MethodModel      PredictionMethod = "model"
	MethodHeuristic  PredictionMethod = "heuristic"
	MethodArithmetic PredictionMethod = "arithmetic"
)

// Prediction is the single stored forecast for a game
type Prediction struct {
	ID     int `db:"id"`
	GameID int `db:"game_id"`

	PredictedWinner string  `db:"predicted_winner"`
	Confidence      float64 `db:"confidence"`
	PredictedSpread float64 `db:"predicted_spread"`

	PredictedHomeScore sql.NullInt32 `db:"predicted_home_score"`
	PredictedAwayScore sql.NullInt32 `db:"predicted_away_score"`

	Method    PredictionMethod `db:"method"`
	ModelName string           `db:"model_name"`

	// Factors (JSONB)
	Factors json.RawMessage `db:"factors"`

	NewsSentiment   sql.NullFloat64 `db:"news_sentiment"`
	SocialSentiment sql.NullFloat64 `db:"social_sentiment"`

	CreatedAt time.Time `db:"created_at"`
}

// Factors is the structured explanation attached to a prediction
type Factors map[string]any

// Encode marshals factors for the JSONB column
func (f Factors) Encode() (json.RawMessage, error) {
	if f == nil {
		return json.RawMessage(`{}`), nil
	}
	return json.Marshal(f)
}

// DecodeFactors reads the stored factors back into a map
func (p *Prediction) DecodeFactors() (Factors, error) {
	f := Factors{}
	if len(p.Factors) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(p.Factors, &f); err != nil {
		return nil, err
	}
	return f, nil
}

// PredictionView is the JSON payload returned to API callers
type PredictionView struct {
	ID                 int              `json:"id"`
	GameID             int              `json:"game_id"`
	PredictedWinner    string           `json:"predicted_winner"`
	Confidence         float64          `json:"confidence"`
	PredictedSpread    float64          `json:"predicted_spread"`
	PredictedHomeScore *int32           `json:"predicted_home_score,omitempty"`
	PredictedAwayScore *int32           `json:"predicted_away_score,omitempty"`
	Method             PredictionMethod `json:"method"`
	ModelName          string           `json:"model_name,omitempty"`
	Factors            json.RawMessage  `json:"factors"`
	NewsSentiment      *float64         `json:"news_sentiment,omitempty"`
	SocialSentiment    *float64         `json:"social_sentiment,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
}

// View converts nullable columns to pointers for JSON
func (p *Prediction) View() PredictionView {
	v := PredictionView{
		ID:              p.ID,
		GameID:          p.GameID,
		PredictedWinner: p.PredictedWinner,
		Confidence:      p.Confidence,
		PredictedSpread: p.PredictedSpread,
		Method:          p.Method,
		ModelName:       p.ModelName,
		Factors:         p.Factors,
		CreatedAt:       p.CreatedAt,
	}
	if len(v.Factors) == 0 {
		v.Factors = json.RawMessage(`{}`)
	}
	if p.PredictedHomeScore.Valid {
		s := p.PredictedHomeScore.Int32
		v.PredictedHomeScore = &s
	}
	if p.PredictedAwayScore.Valid {
		s := p.PredictedAwayScore.Int32
		v.PredictedAwayScore = &s
	}
	if p.NewsSentiment.Valid {
		s := p.NewsSentiment.Float64
		v.NewsSentiment = &s
	}
	if p.SocialSentiment.Valid {
		s := p.SocialSentiment.Float64
		v.SocialSentiment = &s
	}
	return v
}

// Accuracy summarises how often stored predictions picked the actual winner
type Accuracy struct {
	Total   int            `json:"total_predictions"`
	Correct int            `json:"correct_predictions"`
	Pct     float64        `json:"accuracy"`
	ByWeek  []WeekAccuracy `json:"by_week"`
}

// WeekAccuracy is the per-week breakdown of Accuracy
type WeekAccuracy struct {
	Season  int     `json:"season"`
	Week    int     `json:"week"`
	Total   int     `json:"total"`
	Correct int     `json:"correct"`
	Pct     float64 `json:"accuracy"`
}

// NullFloat wraps a value as a valid sql.NullFloat64
func NullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

// NullInt wraps a value as a valid sql.NullInt32
func NullInt(v int) sql.NullInt32 {
	return sql.NullInt32{Int32: int32(v), Valid: true}
}
