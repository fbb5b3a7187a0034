package models

import "time"

// ConfidenceTier buckets how assertively scraped text expresses picks
type ConfidenceTier string

const (
	ConfidenceLow    ConfidenceTier = "low"
	ConfidenceMedium ConfidenceTier = "medium"
	ConfidenceHigh   ConfidenceTier = "high"
)

// SentimentTier records which layer served a report
type SentimentTier string

const (
	TierLive   SentimentTier = "live"
	TierCache  SentimentTier = "cache"
	TierStatic SentimentTier = "static"
)

// TeamSentiment is the per-team aggregate of a scrape
type TeamSentiment struct {
	Mentions      int      `json:"mentions"`
	WeightedScore float64  `json:"weighted_score"`
	Popularity    float64  `json:"popularity"`
	Sources       []string `json:"sources"`
	Contexts      []string `json:"contexts,omitempty"`
}

// Provenance describes where a report came from
type Provenance struct {
	Sources     []string      `json:"sources"`
	GeneratedAt time.Time     `json:"generated_at"`
	Tier        SentimentTier `json:"tier"`
	Fingerprint string        `json:"fingerprint,omitempty"`
}

// SentimentReport is the result of analysing one scrape of the social channels
type SentimentReport struct {
	TotalMentions    int                      `json:"total_mentions"`
	PostsAnalyzed    int                      `json:"posts_analyzed"`
	CommentsAnalyzed int                      `json:"comments_analyzed"`
	Teams            map[string]TeamSentiment `json:"team_picks"`
	SentimentScore   float64                  `json:"sentiment_score"`
	Confidence       ConfidenceTier           `json:"confidence_level"`
	Provenance       Provenance               `json:"provenance"`
}

// Team returns the aggregate for a team, zero-valued if it was never mentioned
func (r *SentimentReport) Team(name string) TeamSentiment {
	if r == nil || r.Teams == nil {
		return TeamSentiment{}
	}
	return r.Teams[name]
}

// WithTier returns a shallow copy stamped with the serving tier
func (r *SentimentReport) WithTier(tier SentimentTier) *SentimentReport {
	cp := *r
	cp.Provenance.Tier = tier
	return &cp
}

// MatchupPicks is the social view of a single game
type MatchupPicks struct {
	Favorite       string  `json:"reddit_favorite"`
	Confidence     float64 `json:"confidence"`
	HomeShare      float64 `json:"home_share"`
	HomeMentions   int     `json:"home_mentions"`
	AwayMentions   int     `json:"away_mentions"`
	TotalMentions  int     `json:"total_mentions"`
	HomePopularity float64 `json:"home_popularity"`
	AwayPopularity float64 `json:"away_popularity"`
}
