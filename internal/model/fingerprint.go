package model

import "time"

// PromptCategory is the kind of question posed to a model.
type PromptCategory string

const (
	CategoryFactual        PromptCategory = "factual"
	CategoryOpinion        PromptCategory = "opinion"
	CategoryRecommendation PromptCategory = "recommendation"
)

// Categories lists every prompt category in matrix order.
var Categories = []PromptCategory{CategoryFactual, CategoryOpinion, CategoryRecommendation}

// Sentiment classifies the tone of a model response toward the business.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// FingerprintResult records a single model response within a fingerprint run.
// A call that errored or timed out keeps its slot with Error set and counts
// as a non-mention.
type FingerprintResult struct {
	Provider    string         `json:"provider"`
	Model       string         `json:"model"`
	Category    PromptCategory `json:"category"`
	Mentioned   bool           `json:"mentioned"`
	Sentiment   Sentiment      `json:"sentiment"`
	Confidence  float64        `json:"confidence"`
	Rank        *int           `json:"rank,omitempty"` // 1-based position in a recommendation list
	Competitors []string       `json:"competitors,omitempty"`
	Tokens      int            `json:"tokens,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Succeeded reports whether the underlying model call completed.
func (r FingerprintResult) Succeeded() bool {
	return r.Error == ""
}

// MarketPosition classifies the target business within its leaderboard.
type MarketPosition string

const (
	PositionLeading     MarketPosition = "leading"
	PositionCompetitive MarketPosition = "competitive"
	PositionEmerging    MarketPosition = "emerging"
	PositionUnknown     MarketPosition = "unknown"
)

// LeaderboardEntry is a competitor tallied across recommendation responses.
type LeaderboardEntry struct {
	Name     string  `json:"name"`
	Mentions int     `json:"mentions"`
	Share    float64 `json:"share"` // mentions / recommendation-category successes
}

// CompetitiveLeaderboard ranks competitors by mention count, ties broken by
// first-seen order.
type CompetitiveLeaderboard struct {
	Entries        []LeaderboardEntry `json:"entries"`
	TargetMentions int                `json:"target_mentions"`
	TargetRank     *int               `json:"target_rank,omitempty"`
	MarketPosition MarketPosition     `json:"market_position"`
}

// FingerprintAnalysis aggregates one fingerprint run. Analyses are
// append-only; a re-run supersedes rather than mutates so history remains
// available for trend calculation.
type FingerprintAnalysis struct {
	ID              string                 `json:"id"`
	BusinessID      string                 `json:"business_id"`
	VisibilityScore float64                `json:"visibility_score"` // 0-100
	MentionRate     float64                `json:"mention_rate"`     // 0-1
	SentimentScore  float64                `json:"sentiment_score"`  // 0-100
	AvgRank         *float64               `json:"avg_rank,omitempty"`
	Attempted       int                    `json:"attempted"`
	Succeeded       int                    `json:"succeeded"`
	Results         []FingerprintResult    `json:"results"`
	Leaderboard     CompetitiveLeaderboard `json:"leaderboard"`
	CreatedAt       time.Time              `json:"created_at"`
}
