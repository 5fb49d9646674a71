package fingerprint

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/visiq/visibility-cli/internal/model"
)

// Score weighting. Mention rate dominates; sentiment modulates. Both inputs
// are monotonic in the final score.
const (
	mentionWeight   = 0.7
	sentimentWeight = 0.3
)

// Analyze aggregates a slice of per-call results into one analysis record.
// It is pure and deterministic: identical inputs yield identical outputs.
// Callers must check Succeeded == 0 themselves; zero successes is a stage
// failure, not an Analyze error.
func Analyze(businessID string, results []model.FingerprintResult) model.FingerprintAnalysis {
	attempted := len(results)

	succeeded := 0
	mentions := 0
	pos, neg, classified := 0, 0, 0
	var rankSum, rankCount int

	for _, r := range results {
		if !r.Succeeded() {
			continue
		}
		succeeded++
		if !r.Mentioned {
			continue
		}
		mentions++
		classified++
		switch r.Sentiment {
		case model.SentimentPositive:
			pos++
		case model.SentimentNegative:
			neg++
		}
		if r.Rank != nil {
			rankSum += *r.Rank
			rankCount++
		}
	}

	// Errored calls hold their slot as non-mentions, so the rate is over
	// every attempted call.
	mentionRate := 0.0
	if attempted > 0 {
		mentionRate = float64(mentions) / float64(attempted)
	}

	// (posFrac - negFrac) normalized from [-1,1] to [0,100]. No classified
	// mentions reads as neutral.
	sentimentScore := 50.0
	if classified > 0 {
		posFrac := float64(pos) / float64(classified)
		negFrac := float64(neg) / float64(classified)
		sentimentScore = (posFrac - negFrac + 1) / 2 * 100
	}

	visibility := mentionWeight*mentionRate*100 + sentimentWeight*sentimentScore

	var avgRank *float64
	if rankCount > 0 {
		v := float64(rankSum) / float64(rankCount)
		avgRank = &v
	}

	return model.FingerprintAnalysis{
		ID:              uuid.New().String(),
		BusinessID:      businessID,
		VisibilityScore: visibility,
		MentionRate:     mentionRate,
		SentimentScore:  sentimentScore,
		AvgRank:         avgRank,
		Attempted:       attempted,
		Succeeded:       succeeded,
		Results:         results,
		Leaderboard:     BuildLeaderboard(results),
		CreatedAt:       time.Now().UTC(),
	}
}

// BuildLeaderboard tallies competitor mentions across the
// recommendation-category successes and places the target among them.
// Ordering is by mention count descending, ties broken by first-seen order.
func BuildLeaderboard(results []model.FingerprintResult) model.CompetitiveLeaderboard {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	var order []string

	recSuccesses := 0
	targetMentions := 0

	for _, r := range results {
		if r.Category != model.CategoryRecommendation || !r.Succeeded() {
			continue
		}
		recSuccesses++
		if r.Mentioned {
			targetMentions++
		}
		for _, name := range r.Competitors {
			key := fold.String(name)
			if _, ok := counts[key]; !ok {
				firstSeen[key] = len(order)
				order = append(order, name)
			}
			counts[key]++
		}
	}

	entries := make([]model.LeaderboardEntry, 0, len(order))
	for _, name := range order {
		key := fold.String(name)
		share := 0.0
		if recSuccesses > 0 {
			share = float64(counts[key]) / float64(recSuccesses)
		}
		entries = append(entries, model.LeaderboardEntry{
			Name:     name,
			Mentions: counts[key],
			Share:    share,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Mentions > entries[j].Mentions
	})

	lb := model.CompetitiveLeaderboard{
		Entries:        entries,
		TargetMentions: targetMentions,
		MarketPosition: model.PositionUnknown,
	}

	if targetMentions == 0 {
		return lb
	}

	rank := 1
	top := targetMentions
	for _, e := range entries {
		if e.Mentions > targetMentions {
			rank++
		}
		if e.Mentions > top {
			top = e.Mentions
		}
	}
	lb.TargetRank = &rank

	switch {
	case targetMentions >= top:
		lb.MarketPosition = model.PositionLeading
	case targetMentions >= top-1:
		lb.MarketPosition = model.PositionCompetitive
	default:
		lb.MarketPosition = model.PositionEmerging
	}
	return lb
}
