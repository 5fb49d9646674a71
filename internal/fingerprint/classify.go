package fingerprint

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/visiq/visibility-cli/internal/model"
)

var fold = cases.Fold()

// legalSuffixes are trailing company-form tokens stripped before matching,
// so "Acme Bakery GmbH" is still detected when a model writes "Acme Bakery".
var legalSuffixes = []string{
	"gmbh", "ag", "kg", "ug", "e.v.", "ev", "llc", "inc", "inc.", "ltd", "ltd.", "co", "co.", "corp", "corp.",
}

// normalizeName folds case and drops a trailing legal-form token.
func normalizeName(name string) string {
	n := fold.String(strings.TrimSpace(name))
	for _, suffix := range legalSuffixes {
		if trimmed, ok := strings.CutSuffix(n, " "+suffix); ok {
			n = strings.TrimSpace(trimmed)
			break
		}
	}
	return n
}

// DetectMention reports whether the response text mentions the business,
// using case-folded substring matching on both the full and legal-form
// stripped name.
func DetectMention(response, name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	text := fold.String(response)
	if strings.Contains(text, fold.String(strings.TrimSpace(name))) {
		return true
	}
	short := normalizeName(name)
	return short != "" && strings.Contains(text, short)
}

var positiveWords = []string{
	"excellent", "outstanding", "great", "best", "popular", "beloved", "renowned",
	"highly rated", "well regarded", "well-regarded", "recommended", "top-rated",
	"famous", "praised", "loved", "favorite", "favourite", "high quality", "friendly",
	"reliable", "trusted", "award",
}

var negativeWords = []string{
	"poor", "bad", "worst", "disappointing", "complaints", "negative reviews",
	"avoid", "overpriced", "rude", "unreliable", "mixed reviews", "declining",
	"criticized", "criticised", "low rating", "unprofessional",
}

// ClassifySentiment scores the tone of a response toward the business with
// keyword tallies. It is deliberately a heuristic, not a second model call.
// Confidence reflects how one-sided the evidence is; a response with no
// signal words is neutral at low confidence.
func ClassifySentiment(response string) (model.Sentiment, float64) {
	text := fold.String(response)

	pos, neg := 0, 0
	for _, w := range positiveWords {
		pos += strings.Count(text, w)
	}
	for _, w := range negativeWords {
		neg += strings.Count(text, w)
	}

	total := pos + neg
	if total == 0 {
		return model.SentimentNeutral, 0.3
	}

	margin := float64(abs(pos-neg)) / float64(total)
	confidence := 0.5 + margin/2

	switch {
	case pos > neg:
		return model.SentimentPositive, confidence
	case neg > pos:
		return model.SentimentNegative, confidence
	default:
		return model.SentimentNeutral, 0.5
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// listItemPattern matches one entry of a numbered list: "1. Acme Bakery",
// "2) Bread & Butter - great sourdough", with optional markdown bold.
var listItemPattern = regexp.MustCompile(`(?m)^\s*(\d+)[.)]\s+(.+)$`)

// boldPattern strips markdown emphasis around a list entry name.
var boldPattern = regexp.MustCompile(`\*\*([^*]+)\*\*`)

// ExtractRank returns the 1-based list position of the business in a
// numbered list, or nil when the response has no list or the business is
// absent from it. The recorded rank is the list's own numbering.
func ExtractRank(response, name string) *int {
	for _, item := range parseListItems(response) {
		if DetectMention(item.text, name) {
			rank := item.number
			return &rank
		}
	}
	return nil
}

// ExtractCompetitors returns the other business names appearing in the
// response's numbered list, in list order, excluding the target.
func ExtractCompetitors(response, targetName string) []string {
	var out []string
	seen := make(map[string]bool)

	for _, item := range parseListItems(response) {
		name := itemName(item.text)
		if name == "" || DetectMention(name, targetName) || DetectMention(targetName, name) {
			continue
		}
		key := fold.String(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, name)
	}
	return out
}

type listItem struct {
	number int
	text   string
}

func parseListItems(response string) []listItem {
	var items []listItem
	for _, m := range listItemPattern.FindAllStringSubmatch(response, -1) {
		n := 0
		for _, c := range m[1] {
			n = n*10 + int(c-'0')
		}
		items = append(items, listItem{number: n, text: m[2]})
	}
	return items
}

// itemName isolates the business name at the head of a list entry, cutting
// any trailing description after a separator.
func itemName(text string) string {
	text = boldPattern.ReplaceAllString(text, "$1")
	for _, sep := range []string{" - ", " – ", " — ", ": ", " ("} {
		if idx := strings.Index(text, sep); idx >= 0 {
			text = text[:idx]
		}
	}
	return strings.Trim(strings.TrimSpace(text), ".,;")
}
