package fingerprint

import (
	"fmt"
	"strings"

	"github.com/visiq/visibility-cli/internal/model"
)

// systemPrompt keeps responses compact and list-shaped where the category
// calls for it.
const systemPrompt = "You are a knowledgeable local business assistant. Answer concisely and factually. When asked for recommendations, reply with a numbered list of business names, best first."

// BuildPrompt renders the user prompt for one cell of the fingerprint
// matrix. Crawled context, when available, sharpens the factual and opinion
// questions; the recommendation question deliberately omits the business
// name so the response reflects unprompted visibility.
func BuildPrompt(category model.PromptCategory, b model.Business, crawled *model.CrawledData) string {
	location := b.Location.String()
	if location == "" {
		location = "their local market"
	}

	switch category {
	case model.CategoryFactual:
		prompt := fmt.Sprintf("What do you know about %s, a business located in %s?", b.Name, location)
		if crawled != nil && crawled.Category != "" {
			prompt = fmt.Sprintf("What do you know about %s, a %s located in %s?",
				b.Name, strings.ToLower(crawled.Category), location)
		}
		return prompt

	case model.CategoryOpinion:
		return fmt.Sprintf("How is %s in %s generally regarded? Summarize its reputation among customers.", b.Name, location)

	case model.CategoryRecommendation:
		subject := "businesses"
		if crawled != nil && crawled.Category != "" {
			subject = strings.ToLower(crawled.Category) + " businesses"
		} else if crawled != nil && crawled.Industry != "" {
			subject = strings.ToLower(crawled.Industry) + " businesses"
		}
		return fmt.Sprintf("What are the best %s in %s? List the top options as a numbered list.", subject, location)

	default:
		return fmt.Sprintf("Tell me about %s in %s.", b.Name, location)
	}
}
