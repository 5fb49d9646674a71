package crawl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visiq/visibility-cli/internal/model"
	"github.com/visiq/visibility-cli/pkg/firecrawl"
)

const bakeryHTML = `<html><head>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": "Bakery",
  "name": "Acme Bakery GmbH",
  "description": "Traditional sourdough bakery in Kreuzberg.",
  "telephone": "+49 30 1234567",
  "foundingDate": "1987-04-01",
  "numberOfEmployees": {"@type": "QuantitativeValue", "value": 24},
  "address": {
    "streetAddress": "Bergmannstraße 12",
    "addressLocality": "Berlin",
    "postalCode": "10961",
    "addressCountry": "DE"
  },
  "sameAs": ["https://www.instagram.com/acmebakery", "https://example.org/press"]
}
</script>
</head><body>Welcome</body></html>`

func bakeryBusiness() model.Business {
	return model.Business{
		ID:   "b-1",
		Name: "Acme Bakery GmbH",
		URL:  "https://acme-bakery.example",
	}
}

func TestExtract_JSONLD(t *testing.T) {
	pages := []firecrawl.PageData{{
		URL:      "https://acme-bakery.example",
		Markdown: "# Acme Bakery\nContact: hello@acme-bakery.example",
		HTML:     bakeryHTML,
	}}

	data := Extract("b-1", bakeryBusiness(), pages)

	assert.Equal(t, "b-1", data.BusinessID)
	assert.Equal(t, "Traditional sourdough bakery in Kreuzberg.", data.Description)
	assert.Equal(t, "+49 30 1234567", data.Phone)
	assert.Equal(t, "hello@acme-bakery.example", data.Email)
	assert.Equal(t, "Bakery", data.Category)
	assert.Equal(t, 1987, data.FoundingYear)
	assert.Equal(t, 24, data.EmployeeCount)
	assert.Equal(t, "GmbH", data.LegalForm)
	assert.Equal(t, "Berlin", data.Address.City)
	assert.Equal(t, "Bergmannstraße 12", data.Address.Street)
	assert.NotEmpty(t, data.RawMarkup)

	// Only the social URL from sameAs survives.
	require.Len(t, data.SocialProfiles, 1)
	assert.Equal(t, "https://www.instagram.com/acmebakery", data.SocialProfiles[0])
}

func TestExtract_TextHeuristics(t *testing.T) {
	pages := []firecrawl.PageData{{
		URL: "https://widgets.example/about",
		Markdown: `About us: founded in 1952, our family business now counts 120 employees.
Email us at info@widgets.example or call +1 212 555 0134.
Follow us: https://www.facebook.com/widgetsinc and https://instagram.com/widgetsinc`,
	}}

	data := Extract("b-2", model.Business{ID: "b-2", Name: "Widgets Inc.", URL: "https://widgets.example"}, pages)

	assert.Equal(t, 1952, data.FoundingYear)
	assert.Equal(t, 120, data.EmployeeCount)
	assert.Equal(t, "info@widgets.example", data.Email)
	assert.NotEmpty(t, data.Phone)
	assert.Equal(t, "Inc", data.LegalForm)
	assert.Equal(t, []string{
		"https://www.facebook.com/widgetsinc",
		"https://instagram.com/widgetsinc",
	}, data.SocialProfiles)
}

func TestExtract_EmptyPages(t *testing.T) {
	data := Extract("b-3", model.Business{ID: "b-3", Name: "Quiet Co", URL: "https://quiet.example"}, nil)

	assert.Equal(t, "b-3", data.BusinessID)
	assert.Empty(t, data.Email)
	assert.Zero(t, data.FoundingYear)
	assert.Nil(t, data.SocialProfiles)
	assert.False(t, data.RetrievedAt.IsZero())
}

func TestExtract_ImplausibleFoundingYearIgnored(t *testing.T) {
	pages := []firecrawl.PageData{{Markdown: "founded in 3021 by time travelers"}}
	data := Extract("b-4", model.Business{ID: "b-4", Name: "Tomorrow Ltd"}, pages)
	assert.Zero(t, data.FoundingYear)
}
