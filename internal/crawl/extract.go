package crawl

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/visiq/visibility-cli/internal/model"
	"github.com/visiq/visibility-cli/pkg/firecrawl"
)

var (
	jsonLDPattern = regexp.MustCompile(`(?is)<script[^>]*type\s*=\s*["']application/ld\+json["'][^>]*>(.*?)</script>`)
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern  = regexp.MustCompile(`\+?[0-9][0-9 ()\-/.]{6,18}[0-9]`)

	// foundingPattern matches prose like "founded in 1987", "est. 1952",
	// "gegründet 1901", "since 1978".
	foundingPattern = regexp.MustCompile(`(?i)(?:founded(?: in)?|established(?: in)?|est\.|gegründet|since|seit)\s+(\d{4})`)

	// employeePattern matches "120 employees", "ca. 40 Mitarbeiter".
	employeePattern = regexp.MustCompile(`(?i)(\d{1,6})\+?\s*(?:employees|mitarbeiter)`)

	legalFormPattern = regexp.MustCompile(`\b(GmbH & Co\. KG|GmbH|AG|KG|UG|e\.V\.|LLC|Ltd\.?|Inc\.?)\b`)
)

// socialHosts maps a profile host to its canonical form. Order matters for
// stable SocialProfiles output.
var socialHosts = []string{
	"facebook.com", "instagram.com", "twitter.com", "x.com",
	"linkedin.com", "youtube.com", "tiktok.com",
}

var socialURLPattern = regexp.MustCompile(`https?://(?:www\.)?(?:facebook\.com|instagram\.com|twitter\.com|x\.com|linkedin\.com|youtube\.com|tiktok\.com)/[A-Za-z0-9_.@/\-]+`)

// jsonLDDoc is the subset of schema.org LocalBusiness/Organization markup
// the extractor reads.
type jsonLDDoc struct {
	Type         any    `json:"@type"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Telephone    string `json:"telephone"`
	Email        string `json:"email"`
	FoundingDate string `json:"foundingDate"`
	Address      *struct {
		StreetAddress   string `json:"streetAddress"`
		AddressLocality string `json:"addressLocality"`
		AddressRegion   string `json:"addressRegion"`
		PostalCode      string `json:"postalCode"`
		AddressCountry  string `json:"addressCountry"`
	} `json:"address"`
	NumberOfEmployees any      `json:"numberOfEmployees"`
	SameAs            []string `json:"sameAs"`
}

// Extract distills a set of crawled pages into one immutable CrawledData
// record. Structured JSON-LD markup wins over text heuristics wherever both
// are present.
func Extract(businessID string, b model.Business, pages []firecrawl.PageData) model.CrawledData {
	data := model.CrawledData{
		BusinessID:  businessID,
		Name:        b.Name,
		SourceURL:   b.URL,
		RetrievedAt: time.Now().UTC(),
	}

	var allText strings.Builder
	var rawBlocks []string

	for _, page := range pages {
		allText.WriteString(page.Markdown)
		allText.WriteString("\n")

		for _, m := range jsonLDPattern.FindAllStringSubmatch(page.HTML, -1) {
			block := strings.TrimSpace(m[1])
			rawBlocks = append(rawBlocks, block)
			applyJSONLD(&data, block)
		}
	}
	data.RawMarkup = strings.Join(rawBlocks, "\n")

	text := allText.String()
	if data.Email == "" {
		data.Email = firstMatch(emailPattern, text)
	}
	if data.Phone == "" {
		data.Phone = strings.TrimSpace(firstMatch(phonePattern, text))
	}
	if data.FoundingYear == 0 {
		data.FoundingYear = extractFoundingYear(text)
	}
	if data.EmployeeCount == 0 {
		data.EmployeeCount = extractEmployeeCount(text)
	}
	if data.LegalForm == "" {
		data.LegalForm = firstMatch(legalFormPattern, b.Name+" "+text)
	}

	data.SocialProfiles = mergeSocialProfiles(data.SocialProfiles, text)
	return data
}

func applyJSONLD(data *model.CrawledData, block string) {
	var doc jsonLDDoc
	if err := json.Unmarshal([]byte(block), &doc); err != nil {
		// Some sites embed arrays of documents.
		var docs []jsonLDDoc
		if err := json.Unmarshal([]byte(block), &docs); err != nil || len(docs) == 0 {
			return
		}
		doc = docs[0]
	}

	if data.Description == "" {
		data.Description = doc.Description
	}
	if data.Phone == "" {
		data.Phone = doc.Telephone
	}
	if data.Email == "" {
		data.Email = doc.Email
	}
	if data.Category == "" {
		data.Category = typeName(doc.Type)
	}
	if data.FoundingYear == 0 && len(doc.FoundingDate) >= 4 {
		if year, err := strconv.Atoi(doc.FoundingDate[:4]); err == nil {
			data.FoundingYear = year
		}
	}
	if data.EmployeeCount == 0 {
		data.EmployeeCount = employeeNumber(doc.NumberOfEmployees)
	}
	if doc.Address != nil && data.Address.City == "" {
		data.Address = model.Address{
			Street:     doc.Address.StreetAddress,
			City:       doc.Address.AddressLocality,
			Region:     doc.Address.AddressRegion,
			PostalCode: doc.Address.PostalCode,
			Country:    doc.Address.AddressCountry,
		}
	}
	for _, u := range doc.SameAs {
		if isSocialURL(u) {
			data.SocialProfiles = append(data.SocialProfiles, u)
		}
	}
}

// typeName renders a schema.org @type into a human category ("BakeryShop"
// stays as-is; arrays take the first entry, skipping the generic
// Organization/LocalBusiness roots when something more specific follows).
func typeName(t any) string {
	switch v := t.(type) {
	case string:
		if v == "Organization" || v == "LocalBusiness" {
			return ""
		}
		return v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "Organization" && s != "LocalBusiness" {
				return s
			}
		}
	}
	return ""
}

func employeeNumber(n any) int {
	switch v := n.(type) {
	case float64:
		return int(v)
	case string:
		if count, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return count
		}
	case map[string]any:
		// schema.org QuantitativeValue
		if value, ok := v["value"].(float64); ok {
			return int(value)
		}
	}
	return 0
}

func extractFoundingYear(text string) int {
	m := foundingPattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	year, err := strconv.Atoi(m[1])
	if err != nil || year < 1200 || year > time.Now().Year() {
		return 0
	}
	return year
}

func extractEmployeeCount(text string) int {
	m := employeePattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	count, _ := strconv.Atoi(m[1])
	return count
}

func firstMatch(p *regexp.Regexp, text string) string {
	return p.FindString(text)
}

func isSocialURL(u string) bool {
	lower := strings.ToLower(u)
	for _, host := range socialHosts {
		if strings.Contains(lower, host+"/") {
			return true
		}
	}
	return false
}

func mergeSocialProfiles(existing []string, text string) []string {
	seen := make(map[string]bool, len(existing))
	out := make([]string, 0, len(existing))
	for _, u := range existing {
		key := strings.TrimRight(strings.ToLower(u), "/")
		if !seen[key] {
			seen[key] = true
			out = append(out, u)
		}
	}
	for _, u := range socialURLPattern.FindAllString(text, -1) {
		key := strings.TrimRight(strings.ToLower(u), "/")
		if !seen[key] {
			seen[key] = true
			out = append(out, strings.TrimRight(u, "/"))
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
