package model

import "time"

// Status represents the lifecycle state of a business in the CFP pipeline.
type Status string

const (
	StatusPending       Status = "pending"
	StatusCrawling      Status = "crawling"
	StatusCrawled       Status = "crawled"
	StatusGenerating    Status = "generating"
	StatusFingerprinted Status = "fingerprinted"
	StatusPublishing    Status = "publishing"
	StatusPublished     Status = "published"
	StatusError         Status = "error"
)

// statusRank orders the forward path of the pipeline. StatusError sits
// outside the path and is reachable from any state.
var statusRank = map[Status]int{
	StatusPending:       0,
	StatusCrawling:      1,
	StatusCrawled:       2,
	StatusGenerating:    3,
	StatusFingerprinted: 4,
	StatusPublishing:    5,
	StatusPublished:     6,
}

// CanTransition reports whether moving from one status to another is legal.
// Transitions only move forward along the pipeline or into error; the sole
// backward edge is error → pending (reset and retry).
func CanTransition(from, to Status) bool {
	if to == StatusError {
		return from != StatusPublished
	}
	if from == StatusError {
		return to == StatusPending
	}
	fr, ok := statusRank[from]
	if !ok {
		return false
	}
	tr, ok := statusRank[to]
	if !ok {
		return false
	}
	return tr == fr+1
}

// Tier is the subscription tier of a business account.
type Tier string

const (
	TierFree   Tier = "free"
	TierPro    Tier = "pro"
	TierAgency Tier = "agency"
)

// AutoPublishEligible reports whether the tier qualifies for automatic
// publication after fingerprinting.
func (t Tier) AutoPublishEligible() bool {
	return t == TierPro || t == TierAgency
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t == TierFree || t == TierPro || t == TierAgency
}

// Location is the structured location of a business.
type Location struct {
	City      string   `json:"city,omitempty"`
	Region    string   `json:"region,omitempty"`
	Country   string   `json:"country,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// String renders the location as "city, region, country" skipping empty parts.
func (l Location) String() string {
	out := ""
	for _, part := range []string{l.City, l.Region, l.Country} {
		if part == "" {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += part
	}
	return out
}

// Business is the entity being driven through the CFP pipeline.
type Business struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	URL          string    `json:"url"`
	Location     Location  `json:"location"`
	Tier         Tier      `json:"tier"`
	Status       Status    `json:"status"`
	EntityID     string    `json:"entity_id,omitempty"` // knowledge-graph QID once published
	ErrorStage   string    `json:"error_stage,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CrawledData is the crawler's output for a business website. It is
// immutable once produced; the fingerprinting engine reads it as prompt
// context and the entity builder reads it as claim source.
type CrawledData struct {
	BusinessID     string    `json:"business_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	Email          string    `json:"email,omitempty"`
	Address        Address   `json:"address"`
	SocialProfiles []string  `json:"social_profiles,omitempty"`
	FoundingYear   int       `json:"founding_year,omitempty"`
	EmployeeCount  int       `json:"employee_count,omitempty"`
	Category       string    `json:"category,omitempty"`
	Industry       string    `json:"industry,omitempty"`
	LegalForm      string    `json:"legal_form,omitempty"`
	RawMarkup      string    `json:"raw_markup,omitempty"` // JSON-LD blocks found on the site
	SourceURL      string    `json:"source_url"`
	RetrievedAt    time.Time `json:"retrieved_at"`
}

// Address is a postal address extracted from crawled pages.
type Address struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}
