package model

import (
	"time"

	"github.com/twpayne/go-geom"
)

// Wikidata property identifiers used by the entity builder.
const (
	PropInstanceOf     = "P31"
	PropOfficialName   = "P1448"
	PropWebsite        = "P856"
	PropCoordinates    = "P625"
	PropPhone          = "P1329"
	PropEmail          = "P968"
	PropStreetAddress  = "P6375"
	PropInception      = "P571"
	PropEmployees      = "P1128"
	PropIndustry       = "P452"
	PropLegalForm      = "P1454"
	PropHeadquarters   = "P159"
	PropTwitterHandle  = "P2002"
	PropInstagramUser  = "P2003"
	PropFacebookID     = "P2013"
	PropYouTubeChannel = "P2397"
	PropLinkedInID     = "P4264"
	PropTikTokUser     = "P7085"
)

// QidBusiness is the entity-type classification applied to every draft.
const QidBusiness = "Q4830453"

// ClaimValueType describes how a claim value is encoded.
type ClaimValueType string

const (
	ValueString     ClaimValueType = "string"
	ValueItem       ClaimValueType = "item" // a QID
	ValueQuantity   ClaimValueType = "quantity"
	ValueTime       ClaimValueType = "time"
	ValueCoordinate ClaimValueType = "coordinate"
	ValueURL        ClaimValueType = "url"
)

// ClaimValue is the typed value of a claim. Coordinate values carry a
// WGS84 point; drafts are built whole per publish attempt and never
// serialized, so the point needs no JSON shape.
type ClaimValue struct {
	Type   ClaimValueType `json:"type"`
	Text   string         `json:"text,omitempty"`
	Item   string         `json:"item,omitempty"`
	Amount float64        `json:"amount,omitempty"`
	Time   *time.Time     `json:"time,omitempty"`
	Point  *geom.Point    `json:"-"`
}

// Reference records where a claim's value was observed.
type Reference struct {
	SourceURL   string    `json:"source_url"`
	Title       string    `json:"title,omitempty"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// Claim is a single typed property statement.
type Claim struct {
	Property  string     `json:"property"`
	Value     ClaimValue `json:"value"`
	Reference *Reference `json:"reference,omitempty"`
}

// EntityDraft is a knowledge-graph entity under construction. It is built
// whole per publish attempt and never partially persisted.
type EntityDraft struct {
	Label       string             `json:"label"`
	Description string             `json:"description"`
	Claims      map[string][]Claim `json:"claims"`
}

// Add appends a claim under its property.
func (d *EntityDraft) Add(c Claim) {
	if d.Claims == nil {
		d.Claims = make(map[string][]Claim)
	}
	d.Claims[c.Property] = append(d.Claims[c.Property], c)
}

// ClaimCount returns the total number of claims across all properties.
func (d *EntityDraft) ClaimCount() int {
	n := 0
	for _, claims := range d.Claims {
		n += len(claims)
	}
	return n
}

// NotabilityReference is one search hit judged by the notability gate.
type NotabilityReference struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Domain      string `json:"domain"`
	Serious     bool   `json:"serious"`
	Independent bool   `json:"independent"`
	Reason      string `json:"reason,omitempty"`
}

// NotabilityVerdict is the outcome of a notability assessment. Verdicts are
// computed per publish attempt; a re-assessment supersedes the prior verdict.
type NotabilityVerdict struct {
	BusinessID  string                `json:"business_id"`
	Passed      bool                  `json:"passed"`
	Confidence  float64               `json:"confidence"`
	References  []NotabilityReference `json:"references"`
	Reasons     []string              `json:"reasons,omitempty"`
	Suggestions []string              `json:"suggestions,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
}

// SeriousCount returns the number of references classified both serious and
// independent.
func (v *NotabilityVerdict) SeriousCount() int {
	n := 0
	for _, ref := range v.References {
		if ref.Serious && ref.Independent {
			n++
		}
	}
	return n
}
