// Package entity assembles knowledge-graph entity drafts from crawled data
// and notability references. Drafts are built whole per publish attempt;
// attributes that cannot be sourced or resolved are omitted rather than
// emitted as unlinked text.
package entity

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/twpayne/go-geom"

	"github.com/visiq/visibility-cli/internal/model"
	"github.com/visiq/visibility-cli/internal/qid"
)

// Resolver is the QID lookup the builder consults for industry, legal form
// and headquarters claims.
type Resolver interface {
	Resolve(ctx context.Context, kind qid.Kind, text string) (string, bool)
}

// Builder constructs entity drafts.
type Builder struct {
	resolver Resolver
}

// NewBuilder returns a Builder using the given resolver. A nil resolver
// disables the QID-gated claims.
func NewBuilder(resolver Resolver) *Builder {
	return &Builder{resolver: resolver}
}

// socialProperties maps a profile host to the claim property carrying its
// handle.
var socialProperties = map[string]string{
	"twitter.com":   model.PropTwitterHandle,
	"x.com":         model.PropTwitterHandle,
	"instagram.com": model.PropInstagramUser,
	"facebook.com":  model.PropFacebookID,
	"youtube.com":   model.PropYouTubeChannel,
	"linkedin.com":  model.PropLinkedInID,
	"tiktok.com":    model.PropTikTokUser,
}

// Build produces the draft for one business. The minimal claim set
// (entity type, website, official name) is always present; everything else
// is conditional on source data and QID resolution.
func (b *Builder) Build(ctx context.Context, business model.Business, crawled *model.CrawledData, refs []model.NotabilityReference) *model.EntityDraft {
	draft := &model.EntityDraft{
		Label:       business.Name,
		Description: describe(business, crawled),
		Claims:      make(map[string][]model.Claim),
	}

	siteRef := b.sourceReference(business, crawled)

	draft.Add(model.Claim{
		Property:  model.PropInstanceOf,
		Value:     model.ClaimValue{Type: model.ValueItem, Item: model.QidBusiness},
		Reference: siteRef,
	})
	// The website claim is self-referential; it carries no reference.
	draft.Add(model.Claim{
		Property: model.PropWebsite,
		Value:    model.ClaimValue{Type: model.ValueURL, Text: business.URL},
	})
	draft.Add(model.Claim{
		Property:  model.PropOfficialName,
		Value:     model.ClaimValue{Type: model.ValueString, Text: business.Name},
		Reference: siteRef,
	})

	b.addCrawledClaims(draft, business, crawled, siteRef)
	b.addResolvedClaims(ctx, draft, business, crawled, siteRef)
	b.addNotabilityClaims(draft, refs)

	return draft
}

func (b *Builder) addCrawledClaims(draft *model.EntityDraft, business model.Business, crawled *model.CrawledData, siteRef *model.Reference) {
	if loc := business.Location; loc.Latitude != nil && loc.Longitude != nil {
		if p, ok := coordinatePoint(*loc.Latitude, *loc.Longitude); ok {
			draft.Add(model.Claim{
				Property: model.PropCoordinates,
				Value: model.ClaimValue{
					Type:  model.ValueCoordinate,
					Point: p,
				},
				Reference: siteRef,
			})
		}
	}

	if crawled == nil {
		return
	}

	if crawled.Phone != "" {
		draft.Add(model.Claim{
			Property:  model.PropPhone,
			Value:     model.ClaimValue{Type: model.ValueString, Text: crawled.Phone},
			Reference: siteRef,
		})
	}
	if crawled.Email != "" {
		draft.Add(model.Claim{
			Property:  model.PropEmail,
			Value:     model.ClaimValue{Type: model.ValueURL, Text: "mailto:" + crawled.Email},
			Reference: siteRef,
		})
	}
	if street := streetAddress(crawled.Address); street != "" {
		draft.Add(model.Claim{
			Property:  model.PropStreetAddress,
			Value:     model.ClaimValue{Type: model.ValueString, Text: street},
			Reference: siteRef,
		})
	}
	if crawled.FoundingYear > 0 {
		inception := time.Date(crawled.FoundingYear, 1, 1, 0, 0, 0, 0, time.UTC)
		draft.Add(model.Claim{
			Property:  model.PropInception,
			Value:     model.ClaimValue{Type: model.ValueTime, Time: &inception},
			Reference: siteRef,
		})
	}
	if crawled.EmployeeCount > 0 {
		draft.Add(model.Claim{
			Property:  model.PropEmployees,
			Value:     model.ClaimValue{Type: model.ValueQuantity, Amount: float64(crawled.EmployeeCount)},
			Reference: siteRef,
		})
	}

	for _, profile := range crawled.SocialProfiles {
		property, handle := parseSocialProfile(profile)
		if property == "" || handle == "" {
			continue
		}
		draft.Add(model.Claim{
			Property:  property,
			Value:     model.ClaimValue{Type: model.ValueString, Text: handle},
			Reference: siteRef,
		})
	}
}

// addResolvedClaims emits the QID-gated claims. Unresolved attributes are
// silently dropped.
func (b *Builder) addResolvedClaims(ctx context.Context, draft *model.EntityDraft, business model.Business, crawled *model.CrawledData, siteRef *model.Reference) {
	if b.resolver == nil {
		return
	}

	industry, legalForm := "", ""
	if crawled != nil {
		industry = crawled.Industry
		if industry == "" {
			industry = crawled.Category
		}
		legalForm = crawled.LegalForm
	}

	if industry != "" {
		if q, ok := b.resolver.Resolve(ctx, qid.KindIndustry, industry); ok {
			draft.Add(model.Claim{
				Property:  model.PropIndustry,
				Value:     model.ClaimValue{Type: model.ValueItem, Item: q},
				Reference: siteRef,
			})
		}
	}
	if legalForm != "" {
		if q, ok := b.resolver.Resolve(ctx, qid.KindLegalForm, legalForm); ok {
			draft.Add(model.Claim{
				Property:  model.PropLegalForm,
				Value:     model.ClaimValue{Type: model.ValueItem, Item: q},
				Reference: siteRef,
			})
		}
	}
	if business.Location.City != "" {
		if q, ok := b.resolver.Resolve(ctx, qid.KindCity, business.Location.City); ok {
			draft.Add(model.Claim{
				Property:  model.PropHeadquarters,
				Value:     model.ClaimValue{Type: model.ValueItem, Item: q},
				Reference: siteRef,
			})
		}
	}
}

// addNotabilityClaims attaches serious independent references as additional
// instance-of references, citing each source's title.
func (b *Builder) addNotabilityClaims(draft *model.EntityDraft, refs []model.NotabilityReference) {
	for _, ref := range refs {
		if !ref.Serious || !ref.Independent {
			continue
		}
		draft.Add(model.Claim{
			Property: model.PropInstanceOf,
			Value:    model.ClaimValue{Type: model.ValueItem, Item: model.QidBusiness},
			Reference: &model.Reference{
				SourceURL:   ref.URL,
				Title:       ref.Title,
				RetrievedAt: time.Now().UTC(),
			},
		})
	}
}

func (b *Builder) sourceReference(business model.Business, crawled *model.CrawledData) *model.Reference {
	ref := &model.Reference{SourceURL: business.URL, RetrievedAt: time.Now().UTC()}
	if crawled != nil {
		if crawled.SourceURL != "" {
			ref.SourceURL = crawled.SourceURL
		}
		if !crawled.RetrievedAt.IsZero() {
			ref.RetrievedAt = crawled.RetrievedAt
		}
	}
	return ref
}

func describe(business model.Business, crawled *model.CrawledData) string {
	kind := "business"
	if crawled != nil && crawled.Category != "" {
		kind = strings.ToLower(crawled.Category)
	}
	if loc := business.Location.String(); loc != "" {
		return fmt.Sprintf("%s in %s", kind, loc)
	}
	return kind
}

// wgs84Bounds is the valid coordinate envelope: lon/lat order, matching
// geom's XY axis layout.
var wgs84Bounds = geom.NewBounds(geom.XY).Set(-180, -90, 180, 90)

// coordinatePoint builds the SRID-4326 point for a lat/lon pair, rejecting
// NaN and pairs outside the WGS84 envelope.
func coordinatePoint(lat, lon float64) (*geom.Point, bool) {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return nil, false
	}
	if !wgs84Bounds.OverlapsPoint(geom.XY, geom.Coord{lon, lat}) {
		return nil, false
	}
	return geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(4326), true
}

func streetAddress(a model.Address) string {
	if a.Street == "" {
		return ""
	}
	parts := []string{a.Street}
	if a.PostalCode != "" || a.City != "" {
		parts = append(parts, strings.TrimSpace(a.PostalCode+" "+a.City))
	}
	return strings.Join(parts, ", ")
}

// parseSocialProfile maps a profile URL to its claim property and bare
// handle.
func parseSocialProfile(profile string) (property, handle string) {
	u, err := url.Parse(profile)
	if err != nil || u.Host == "" {
		return "", ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")

	property, ok := socialProperties[host]
	if !ok {
		return "", ""
	}

	path := strings.Trim(u.Path, "/")
	if path == "" {
		return "", ""
	}
	segments := strings.Split(path, "/")

	switch host {
	case "youtube.com":
		// youtube.com/channel/UC... or youtube.com/@handle
		if len(segments) >= 2 && segments[0] == "channel" {
			return property, segments[1]
		}
		return property, strings.TrimPrefix(segments[0], "@")
	case "linkedin.com":
		// linkedin.com/company/acme or linkedin.com/in/person
		if len(segments) >= 2 {
			return property, segments[1]
		}
		return property, segments[0]
	default:
		return property, strings.TrimPrefix(segments[0], "@")
	}
}
