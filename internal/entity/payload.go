package entity

import (
	"fmt"
	"strings"

	"github.com/visiq/visibility-cli/internal/model"
	"github.com/visiq/visibility-cli/pkg/wikibase"
)

// Reference properties in the Wikibase data model.
const (
	propReferenceURL = "P854" // reference URL
	propRetrieved    = "P813" // retrieved
	propTitle        = "P1476"
)

// ToPayload renders a draft into the wbeditentity document shape.
func ToPayload(d *model.EntityDraft) wikibase.EntityPayload {
	payload := wikibase.EntityPayload{
		Labels: map[string]wikibase.LabelValue{
			"en": {Language: "en", Value: d.Label},
		},
		Descriptions: map[string]wikibase.LabelValue{
			"en": {Language: "en", Value: d.Description},
		},
		Claims: make(map[string][]any),
	}
	for property, claims := range d.Claims {
		for _, c := range claims {
			payload.Claims[property] = append(payload.Claims[property], claimDocument(c))
		}
	}
	return payload
}

func claimDocument(c model.Claim) map[string]any {
	doc := map[string]any{
		"mainsnak": snak(c.Property, c.Value),
		"type":     "statement",
		"rank":     "normal",
	}
	if c.Reference != nil {
		doc["references"] = []any{referenceDocument(c.Reference)}
	}
	return doc
}

func referenceDocument(r *model.Reference) map[string]any {
	snaks := map[string]any{
		propReferenceURL: []any{snak(propReferenceURL, model.ClaimValue{Type: model.ValueURL, Text: r.SourceURL})},
		propRetrieved:    []any{snak(propRetrieved, model.ClaimValue{Type: model.ValueTime, Time: &r.RetrievedAt})},
	}
	order := []string{propReferenceURL, propRetrieved}
	if r.Title != "" {
		snaks[propTitle] = []any{map[string]any{
			"snaktype": "value",
			"property": propTitle,
			"datavalue": map[string]any{
				"value": map[string]any{"text": r.Title, "language": "en"},
				"type":  "monolingualtext",
			},
		}}
		order = append(order, propTitle)
	}
	return map[string]any{"snaks": snaks, "snaks-order": order}
}

func snak(property string, v model.ClaimValue) map[string]any {
	return map[string]any{
		"snaktype":  "value",
		"property":  property,
		"datavalue": datavalue(v),
	}
}

func datavalue(v model.ClaimValue) map[string]any {
	switch v.Type {
	case model.ValueItem:
		return map[string]any{
			"value": map[string]any{
				"entity-type": "item",
				"id":          v.Item,
			},
			"type": "wikibase-entityid",
		}
	case model.ValueQuantity:
		return map[string]any{
			"value": map[string]any{
				"amount": fmt.Sprintf("%+g", v.Amount),
				"unit":   "1",
			},
			"type": "quantity",
		}
	case model.ValueTime:
		precision := 9 // year
		timestamp := "+0000-00-00T00:00:00Z"
		if v.Time != nil {
			timestamp = fmt.Sprintf("+%04d-%02d-%02dT00:00:00Z", v.Time.Year(), v.Time.Month(), v.Time.Day())
			precision = 11 // day
			if v.Time.Month() == 1 && v.Time.Day() == 1 {
				// Year-granular inception dates round-trip as years.
				timestamp = fmt.Sprintf("+%04d-00-00T00:00:00Z", v.Time.Year())
				precision = 9
			}
		}
		return map[string]any{
			"value": map[string]any{
				"time":          timestamp,
				"timezone":      0,
				"precision":     precision,
				"calendarmodel": "http://www.wikidata.org/entity/Q1985727",
			},
			"type": "time",
		}
	case model.ValueCoordinate:
		lat, lon := 0.0, 0.0
		if v.Point != nil {
			lat, lon = v.Point.Y(), v.Point.X()
		}
		return map[string]any{
			"value": map[string]any{
				"latitude":  lat,
				"longitude": lon,
				"precision": 0.0001,
				"globe":     "http://www.wikidata.org/entity/Q2",
			},
			"type": "globecoordinate",
		}
	default: // string, url
		return map[string]any{
			"value": strings.TrimSpace(v.Text),
			"type":  "string",
		}
	}
}
