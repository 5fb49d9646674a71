package qid

import (
	_ "embed"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed static.yaml
var staticYAML []byte

// staticTable is the compiled-in resolution tier: well-known locations, legal
// forms and industries that never need a network round trip.
type staticTable struct {
	Cities     map[string]string `yaml:"cities"`
	Regions    map[string]string `yaml:"regions"`
	Countries  map[string]string `yaml:"countries"`
	LegalForms map[string]string `yaml:"legal_forms"`
	Industries map[string]string `yaml:"industries"`
}

func loadStaticTable() (map[string]string, error) {
	var table staticTable
	if err := yaml.Unmarshal(staticYAML, &table); err != nil {
		return nil, eris.Wrap(err, "qid: parse static table")
	}

	out := make(map[string]string)
	sections := map[Kind]map[string]string{
		KindCity:      table.Cities,
		KindRegion:    table.Regions,
		KindCountry:   table.Countries,
		KindLegalForm: table.LegalForms,
		KindIndustry:  table.Industries,
	}
	for kind, entries := range sections {
		for text, q := range entries {
			out[cacheKey(kind, text)] = q
		}
	}
	return out, nil
}
