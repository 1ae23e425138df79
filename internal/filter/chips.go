package filter

import "github.com/jaakkos/gwp/internal/domain"

// Chip is one active-filter tag shown above a list view.
type Chip struct {
	FacetID string `json:"facet_id"`
	Label   string `json:"label"`
	Value   string `json:"value"`
}

// Chips returns one chip per active facet, in facet order.
func Chips(set domain.FilterSet, sel domain.Selection) []Chip {
	var chips []Chip
	for _, f := range set.Facets {
		v := sel.Value(f.ID)
		if v == "" {
			continue
		}
		chips = append(chips, Chip{FacetID: f.ID, Label: f.DisplayLabel(), Value: v})
	}
	return chips
}
