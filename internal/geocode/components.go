package geocode

import (
	"slices"

	"github.com/alfredjeanlab/venuesync/internal/model"
)

// component is an address component from either API.
type component struct {
	Long  string
	Short string
	Types []string
}

// cityTypes are tried in order; the first present wins.
var cityTypes = []string{"locality", "postal_town", "administrative_area_level_3", "administrative_area_level_2"}

// applyComponents fills country, city, state and postal code on p.
func applyComponents(p *model.Place, comps []component) {
	find := func(typ string) (component, bool) {
		for _, c := range comps {
			if slices.Contains(c.Types, typ) {
				return c, true
			}
		}
		return component{}, false
	}

	if c, ok := find("country"); ok {
		p.Country = model.Named{Name: c.Long, Code: c.Short}
	}
	for _, typ := range cityTypes {
		if c, ok := find(typ); ok {
			p.City = model.Named{Name: c.Long, Code: c.Short}
			break
		}
	}
	if c, ok := find("administrative_area_level_1"); ok {
		p.State = c.Long
	}
	if c, ok := find("postal_code"); ok {
		p.PostalCode = c.Long
	}
}
