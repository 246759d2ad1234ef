package geocode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/alfredjeanlab/venuesync/internal/model"
)

const placesFieldMask = "places.id,places.displayName,places.formattedAddress,places.location,places.addressComponents"

type searchTextRequest struct {
	TextQuery      string `json:"textQuery"`
	MaxResultCount int    `json:"maxResultCount"`
}

type searchTextResponse struct {
	Places []struct {
		ID          string `json:"id"`
		DisplayName struct {
			Text string `json:"text"`
		} `json:"displayName"`
		FormattedAddress string `json:"formattedAddress"`
		Location         *struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"location"`
		AddressComponents []struct {
			LongText  string   `json:"longText"`
			ShortText string   `json:"shortText"`
			Types     []string `json:"types"`
		} `json:"addressComponents"`
	} `json:"places"`
}

// searchText queries the Places text search and returns the first match.
func (r *Resolver) searchText(ctx context.Context, address string) (*model.Place, error) {
	payload, err := json.Marshal(searchTextRequest{TextQuery: address, MaxResultCount: 1})
	if err != nil {
		return nil, err
	}

	var out searchTextResponse
	err = r.request(ctx, "places_search", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.placesURL, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Goog-Api-Key", r.apiKey)
		req.Header.Set("X-Goog-FieldMask", placesFieldMask)
		out = searchTextResponse{}
		return r.doJSON(req, "places_search", &out)
	})
	if err != nil {
		return nil, err
	}
	if len(out.Places) == 0 {
		return nil, fmt.Errorf("%w: places search for %q", ErrNoResult, address)
	}

	p := out.Places[0]
	place := &model.Place{
		Name:             p.DisplayName.Text,
		FormattedAddress: p.FormattedAddress,
		PlaceID:          p.ID,
	}
	if p.Location != nil {
		place.Location = &model.LatLng{Lat: p.Location.Latitude, Lng: p.Location.Longitude}
	}
	comps := make([]component, len(p.AddressComponents))
	for i, c := range p.AddressComponents {
		comps[i] = component{Long: c.LongText, Short: c.ShortText, Types: c.Types}
	}
	applyComponents(place, comps)
	return place, nil
}
