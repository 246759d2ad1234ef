package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/alfredjeanlab/venuesync/internal/model"
)

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		PlaceID          string `json:"place_id"`
		Geometry         struct {
			Location *struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
		AddressComponents []struct {
			LongName  string   `json:"long_name"`
			ShortName string   `json:"short_name"`
			Types     []string `json:"types"`
		} `json:"address_components"`
	} `json:"results"`
}

// geocode queries the Geocoding API. OVER_QUERY_LIMIT is retried like an
// HTTP 429; ZERO_RESULTS is ErrNoResult; any other non-OK status is a bad
// response.
func (r *Resolver) geocode(ctx context.Context, address string) (*model.Place, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("key", r.apiKey)
	target := r.geocodeURL + "?" + q.Encode()

	var out geocodeResponse
	err := r.request(ctx, "geocode", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return err
		}
		out = geocodeResponse{}
		if err := r.doJSON(req, "geocode", &out); err != nil {
			return err
		}
		switch out.Status {
		case "OK", "ZERO_RESULTS":
			return nil
		case "OVER_QUERY_LIMIT":
			return errRateLimitResponse
		default:
			r.logger.Error("geocoding API error status", "status", out.Status, "message", out.ErrorMessage)
			return fmt.Errorf("geocode: %w: status %s", ErrBadResponse, out.Status)
		}
	})
	if err != nil {
		return nil, err
	}
	if len(out.Results) == 0 {
		return nil, fmt.Errorf("%w: geocode for %q", ErrNoResult, address)
	}

	res := out.Results[0]
	place := &model.Place{
		FormattedAddress: res.FormattedAddress,
		PlaceID:          res.PlaceID,
	}
	if loc := res.Geometry.Location; loc != nil {
		place.Location = &model.LatLng{Lat: loc.Lat, Lng: loc.Lng}
	}
	comps := make([]component, len(res.AddressComponents))
	for i, c := range res.AddressComponents {
		comps[i] = component{Long: c.LongName, Short: c.ShortName, Types: c.Types}
	}
	applyComponents(place, comps)
	return place, nil
}
