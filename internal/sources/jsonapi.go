package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/alfredjeanlab/venuesync/internal/config"
	"github.com/alfredjeanlab/venuesync/internal/model"
	"github.com/alfredjeanlab/venuesync/internal/schedule"
)

// jsonExtractor reads a JSON listing endpoint. The listing carries every
// attribute, so Extract works from the item saved at discovery.
type jsonExtractor struct {
	listingURL string
	fields     *config.JSONFields
	fetch      Fetcher
	logger     *slog.Logger
}

func (x *jsonExtractor) Discover(ctx context.Context) ([]model.DiscoveredVenue, error) {
	body, err := x.fetch.Fetch(ctx, x.listingURL)
	if err != nil {
		return nil, err
	}
	doc, err := decodeJSON(body)
	if err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	root := doc
	if x.fields.Items != "" {
		var ok bool
		if root, ok = lookup(doc, x.fields.Items); !ok {
			return nil, fmt.Errorf("listing has no %q", x.fields.Items)
		}
	}
	items, ok := root.([]any)
	if !ok {
		return nil, fmt.Errorf("listing %q is %T, want an array", x.fields.Items, root)
	}

	out := make([]model.DiscoveredVenue, 0, len(items))
	for i, item := range items {
		name := stringAt(item, x.fields.Name)
		if name == "" {
			x.logger.Warn("skipping listing item without a name", "index", i)
			continue
		}
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		out = append(out, model.DiscoveredVenue{
			Name:    name,
			Address: stringAt(item, x.fields.Address),
			URL:     stringAt(item, x.fields.URL),
			Raw:     raw,
		})
	}
	return out, nil
}

func (x *jsonExtractor) Extract(_ context.Context, d model.DiscoveredVenue) (*model.NormalizedVenue, error) {
	if len(d.Raw) == 0 {
		return nil, fmt.Errorf("venue %q has no listing payload", d.Name)
	}
	item, err := decodeJSON(d.Raw)
	if err != nil {
		return nil, fmt.Errorf("decode listing item: %w", err)
	}
	f := x.fields

	nv := &model.NormalizedVenue{
		Venue: model.VenueAttrs{
			Name:     firstNonEmpty(stringAt(item, f.Name), d.Name),
			Address:  firstNonEmpty(stringAt(item, f.Address), d.Address),
			Postcode: stringAt(item, f.Postcode),
			Phone:    stringAt(item, f.Phone),
			Website:  stringAt(item, f.Website),
		},
		Event: model.EventAttrs{
			RawTitle:     stringAt(item, f.Schedule),
			StartTime:    stringAt(item, f.StartTime),
			Description:  stringAt(item, f.Description),
			HeroImageURL: stringAt(item, f.Image),
			SourceURL:    firstNonEmpty(stringAt(item, f.URL), d.URL),
		},
	}

	lat, latOK := floatAt(item, f.Latitude)
	lng, lngOK := floatAt(item, f.Longitude)
	if latOK && lngOK {
		nv.Venue.Latitude, nv.Venue.Longitude = &lat, &lng
	}
	nv.Event.DayOfWeek = dayAt(item, f.DayOfWeek)

	if v, ok := lookup(item, f.Fee); ok {
		switch fee := v.(type) {
		case json.Number:
			if n, err := fee.Float64(); err == nil {
				nv.Event.EntryFeeCents = feeFromNumber(n)
			}
		case string:
			nv.Event.EntryFeeCents = ParseFee(fee)
		}
	}
	return nv, nil
}

func decodeJSON(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// lookup walks a dot-separated path through decoded JSON. Numeric segments
// index arrays.
func lookup(v any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	for _, seg := range strings.Split(path, ".") {
		switch node := v.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			v = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			v = node[i]
		default:
			return nil, false
		}
	}
	return v, v != nil
}

func stringAt(v any, path string) string {
	got, ok := lookup(v, path)
	if !ok {
		return ""
	}
	switch s := got.(type) {
	case string:
		return clean(s)
	case json.Number:
		return s.String()
	case bool:
		return strconv.FormatBool(s)
	}
	return ""
}

func floatAt(v any, path string) (float64, bool) {
	got, ok := lookup(v, path)
	if !ok {
		return 0, false
	}
	switch n := got.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func dayAt(v any, path string) int {
	return parseDayField(stringAt(v, path))
}

// parseDayField accepts an ISO day number or a weekday name in any case.
// Anything else is 0, leaving the day to the schedule text.
func parseDayField(s string) int {
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= 7 {
		return n
	}
	if day, err := schedule.ParseDay(cases.Title(language.English).String(s)); err == nil {
		return day
	}
	return 0
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
