package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/alfredjeanlab/venuesync/internal/config"
	"github.com/alfredjeanlab/venuesync/internal/model"
)

// listingItem is what an HTML listing row contributes beyond name, address
// and link.
type listingItem struct {
	Schedule string `json:"schedule,omitempty"`
}

// htmlExtractor reads an HTML listing and each venue's detail page with CSS
// selectors. Pages come through fetch, directly or via a scraping service.
type htmlExtractor struct {
	listingURL *url.URL
	sel        *config.HTMLSelectors
	fetch      Fetcher
	logger     *slog.Logger
}

func newHTMLExtractor(listingURL string, sel *config.HTMLSelectors, fetch Fetcher, logger *slog.Logger) (*htmlExtractor, error) {
	u, err := url.Parse(listingURL)
	if err != nil {
		return nil, fmt.Errorf("listing url: %w", err)
	}
	return &htmlExtractor{listingURL: u, sel: sel, fetch: fetch, logger: logger}, nil
}

func (x *htmlExtractor) document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	body, err := x.fetch.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	return doc, nil
}

func (x *htmlExtractor) Discover(ctx context.Context) ([]model.DiscoveredVenue, error) {
	doc, err := x.document(ctx, x.listingURL.String())
	if err != nil {
		return nil, err
	}

	var out []model.DiscoveredVenue
	var marshalErr error
	doc.Find(x.sel.Item).EachWithBreak(func(i int, item *goquery.Selection) bool {
		name := text(item, x.sel.Name)
		if name == "" {
			x.logger.Warn("skipping listing item without a name", "index", i)
			return true
		}
		raw, err := json.Marshal(listingItem{Schedule: text(item, x.sel.Schedule)})
		if err != nil {
			marshalErr = err
			return false
		}
		out = append(out, model.DiscoveredVenue{
			Name:    name,
			Address: text(item, x.sel.Address),
			URL:     resolve(x.listingURL, attr(item, x.sel.Link, "href")),
			Raw:     raw,
		})
		return true
	})
	if marshalErr != nil {
		return nil, marshalErr
	}
	return out, nil
}

func (x *htmlExtractor) Extract(ctx context.Context, d model.DiscoveredVenue) (*model.NormalizedVenue, error) {
	var li listingItem
	if len(d.Raw) > 0 {
		if err := json.Unmarshal(d.Raw, &li); err != nil {
			return nil, fmt.Errorf("decode listing item: %w", err)
		}
	}
	nv := &model.NormalizedVenue{
		Venue: model.VenueAttrs{Name: d.Name, Address: d.Address},
		Event: model.EventAttrs{RawTitle: li.Schedule, SourceURL: d.URL},
	}
	if d.URL == "" {
		return nv, nil
	}

	ref, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("detail url: %w", err)
	}
	// Detail page links are relative to the detail page itself.
	base := x.listingURL.ResolveReference(ref)
	doc, err := x.document(ctx, base.String())
	if err != nil {
		return nil, err
	}
	page := doc.Selection
	ds := x.sel.Detail

	nv.Event.RawTitle = firstNonEmpty(text(page, ds.Schedule), nv.Event.RawTitle)
	nv.Event.StartTime = text(page, ds.StartTime)
	nv.Event.Description = text(page, ds.Description)
	nv.Event.HeroImageURL = resolve(base, attr(page, ds.HeroImage, "src"))
	nv.Event.PerformerName = text(page, ds.PerformerName)
	nv.Event.PerformerImageURL = resolve(base, attr(page, ds.PerformerImage, "src"))
	nv.Event.EntryFeeCents = ParseFee(text(page, ds.Fee))
	nv.Event.DayOfWeek = parseDayField(text(page, ds.DayOfWeek))

	nv.Venue.Address = firstNonEmpty(text(page, ds.Address), nv.Venue.Address)
	nv.Venue.Postcode = text(page, ds.Postcode)
	nv.Venue.Phone = phone(page, ds.Phone)
	nv.Venue.Website = resolve(base, attr(page, ds.Website, "href"))
	nv.Venue.Facebook, nv.Venue.Instagram = SocialLinks(doc)
	return nv, nil
}

// resolve makes ref absolute against base.
func resolve(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

func text(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return clean(s.Find(selector).First().Text())
}

func attr(s *goquery.Selection, selector, name string) string {
	if selector == "" {
		return ""
	}
	v, _ := s.Find(selector).First().Attr(name)
	return strings.TrimSpace(v)
}

// phone prefers a tel: link target over the element text.
func phone(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	el := s.Find(selector).First()
	if href, ok := el.Attr("href"); ok && strings.HasPrefix(href, "tel:") {
		return strings.TrimSpace(strings.TrimPrefix(href, "tel:"))
	}
	return clean(el.Text())
}
