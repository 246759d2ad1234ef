package model

// Named is a name/code pair from a mapping API address component.
type Named struct {
	Name string `json:"name,omitempty"`
	Code string `json:"code,omitempty"`
}

// LatLng is a coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Place is a normalized address resolution result. Any field may be empty.
type Place struct {
	Name             string  `json:"name,omitempty"`
	FormattedAddress string  `json:"formatted_address,omitempty"`
	PlaceID          string  `json:"place_id,omitempty"`
	Location         *LatLng `json:"location,omitempty"`
	Country          Named   `json:"country"`
	City             Named   `json:"city"`
	State            string  `json:"state,omitempty"`
	PostalCode       string  `json:"postal_code,omitempty"`
}

// HasLocality reports whether both country and city names are known.
func (p *Place) HasLocality() bool {
	return p.Country.Name != "" && p.City.Name != ""
}

// Fill copies fields from o into p where p has none. Populated fields of p
// are never overwritten.
func (p *Place) Fill(o *Place) {
	if o == nil {
		return
	}
	if p.Name == "" {
		p.Name = o.Name
	}
	if p.FormattedAddress == "" {
		p.FormattedAddress = o.FormattedAddress
	}
	if p.PlaceID == "" {
		p.PlaceID = o.PlaceID
	}
	if p.Location == nil && o.Location != nil {
		loc := *o.Location
		p.Location = &loc
	}
	if p.Country.Name == "" {
		p.Country.Name = o.Country.Name
	}
	if p.Country.Code == "" {
		p.Country.Code = o.Country.Code
	}
	if p.City.Name == "" {
		p.City.Name = o.City.Name
	}
	if p.City.Code == "" {
		p.City.Code = o.City.Code
	}
	if p.State == "" {
		p.State = o.State
	}
	if p.PostalCode == "" {
		p.PostalCode = o.PostalCode
	}
}
