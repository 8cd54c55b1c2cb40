package models

// ZoneCandidate is a zone intersecting a parcel with the share of the
// parcel's area it covers.
type ZoneCandidate struct {
	Key       string  `json:"key"`
	Code      string  `json:"code"`
	ShortCode string  `json:"short_code,omitempty"`
	Scheme    string  `json:"planning_scheme,omitempty"`
	AreaSqm   float64 `json:"area_sqm"`
	Fraction  float64 `json:"fraction"`
}

// OverlayHit is an overlay intersecting a parcel.
type OverlayHit struct {
	Attributes map[string]string `json:"attributes,omitempty"`
	Key        string            `json:"key"`
	Type       string            `json:"type"`
	Code       string            `json:"code,omitempty"`
	Name       string            `json:"name,omitempty"`
	AreaSqm    float64           `json:"area_sqm"`
	Fraction   float64           `json:"fraction"`
}

// ResolvedContext is a parcel's authoritative zone and applicable overlays,
// computed against one store version.
type ResolvedContext struct {
	Parcel        *Parcel         `json:"parcel"`
	Zone          *ZoneCandidate  `json:"zone"`
	Address       *AddressPoint   `json:"address,omitempty"`
	Candidates    []ZoneCandidate `json:"zone_candidates"`
	Overlays      []OverlayHit    `json:"overlays"`
	RegionVersion int64           `json:"region_version"`
}

// AddressPoint is the address associated with a parcel, if any.
type AddressPoint struct {
	Key     string  `json:"key"`
	Address string  `json:"address"`
	Lon     float64 `json:"lon"`
	Lat     float64 `json:"lat"`
}
