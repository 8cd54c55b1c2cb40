package models

// EnvelopeFlag annotates a successful envelope.
type EnvelopeFlag string

const (
	FlagSubMinimumLot    EnvelopeFlag = "sub_minimum_lot"
	FlagReducedPrecision EnvelopeFlag = "reduced_precision"
)

// SetbackMethod records how buildable area was derived.
type SetbackMethod string

const (
	SetbackOriented SetbackMethod = "oriented"
	SetbackUniform  SetbackMethod = "uniform"
)

// Constraint is an overlay-derived development constraint.
type Constraint struct {
	Type       string `json:"type"`
	OverlayKey string `json:"overlay_key"`
	Text       string `json:"text"`
}

// Subdivision describes whether a lot could be split under the zone's
// minimum lot size.
type Subdivision struct {
	MinLotSizeSqm float64 `json:"min_lot_size_sqm"`
	MaxNewLots    int     `json:"max_new_lots"`
	CanSubdivide  bool    `json:"can_subdivide"`
}

// BuildableEnvelope is the computed development capacity of a parcel. Nil
// numeric fields are undefined because the governing rule is missing.
type BuildableEnvelope struct {
	MaxFootprintSqm       *float64       `json:"max_footprint_sqm"`
	BuildableAreaSqm      *float64       `json:"buildable_area_after_setbacks_sqm"`
	EffectiveFootprintSqm *float64       `json:"effective_footprint_sqm"`
	MaxGFASqm             *float64       `json:"max_gfa_sqm"`
	MaxDwellings          *int           `json:"max_dwellings"`
	MaxHeightM            *float64       `json:"max_height_m"`
	MaxStoreys            *int           `json:"max_storeys"`
	Subdivision           *Subdivision   `json:"subdivision,omitempty"`
	LotPlan               string         `json:"lot_plan"`
	ZoneCode              string         `json:"zone_code"`
	HeightSource          string         `json:"height_source,omitempty"`
	SetbackMethod         SetbackMethod  `json:"setback_method,omitempty"`
	Flags                 []EnvelopeFlag `json:"flags"`
	Constraints           []Constraint   `json:"constraints"`
	ComplianceIssues      []string       `json:"compliance_issues"`
	ParcelAreaSqm         float64        `json:"parcel_area_sqm"`
	Confidence            float64        `json:"confidence"`
	LotCompliant          bool           `json:"lot_compliant"`
}

// HasFlag reports whether f is set.
func (e *BuildableEnvelope) HasFlag(f EnvelopeFlag) bool {
	for _, x := range e.Flags {
		if x == f {
			return true
		}
	}
	return false
}
