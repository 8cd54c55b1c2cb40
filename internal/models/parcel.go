package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// ParcelClass is the cadastral cover type of a parcel.
type ParcelClass string

const (
	ParcelBase       ParcelClass = "Base"
	ParcelEasement   ParcelClass = "Easement"
	ParcelStrata     ParcelClass = "Strata"
	ParcelVolumetric ParcelClass = "Volumetric"
)

// ParseParcelClass maps feed values onto a ParcelClass. Unknown or empty
// values are treated as Base, which is how the cadastre reports most lots.
func ParseParcelClass(s string) ParcelClass {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easement":
		return ParcelEasement
	case "strata":
		return ParcelStrata
	case "volumetric":
		return ParcelVolumetric
	default:
		return ParcelBase
	}
}

// Parcel is a cadastral lot identified by lot/plan, e.g. "3/RP12345".
type Parcel struct {
	Geometry orb.MultiPolygon `json:"-"`
	LotPlan  string           `json:"lot_plan"`
	Lot      string           `json:"lot,omitempty"`
	Plan     string           `json:"plan,omitempty"`
	Class    ParcelClass      `json:"parcel_class"`
	Tenure   string           `json:"tenure,omitempty"`
	Region   string           `json:"region"`
	Locality string           `json:"locality,omitempty"`
	AreaSqm  float64          `json:"area_sqm"`
	Version  int64            `json:"version"`
}

// Zone is a planning-scheme zone polygon.
type Zone struct {
	Geometry  orb.MultiPolygon
	Key       string
	Code      string
	ShortCode string
	Scheme    string
	Region    string
}

// Overlay is an additive constraint polygon.
type Overlay struct {
	Geometry   orb.MultiPolygon
	Attributes map[string]string
	Key        string
	Type       string
	Code       string
	Name       string
	Region     string
}

// LotPlanKey builds the canonical parcel key from its parts.
func LotPlanKey(lot, plan string) string {
	lot, plan = strings.TrimSpace(lot), strings.TrimSpace(plan)
	if lot == "" || plan == "" {
		return ""
	}
	return lot + "/" + strings.ToUpper(plan)
}

// ParcelFromRecord builds a Parcel from a parcel-layer record. area is the
// authoritative geometric area in m², computed by the caller.
func ParcelFromRecord(r *GeometryRecord, mp orb.MultiPolygon, area float64) *Parcel {
	p := &Parcel{
		Geometry: mp,
		LotPlan:  r.Key,
		Lot:      r.Attr(AttrLot),
		Plan:     r.Attr(AttrPlan),
		Class:    ParseParcelClass(r.Attr(AttrParcelClass, "cover_typ")),
		Tenure:   r.Attr(AttrTenure),
		Region:   r.Region,
		Locality: r.Attr(AttrLocality),
		AreaSqm:  area,
		Version:  r.Version,
	}
	return p
}

// ZoneFromRecord builds a Zone from a zone-layer record.
func ZoneFromRecord(r *GeometryRecord, mp orb.MultiPolygon) *Zone {
	return &Zone{
		Geometry:  mp,
		Key:       r.Key,
		Code:      r.Attr(AttrZoneCode, "zone"),
		ShortCode: r.Attr(AttrZoneShort),
		Scheme:    r.Attr(AttrScheme),
		Region:    r.Region,
	}
}

// OverlayFromRecord builds an Overlay from an overlay-layer record.
func OverlayFromRecord(r *GeometryRecord, mp orb.MultiPolygon) *Overlay {
	return &Overlay{
		Geometry:   mp,
		Attributes: r.Attributes,
		Key:        r.Key,
		Type:       strings.ToLower(r.Attr(AttrOverlayType, "category")),
		Code:       r.Attr(AttrOverlayCode),
		Name:       r.Attr(AttrOverlayName, "label"),
		Region:     r.Region,
	}
}

// HeightLimit parses the height_m attribute of a height overlay.
func HeightLimit(attrs map[string]string) (float64, error) {
	v := strings.TrimSpace(attrs[AttrHeightM])
	if v == "" {
		return 0, fmt.Errorf("height overlay has no %s attribute", AttrHeightM)
	}
	h, err := strconv.ParseFloat(strings.TrimSuffix(strings.ToLower(v), "m"), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", AttrHeightM, v, err)
	}
	return h, nil
}
