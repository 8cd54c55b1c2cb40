package models

import (
	"fmt"
	"strings"
	"time"
)

// Layer identifies the kind of geometry a record belongs to.
type Layer string

const (
	LayerParcel  Layer = "parcel"
	LayerAddress Layer = "address"
	LayerZone    Layer = "zone"
	LayerOverlay Layer = "overlay"
)

// Layers lists every layer in ingestion order.
var Layers = []Layer{LayerParcel, LayerAddress, LayerZone, LayerOverlay}

// ParseLayer parses a layer name.
func ParseLayer(s string) (Layer, error) {
	switch l := Layer(strings.ToLower(strings.TrimSpace(s))); l {
	case LayerParcel, LayerAddress, LayerZone, LayerOverlay:
		return l, nil
	default:
		return "", fmt.Errorf("unknown layer %q", s)
	}
}

// Scope is one extraction unit: a layer within an administrative region (LGA).
// Ingestion diffs, stages and promotes per scope.
type Scope struct {
	Region string `json:"region"`
	Layer  Layer  `json:"layer"`
}

// String returns "region/layer".
func (s Scope) String() string {
	return s.Region + "/" + string(s.Layer)
}

// Attribute keys used across layers.
const (
	AttrLot         = "lot"
	AttrPlan        = "plan"
	AttrLotPlan     = "lot_plan"
	AttrParcelClass = "parcel_class"
	AttrTenure      = "tenure"
	AttrLocality    = "locality"
	AttrAddress     = "address"
	AttrZoneCode    = "zone_code"
	AttrZoneShort   = "zone_short"
	AttrScheme      = "planning_scheme"
	AttrOverlayType = "overlay_type"
	AttrOverlayCode = "overlay_code"
	AttrOverlayName = "overlay_name"
	AttrHeightM     = "height_m"
)

// GeometryRecord is one versioned row of the Geometry Store, keyed by its
// stable business key within a layer.
type GeometryRecord struct {
	UpdatedAt  time.Time         `json:"updated_at"`
	DeletedAt  *time.Time        `json:"deleted_at,omitempty"`
	Attributes map[string]string `json:"attributes"`
	Geometry   Geometry          `json:"geometry"`
	Key        string            `json:"key"`
	Region     string            `json:"region"`
	Layer      Layer             `json:"layer"`
	Hash       string            `json:"hash"`
	Version    int64             `json:"version"`
}

// Scope returns the record's scope.
func (r *GeometryRecord) Scope() Scope {
	return Scope{Region: r.Region, Layer: r.Layer}
}

// Deleted reports whether the record has been soft-deleted.
func (r *GeometryRecord) Deleted() bool {
	return r.DeletedAt != nil
}

// Attr returns the first non-empty attribute among keys.
func (r *GeometryRecord) Attr(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r.Attributes[k]); v != "" {
			return v
		}
	}
	return ""
}

// Clone returns a shallow copy with its own attribute map.
func (r *GeometryRecord) Clone() *GeometryRecord {
	c := *r
	c.Attributes = make(map[string]string, len(r.Attributes))
	for k, v := range r.Attributes {
		c.Attributes[k] = v
	}
	return &c
}
