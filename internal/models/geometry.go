package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Geometry wraps an orb geometry so it can travel through PostGIS and JSON.
// Coordinates are WGS84 lon/lat (SRID 4326).
type Geometry struct {
	orb.Geometry
}

// NewGeometry wraps g.
func NewGeometry(g orb.Geometry) Geometry {
	return Geometry{Geometry: g}
}

// IsEmpty reports whether no geometry is set.
func (g Geometry) IsEmpty() bool {
	return g.Geometry == nil
}

// Scan implements sql.Scanner for columns selected with ST_AsGeoJSON.
func (g *Geometry) Scan(value interface{}) error {
	if value == nil {
		g.Geometry = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("failed to scan Geometry: expected []byte or string, got %T", value)
	}

	return g.UnmarshalJSON(data)
}

// Value implements driver.Valuer. The GeoJSON string is meant for
// ST_GeomFromGeoJSON in raw SQL.
func (g Geometry) Value() (driver.Value, error) {
	if g.Geometry == nil {
		return nil, nil
	}
	data, err := g.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// MarshalJSON emits a GeoJSON geometry object.
func (g Geometry) MarshalJSON() ([]byte, error) {
	if g.Geometry == nil {
		return []byte("null"), nil
	}
	data, err := json.Marshal(geojson.NewGeometry(g.Geometry))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal geometry to GeoJSON: %w", err)
	}
	return data, nil
}

// UnmarshalJSON parses a GeoJSON geometry object.
func (g *Geometry) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		g.Geometry = nil
		return nil
	}
	parsed, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return fmt.Errorf("failed to unmarshal geometry: %w", err)
	}
	g.Geometry = parsed.Geometry()
	return nil
}
