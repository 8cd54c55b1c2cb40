package models

import "time"

// PlanningRule holds the buildability parameters for a zone within an LGA.
// Every numeric field is optional: nil means the source did not state it,
// which is different from zero.
type PlanningRule struct {
	UpdatedAt       time.Time `json:"updated_at" yaml:"-"`
	MaxHeightM      *float64  `json:"max_height_m,omitempty" yaml:"max_height_m" validate:"omitempty,gt=0"`
	MaxStoreys      *int      `json:"max_storeys,omitempty" yaml:"max_storeys" validate:"omitempty,gte=1"`
	MinLotSizeSqm   *float64  `json:"min_lot_size_sqm,omitempty" yaml:"min_lot_size_sqm" validate:"omitempty,gte=0"`
	MaxSiteCoverPct *float64  `json:"max_site_cover_pct,omitempty" yaml:"max_site_cover_pct" validate:"omitempty,gte=0,lte=100"`
	MinFrontageM    *float64  `json:"min_frontage_m,omitempty" yaml:"min_frontage_m" validate:"omitempty,gte=0"`
	FrontSetbackM   *float64  `json:"front_setback_m,omitempty" yaml:"front_setback_m" validate:"omitempty,gte=0"`
	SideSetbackM    *float64  `json:"side_setback_m,omitempty" yaml:"side_setback_m" validate:"omitempty,gte=0"`
	RearSetbackM    *float64  `json:"rear_setback_m,omitempty" yaml:"rear_setback_m" validate:"omitempty,gte=0"`
	Confidence      *float64  `json:"confidence,omitempty" yaml:"confidence" validate:"omitempty,gte=0,lte=1"`
	ZoneCode        string    `json:"zone_code" yaml:"zone_code" validate:"required"`
	LGA             string    `json:"lga" yaml:"lga" validate:"required"`
	PlanningScheme  string    `json:"planning_scheme,omitempty" yaml:"planning_scheme"`
	ZoneCategory    string    `json:"zone_category,omitempty" yaml:"zone_category"`
	DwellingDensity string    `json:"dwelling_density,omitempty" yaml:"dwelling_density"`
	Source          string    `json:"source,omitempty" yaml:"source"`
	AcceptedUses    []string  `json:"accepted_uses" yaml:"accepted_uses"`
	AssessableUses  []string  `json:"assessable_uses" yaml:"assessable_uses"`
	ProhibitedUses  []string  `json:"prohibited_uses" yaml:"prohibited_uses"`
	ID              int64     `json:"id" yaml:"-"`
}

// Clone returns a copy that shares no pointers with r.
func (r *PlanningRule) Clone() *PlanningRule {
	c := *r
	c.MaxHeightM = cloneFloat(r.MaxHeightM)
	c.MinLotSizeSqm = cloneFloat(r.MinLotSizeSqm)
	c.MaxSiteCoverPct = cloneFloat(r.MaxSiteCoverPct)
	c.MinFrontageM = cloneFloat(r.MinFrontageM)
	c.FrontSetbackM = cloneFloat(r.FrontSetbackM)
	c.SideSetbackM = cloneFloat(r.SideSetbackM)
	c.RearSetbackM = cloneFloat(r.RearSetbackM)
	c.Confidence = cloneFloat(r.Confidence)
	if r.MaxStoreys != nil {
		v := *r.MaxStoreys
		c.MaxStoreys = &v
	}
	c.AcceptedUses = append([]string(nil), r.AcceptedUses...)
	c.AssessableUses = append([]string(nil), r.AssessableUses...)
	c.ProhibitedUses = append([]string(nil), r.ProhibitedUses...)
	return &c
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
