package store

import (
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/stwalsh4118/siteplan/internal/geom"
	"github.com/stwalsh4118/siteplan/internal/models"
)

// ScopeView is the promoted state of one scope. It holds every record ever
// promoted for the scope, soft-deleted ones included, and is never mutated
// after it has been published.
type ScopeView struct {
	PromotedAt time.Time
	Records    map[string]*models.GeometryRecord
	Scope      models.Scope
	CycleID    string
	Version    int64
	Live       int
	Deleted    int
}

func emptyView(scope models.Scope) *ScopeView {
	return &ScopeView{Scope: scope, Records: map[string]*models.GeometryRecord{}}
}

func newView(scope models.Scope, version int64, cycleID string, at time.Time, records map[string]*models.GeometryRecord) *ScopeView {
	v := &ScopeView{Scope: scope, Version: version, CycleID: cycleID, PromotedAt: at, Records: records}
	for _, r := range records {
		if r.Deleted() {
			v.Deleted++
		} else {
			v.Live++
		}
	}
	return v
}

// Get returns the record for key, soft-deleted or not.
func (v *ScopeView) Get(key string) (*models.GeometryRecord, bool) {
	r, ok := v.Records[key]
	return r, ok
}

// LiveRecords returns records that are not soft-deleted, sorted by key.
func (v *ScopeView) LiveRecords() []*models.GeometryRecord {
	out := make([]*models.GeometryRecord, 0, v.Live)
	for _, r := range v.Records {
		if !r.Deleted() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// RegionIndex is the spatial prefilter over one region's live zones and
// overlays.
type RegionIndex struct {
	Zones    *geom.Index[*models.Zone]
	Overlays *geom.Index[*models.Overlay]
	Region   string
	Version  int64
}

// Snapshot is an immutable, fully indexed view of the store at one version.
// Readers bind to a snapshot for the duration of a request.
type Snapshot struct {
	scopes    map[models.Scope]*ScopeView
	parcels   map[string]*models.Parcel
	addresses map[string]*models.AddressPoint
	regions   map[string]*RegionIndex
	Version   int64
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		scopes:    map[models.Scope]*ScopeView{},
		parcels:   map[string]*models.Parcel{},
		addresses: map[string]*models.AddressPoint{},
		regions:   map[string]*RegionIndex{},
	}
}

// Scope returns the view for scope. Scopes never promoted get an empty
// view at version 0.
func (s *Snapshot) Scope(scope models.Scope) *ScopeView {
	if v, ok := s.scopes[scope]; ok {
		return v
	}
	return emptyView(scope)
}

// Scopes returns every promoted scope, ordered by region then layer.
func (s *Snapshot) Scopes() []*ScopeView {
	out := make([]*ScopeView, 0, len(s.scopes))
	for _, v := range s.scopes {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scope.Region != out[j].Scope.Region {
			return out[i].Scope.Region < out[j].Scope.Region
		}
		return out[i].Scope.Layer < out[j].Scope.Layer
	})
	return out
}

// Parcel returns the live parcel with the given lot/plan key.
func (s *Snapshot) Parcel(lotPlan string) (*models.Parcel, bool) {
	p, ok := s.parcels[lotPlan]
	return p, ok
}

// Address returns the address point associated with a parcel.
func (s *Snapshot) Address(lotPlan string) (*models.AddressPoint, bool) {
	a, ok := s.addresses[lotPlan]
	return a, ok
}

// Region returns the spatial index for a region, or nil when nothing has
// been promoted for it.
func (s *Snapshot) Region(region string) *RegionIndex {
	return s.regions[region]
}

// RegionVersion is the highest scope version in a region. Any promotion
// touching the region increases it.
func (s *Snapshot) RegionVersion(region string) int64 {
	var v int64
	for _, l := range models.Layers {
		if sv, ok := s.scopes[models.Scope{Region: region, Layer: l}]; ok && sv.Version > v {
			v = sv.Version
		}
	}
	return v
}

// withScope returns a new snapshot with view replacing its scope. Only the
// derived state the scope feeds is rebuilt.
func (s *Snapshot) withScope(view *ScopeView) *Snapshot {
	next := &Snapshot{
		scopes:    make(map[models.Scope]*ScopeView, len(s.scopes)+1),
		parcels:   s.parcels,
		addresses: s.addresses,
		regions:   s.regions,
		Version:   s.Version,
	}
	for k, v := range s.scopes {
		next.scopes[k] = v
	}
	next.scopes[view.Scope] = view
	if view.Version > next.Version {
		next.Version = view.Version
	}

	region := view.Scope.Region
	switch view.Scope.Layer {
	case models.LayerParcel:
		next.parcels = rebuildParcels(s.parcels, view)
	case models.LayerAddress:
		next.addresses = rebuildAddresses(s.addresses, view)
	case models.LayerZone, models.LayerOverlay:
		regions := make(map[string]*RegionIndex, len(s.regions)+1)
		for k, v := range s.regions {
			regions[k] = v
		}
		regions[region] = next.buildRegion(region)
		next.regions = regions
		return next
	}

	// parcel and address promotions still bump the region version
	if idx, ok := s.regions[region]; ok {
		regions := make(map[string]*RegionIndex, len(s.regions))
		for k, v := range s.regions {
			regions[k] = v
		}
		cp := *idx
		cp.Version = next.RegionVersion(region)
		regions[region] = &cp
		next.regions = regions
	}
	return next
}

func rebuildParcels(prev map[string]*models.Parcel, view *ScopeView) map[string]*models.Parcel {
	out := make(map[string]*models.Parcel, len(prev))
	for k, p := range prev {
		if p.Region != view.Scope.Region {
			out[k] = p
		}
	}
	for _, r := range view.Records {
		if r.Deleted() {
			continue
		}
		mp, ok := geom.AsMultiPolygon(r.Geometry.Geometry)
		if !ok {
			continue
		}
		out[r.Key] = models.ParcelFromRecord(r, mp, geom.AreaSqm(mp))
	}
	return out
}

func rebuildAddresses(prev map[string]*models.AddressPoint, view *ScopeView) map[string]*models.AddressPoint {
	owned := make(map[string]bool)
	for _, r := range view.Records {
		owned[r.Key] = true
	}

	out := make(map[string]*models.AddressPoint, len(prev))
	for k, a := range prev {
		if !owned[a.Key] {
			out[k] = a
		}
	}
	for _, r := range view.LiveRecords() {
		pt, ok := r.Geometry.Geometry.(orb.Point)
		if !ok {
			continue
		}
		lotPlan := r.Attr(models.AttrLotPlan)
		if lotPlan == "" {
			lotPlan = models.LotPlanKey(r.Attr(models.AttrLot), r.Attr(models.AttrPlan))
		}
		if lotPlan == "" {
			continue
		}
		// LiveRecords is key-ordered, so the first address per lot wins
		if _, exists := out[lotPlan]; exists {
			continue
		}
		out[lotPlan] = &models.AddressPoint{
			Key:     r.Key,
			Address: r.Attr(models.AttrAddress),
			Lon:     pt.Lon(),
			Lat:     pt.Lat(),
		}
	}
	return out
}

func (s *Snapshot) buildRegion(region string) *RegionIndex {
	idx := &RegionIndex{
		Region:   region,
		Version:  s.RegionVersion(region),
		Zones:    geom.NewIndex[*models.Zone](),
		Overlays: geom.NewIndex[*models.Overlay](),
	}
	if zv, ok := s.scopes[models.Scope{Region: region, Layer: models.LayerZone}]; ok {
		for _, r := range zv.LiveRecords() {
			if mp, ok := geom.AsMultiPolygon(r.Geometry.Geometry); ok {
				idx.Zones.Insert(mp.Bound(), models.ZoneFromRecord(r, mp))
			}
		}
	}
	if ov, ok := s.scopes[models.Scope{Region: region, Layer: models.LayerOverlay}]; ok {
		for _, r := range ov.LiveRecords() {
			if mp, ok := geom.AsMultiPolygon(r.Geometry.Geometry); ok {
				idx.Overlays.Insert(mp.Bound(), models.OverlayFromRecord(r, mp))
			}
		}
	}
	return idx
}
