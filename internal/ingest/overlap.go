package ingest

import (
	"fmt"
	"math"
	"sort"

	"github.com/stwalsh4118/siteplan/internal/geom"
	"github.com/stwalsh4118/siteplan/internal/logger"
	"github.com/stwalsh4118/siteplan/internal/models"
	"github.com/stwalsh4118/siteplan/internal/store"
)

// detectZoneOverlap checks every inserted or updated zone against the other
// zones of the same planning scheme as they would stand after the cycle.
// Any overlap beyond tolerance is an anomaly.
func (r *Reconciler) detectZoneOverlap(base *store.ScopeView, cycle *store.Cycle, log *logger.Logger) []Anomaly {
	after := make(map[string]*models.GeometryRecord, len(base.Records))
	for k, rec := range base.Records {
		if !rec.Deleted() {
			after[k] = rec
		}
	}
	changed := map[string]bool{}
	for _, op := range cycle.Ops {
		switch op.Kind {
		case store.OpDelete:
			delete(after, op.Record.Key)
		default:
			after[op.Record.Key] = op.Record
			changed[op.Record.Key] = true
		}
	}

	idx := geom.NewIndex[*models.GeometryRecord]()
	for _, rec := range after {
		if mp, ok := geom.AsMultiPolygon(rec.Geometry.Geometry); ok {
			idx.Insert(mp.Bound(), rec)
		}
	}

	keys := make([]string, 0, len(changed))
	for k := range changed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	reported := map[[2]string]bool{}
	var out []Anomaly
	for _, k := range keys {
		a := after[k]
		amp, ok := geom.AsMultiPolygon(a.Geometry.Geometry)
		if !ok {
			continue
		}
		scheme := a.Attr(models.AttrScheme)
		for _, b := range idx.Search(amp.Bound()) {
			if b.Key == a.Key || b.Attr(models.AttrScheme) != scheme {
				continue
			}
			pair := [2]string{a.Key, b.Key}
			if pair[0] > pair[1] {
				pair[0], pair[1] = pair[1], pair[0]
			}
			if reported[pair] {
				continue
			}
			bmp, _ := geom.AsMultiPolygon(b.Geometry.Geometry)

			proj := geom.NewProjector(amp.Bound())
			pa, pb := proj.MultiPolygon(amp), proj.MultiPolygon(bmp)
			overlap := geom.IntersectionArea(pa, pb)
			smaller := math.Min(geom.Area(pa), geom.Area(pb))
			if r.cfg.Tolerance.ZeroArea(overlap, smaller) {
				continue
			}
			reported[pair] = true
			log.Event(logger.EventZoneOverlap, map[string]interface{}{
				"zone_a":   pair[0],
				"zone_b":   pair[1],
				"scheme":   scheme,
				"area_sqm": overlap,
			})
			out = append(out, Anomaly{
				Kind:    AnomalyZoneOverlap,
				Message: fmt.Sprintf("zones %s and %s overlap by %.2f m²", pair[0], pair[1], overlap),
			})
		}
	}
	return out
}
