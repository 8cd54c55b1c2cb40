package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
	"github.com/stwalsh4118/siteplan/internal/models"
)

// RecordFromFeature converts an upstream GeoJSON feature into a record of the
// given layer. Property names are lower-cased and values flattened to strings.
// A feature whose business key cannot be derived gets an empty key, which the
// reconciler rejects.
func RecordFromFeature(f *geojson.Feature, layer models.Layer) *models.GeometryRecord {
	attrs := make(map[string]string, len(f.Properties))
	for k, v := range f.Properties {
		if s, ok := propertyString(v); ok {
			attrs[strings.ToLower(k)] = s
		}
	}
	rec := &models.GeometryRecord{
		Attributes: attrs,
		Geometry:   models.Geometry{Geometry: f.Geometry},
		Layer:      layer,
	}
	rec.Key = recordKey(rec, f.ID)
	if layer == models.LayerParcel && rec.Key != "" {
		attrs[models.AttrLotPlan] = rec.Key
	}
	if layer == models.LayerAddress && attrs[models.AttrLotPlan] == "" {
		if lp := parcelKey(rec); lp != "" {
			attrs[models.AttrLotPlan] = lp
		}
	}
	return rec
}

func recordKey(rec *models.GeometryRecord, id interface{}) string {
	switch rec.Layer {
	case models.LayerParcel:
		return parcelKey(rec)
	case models.LayerAddress:
		return rec.Attr("address_pid", models.AttrAddress)
	case models.LayerZone:
		if k := rec.Attr("zone_id"); k != "" {
			return k
		}
		return withObjectID(rec.Attr(models.AttrZoneCode, "zone"), rec, id)
	case models.LayerOverlay:
		if k := rec.Attr("overlay_id"); k != "" {
			return k
		}
		return withObjectID(rec.Attr(models.AttrOverlayCode, models.AttrOverlayType, "category"), rec, id)
	}
	return ""
}

func parcelKey(rec *models.GeometryRecord) string {
	if k := models.LotPlanKey(rec.Attr(models.AttrLot), rec.Attr(models.AttrPlan)); k != "" {
		return k
	}
	return strings.ToUpper(rec.Attr(models.AttrLotPlan, "lotplan"))
}

func withObjectID(code string, rec *models.GeometryRecord, id interface{}) string {
	oid := rec.Attr("objectid", "fid")
	if oid == "" && id != nil {
		oid, _ = propertyString(id)
	}
	if code == "" || oid == "" {
		return ""
	}
	return code + "@" + oid
}

func propertyString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return strings.TrimSpace(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return fmt.Sprint(t), true
	}
}
