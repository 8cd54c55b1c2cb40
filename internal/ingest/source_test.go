package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/siteplan/internal/logger"
	"github.com/stwalsh4118/siteplan/internal/models"
)

func feature(g orb.Geometry, props map[string]interface{}) *geojson.Feature {
	f := geojson.NewFeature(g)
	for k, v := range props {
		f.Properties[k] = v
	}
	return f
}

func TestRecordFromFeature_Keys(t *testing.T) {
	poly := rect(0, 0, 20, 30)

	tests := []struct {
		name    string
		layer   models.Layer
		props   map[string]interface{}
		wantKey string
	}{
		{"parcel lot and plan", models.LayerParcel, map[string]interface{}{"LOT": "3", "PLAN": "rp12345"}, "3/RP12345"},
		{"parcel lotplan fallback", models.LayerParcel, map[string]interface{}{"lotplan": "3rp12345"}, "3RP12345"},
		{"parcel without key", models.LayerParcel, map[string]interface{}{"tenure": "Freehold"}, ""},
		{"address pid", models.LayerAddress, map[string]interface{}{"address_pid": "GAQLD1", "address": "1 Main St"}, "GAQLD1"},
		{"address fallback", models.LayerAddress, map[string]interface{}{"address": "1 Main St"}, "1 Main St"},
		{"zone id", models.LayerZone, map[string]interface{}{"zone_id": "Z-1", "zone_code": "LDR"}, "Z-1"},
		{"zone code at objectid", models.LayerZone, map[string]interface{}{"ZONE_CODE": "LDR", "OBJECTID": float64(42)}, "LDR@42"},
		{"overlay code at objectid", models.LayerOverlay, map[string]interface{}{"overlay_code": "FH", "objectid": 7}, "FH@7"},
		{"overlay without objectid", models.LayerOverlay, map[string]interface{}{"overlay_code": "FH"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := RecordFromFeature(feature(poly, tt.props), tt.layer)
			assert.Equal(t, tt.wantKey, rec.Key)
			assert.Equal(t, tt.layer, rec.Layer)
		})
	}
}

func TestRecordFromFeature_Attributes(t *testing.T) {
	rec := RecordFromFeature(feature(rect(0, 0, 20, 30), map[string]interface{}{
		"Lot":      "3",
		"Plan":     "RP12345",
		"lot_area": 607.5,
		"Locality": "  Buderim ",
		"empty":    nil,
	}), models.LayerParcel)

	assert.Equal(t, "607.5", rec.Attributes["lot_area"])
	assert.Equal(t, "Buderim", rec.Attributes["locality"])
	assert.Equal(t, "3/RP12345", rec.Attributes[models.AttrLotPlan])
	_, ok := rec.Attributes["empty"]
	assert.False(t, ok)

	addr := RecordFromFeature(feature(orb.Point{153, -26.6}, map[string]interface{}{
		"address_pid": "GAQLD1", "lot": "3", "plan": "rp12345",
	}), models.LayerAddress)
	assert.Equal(t, "3/RP12345", addr.Attributes[models.AttrLotPlan])
}

func writeCollection(t *testing.T, features ...*geojson.Feature) string {
	t.Helper()
	fc := geojson.NewFeatureCollection()
	fc.Features = features
	data, err := fc.MarshalJSON()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "features.geojson")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestFileSource_FiltersByRegion(t *testing.T) {
	path := writeCollection(t,
		feature(rect(0, 0, 20, 30), map[string]interface{}{"lot": "1", "plan": "RP1", "shire_name": "Sunshine Coast"}),
		feature(rect(25, 0, 45, 30), map[string]interface{}{"lot": "2", "plan": "RP1", "shire_name": "NOOSA"}),
	)
	src := &FileSource{Path: path, RegionField: "SHIRE_NAME"}

	b, err := src.Fetch(context.Background(), parcels)
	require.NoError(t, err)
	require.Len(t, b.Records, 1)
	assert.Equal(t, "1/RP1", b.Records[0].Key)
	assert.False(t, b.Partial)
}

func TestFileSource_MissingFile(t *testing.T) {
	src := &FileSource{Path: filepath.Join(t.TempDir(), "nope.geojson")}
	_, err := src.Fetch(context.Background(), parcels)
	assert.Error(t, err)
}

func TestArcGISSource_Paginates(t *testing.T) {
	var (
		mu      sync.Mutex
		offsets []string
		where   string
	)
	all := []*geojson.Feature{
		feature(rect(0, 0, 20, 30), map[string]interface{}{"lot": "1", "plan": "RP1"}),
		feature(rect(25, 0, 45, 30), map[string]interface{}{"lot": "2", "plan": "RP1"}),
		feature(rect(50, 0, 70, 30), map[string]interface{}{"lot": "3", "plan": "RP1"}),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/PlanningCadastre/LandParcelPropertyFramework/MapServer/4/query", r.URL.Path)
		assert.Equal(t, "geojson", q.Get("f"))
		assert.Equal(t, "4326", q.Get("outSR"))
		assert.Equal(t, "2", q.Get("resultRecordCount"))

		mu.Lock()
		offsets = append(offsets, q.Get("resultOffset"))
		where = q.Get("where")
		mu.Unlock()

		off, _ := strconv.Atoi(q.Get("resultOffset"))
		end := off + 2
		if end > len(all) {
			end = len(all)
		}
		fc := geojson.NewFeatureCollection()
		fc.Features = all[off:end]
		w.Header().Set("Content-Type", "application/geo+json")
		_ = json.NewEncoder(w).Encode(fc)
	}))
	defer srv.Close()

	src := NewArcGISSource(srv.URL, 2, nil, logger.Nop())
	b, err := src.Fetch(context.Background(), models.Scope{Region: "O'REILLY", Layer: models.LayerParcel})
	require.NoError(t, err)

	assert.Len(t, b.Records, 3)
	assert.Equal(t, []string{"0", "2"}, offsets)
	assert.Equal(t, "shire_name = 'O''REILLY'", where)
}

func TestArcGISSource_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"error":{"code":400,"message":"Invalid query"}}`)
	}))
	defer srv.Close()

	src := NewArcGISSource(srv.URL, 10, nil, logger.Nop())
	_, err := src.Fetch(context.Background(), parcels)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid query")

	_, err = src.Fetch(context.Background(), zones)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no ArcGIS endpoint")
}

type sourceFunc func(ctx context.Context, scope models.Scope) (*Batch, error)

func (f sourceFunc) Fetch(ctx context.Context, scope models.Scope) (*Batch, error) {
	return f(ctx, scope)
}

func TestRunner_RunRegionsIsolatesFailures(t *testing.T) {
	rec, st := newReconciler()
	src := sourceFunc(func(ctx context.Context, scope models.Scope) (*Batch, error) {
		if scope.Region == "BROKEN" {
			return nil, errors.New("upstream unavailable")
		}
		return &Batch{Records: []*models.GeometryRecord{parcel(1), parcel(2)}}, nil
	})
	runner := NewRunner(src, rec, 2, logger.Nop())

	reports, err := runner.RunRegions(context.Background(), models.LayerParcel, []string{"A", "BROKEN", "C"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream unavailable")

	require.Len(t, reports, 3)
	assert.Equal(t, StatusPromoted, reports[0].Status)
	assert.Equal(t, StatusFailed, reports[1].Status)
	assert.Equal(t, StatusPromoted, reports[2].Status)

	assert.Equal(t, 2, st.Current().Scope(models.Scope{Region: "A", Layer: models.LayerParcel}).Live)
	assert.Equal(t, 2, st.Current().Scope(models.Scope{Region: "C", Layer: models.LayerParcel}).Live)
}

func TestRunner_AnomalyDoesNotCancelSiblings(t *testing.T) {
	rec, st := newReconciler()
	ctx := context.Background()
	calls := map[string]int{}
	var mu sync.Mutex

	src := sourceFunc(func(ctx context.Context, scope models.Scope) (*Batch, error) {
		mu.Lock()
		calls[scope.Region]++
		n := calls[scope.Region]
		mu.Unlock()
		if scope.Region == "A" && n > 1 {
			return parcelBatch(1, 2), nil
		}
		return parcelBatch(1, 10), nil
	})
	runner := NewRunner(src, rec, 4, logger.Nop())

	_, err := runner.RunRegions(ctx, models.LayerParcel, []string{"A", "B"})
	require.NoError(t, err)

	reports, err := runner.RunRegions(ctx, models.LayerParcel, []string{"A", "B"})
	require.ErrorIs(t, err, ErrSyncAnomaly)
	assert.Equal(t, StatusStaged, reports[0].Status)
	assert.Equal(t, StatusNoop, reports[1].Status)
	assert.Len(t, st.Staged(), 1)
}

func TestScheduler_RunOnce(t *testing.T) {
	rec, st := newReconciler()
	src := LayerSources{
		models.LayerParcel: sourceFunc(func(ctx context.Context, scope models.Scope) (*Batch, error) {
			return parcelBatch(1, 3), nil
		}),
		models.LayerZone: sourceFunc(func(ctx context.Context, scope models.Scope) (*Batch, error) {
			return &Batch{Records: []*models.GeometryRecord{zone("LDR@1", "SCPS2014", rect(-10, -10, 200, 100))}}, nil
		}),
	}
	s := NewScheduler(NewRunner(src, rec, 2, logger.Nop()), []models.Layer{models.LayerParcel, models.LayerZone}, []string{region}, 0, logger.Nop())

	reports := s.RunOnce(context.Background())
	require.Len(t, reports, 2)
	for _, r := range reports {
		assert.Equal(t, StatusPromoted, r.Status)
	}
	assert.NotNil(t, st.Current().Region(region))
}
