package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/paulmach/orb/geojson"
	"github.com/stwalsh4118/siteplan/internal/logger"
	"github.com/stwalsh4118/siteplan/internal/models"
)

// Source fetches one scope's records from upstream.
type Source interface {
	Fetch(ctx context.Context, scope models.Scope) (*Batch, error)
}

// FileSource reads a GeoJSON FeatureCollection from disk. When RegionField is
// set, only features whose property matches the scope's region are kept.
type FileSource struct {
	Path        string
	RegionField string
}

// Fetch implements Source.
func (s *FileSource) Fetch(ctx context.Context, scope models.Scope) (*Batch, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.Path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.Path, err)
	}
	return batchFromFeatures(scope, fc.Features, s.RegionField), nil
}

func batchFromFeatures(scope models.Scope, features []*geojson.Feature, regionField string) *Batch {
	b := &Batch{Scope: scope, FetchedAt: time.Now().UTC()}
	for _, f := range features {
		rec := RecordFromFeature(f, scope.Layer)
		if regionField != "" && !strings.EqualFold(rec.Attr(strings.ToLower(regionField)), scope.Region) {
			continue
		}
		b.Records = append(b.Records, rec)
	}
	return b
}

// ArcGISLayer locates one layer on an ArcGIS MapServer.
type ArcGISLayer struct {
	Path        string
	RegionField string
}

// DefaultArcGISLayers are the Queensland cadastre endpoints. Zones and
// overlays are published per council and have no shared default.
func DefaultArcGISLayers() map[models.Layer]ArcGISLayer {
	return map[models.Layer]ArcGISLayer{
		models.LayerParcel:  {Path: "PlanningCadastre/LandParcelPropertyFramework/MapServer/4/query", RegionField: "shire_name"},
		models.LayerAddress: {Path: "PlanningCadastre/LandParcelPropertyFramework/MapServer/0/query", RegionField: "local_authority"},
	}
}

const maxArcGISPages = 10000

// ArcGISSource pages through an ArcGIS REST query endpoint with f=geojson.
type ArcGISSource struct {
	client   *resty.Client
	layers   map[models.Layer]ArcGISLayer
	pageSize int
	log      *logger.Logger
}

// NewArcGISSource creates a source against baseURL.
func NewArcGISSource(baseURL string, pageSize int, layers map[models.Layer]ArcGISLayer, log *logger.Logger) *ArcGISSource {
	if layers == nil {
		layers = DefaultArcGISLayers()
	}
	if pageSize <= 0 {
		pageSize = 2000
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(60 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		SetHeader("Accept", "application/geo+json, application/json")

	return &ArcGISSource{
		client:   client,
		layers:   layers,
		pageSize: pageSize,
		log:      log.WithComponent("arcgis"),
	}
}

type arcgisError struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Fetch implements Source.
func (s *ArcGISSource) Fetch(ctx context.Context, scope models.Scope) (*Batch, error) {
	layer, ok := s.layers[scope.Layer]
	if !ok {
		return nil, fmt.Errorf("no ArcGIS endpoint configured for layer %s", scope.Layer)
	}
	where := fmt.Sprintf("%s = '%s'", layer.RegionField, strings.ReplaceAll(scope.Region, "'", "''"))

	var features []*geojson.Feature
	for page := 0; page < maxArcGISPages; page++ {
		offset := page * s.pageSize
		resp, err := s.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"where":             where,
				"outFields":         "*",
				"outSR":             "4326",
				"f":                 "geojson",
				"returnGeometry":    "true",
				"resultOffset":      strconv.Itoa(offset),
				"resultRecordCount": strconv.Itoa(s.pageSize),
			}).
			Get("/" + layer.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", layer.Path, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("query %s returned HTTP %d", layer.Path, resp.StatusCode())
		}

		var apiErr arcgisError
		if err := json.Unmarshal(resp.Body(), &apiErr); err == nil && apiErr.Error != nil {
			return nil, fmt.Errorf("query %s failed: %s (code %d)", layer.Path, apiErr.Error.Message, apiErr.Error.Code)
		}
		fc, err := geojson.UnmarshalFeatureCollection(resp.Body())
		if err != nil {
			return nil, fmt.Errorf("failed to decode page at offset %d: %w", offset, err)
		}

		features = append(features, fc.Features...)
		s.log.Debug("Fetched page", map[string]interface{}{
			"scope":  scope.String(),
			"offset": offset,
			"count":  len(fc.Features),
		})
		if len(fc.Features) < s.pageSize {
			return batchFromFeatures(scope, features, ""), nil
		}
	}
	return nil, fmt.Errorf("query %s exceeded %d pages", layer.Path, maxArcGISPages)
}

// LayerSources routes each layer to its own Source.
type LayerSources map[models.Layer]Source

// Fetch implements Source.
func (ls LayerSources) Fetch(ctx context.Context, scope models.Scope) (*Batch, error) {
	src, ok := ls[scope.Layer]
	if !ok {
		return nil, fmt.Errorf("no source configured for layer %s", scope.Layer)
	}
	return src.Fetch(ctx, scope)
}
