package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/stwalsh4118/siteplan/internal/models"
)

type hashPayload struct {
	Geometry   json.RawMessage   `json:"g"`
	Attributes map[string]string `json:"a"`
}

// PayloadHash fingerprints a record's geometry and attributes. encoding/json
// writes map keys sorted, so the encoding is canonical.
func PayloadHash(r *models.GeometryRecord) (string, error) {
	g, err := r.Geometry.MarshalJSON()
	if err != nil {
		return "", err
	}
	attrs := r.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	b, err := json.Marshal(hashPayload{Geometry: g, Attributes: attrs})
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return strconv.FormatUint(xxhash.Sum64(b), 16), nil
}
