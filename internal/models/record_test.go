package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLayer(t *testing.T) {
	for _, in := range []string{"parcel", " Address ", "ZONE", "overlay"} {
		_, err := ParseLayer(in)
		assert.NoError(t, err, in)
	}
	_, err := ParseLayer("roads")
	assert.EqualError(t, err, `unknown layer "roads"`)
}

func TestGeometryRecord_AttrAndClone(t *testing.T) {
	rec := &GeometryRecord{
		Key:        "LDR@1",
		Region:     "NOOSA",
		Layer:      LayerZone,
		Attributes: map[string]string{"zone": "Rural Zone", AttrZoneCode: "  "},
	}
	assert.Equal(t, "Rural Zone", rec.Attr(AttrZoneCode, "zone"))
	assert.Equal(t, "", rec.Attr("missing"))
	assert.Equal(t, Scope{Region: "NOOSA", Layer: LayerZone}, rec.Scope())
	assert.Equal(t, "NOOSA/zone", rec.Scope().String())

	c := rec.Clone()
	c.Attributes["zone"] = "changed"
	assert.Equal(t, "Rural Zone", rec.Attributes["zone"])

	assert.False(t, rec.Deleted())
	now := time.Now()
	rec.DeletedAt = &now
	assert.True(t, rec.Deleted())
}

func TestLotPlanKey(t *testing.T) {
	assert.Equal(t, "3/RP12345", LotPlanKey(" 3 ", "rp12345"))
	assert.Equal(t, "", LotPlanKey("", "RP1"))
	assert.Equal(t, "", LotPlanKey("3", " "))
}

func TestParseParcelClass(t *testing.T) {
	assert.Equal(t, ParcelEasement, ParseParcelClass("Easement"))
	assert.Equal(t, ParcelStrata, ParseParcelClass(" strata "))
	assert.Equal(t, ParcelVolumetric, ParseParcelClass("VOLUMETRIC"))
	assert.Equal(t, ParcelBase, ParseParcelClass(""))
	assert.Equal(t, ParcelBase, ParseParcelClass("lot"))
}

func TestFromRecord(t *testing.T) {
	parcel := ParcelFromRecord(&GeometryRecord{
		Key:        "3/RP12345",
		Region:     "NOOSA",
		Attributes: map[string]string{AttrLot: "3", AttrPlan: "RP12345", "cover_typ": "Strata"},
		Version:    4,
	}, nil, 607)
	assert.Equal(t, ParcelStrata, parcel.Class)
	assert.Equal(t, 607.0, parcel.AreaSqm)
	assert.Equal(t, int64(4), parcel.Version)

	overlay := OverlayFromRecord(&GeometryRecord{
		Key:        "BF@2",
		Attributes: map[string]string{"category": "Bushfire Hazard", "label": "Medium"},
	}, nil)
	assert.Equal(t, "bushfire hazard", overlay.Type)
	assert.Equal(t, "Medium", overlay.Name)
}

func TestHeightLimit(t *testing.T) {
	h, err := HeightLimit(map[string]string{AttrHeightM: "12m"})
	require.NoError(t, err)
	assert.Equal(t, 12.0, h)

	h, err = HeightLimit(map[string]string{AttrHeightM: " 8.5 "})
	require.NoError(t, err)
	assert.Equal(t, 8.5, h)

	_, err = HeightLimit(map[string]string{})
	assert.Error(t, err)
	_, err = HeightLimit(map[string]string{AttrHeightM: "tall"})
	assert.Error(t, err)
}
