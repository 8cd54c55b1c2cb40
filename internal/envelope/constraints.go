package envelope

import (
	"fmt"
	"strings"

	"github.com/stwalsh4118/siteplan/internal/models"
	"github.com/stwalsh4118/siteplan/internal/rules"
)

// Constraint categories.
const (
	ConstraintBushfire     = "bushfire"
	ConstraintFlood        = "flood"
	ConstraintHeritage     = "heritage"
	ConstraintLandslide    = "landslide"
	ConstraintSteepLand    = "steep_land"
	ConstraintBiodiversity = "biodiversity"
	ConstraintCoastal      = "coastal"
	ConstraintAcidSulfate  = "acid_sulfate"
	ConstraintOther        = "other"
)

type category struct {
	name     string
	keywords []string
	advice   string
	label    string
}

// checked in order; the first keyword match wins
var categories = []category{
	{ConstraintBushfire, []string{"bushfire"}, "BAL assessment required", "Bushfire"},
	{ConstraintFlood, []string{"flood"}, "may require flood assessment and minimum floor levels", "Flood"},
	{ConstraintHeritage, []string{"heritage", "character"}, "design controls apply", "Heritage/Character"},
	{ConstraintLandslide, []string{"landslide"}, "geotechnical assessment required", "Landslide Hazard"},
	{ConstraintSteepLand, []string{"steep", "slope"}, "earthworks and retaining may be needed", "Steep Land"},
	{ConstraintBiodiversity, []string{"biodiversity", "waterway", "wetland"}, "ecological assessment likely required", "Biodiversity"},
	{ConstraintCoastal, []string{"coastal"}, "coastal protection requirements apply", "Coastal"},
	{ConstraintAcidSulfate, []string{"acid"}, "soil investigation may be required", "Acid Sulfate Soils"},
}

// Categorize maps an overlay type onto a constraint category.
func Categorize(overlayType string) string {
	t := strings.ToLower(overlayType)
	for _, c := range categories {
		for _, k := range c.keywords {
			if strings.Contains(t, k) {
				return c.name
			}
		}
	}
	return ConstraintOther
}

// Constraints turns overlay hits into development constraints, keeping the
// overlays' order. Height overlays feed the height limit instead.
func Constraints(overlays []models.OverlayHit) []models.Constraint {
	out := make([]models.Constraint, 0, len(overlays))
	for _, o := range overlays {
		if rules.IsHeightOverlay(o.Type) {
			continue
		}
		name := o.Name
		if name == "" {
			name = o.Code
		}
		if name == "" {
			name = o.Type
		}

		cat := Categorize(o.Type)
		text := fmt.Sprintf("%s: %s", o.Type, name)
		for _, c := range categories {
			if c.name == cat {
				text = fmt.Sprintf("%s: %s (%s)", c.label, name, c.advice)
				break
			}
		}
		out = append(out, models.Constraint{Type: cat, OverlayKey: o.Key, Text: text})
	}
	return out
}
