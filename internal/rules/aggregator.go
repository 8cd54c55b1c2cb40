package rules

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/stwalsh4118/siteplan/internal/logger"
	"github.com/stwalsh4118/siteplan/internal/metrics"
	"github.com/stwalsh4118/siteplan/internal/models"
)

// Status distinguishes a usable rule from an explicit absence.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusUnavailable Status = "unavailable"
)

// Reasons a rule is unavailable.
const (
	ReasonNoRule            = "no_rule"
	ReasonNoZone            = "no_zone"
	ReasonInvalidRule       = "invalid_rule"
	ReasonUnparsableDensity = "unparsable_density"
)

// Height sources recorded on the result.
const (
	HeightFromZone    = "zone"
	HeightFromOverlay = "overlay"
)

// Result is the outcome of a rule lookup. When Status is unavailable, Rule
// is nil and Reason says why; callers must not fall back to defaults.
type Result struct {
	Rule         *models.PlanningRule `json:"rule,omitempty"`
	Density      *Density             `json:"density,omitempty"`
	Status       Status               `json:"status"`
	Reason       string               `json:"reason,omitempty"`
	HeightSource string               `json:"height_source,omitempty"`
	Matches      int                  `json:"matches"`
}

// Available reports whether a rule was found.
func (r *Result) Available() bool {
	return r.Status == StatusAvailable
}

func unavailable(reason string, matches int) *Result {
	metrics.RulesUnavailableTotal.WithLabelValues(reason).Inc()
	return &Result{Status: StatusUnavailable, Reason: reason, Matches: matches}
}

// Repository is the read side of the rule store.
type Repository interface {
	FindByZone(ctx context.Context, zoneCode, region string) ([]*models.PlanningRule, error)
}

// Aggregator selects the planning rule for a resolved zone.
type Aggregator struct {
	repo     Repository
	validate *validator.Validate
	log      *logger.Logger
}

// NewAggregator creates an Aggregator.
func NewAggregator(repo Repository, log *logger.Logger) *Aggregator {
	return &Aggregator{
		repo:     repo,
		validate: validator.New(),
		log:      log.WithComponent("rules"),
	}
}

// Aggregate returns the rule for a zone code within a region. When several
// rules match, the most recently updated wins (then the highest ID) and a
// RuleConflict event is logged.
func (a *Aggregator) Aggregate(ctx context.Context, zoneCode, region string) (*Result, error) {
	if strings.TrimSpace(zoneCode) == "" {
		return unavailable(ReasonNoZone, 0), nil
	}
	found, err := a.repo.FindByZone(ctx, zoneCode, region)
	if err != nil {
		return nil, fmt.Errorf("failed to look up rules for %s in %s: %w", zoneCode, region, err)
	}
	if len(found) == 0 {
		return unavailable(ReasonNoRule, 0), nil
	}

	chosen := found[0]
	for _, r := range found[1:] {
		if r.UpdatedAt.After(chosen.UpdatedAt) || (r.UpdatedAt.Equal(chosen.UpdatedAt) && r.ID > chosen.ID) {
			chosen = r
		}
	}
	if len(found) > 1 {
		ids := make([]int64, len(found))
		for i, r := range found {
			ids[i] = r.ID
		}
		metrics.RuleConflictsTotal.Inc()
		a.log.Event(logger.EventRuleConflict, map[string]interface{}{
			"zone_code": zoneCode,
			"region":    region,
			"rule_ids":  ids,
			"chosen_id": chosen.ID,
		})
	}

	rule := chosen.Clone()
	if err := a.validate.Struct(rule); err != nil {
		a.log.Warn("Planning rule failed validation", map[string]interface{}{
			"rule_id": rule.ID,
			"zone":    zoneCode,
			"error":   err.Error(),
		})
		return unavailable(ReasonInvalidRule, len(found)), nil
	}
	density, err := ParseDensity(rule.DwellingDensity)
	if err != nil {
		a.log.Warn("Unparsable dwelling density", map[string]interface{}{
			"rule_id": rule.ID,
			"density": rule.DwellingDensity,
		})
		return unavailable(ReasonUnparsableDensity, len(found)), nil
	}

	res := &Result{Status: StatusAvailable, Rule: rule, Density: density, Matches: len(found)}
	if rule.MaxHeightM != nil {
		res.HeightSource = HeightFromZone
	}
	return res, nil
}

// ForContext aggregates the rule for a resolved parcel. The zone code is
// tried first, then the short code. A height overlay on the parcel replaces
// the zone's maximum height.
func (a *Aggregator) ForContext(ctx context.Context, rc *models.ResolvedContext) (*Result, error) {
	if rc == nil || rc.Zone == nil || rc.Parcel == nil {
		return unavailable(ReasonNoZone, 0), nil
	}
	res, err := a.Aggregate(ctx, rc.Zone.Code, rc.Parcel.Region)
	if err != nil {
		return nil, err
	}
	if !res.Available() && res.Reason == ReasonNoRule && rc.Zone.ShortCode != "" &&
		!strings.EqualFold(rc.Zone.ShortCode, rc.Zone.Code) {
		if res, err = a.Aggregate(ctx, rc.Zone.ShortCode, rc.Parcel.Region); err != nil {
			return nil, err
		}
	}
	if res.Available() {
		a.applyHeightOverlay(res, rc.Overlays)
	}
	return res, nil
}

// applyHeightOverlay uses the height limit of the overlay covering most of
// the parcel. Overlays arrive sorted by fraction.
func (a *Aggregator) applyHeightOverlay(res *Result, overlays []models.OverlayHit) {
	for _, o := range overlays {
		if !IsHeightOverlay(o.Type) {
			continue
		}
		h, err := models.HeightLimit(o.Attributes)
		if err != nil {
			a.log.Debug("Height overlay without usable limit", map[string]interface{}{
				"overlay": o.Key,
				"error":   err.Error(),
			})
			continue
		}
		res.Rule.MaxHeightM = models.Float(h)
		res.HeightSource = HeightFromOverlay
		return
	}
}

// IsHeightOverlay reports whether an overlay type is the building height
// overlay.
func IsHeightOverlay(typ string) bool {
	return strings.Contains(strings.ToLower(typ), "height")
}
