package repository

import (
	"context"
	"fmt"

	"github.com/stwalsh4118/siteplan/internal/database"
	"github.com/stwalsh4118/siteplan/internal/models"
)

// RuleRepository reads and writes planning rules.
type RuleRepository interface {
	// FindByZone returns every rule for a zone code within an LGA. Matching
	// ignores case. Returns an empty slice if none match.
	FindByZone(ctx context.Context, zoneCode, region string) ([]*models.PlanningRule, error)

	// Upsert inserts a rule or replaces the one with the same zone code, LGA
	// and planning scheme. The stored ID and timestamp are written back.
	Upsert(ctx context.Context, rule *models.PlanningRule) error
}

type ruleRepository struct {
	db *database.Database
}

// NewRuleRepository creates a RuleRepository.
func NewRuleRepository(db *database.Database) RuleRepository {
	return &ruleRepository{db: db}
}

func (r *ruleRepository) FindByZone(ctx context.Context, zoneCode, region string) ([]*models.PlanningRule, error) {
	query := `
		SELECT
			id,
			zone_code,
			lga,
			planning_scheme,
			COALESCE(zone_category, ''),
			max_height_m,
			max_storeys,
			min_lot_size_sqm,
			max_site_cover_pct,
			min_frontage_m,
			front_setback_m,
			side_setback_m,
			rear_setback_m,
			COALESCE(dwelling_density, ''),
			accepted_uses,
			assessable_uses,
			prohibited_uses,
			confidence,
			COALESCE(source, ''),
			updated_at
		FROM planning_rules
		WHERE lower(zone_code) = lower($1) AND lower(lga) = lower($2)
		ORDER BY updated_at DESC, id DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, zoneCode, region)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules (zone=%s, region=%s): %w", zoneCode, region, err)
	}
	defer rows.Close()

	rules := []*models.PlanningRule{}
	for rows.Next() {
		var rule models.PlanningRule
		err := rows.Scan(
			&rule.ID,
			&rule.ZoneCode,
			&rule.LGA,
			&rule.PlanningScheme,
			&rule.ZoneCategory,
			&rule.MaxHeightM,
			&rule.MaxStoreys,
			&rule.MinLotSizeSqm,
			&rule.MaxSiteCoverPct,
			&rule.MinFrontageM,
			&rule.FrontSetbackM,
			&rule.SideSetbackM,
			&rule.RearSetbackM,
			&rule.DwellingDensity,
			&rule.AcceptedUses,
			&rule.AssessableUses,
			&rule.ProhibitedUses,
			&rule.Confidence,
			&rule.Source,
			&rule.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		rules = append(rules, &rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule rows: %w", err)
	}
	return rules, nil
}

func (r *ruleRepository) Upsert(ctx context.Context, rule *models.PlanningRule) error {
	query := `
		INSERT INTO planning_rules (
			zone_code, lga, planning_scheme, zone_category,
			max_height_m, max_storeys, min_lot_size_sqm, max_site_cover_pct, min_frontage_m,
			front_setback_m, side_setback_m, rear_setback_m, dwelling_density,
			accepted_uses, assessable_uses, prohibited_uses, confidence, source, updated_at
		)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, ''),
			$14, $15, $16, $17, NULLIF($18, ''), NOW())
		ON CONFLICT (zone_code, lga, planning_scheme) DO UPDATE SET
			zone_category = EXCLUDED.zone_category,
			max_height_m = EXCLUDED.max_height_m,
			max_storeys = EXCLUDED.max_storeys,
			min_lot_size_sqm = EXCLUDED.min_lot_size_sqm,
			max_site_cover_pct = EXCLUDED.max_site_cover_pct,
			min_frontage_m = EXCLUDED.min_frontage_m,
			front_setback_m = EXCLUDED.front_setback_m,
			side_setback_m = EXCLUDED.side_setback_m,
			rear_setback_m = EXCLUDED.rear_setback_m,
			dwelling_density = EXCLUDED.dwelling_density,
			accepted_uses = EXCLUDED.accepted_uses,
			assessable_uses = EXCLUDED.assessable_uses,
			prohibited_uses = EXCLUDED.prohibited_uses,
			confidence = EXCLUDED.confidence,
			source = EXCLUDED.source,
			updated_at = NOW()
		RETURNING id, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		rule.ZoneCode,
		rule.LGA,
		rule.PlanningScheme,
		rule.ZoneCategory,
		rule.MaxHeightM,
		rule.MaxStoreys,
		rule.MinLotSizeSqm,
		rule.MaxSiteCoverPct,
		rule.MinFrontageM,
		rule.FrontSetbackM,
		rule.SideSetbackM,
		rule.RearSetbackM,
		rule.DwellingDensity,
		nonNil(rule.AcceptedUses),
		nonNil(rule.AssessableUses),
		nonNil(rule.ProhibitedUses),
		rule.Confidence,
		rule.Source,
	).Scan(&rule.ID, &rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert rule (zone=%s, lga=%s): %w", rule.ZoneCode, rule.LGA, err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
