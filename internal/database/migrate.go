package database

import (
	"context"
	"fmt"

	"github.com/stwalsh4118/siteplan/internal/logger"
)

// schema is applied in order. Every statement is idempotent.
var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS postgis`,
	`CREATE SEQUENCE IF NOT EXISTS store_version_seq`,
	`CREATE TABLE IF NOT EXISTS geometry_records (
		layer        TEXT NOT NULL,
		record_key   TEXT NOT NULL,
		region       TEXT NOT NULL,
		geom         geometry(Geometry, 4326) NOT NULL,
		attributes   JSONB NOT NULL DEFAULT '{}'::jsonb,
		payload_hash TEXT NOT NULL,
		version      BIGINT NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at   TIMESTAMPTZ,
		PRIMARY KEY (layer, record_key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_geometry_records_scope ON geometry_records (region, layer)`,
	`CREATE INDEX IF NOT EXISTS idx_geometry_records_geom ON geometry_records USING GIST (geom)`,
	`CREATE TABLE IF NOT EXISTS geometry_history (
		id           BIGSERIAL PRIMARY KEY,
		cycle_id     UUID NOT NULL,
		op           TEXT NOT NULL,
		layer        TEXT NOT NULL,
		record_key   TEXT NOT NULL,
		region       TEXT NOT NULL,
		geom         geometry(Geometry, 4326),
		attributes   JSONB,
		payload_hash TEXT,
		version      BIGINT NOT NULL,
		recorded_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_geometry_history_key ON geometry_history (layer, record_key, version)`,
	`CREATE TABLE IF NOT EXISTS promotions (
		id            BIGSERIAL PRIMARY KEY,
		cycle_id      UUID NOT NULL UNIQUE,
		region        TEXT NOT NULL,
		layer         TEXT NOT NULL,
		version       BIGINT NOT NULL,
		inserted      INT NOT NULL,
		updated       INT NOT NULL,
		deleted       INT NOT NULL,
		live_count    INT NOT NULL,
		deleted_count INT NOT NULL,
		confirmed     BOOLEAN NOT NULL DEFAULT FALSE,
		promoted_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_promotions_scope ON promotions (region, layer, version DESC)`,
	`CREATE TABLE IF NOT EXISTS planning_rules (
		id                 BIGSERIAL PRIMARY KEY,
		zone_code          TEXT NOT NULL,
		lga                TEXT NOT NULL,
		planning_scheme    TEXT NOT NULL DEFAULT '',
		zone_category      TEXT,
		max_height_m       DOUBLE PRECISION,
		max_storeys        INT,
		min_lot_size_sqm   DOUBLE PRECISION,
		max_site_cover_pct DOUBLE PRECISION,
		min_frontage_m     DOUBLE PRECISION,
		front_setback_m    DOUBLE PRECISION,
		side_setback_m     DOUBLE PRECISION,
		rear_setback_m     DOUBLE PRECISION,
		dwelling_density   TEXT,
		accepted_uses      TEXT[] NOT NULL DEFAULT '{}',
		assessable_uses    TEXT[] NOT NULL DEFAULT '{}',
		prohibited_uses    TEXT[] NOT NULL DEFAULT '{}',
		confidence         DOUBLE PRECISION,
		source             TEXT,
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (zone_code, lga, planning_scheme)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_planning_rules_zone ON planning_rules (zone_code, lga)`,
}

// Migrate creates the tables, indexes and sequence the store and rule
// repositories expect.
func (db *Database) Migrate(ctx context.Context, log *logger.Logger) error {
	for i, stmt := range schema {
		log.Debug("Applying schema statement", map[string]interface{}{"index": i})
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d failed: %w", i, err)
		}
	}
	log.Info("Schema up to date", map[string]interface{}{"statements": len(schema)})
	return nil
}
