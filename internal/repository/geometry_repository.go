package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stwalsh4118/siteplan/internal/database"
	"github.com/stwalsh4118/siteplan/internal/models"
	"github.com/stwalsh4118/siteplan/internal/store"
)

// GeometryRepository persists the Geometry Store: current rows, their
// append-only history and the promotion log. It implements store.Persister.
type GeometryRepository interface {
	store.Persister
	// History returns every recorded version of a record, oldest first.
	History(ctx context.Context, layer models.Layer, key string) ([]HistoryEntry, error)
}

// HistoryEntry is one applied op on a record.
type HistoryEntry struct {
	RecordedAt time.Time         `json:"recorded_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Geometry   models.Geometry   `json:"geometry"`
	CycleID    string            `json:"cycle_id"`
	Op         string            `json:"op"`
	Region     string            `json:"region"`
	Hash       string            `json:"hash,omitempty"`
	Version    int64             `json:"version"`
}

type geometryRepository struct {
	db *database.Database
}

// NewGeometryRepository creates a GeometryRepository.
func NewGeometryRepository(db *database.Database) GeometryRepository {
	return &geometryRepository{db: db}
}

func (r *geometryRepository) NextVersion(ctx context.Context) (int64, error) {
	var v int64
	if err := r.db.Pool.QueryRow(ctx, `SELECT nextval('store_version_seq')`).Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to allocate version: %w", err)
	}
	return v, nil
}

const (
	insertPromotionSQL = `
		INSERT INTO promotions (cycle_id, region, layer, version, inserted, updated, deleted,
			live_count, deleted_count, confirmed, promoted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	insertHistorySQL = `
		INSERT INTO geometry_history (cycle_id, op, layer, record_key, region, geom,
			attributes, payload_hash, version, recorded_at)
		VALUES ($1, $2, $3, $4, $5, ST_SetSRID(ST_GeomFromGeoJSON($6), 4326), $7, $8, $9, $10)`

	upsertRecordSQL = `
		INSERT INTO geometry_records (layer, record_key, region, geom, attributes,
			payload_hash, version, updated_at, deleted_at)
		VALUES ($1, $2, $3, ST_SetSRID(ST_GeomFromGeoJSON($4), 4326), $5, $6, $7, $8, NULL)
		ON CONFLICT (layer, record_key) DO UPDATE SET
			region = EXCLUDED.region,
			geom = EXCLUDED.geom,
			attributes = EXCLUDED.attributes,
			payload_hash = EXCLUDED.payload_hash,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at,
			deleted_at = NULL`

	// The region guard keeps a stale delete from clobbering a record that
	// has since moved to another region.
	softDeleteSQL = `
		UPDATE geometry_records
		SET deleted_at = $4, version = $5, updated_at = $4
		WHERE layer = $1 AND record_key = $2 AND region = $3`
)

// Apply writes one cycle in a single transaction.
func (r *geometryRepository) Apply(ctx context.Context, p *store.Promotion, ops []store.Op) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	batch.Queue(insertPromotionSQL,
		p.CycleID, p.Scope.Region, string(p.Scope.Layer), p.Version,
		p.Inserted, p.Updated, p.Deleted, p.LiveCount, p.DeletedCount, p.Confirmed, p.PromotedAt)

	for _, op := range ops {
		rec := op.Record
		geomJSON, err := rec.Geometry.Value()
		if err != nil {
			return fmt.Errorf("failed to encode geometry for %s: %w", rec.Key, err)
		}
		batch.Queue(insertHistorySQL,
			p.CycleID, string(op.Kind), string(rec.Layer), rec.Key, rec.Region,
			geomJSON, rec.Attributes, rec.Hash, rec.Version, p.PromotedAt)

		switch op.Kind {
		case store.OpDelete:
			batch.Queue(softDeleteSQL, string(rec.Layer), rec.Key, rec.Region, p.PromotedAt, rec.Version)
		default:
			batch.Queue(upsertRecordSQL,
				string(rec.Layer), rec.Key, rec.Region, geomJSON, rec.Attributes,
				rec.Hash, rec.Version, rec.UpdatedAt)
		}
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("failed to apply cycle %s (statement %d): %w", p.CycleID, i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to apply cycle %s: %w", p.CycleID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit cycle %s: %w", p.CycleID, err)
	}
	return nil
}

const selectRecordsSQL = `
	SELECT layer, record_key, region, ST_AsGeoJSON(geom), attributes,
		payload_hash, version, updated_at, deleted_at
	FROM geometry_records`

func (r *geometryRepository) LoadAll(ctx context.Context) ([]*models.GeometryRecord, error) {
	rows, err := r.db.Pool.Query(ctx, selectRecordsSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query geometry records: %w", err)
	}
	return scanRecords(rows)
}

func (r *geometryRepository) LoadScope(ctx context.Context, scope models.Scope) ([]*models.GeometryRecord, error) {
	rows, err := r.db.Pool.Query(ctx, selectRecordsSQL+` WHERE region = $1 AND layer = $2`,
		scope.Region, string(scope.Layer))
	if err != nil {
		return nil, fmt.Errorf("failed to query geometry records for %s: %w", scope, err)
	}
	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]*models.GeometryRecord, error) {
	defer rows.Close()

	records := []*models.GeometryRecord{}
	for rows.Next() {
		var (
			rec      models.GeometryRecord
			layer    string
			geomJSON []byte
		)
		if err := rows.Scan(&layer, &rec.Key, &rec.Region, &geomJSON, &rec.Attributes,
			&rec.Hash, &rec.Version, &rec.UpdatedAt, &rec.DeletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan geometry record: %w", err)
		}
		rec.Layer = models.Layer(layer)
		if err := rec.Geometry.Scan(geomJSON); err != nil {
			return nil, fmt.Errorf("failed to parse geometry for %s/%s: %w", layer, rec.Key, err)
		}
		if rec.Attributes == nil {
			rec.Attributes = map[string]string{}
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating geometry records: %w", err)
	}
	return records, nil
}

func (r *geometryRepository) LatestPromotions(ctx context.Context) ([]*store.Promotion, error) {
	query := `
		SELECT DISTINCT ON (region, layer)
			cycle_id::text, region, layer, version, inserted, updated, deleted,
			live_count, deleted_count, confirmed, promoted_at
		FROM promotions
		ORDER BY region, layer, version DESC
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query promotions: %w", err)
	}
	defer rows.Close()

	out := []*store.Promotion{}
	for rows.Next() {
		var (
			p     store.Promotion
			layer string
		)
		if err := rows.Scan(&p.CycleID, &p.Scope.Region, &layer, &p.Version, &p.Inserted,
			&p.Updated, &p.Deleted, &p.LiveCount, &p.DeletedCount, &p.Confirmed, &p.PromotedAt); err != nil {
			return nil, fmt.Errorf("failed to scan promotion: %w", err)
		}
		p.Scope.Layer = models.Layer(layer)
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating promotions: %w", err)
	}
	return out, nil
}

func (r *geometryRepository) History(ctx context.Context, layer models.Layer, key string) ([]HistoryEntry, error) {
	query := `
		SELECT cycle_id::text, op, region, ST_AsGeoJSON(geom), attributes,
			COALESCE(payload_hash, ''), version, recorded_at
		FROM geometry_history
		WHERE layer = $1 AND record_key = $2
		ORDER BY version, id
	`
	rows, err := r.db.Pool.Query(ctx, query, string(layer), key)
	if err != nil {
		return nil, fmt.Errorf("failed to query history for %s/%s: %w", layer, key, err)
	}
	defer rows.Close()

	out := []HistoryEntry{}
	for rows.Next() {
		var (
			e        HistoryEntry
			geomJSON []byte
		)
		if err := rows.Scan(&e.CycleID, &e.Op, &e.Region, &geomJSON, &e.Attributes,
			&e.Hash, &e.Version, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		if geomJSON != nil {
			if err := e.Geometry.Scan(geomJSON); err != nil {
				return nil, fmt.Errorf("failed to parse history geometry: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return out, nil
}
