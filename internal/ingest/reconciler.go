package ingest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/stwalsh4118/siteplan/internal/geom"
	"github.com/stwalsh4118/siteplan/internal/logger"
	"github.com/stwalsh4118/siteplan/internal/metrics"
	"github.com/stwalsh4118/siteplan/internal/models"
	"github.com/stwalsh4118/siteplan/internal/store"
)

// ReconcilerConfig tunes anomaly detection.
type ReconcilerConfig struct {
	// AnomalyThreshold is the largest relative change in live count or
	// deletes accepted without operator confirmation, e.g. 0.10.
	AnomalyThreshold float64
	Tolerance        geom.Tolerance
}

// Reconciler diffs upstream batches against the Geometry Store and promotes
// or stages the result.
type Reconciler struct {
	store *store.Store
	cfg   ReconcilerConfig
	log   *logger.Logger
	newID func() string
	now   func() time.Time
}

// NewReconciler creates a Reconciler.
func NewReconciler(st *store.Store, cfg ReconcilerConfig, log *logger.Logger) *Reconciler {
	return &Reconciler{
		store: st,
		cfg:   cfg,
		log:   log.WithComponent("reconciler"),
		newID: func() string { return uuid.New().String() },
		now:   time.Now,
	}
}

// Reconcile applies one batch. Invalid records are rejected individually.
// When the change looks anomalous the cycle is staged, the live view is left
// alone and an *AnomalyError is returned along with the report.
func (r *Reconciler) Reconcile(ctx context.Context, b *Batch) (*CycleReport, error) {
	unlock, err := r.store.Lock(b.Scope)
	if err != nil {
		return nil, err
	}
	defer unlock()

	report := &CycleReport{
		CycleID:   r.newID(),
		Scope:     b.Scope,
		StartedAt: r.now().UTC(),
		Received:  len(b.Records),
		Rejected:  []Rejection{},
		Anomalies: []Anomaly{},
	}
	log := r.log.With(map[string]interface{}{"scope": b.Scope.String(), "cycle_id": report.CycleID})
	layer := string(b.Scope.Layer)

	base := r.store.Current().Scope(b.Scope)
	incoming, seen := r.accept(b, report, log)

	cycle := &store.Cycle{ID: report.CycleID, Scope: b.Scope, BaseVersion: base.Version}

	revived := 0
	keys := make([]string, 0, len(incoming))
	for k := range incoming {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rec := incoming[k]
		prev, ok := base.Get(k)
		switch {
		case !ok:
			cycle.Ops = append(cycle.Ops, store.Op{Kind: store.OpInsert, Record: rec})
		case prev.Deleted():
			revived++
			cycle.Ops = append(cycle.Ops, store.Op{Kind: store.OpUpdate, Record: rec})
		case prev.Hash != rec.Hash:
			cycle.Ops = append(cycle.Ops, store.Op{Kind: store.OpUpdate, Record: rec})
		default:
			report.Unchanged++
		}
	}
	if !b.Partial {
		for _, prev := range base.LiveRecords() {
			if !seen[prev.Key] {
				cycle.Ops = append(cycle.Ops, store.Op{Kind: store.OpDelete, Record: prev})
			}
		}
	}
	report.Inserted, report.Updated, report.Deleted = cycle.Counts()

	if len(cycle.Ops) == 0 {
		report.Status = StatusNoop
		report.Version = base.Version
		r.finish(report, log)
		return report, nil
	}

	report.Anomalies = append(report.Anomalies, r.detectSwing(base, report, revived)...)
	if b.Scope.Layer == models.LayerZone {
		report.Anomalies = append(report.Anomalies, r.detectZoneOverlap(base, cycle, log)...)
	}

	if len(report.Anomalies) > 0 {
		for _, a := range report.Anomalies {
			cycle.Reasons = append(cycle.Reasons, a.Message)
			metrics.SyncAnomaliesTotal.WithLabelValues(a.Kind).Inc()
		}
		r.store.Stage(cycle)
		report.Status = StatusStaged
		report.Version = base.Version
		log.Event(logger.EventSyncAnomaly, map[string]interface{}{
			"reasons":  cycle.Reasons,
			"inserted": report.Inserted,
			"updated":  report.Updated,
			"deleted":  report.Deleted,
		})
		r.finish(report, log)
		return report, &AnomalyError{Scope: b.Scope, CycleID: report.CycleID, Anomalies: report.Anomalies}
	}

	p, err := r.store.Promote(ctx, cycle)
	if err != nil {
		report.Status = StatusFailed
		report.Error = err.Error()
		r.finish(report, log)
		return report, err
	}
	report.Status = StatusPromoted
	report.Version = p.Version
	metrics.SyncRecordsTotal.WithLabelValues(layer, string(store.OpInsert)).Add(float64(report.Inserted))
	metrics.SyncRecordsTotal.WithLabelValues(layer, string(store.OpUpdate)).Add(float64(report.Updated))
	metrics.SyncRecordsTotal.WithLabelValues(layer, string(store.OpDelete)).Add(float64(report.Deleted))
	metrics.StoreVersion.Set(float64(r.store.Current().Version))
	r.finish(report, log)
	return report, nil
}

// accept validates and hashes incoming records. seen holds every key present
// upstream, including rejected ones, so a record that fails validation keeps
// its previous promoted state instead of being soft-deleted.
func (r *Reconciler) accept(b *Batch, report *CycleReport, log *logger.Logger) (map[string]*models.GeometryRecord, map[string]bool) {
	incoming := make(map[string]*models.GeometryRecord, len(b.Records))
	seen := make(map[string]bool, len(b.Records))

	reject := func(key, reason string) {
		report.Rejected = append(report.Rejected, Rejection{Key: key, Reason: reason})
		metrics.InvalidGeometryTotal.WithLabelValues(string(b.Scope.Layer)).Inc()
		log.Event(logger.EventInvalidGeometry, map[string]interface{}{"key": key, "reason": reason})
	}

	for _, in := range b.Records {
		if in.Key == "" {
			reject("", "missing business key")
			continue
		}
		if seen[in.Key] {
			reject(in.Key, "duplicate key in batch")
			delete(incoming, in.Key)
			continue
		}
		seen[in.Key] = true

		rec := in.Clone()
		rec.Region = b.Scope.Region
		rec.Layer = b.Scope.Layer
		if err := validateForLayer(rec, r.cfg.Tolerance); err != nil {
			reject(rec.Key, err.Error())
			continue
		}
		h, err := PayloadHash(rec)
		if err != nil {
			reject(rec.Key, err.Error())
			continue
		}
		rec.Hash = h
		incoming[rec.Key] = rec
	}
	return incoming, seen
}

func validateForLayer(rec *models.GeometryRecord, tol geom.Tolerance) error {
	g := rec.Geometry.Geometry
	if err := geom.Validate(g, tol); err != nil {
		return err
	}
	_, polygonal := geom.AsMultiPolygon(g)
	_, point := g.(orb.Point)
	switch rec.Layer {
	case models.LayerAddress:
		if !point {
			return fmt.Errorf("%w: address must be a point", geom.ErrInvalidGeometry)
		}
	default:
		if !polygonal {
			return fmt.Errorf("%w: %s must be a polygon or multipolygon", geom.ErrInvalidGeometry, rec.Layer)
		}
	}
	return nil
}

// detectSwing compares the cycle against the previous promoted view. The
// first cycle of a scope has nothing to compare against. revived counts
// updates that bring soft-deleted records back.
func (r *Reconciler) detectSwing(base *store.ScopeView, report *CycleReport, revived int) []Anomaly {
	if base.Version == 0 || base.Live == 0 {
		return nil
	}
	prev := base.Live
	next := prev + report.Inserted + revived - report.Deleted
	threshold := r.cfg.AnomalyThreshold

	var out []Anomaly
	if change := math.Abs(float64(next-prev)) / float64(prev); change > threshold {
		out = append(out, Anomaly{
			Kind:     AnomalyCountSwing,
			Message:  fmt.Sprintf("live record count would change from %d to %d (%.1f%%)", prev, next, change*100),
			Previous: prev,
			Current:  next,
			Change:   change,
		})
	}
	if change := float64(report.Deleted) / float64(prev); change > threshold {
		out = append(out, Anomaly{
			Kind:     AnomalyDeleteSwing,
			Message:  fmt.Sprintf("%d of %d live records would be soft-deleted (%.1f%%)", report.Deleted, prev, change*100),
			Previous: prev,
			Current:  report.Deleted,
			Change:   change,
		})
	}
	return out
}

func (r *Reconciler) finish(report *CycleReport, log *logger.Logger) {
	report.FinishedAt = r.now().UTC()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)
	metrics.SyncCyclesTotal.WithLabelValues(string(report.Scope.Layer), string(report.Status)).Inc()

	fields := map[string]interface{}{
		"status":      report.Status,
		"version":     report.Version,
		"received":    report.Received,
		"inserted":    report.Inserted,
		"updated":     report.Updated,
		"deleted":     report.Deleted,
		"unchanged":   report.Unchanged,
		"rejected":    len(report.Rejected),
		"duration_ms": report.Duration.Milliseconds(),
	}
	if report.Status == StatusFailed {
		log.Warn("Sync cycle failed", fields)
		return
	}
	log.Info("Sync cycle finished", fields)
}
