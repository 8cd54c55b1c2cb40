package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stwalsh4118/siteplan/internal/logger"
	"github.com/stwalsh4118/siteplan/internal/metrics"
	"github.com/stwalsh4118/siteplan/internal/models"
	"golang.org/x/sync/errgroup"
)

// Runner fetches and reconciles scopes on a bounded worker pool. Scopes write
// disjoint keys, so they run in parallel; one failing scope does not cancel
// the others.
type Runner struct {
	source     Source
	reconciler *Reconciler
	workers    int
	log        *logger.Logger
}

// NewRunner creates a Runner with at most workers concurrent scopes.
func NewRunner(src Source, rec *Reconciler, workers int, log *logger.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{source: src, reconciler: rec, workers: workers, log: log.WithComponent("runner")}
}

// RunScope fetches and reconciles a single scope.
func (r *Runner) RunScope(ctx context.Context, scope models.Scope) (*CycleReport, error) {
	start := time.Now()
	defer func() {
		metrics.SyncDurationSeconds.WithLabelValues(string(scope.Layer)).Observe(time.Since(start).Seconds())
	}()

	b, err := r.source.Fetch(ctx, scope)
	if err != nil {
		return &CycleReport{Scope: scope, Status: StatusFailed, Error: err.Error()},
			fmt.Errorf("fetch %s: %w", scope, err)
	}
	b.Scope = scope
	report, err := r.reconciler.Reconcile(ctx, b)
	if err != nil {
		if report == nil {
			report = &CycleReport{Scope: scope, Status: StatusFailed, Error: err.Error()}
		}
		return report, fmt.Errorf("reconcile %s: %w", scope, err)
	}
	return report, nil
}

// RunRegions syncs one layer across regions. Reports come back in region
// order; errors from individual scopes are joined.
func (r *Runner) RunRegions(ctx context.Context, layer models.Layer, regions []string) ([]*CycleReport, error) {
	scopes := make([]models.Scope, len(regions))
	for i, region := range regions {
		scopes[i] = models.Scope{Region: region, Layer: layer}
	}
	return r.run(ctx, scopes)
}

// RunLayers syncs every layer for each region. Layers run one after another
// so parcels land before addresses and zones before overlays.
func (r *Runner) RunLayers(ctx context.Context, layers []models.Layer, regions []string) ([]*CycleReport, error) {
	var (
		all  []*CycleReport
		errs []error
	)
	for _, layer := range layers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		reports, err := r.RunRegions(ctx, layer, regions)
		all = append(all, reports...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return all, errors.Join(errs...)
}

func (r *Runner) run(ctx context.Context, scopes []models.Scope) ([]*CycleReport, error) {
	reports := make([]*CycleReport, len(scopes))
	errs := make([]error, len(scopes))

	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, sc := range scopes {
		i, sc := i, sc
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				reports[i] = &CycleReport{Scope: sc, Status: StatusFailed, Error: err.Error()}
				return nil
			}
			reports[i], errs[i] = r.RunScope(ctx, sc)
			if errs[i] != nil {
				r.log.Warn("Scope sync did not promote", map[string]interface{}{
					"scope": sc.String(),
					"error": errs[i].Error(),
				})
			}
			return nil
		})
	}
	_ = g.Wait()
	return reports, errors.Join(errs...)
}
