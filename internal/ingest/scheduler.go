package ingest

import (
	"context"
	"time"

	"github.com/stwalsh4118/siteplan/internal/logger"
	"github.com/stwalsh4118/siteplan/internal/models"
)

// Scheduler runs a full sync of the configured regions on a fixed interval
// until its context is cancelled.
type Scheduler struct {
	runner   *Runner
	layers   []models.Layer
	regions  []string
	interval time.Duration
	log      *logger.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(r *Runner, layers []models.Layer, regions []string, interval time.Duration, log *logger.Logger) *Scheduler {
	return &Scheduler{
		runner:   r,
		layers:   layers,
		regions:  regions,
		interval: interval,
		log:      log.WithComponent("scheduler"),
	}
}

// Run blocks until ctx is done. The first sync starts after one interval.
func (s *Scheduler) Run(ctx context.Context) {
	if len(s.regions) == 0 || s.interval <= 0 {
		s.log.Info("Sync scheduler disabled", map[string]interface{}{"regions": len(s.regions), "interval": s.interval.String()})
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("Sync scheduler started", map[string]interface{}{
		"regions":  s.regions,
		"interval": s.interval.String(),
	})
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Sync scheduler stopped", nil)
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one sync of every layer and region.
func (s *Scheduler) RunOnce(ctx context.Context) []*CycleReport {
	start := time.Now()
	reports, err := s.runner.RunLayers(ctx, s.layers, s.regions)

	counts := map[Status]int{}
	for _, r := range reports {
		counts[r.Status]++
	}
	fields := map[string]interface{}{
		"scopes":      len(reports),
		"promoted":    counts[StatusPromoted],
		"staged":      counts[StatusStaged],
		"noop":        counts[StatusNoop],
		"failed":      counts[StatusFailed],
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		s.log.Error("Scheduled sync finished with errors", err, fields)
	} else {
		s.log.Info("Scheduled sync finished", fields)
	}
	return reports
}
