package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stwalsh4118/siteplan/internal/ingest"
	"github.com/stwalsh4118/siteplan/internal/logger"
	"github.com/stwalsh4118/siteplan/internal/models"
	"github.com/stwalsh4118/siteplan/internal/store"
)

// Sync errors
var (
	ErrInvalidScope = errors.New("invalid sync scope")
	ErrNoSource     = errors.New("no upstream source configured")
)

// SyncService is the operator surface over staged ingestion cycles.
type SyncService interface {
	// Staged lists cycles held back by an anomaly.
	Staged() []store.StagedCycle

	// Confirm promotes a staged cycle. An empty cycleID confirms whatever is
	// staged for the scope. Returns store.ErrNoStagedCycle, store.ErrScopeBusy
	// or store.ErrStaleStage.
	Confirm(ctx context.Context, region, layer, cycleID string) (*store.Promotion, error)

	// Discard drops a staged cycle.
	Discard(region, layer, cycleID string) error

	// Status lists every promoted scope.
	Status() []ScopeStatus

	// Run syncs one scope now. A cycle held back by an anomaly returns its
	// report together with an *ingest.AnomalyError.
	Run(ctx context.Context, region, layer string) (*ingest.CycleReport, error)
}

// ScopeRunner fetches and reconciles a single scope.
type ScopeRunner interface {
	RunScope(ctx context.Context, scope models.Scope) (*ingest.CycleReport, error)
}

// StagingStore is the part of the geometry store SyncService drives.
type StagingStore interface {
	Current() *store.Snapshot
	Staged() []store.StagedCycle
	Confirm(ctx context.Context, scope models.Scope, cycleID string) (*store.Promotion, error)
	Discard(scope models.Scope, cycleID string) error
}

// ScopeStatus summarises one promoted scope.
type ScopeStatus struct {
	Region  string `json:"region"`
	Layer   string `json:"layer"`
	CycleID string `json:"cycle_id,omitempty"`
	Version int64  `json:"version"`
	Live    int    `json:"live"`
	Deleted int    `json:"deleted"`
}

type syncService struct {
	store  StagingStore
	runner ScopeRunner
	log    *logger.Logger
}

// NewSyncService creates a SyncService. runner may be nil when no upstream
// source is configured; Run then returns ErrNoSource.
func NewSyncService(st StagingStore, runner ScopeRunner, log *logger.Logger) SyncService {
	return &syncService{store: st, runner: runner, log: log}
}

// ParseScope validates a region and layer pair from a request.
func ParseScope(region, layer string) (models.Scope, error) {
	l, err := models.ParseLayer(layer)
	if err != nil {
		return models.Scope{}, fmt.Errorf("%w: %v", ErrInvalidScope, err)
	}
	region = strings.TrimSpace(region)
	if region == "" {
		return models.Scope{}, fmt.Errorf("%w: region is required", ErrInvalidScope)
	}
	return models.Scope{Region: region, Layer: l}, nil
}

func (s *syncService) Staged() []store.StagedCycle {
	return s.store.Staged()
}

func (s *syncService) Confirm(ctx context.Context, region, layer, cycleID string) (*store.Promotion, error) {
	scope, err := ParseScope(region, layer)
	if err != nil {
		return nil, err
	}
	p, err := s.store.Confirm(ctx, scope, cycleID)
	if err != nil {
		s.log.Warn("Staged cycle confirmation failed", map[string]interface{}{
			"scope":    scope.String(),
			"cycle_id": cycleID,
			"error":    err.Error(),
		})
		return nil, err
	}
	s.log.Info("Staged cycle confirmed", map[string]interface{}{
		"scope":    scope.String(),
		"cycle_id": p.CycleID,
		"version":  p.Version,
	})
	return p, nil
}

func (s *syncService) Discard(region, layer, cycleID string) error {
	scope, err := ParseScope(region, layer)
	if err != nil {
		return err
	}
	return s.store.Discard(scope, cycleID)
}

func (s *syncService) Status() []ScopeStatus {
	views := s.store.Current().Scopes()
	out := make([]ScopeStatus, 0, len(views))
	for _, v := range views {
		out = append(out, ScopeStatus{
			Region:  v.Scope.Region,
			Layer:   string(v.Scope.Layer),
			CycleID: v.CycleID,
			Version: v.Version,
			Live:    v.Live,
			Deleted: v.Deleted,
		})
	}
	return out
}

func (s *syncService) Run(ctx context.Context, region, layer string) (*ingest.CycleReport, error) {
	scope, err := ParseScope(region, layer)
	if err != nil {
		return nil, err
	}
	if s.runner == nil {
		return nil, ErrNoSource
	}
	report, err := s.runner.RunScope(ctx, scope)
	if err != nil && !errors.Is(err, ingest.ErrSyncAnomaly) {
		s.log.Error("Manual sync failed", err, map[string]interface{}{"scope": scope.String()})
	}
	return report, err
}
