package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stwalsh4118/siteplan/internal/ingest"
	"github.com/stwalsh4118/siteplan/internal/logger"
	"github.com/stwalsh4118/siteplan/internal/middleware"
	"github.com/stwalsh4118/siteplan/internal/rules"
	"github.com/stwalsh4118/siteplan/internal/services"
	"github.com/stwalsh4118/siteplan/internal/store"
)

// MockBuildabilityService is a mock implementation of services.BuildabilityService.
type MockBuildabilityService struct {
	mock.Mock
}

func (m *MockBuildabilityService) ResolveContext(ctx context.Context, lotPlan string, opts services.Options) (*services.ContextResult, error) {
	args := m.Called(ctx, lotPlan, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ContextResult), args.Error(1)
}

func (m *MockBuildabilityService) AggregateRules(ctx context.Context, zoneCode, region string) (*rules.Result, error) {
	args := m.Called(ctx, zoneCode, region)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rules.Result), args.Error(1)
}

func (m *MockBuildabilityService) Envelope(ctx context.Context, lotPlan string, opts services.EnvelopeOptions) (*services.EnvelopeResult, error) {
	args := m.Called(ctx, lotPlan, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.EnvelopeResult), args.Error(1)
}

// MockSyncService is a mock implementation of services.SyncService.
type MockSyncService struct {
	mock.Mock
}

func (m *MockSyncService) Staged() []store.StagedCycle {
	return m.Called().Get(0).([]store.StagedCycle)
}

func (m *MockSyncService) Confirm(ctx context.Context, region, layer, cycleID string) (*store.Promotion, error) {
	args := m.Called(ctx, region, layer, cycleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Promotion), args.Error(1)
}

func (m *MockSyncService) Discard(region, layer, cycleID string) error {
	return m.Called(region, layer, cycleID).Error(0)
}

func (m *MockSyncService) Status() []services.ScopeStatus {
	return m.Called().Get(0).([]services.ScopeStatus)
}

func (m *MockSyncService) Run(ctx context.Context, region, layer string) (*ingest.CycleReport, error) {
	args := m.Called(ctx, region, layer)
	report, _ := args.Get(0).(*ingest.CycleReport)
	return report, args.Error(1)
}

// setupTestRouter registers the API routes against mock services.
func setupTestRouter(svc services.BuildabilityService, sync services.SyncService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger.Nop(), 0))

	parcels := NewParcelHandler(svc)
	rulesHandler := NewRulesHandler(svc)
	syncHandler := NewSyncHandler(sync)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/parcels/context", parcels.Context)
		v1.GET("/parcels/envelope", parcels.Envelope)
		v1.GET("/rules", rulesHandler.Get)
		v1.GET("/sync/staged", syncHandler.Staged)
		v1.GET("/sync/status", syncHandler.Status)
		v1.POST("/sync/staged/:region/:layer/confirm", syncHandler.Confirm)
		v1.DELETE("/sync/staged/:region/:layer", syncHandler.Discard)
		v1.POST("/sync/run/:region/:layer", syncHandler.Run)
	}
	return router
}
