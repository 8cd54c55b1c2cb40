package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stwalsh4118/siteplan/internal/logger"
	"github.com/stwalsh4118/siteplan/internal/models"
)

var (
	// ErrScopeBusy is returned when another cycle holds the scope.
	ErrScopeBusy = errors.New("scope is already syncing")
	// ErrNoStagedCycle is returned when confirming or discarding a cycle
	// that is not staged.
	ErrNoStagedCycle = errors.New("no staged cycle for scope")
	// ErrStaleStage is returned when the live view moved on after a cycle was
	// staged; the cycle's diff no longer applies.
	ErrStaleStage = errors.New("staged cycle is based on a superseded version")
)

// Persister durably records promotions. The pgx geometry repository
// implements it; a nil Persister keeps the store in memory.
type Persister interface {
	// NextVersion allocates a store version, strictly increasing.
	NextVersion(ctx context.Context) (int64, error)
	// Apply writes the cycle's ops, their history rows and the promotion
	// record atomically.
	Apply(ctx context.Context, p *Promotion, ops []Op) error
	// LoadAll returns every current record, soft-deleted ones included.
	LoadAll(ctx context.Context) ([]*models.GeometryRecord, error)
	// LoadScope returns every current record of one scope.
	LoadScope(ctx context.Context, scope models.Scope) ([]*models.GeometryRecord, error)
	// LatestPromotions returns the newest promotion of every scope.
	LatestPromotions(ctx context.Context) ([]*Promotion, error)
}

// PromoteFunc is notified after a scope's new view is live.
type PromoteFunc func(scope models.Scope, version int64)

// Store is the versioned Geometry Store. Readers call Current and keep the
// returned snapshot for the whole request; writers go through a scope lock
// and publish by swapping the snapshot pointer.
type Store struct {
	current   atomic.Pointer[Snapshot]
	persister Persister
	log       *logger.Logger
	now       func() time.Time

	swapMu sync.Mutex

	scopeMu sync.Mutex
	busy    map[models.Scope]bool
	staged  map[models.Scope]*Cycle

	listenerMu sync.RWMutex
	listeners  []PromoteFunc

	memVersion atomic.Int64
}

// New returns an empty store.
func New(p Persister, log *logger.Logger) *Store {
	s := &Store{
		persister: p,
		log:       log.WithComponent("store"),
		now:       time.Now,
		busy:      map[models.Scope]bool{},
		staged:    map[models.Scope]*Cycle{},
	}
	s.current.Store(emptySnapshot())
	return s
}

// Current returns the promoted snapshot.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// OnPromote registers fn to run after every promotion.
func (s *Store) OnPromote(fn PromoteFunc) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Lock claims a scope for one cycle, from diff to promotion. The returned
// func releases it.
func (s *Store) Lock(scope models.Scope) (func(), error) {
	s.scopeMu.Lock()
	defer s.scopeMu.Unlock()
	if s.busy[scope] {
		return nil, fmt.Errorf("%w: %s", ErrScopeBusy, scope)
	}
	s.busy[scope] = true
	return func() {
		s.scopeMu.Lock()
		delete(s.busy, scope)
		s.scopeMu.Unlock()
	}, nil
}

// Promote persists a cycle and switches it into the live view. The caller
// must hold the scope lock.
func (s *Store) Promote(ctx context.Context, c *Cycle) (*Promotion, error) {
	return s.promote(ctx, c, false)
}

func (s *Store) promote(ctx context.Context, c *Cycle, confirmed bool) (*Promotion, error) {
	base := s.Current().Scope(c.Scope)
	if base.Version != c.BaseVersion {
		return nil, fmt.Errorf("%w: %s base %d, live %d", ErrStaleStage, c.Scope, c.BaseVersion, base.Version)
	}

	version, err := s.nextVersion(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	records := make(map[string]*models.GeometryRecord, len(base.Records)+len(c.Ops))
	for k, r := range base.Records {
		records[k] = r
	}
	ops := make([]Op, len(c.Ops))
	for i, op := range c.Ops {
		r := op.Record.Clone()
		r.Version = version
		r.UpdatedAt = now
		if op.Kind == OpDelete {
			r.DeletedAt = &now
		} else {
			r.DeletedAt = nil
		}
		records[r.Key] = r
		ops[i] = Op{Kind: op.Kind, Record: r}
	}

	view := newView(c.Scope, version, c.ID, now, records)
	ins, upd, del := c.Counts()
	p := &Promotion{
		PromotedAt:   now,
		CycleID:      c.ID,
		Scope:        c.Scope,
		Version:      version,
		Inserted:     ins,
		Updated:      upd,
		Deleted:      del,
		LiveCount:    view.Live,
		DeletedCount: view.Deleted,
		Confirmed:    confirmed,
	}

	if s.persister != nil {
		if err := s.persister.Apply(ctx, p, ops); err != nil {
			return nil, fmt.Errorf("failed to persist cycle %s: %w", c.ID, err)
		}
	}

	s.publish(view)
	s.dropSuperseded(c.Scope)
	s.log.Event(logger.EventPromotion, map[string]interface{}{
		"scope":     c.Scope.String(),
		"cycle_id":  c.ID,
		"version":   version,
		"inserted":  ins,
		"updated":   upd,
		"deleted":   del,
		"confirmed": confirmed,
	})
	return p, nil
}

// publish swaps in a snapshot carrying view and notifies listeners.
func (s *Store) publish(view *ScopeView) {
	s.swapMu.Lock()
	s.current.Store(s.Current().withScope(view))
	s.swapMu.Unlock()

	s.listenerMu.RLock()
	listeners := append([]PromoteFunc(nil), s.listeners...)
	s.listenerMu.RUnlock()
	for _, fn := range listeners {
		fn(view.Scope, view.Version)
	}
}

func (s *Store) nextVersion(ctx context.Context) (int64, error) {
	if s.persister == nil {
		return s.memVersion.Add(1), nil
	}
	v, err := s.persister.NextVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate store version: %w", err)
	}
	return v, nil
}

// Stage holds a cycle back for confirmation, replacing any cycle already
// staged for the scope.
func (s *Store) Stage(c *Cycle) {
	s.scopeMu.Lock()
	defer s.scopeMu.Unlock()
	if c.StagedAt.IsZero() {
		c.StagedAt = s.now().UTC()
	}
	s.staged[c.Scope] = c
}

// dropSuperseded removes a staged cycle whose base is no longer live.
func (s *Store) dropSuperseded(scope models.Scope) {
	live := s.Current().Scope(scope).Version
	s.scopeMu.Lock()
	defer s.scopeMu.Unlock()
	if c, ok := s.staged[scope]; ok && c.BaseVersion != live {
		delete(s.staged, scope)
		s.log.Info("Dropped superseded staged cycle", map[string]interface{}{
			"scope":    scope.String(),
			"cycle_id": c.ID,
		})
	}
}

// Staged lists staged cycles ordered by scope.
func (s *Store) Staged() []StagedCycle {
	s.scopeMu.Lock()
	defer s.scopeMu.Unlock()
	out := make([]StagedCycle, 0, len(s.staged))
	for _, c := range s.staged {
		out = append(out, summarize(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Region != out[j].Region {
			return out[i].Region < out[j].Region
		}
		return out[i].Layer < out[j].Layer
	})
	return out
}

// StagedFor returns the staged cycle of a scope.
func (s *Store) StagedFor(scope models.Scope) (StagedCycle, bool) {
	s.scopeMu.Lock()
	defer s.scopeMu.Unlock()
	c, ok := s.staged[scope]
	if !ok {
		return StagedCycle{}, false
	}
	return summarize(c), true
}

func (s *Store) takeStaged(scope models.Scope, cycleID string) (*Cycle, error) {
	s.scopeMu.Lock()
	defer s.scopeMu.Unlock()
	c, ok := s.staged[scope]
	if !ok || (cycleID != "" && c.ID != cycleID) {
		return nil, fmt.Errorf("%w: %s", ErrNoStagedCycle, scope)
	}
	delete(s.staged, scope)
	return c, nil
}

// Confirm promotes a staged cycle after operator review. An empty cycleID
// confirms whatever is staged for the scope.
func (s *Store) Confirm(ctx context.Context, scope models.Scope, cycleID string) (*Promotion, error) {
	unlock, err := s.Lock(scope)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, err := s.takeStaged(scope, cycleID)
	if err != nil {
		return nil, err
	}
	p, err := s.promote(ctx, c, true)
	if err != nil {
		if !errors.Is(err, ErrStaleStage) {
			s.Stage(c)
		}
		return nil, err
	}
	return p, nil
}

// Discard drops a staged cycle.
func (s *Store) Discard(scope models.Scope, cycleID string) error {
	c, err := s.takeStaged(scope, cycleID)
	if err != nil {
		return err
	}
	s.log.Info("Discarded staged cycle", map[string]interface{}{
		"scope":    scope.String(),
		"cycle_id": c.ID,
	})
	return nil
}

// Load rebuilds the store from persisted current rows.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	records, err := s.persister.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load geometry records: %w", err)
	}
	promotions, err := s.persister.LatestPromotions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load promotions: %w", err)
	}

	byScope := map[models.Scope]map[string]*models.GeometryRecord{}
	for _, r := range records {
		sc := r.Scope()
		if byScope[sc] == nil {
			byScope[sc] = map[string]*models.GeometryRecord{}
		}
		byScope[sc][r.Key] = r
	}
	latest := map[models.Scope]*Promotion{}
	for _, p := range promotions {
		latest[p.Scope] = p
	}

	for sc, recs := range byScope {
		view := viewFromRows(sc, recs, latest[sc])
		s.publish(view)
	}
	s.log.Info("Geometry store loaded", map[string]interface{}{
		"records": len(records),
		"scopes":  len(byScope),
		"version": s.Current().Version,
	})
	return nil
}

// Refresh reloads scopes promoted by another process since they were last
// loaded. Scopes currently syncing locally are skipped. It returns the
// number of scopes reloaded.
func (s *Store) Refresh(ctx context.Context) (int, error) {
	if s.persister == nil {
		return 0, nil
	}
	promotions, err := s.persister.LatestPromotions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load promotions: %w", err)
	}

	reloaded := 0
	for _, p := range promotions {
		if p.Version <= s.Current().Scope(p.Scope).Version {
			continue
		}
		unlock, err := s.Lock(p.Scope)
		if err != nil {
			continue
		}
		rows, err := s.persister.LoadScope(ctx, p.Scope)
		if err != nil {
			unlock()
			return reloaded, fmt.Errorf("failed to reload %s: %w", p.Scope, err)
		}
		recs := make(map[string]*models.GeometryRecord, len(rows))
		for _, r := range rows {
			recs[r.Key] = r
		}
		s.publish(viewFromRows(p.Scope, recs, p))
		unlock()
		reloaded++
	}
	return reloaded, nil
}

func viewFromRows(sc models.Scope, recs map[string]*models.GeometryRecord, p *Promotion) *ScopeView {
	var version int64
	var at time.Time
	var cycleID string
	if p != nil {
		version, at, cycleID = p.Version, p.PromotedAt, p.CycleID
	}
	for _, r := range recs {
		if r.Version > version {
			version = r.Version
		}
	}
	return newView(sc, version, cycleID, at, recs)
}
