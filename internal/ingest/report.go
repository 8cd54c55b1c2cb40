package ingest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stwalsh4118/siteplan/internal/models"
)

// ErrSyncAnomaly is wrapped by every AnomalyError.
var ErrSyncAnomaly = errors.New("sync anomaly")

// Batch is one fetch of upstream records for a scope. A partial batch only
// covers part of the scope, so absent records are not soft-deleted.
type Batch struct {
	FetchedAt time.Time
	Scope     models.Scope
	Records   []*models.GeometryRecord
	Partial   bool
}

// Status is the outcome of one cycle.
type Status string

const (
	StatusPromoted Status = "promoted"
	StatusStaged   Status = "staged"
	StatusNoop     Status = "noop"
	StatusFailed   Status = "failed"
)

// Anomaly kinds.
const (
	AnomalyCountSwing  = "count_swing"
	AnomalyDeleteSwing = "delete_swing"
	AnomalyZoneOverlap = "zone_overlap"
)

// Anomaly is one reason a cycle was held back.
type Anomaly struct {
	Kind     string  `json:"kind"`
	Message  string  `json:"message"`
	Previous int     `json:"previous,omitempty"`
	Current  int     `json:"current,omitempty"`
	Change   float64 `json:"change,omitempty"`
}

// Rejection is an incoming record refused by validation.
type Rejection struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// CycleReport summarises one reconciliation.
type CycleReport struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	CycleID    string        `json:"cycle_id"`
	Scope      models.Scope  `json:"scope"`
	Status     Status        `json:"status"`
	Error      string        `json:"error,omitempty"`
	Rejected   []Rejection   `json:"rejected"`
	Anomalies  []Anomaly     `json:"anomalies"`
	Version    int64         `json:"version"`
	Received   int           `json:"received"`
	Inserted   int           `json:"inserted"`
	Updated    int           `json:"updated"`
	Deleted    int           `json:"deleted"`
	Unchanged  int           `json:"unchanged"`
	Duration   time.Duration `json:"duration"`
}

// AnomalyError reports a cycle that was staged instead of promoted.
type AnomalyError struct {
	Scope     models.Scope
	CycleID   string
	Anomalies []Anomaly
}

func (e *AnomalyError) Error() string {
	msgs := make([]string, len(e.Anomalies))
	for i, a := range e.Anomalies {
		msgs[i] = a.Message
	}
	return fmt.Sprintf("%s: %s cycle %s staged: %s", ErrSyncAnomaly, e.Scope, e.CycleID, strings.Join(msgs, "; "))
}

func (e *AnomalyError) Unwrap() error {
	return ErrSyncAnomaly
}
