package store

import (
	"time"

	"github.com/stwalsh4118/siteplan/internal/models"
)

// OpKind is the kind of change a cycle applies to a record.
type OpKind string

const (
	OpInsert OpKind = "insert"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Op is one change to apply. Record carries the new state; for deletes it
// is the previous state with DeletedAt set.
type Op struct {
	Record *models.GeometryRecord
	Kind   OpKind
}

// Cycle is the output of one reconciliation, ready to be promoted or staged.
type Cycle struct {
	StagedAt    time.Time
	ID          string
	Scope       models.Scope
	Reasons     []string
	Ops         []Op
	BaseVersion int64
}

// Counts returns the number of inserts, updates and deletes.
func (c *Cycle) Counts() (inserted, updated, deleted int) {
	for _, op := range c.Ops {
		switch op.Kind {
		case OpInsert:
			inserted++
		case OpUpdate:
			updated++
		case OpDelete:
			deleted++
		}
	}
	return inserted, updated, deleted
}

// Promotion records a cycle switched into the live view.
type Promotion struct {
	PromotedAt   time.Time
	CycleID      string
	Scope        models.Scope
	Version      int64
	Inserted     int
	Updated      int
	Deleted      int
	LiveCount    int
	DeletedCount int
	Confirmed    bool
}

// StagedCycle is a cycle held back from promotion, awaiting an operator.
type StagedCycle struct {
	StagedAt    time.Time `json:"staged_at"`
	CycleID     string    `json:"cycle_id"`
	Region      string    `json:"region"`
	Layer       string    `json:"layer"`
	Reasons     []string  `json:"reasons"`
	BaseVersion int64     `json:"base_version"`
	Inserted    int       `json:"inserted"`
	Updated     int       `json:"updated"`
	Deleted     int       `json:"deleted"`
}

func summarize(c *Cycle) StagedCycle {
	ins, upd, del := c.Counts()
	return StagedCycle{
		StagedAt:    c.StagedAt,
		CycleID:     c.ID,
		Region:      c.Scope.Region,
		Layer:       string(c.Scope.Layer),
		Reasons:     append([]string(nil), c.Reasons...),
		BaseVersion: c.BaseVersion,
		Inserted:    ins,
		Updated:     upd,
		Deleted:     del,
	}
}
