package models

import "time"

// OperationID identifies an operation for the lifetime of its ledger entry.
type OperationID string

// OperationKind is the kind of remote work an operation performs.
type OperationKind string

const (
	KindRead   OperationKind = "read"
	KindWrite  OperationKind = "write"
	KindAppend OperationKind = "append"
)

// Valid reports whether k is a known operation kind.
func (k OperationKind) Valid() bool {
	switch k {
	case KindRead, KindWrite, KindAppend:
		return true
	}
	return false
}

// OperationStatus moves Pending -> Processing -> Completed|Failed and never back.
type OperationStatus string

const (
	StatusPending    OperationStatus = "pending"
	StatusProcessing OperationStatus = "processing"
	StatusCompleted  OperationStatus = "completed"
	StatusFailed     OperationStatus = "failed"
)

// Valid reports whether s is a known status.
func (s OperationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s OperationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next is a forward step.
func (s OperationStatus) CanTransition(next OperationStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Operation is one unit of remote work tracked by the sync engine.
type Operation struct {
	ID          OperationID     `json:"id"`
	Kind        OperationKind   `json:"kind"`
	StoreID     string          `json:"store_id"`
	Range       string          `json:"range"`
	Payload     Matrix          `json:"payload,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
	Status      OperationStatus `json:"status"`
	Error       *OperationError `json:"error,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
}

// Clone returns a deep copy safe to hand to callers outside the engine.
func (o *Operation) Clone() Operation {
	cp := *o
	cp.Payload = o.Payload.Clone()
	if o.Error != nil {
		e := *o.Error
		cp.Error = &e
	}
	if o.StartedAt != nil {
		t := *o.StartedAt
		cp.StartedAt = &t
	}
	if o.FinishedAt != nil {
		t := *o.FinishedAt
		cp.FinishedAt = &t
	}
	return cp
}
