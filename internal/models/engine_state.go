package models

import "time"

// EngineState is a read-only snapshot of a sync engine.
type EngineState struct {
	IsActive              bool        `json:"is_active"`
	LastSuccessfulDrainAt *time.Time  `json:"last_successful_drain_at,omitempty"`
	Config                SyncConfig  `json:"config"`
	QueueLength           int         `json:"queue_length"`
	Ledger                []Operation `json:"ledger"`
	TakenAt               time.Time   `json:"taken_at"`
}

// CountByStatus tallies ledger entries per status.
func (s *EngineState) CountByStatus() map[OperationStatus]int {
	counts := make(map[OperationStatus]int, 4)
	for i := range s.Ledger {
		counts[s.Ledger[i].Status]++
	}
	return counts
}

// ReadResult is what the remote store returns for a range read.
type ReadResult struct {
	Range          string `json:"range"`
	Values         Matrix `json:"values"`
	MajorDimension string `json:"major_dimension,omitempty"`
}

// WriteSummary describes the effect of a write or append.
type WriteSummary struct {
	UpdatedRange   string `json:"updated_range"`
	UpdatedRows    int64  `json:"updated_rows"`
	UpdatedColumns int64  `json:"updated_columns"`
	UpdatedCells   int64  `json:"updated_cells"`
}

// ReconcileResult holds both sides as they were read, before any corrective
// writes. Changed reports whether the sides differed.
type ReconcileResult struct {
	SourceData Matrix `json:"source_data"`
	TargetData Matrix `json:"target_data"`
	Changed    bool   `json:"changed"`
}

// Clone returns a deep copy of the state.
func (s *EngineState) Clone() EngineState {
	cp := *s
	if s.LastSuccessfulDrainAt != nil {
		t := *s.LastSuccessfulDrainAt
		cp.LastSuccessfulDrainAt = &t
	}
	if s.Ledger != nil {
		cp.Ledger = make([]Operation, len(s.Ledger))
		for i := range s.Ledger {
			cp.Ledger[i] = s.Ledger[i].Clone()
		}
	}
	return cp
}
