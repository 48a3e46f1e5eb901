package reconciliation

import (
	recmodel "github.com/amacgov/revenue-collection/internal/core/datamodel/reconciliation"
)

// RunRequest triggers one reconciliation pass.
type RunRequest struct {
	DaysBack    int  `json:"daysBack"`
	AutoResolve bool `json:"autoResolve"`
}

// RunResponse wraps the pass summary.
type RunResponse struct {
	Success bool     `json:"success"`
	Summary *Summary `json:"summary"`
}

// LogResponse is the reconciliation trail for one payment.
type LogResponse struct {
	Reference  string              `json:"reference"`
	RRR        string              `json:"rrr"`
	Reconciled bool                `json:"reconciled"`
	Entries    []recmodel.LogEntry `json:"entries"`
}
