// Package hub is the client for a Bastion hub's REST and WebSocket API:
// typed models, authenticated JSON requests with retry and rate limiting,
// and the live event transport consumed by the stream package.
package hub

import "fmt"

// Status is the lifecycle state of a run or operation as reported by the
// hub.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusRejected Status = "rejected"
	StatusCanceled Status = "canceled"
)

// Terminal reports whether no further state changes or events are expected.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusRejected, StatusCanceled:
		return true
	}
	return false
}

// Failed reports whether the run ended in a failure state.
func (s Status) Failed() bool {
	return s == StatusFailed || s == StatusRejected
}

// Stage is one phase of a run's lifecycle. The hub may emit stages outside
// this set; clients pass unknown values through untouched.
type Stage string

const (
	StageScan      Stage = "scan"
	StagePackaging Stage = "packaging"
	StageUpload    Stage = "upload"
	StageComplete  Stage = "complete"
)

// UnitCounts is a files/dirs/bytes triple used for done and total tallies.
type UnitCounts struct {
	Files int64 `json:"files"`
	Dirs  int64 `json:"dirs"`
	Bytes int64 `json:"bytes"`
}

// TransferDetail is the upload-stage byte accounting the hub attaches once
// packaging has produced a final artifact size.
type TransferDetail struct {
	SourceTotal int64 `json:"source_total"`
	TotalBytes  int64 `json:"total_bytes"`
	DoneBytes   int64 `json:"done_bytes"`
}

// SnapshotDetail carries stage-specific extensions of a snapshot.
type SnapshotDetail struct {
	Transfer *TransferDetail `json:"transfer,omitempty"`
}

// ProgressSnapshot is the latest point-in-time progress state. Each new
// snapshot replaces the previous one entirely; history lives in the event
// log, not here.
type ProgressSnapshot struct {
	Stage      Stage           `json:"stage"`
	Done       *UnitCounts     `json:"done,omitempty"`
	Total      *UnitCounts     `json:"total,omitempty"`
	RateBPS    float64         `json:"rate_bps,omitempty"`
	ETASeconds float64         `json:"eta_seconds,omitempty"`
	Detail     *SnapshotDetail `json:"detail,omitempty"`
	ObservedAt float64         `json:"observed_at,omitempty"`
}

// Transfer returns the explicit transfer block, or nil.
func (p *ProgressSnapshot) Transfer() *TransferDetail {
	if p == nil || p.Detail == nil {
		return nil
	}
	return p.Detail.Transfer
}

// Run is one execution instance of a scheduled backup job.
type Run struct {
	ID        string            `json:"id"`
	JobID     string            `json:"job_id"`
	JobName   string            `json:"job_name"`
	Status    Status            `json:"status"`
	StartedAt float64           `json:"started_at"`
	EndedAt   float64           `json:"ended_at,omitempty"`
	Progress  *ProgressSnapshot `json:"progress,omitempty"`
	Totals    *UnitCounts       `json:"totals,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// OperationItem is one entry of an operation's per-path breakdown.
type OperationItem struct {
	Path  string `json:"path"`
	State string `json:"state"`
	Bytes int64  `json:"bytes,omitempty"`
	Error string `json:"error,omitempty"`
}

// Operation is an ad hoc action (restore, verify) tied to a run.
type Operation struct {
	ID        string            `json:"id"`
	RunID     string            `json:"run_id"`
	Kind      string            `json:"kind"`
	Status    Status            `json:"status"`
	StartedAt float64           `json:"started_at"`
	EndedAt   float64           `json:"ended_at,omitempty"`
	Progress  *ProgressSnapshot `json:"progress,omitempty"`
	Items     []OperationItem   `json:"items,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// TargetKind selects which event/status endpoints a Target maps to.
type TargetKind string

const (
	TargetRun       TargetKind = "run"
	TargetOperation TargetKind = "operation"
)

// Target identifies the run or operation a detail view is bound to.
type Target struct {
	Kind TargetKind
	ID   string
}

func RunTarget(id string) Target {
	return Target{Kind: TargetRun, ID: id}
}

func OperationTarget(id string) Target {
	return Target{Kind: TargetOperation, ID: id}
}

func (t Target) String() string {
	return fmt.Sprintf("%s %s", t.Kind, t.ID)
}

// StatusSnapshot is the unified poll result for runs and operations.
type StatusSnapshot struct {
	Target    Target
	Label     string // job name for runs, operation kind for operations
	Status    Status
	StartedAt float64
	EndedAt   float64
	Progress  *ProgressSnapshot
	Items     []OperationItem
	Error     string
}
