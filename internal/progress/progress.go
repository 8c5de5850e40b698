// Package progress turns a run's heterogeneous progress inputs, the latest
// point-in-time snapshot plus the full event history, into display-ready
// analytics: stage percentages, weighted overall percent, durations,
// transfer rates, and failure attribution.
//
// Derive is pure. It holds no state and is safe to recompute on every
// render; the one stateful input, the peak live rate, is tracked by the
// caller and passed in.
package progress

import (
	"math"

	"github.com/bastionhq/bastionctl/internal/eventlog"
	"github.com/bastionhq/bastionctl/internal/hub"
)

// Stage weights for the overall percentage.
const (
	weightScan      = 5.0
	weightPackaging = 45.0
	weightUpload    = 50.0
)

// Input is everything Derive consumes.
type Input struct {
	Status    hub.Status
	StartedAt float64 // epoch seconds, 0 when unknown
	EndedAt   float64
	Snapshot  *hub.ProgressSnapshot
	Events    []eventlog.Event // ascending sequence order
	PeakRate  float64          // max live rate the caller has seen
}

// StepState is a stage's position in the step indicator.
type StepState int

const (
	StepPending StepState = iota
	StepActive
	StepDone
)

// StageProgress is one row of the step indicator.
type StageProgress struct {
	Stage       hub.Stage
	State       StepState
	Percent     float64
	HasPercent  bool
	Duration    float64 // seconds
	HasDuration bool
}

// RateSource says where the displayed transfer rate came from.
type RateSource int

const (
	RateUnknown RateSource = iota
	RateLive
	RateFinal // averaged from totals after the run ended
)

// Report is the derived view-model.
type Report struct {
	DisplayStage     hub.Stage
	OverallPercent   int
	Stages           []StageProgress // scan, packaging, upload
	TotalDuration    float64
	HasTotalDuration bool
	Rate             float64
	RateSource       RateSource
	PeakRate         float64
	ShowPeakRate     bool
	ETASeconds       float64
	HasETA           bool
	FailedStage      hub.Stage // set only when the run failed
}

// boundaries are the stage-entry timestamps mined from the event history.
// First occurrences define stage starts; snapshots arrive too sparsely to
// be trusted for timing.
type boundaries struct {
	scanStart      float64
	packagingStart float64
	uploadStart    float64
	end            float64 // first complete or failed event
	latest         float64 // newest event timestamp of any kind
}

func collectBoundaries(events []eventlog.Event) boundaries {
	var b boundaries
	for _, ev := range events {
		switch ev.Kind {
		case eventlog.KindScan:
			if b.scanStart == 0 {
				b.scanStart = ev.Timestamp
			}
		case eventlog.KindPackaging:
			if b.packagingStart == 0 {
				b.packagingStart = ev.Timestamp
			}
		case eventlog.KindUpload:
			if b.uploadStart == 0 {
				b.uploadStart = ev.Timestamp
			}
		case eventlog.KindComplete, eventlog.KindFailed:
			if b.end == 0 {
				b.end = ev.Timestamp
			}
		}
		if ev.Timestamp > b.latest {
			b.latest = ev.Timestamp
		}
	}
	return b
}

func stageRank(s hub.Stage) (int, bool) {
	switch s {
	case hub.StageScan:
		return 0, true
	case hub.StagePackaging:
		return 1, true
	case hub.StageUpload:
		return 2, true
	case hub.StageComplete:
		return 3, true
	}
	return -1, false
}

// inferStage derives the current stage from boundary events, for snapshots
// that are missing or carry an unknown stage tag.
func (b boundaries) inferStage(failed bool) hub.Stage {
	if b.end > 0 && !failed {
		return hub.StageComplete
	}
	switch {
	case b.uploadStart > 0:
		return hub.StageUpload
	case b.packagingStart > 0:
		return hub.StagePackaging
	case b.scanStart > 0:
		return hub.StageScan
	}
	return ""
}

func clampFrac(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func ratio(done, total int64) (float64, bool) {
	if total <= 0 {
		return 0, false
	}
	return clampFrac(float64(done) / float64(total)), true
}

// Derive computes the full progress report for one run or operation.
func Derive(in Input) Report {
	b := collectBoundaries(in.Events)
	snap := in.Snapshot

	// Raw stage from the snapshot; boundary inference fills gaps and
	// resolves unknown stage tags for the weighting math.
	raw := hub.Stage("")
	if snap != nil {
		raw = snap.Stage
	}
	cur := raw
	rank, known := stageRank(cur)
	if !known {
		cur = b.inferStage(in.Status.Failed())
		rank, _ = stageRank(cur)
	}

	end := in.EndedAt
	if end == 0 {
		end = b.end
	}

	now := 0.0
	if snap != nil && snap.ObservedAt > 0 {
		now = snap.ObservedAt
	}
	if now == 0 {
		now = b.latest
	}
	if now == 0 {
		now = end
	}

	terminalSuccess := in.Status == hub.StatusSuccess
	transfer := snap.Transfer()

	// Per-stage fractions.
	scanFrac, scanKnown := 0.0, false
	packFrac, packKnown := 0.0, false
	upFrac, upKnown := 0.0, false

	if snap != nil {
		var doneBytes, totalBytes int64
		if snap.Done != nil {
			doneBytes = snap.Done.Bytes
		}
		if snap.Total != nil {
			totalBytes = snap.Total.Bytes
		}
		switch cur {
		case hub.StageScan:
			scanFrac, scanKnown = ratio(doneBytes, totalBytes)
		case hub.StagePackaging:
			packFrac, packKnown = ratio(doneBytes, totalBytes)
		case hub.StageUpload:
			if transfer != nil && transfer.TotalBytes > 0 {
				upFrac, upKnown = ratio(transfer.DoneBytes, transfer.TotalBytes)
			} else {
				upFrac, upKnown = ratio(doneBytes, totalBytes)
			}
		}
	}
	if rank > 0 {
		scanFrac, scanKnown = 1, true
	}
	if rank > 1 {
		packFrac, packKnown = 1, true
	}
	if rank > 2 {
		upFrac, upKnown = 1, true
	}

	// An upload that has moved every byte displays as complete even before
	// the terminal status lands.
	display := raw
	if display == "" {
		display = cur
	}
	if terminalSuccess || cur == hub.StageComplete || (cur == hub.StageUpload && upKnown && upFrac >= 1) {
		display = hub.StageComplete
		scanFrac, scanKnown = 1, true
		packFrac, packKnown = 1, true
		upFrac, upKnown = 1, true
	}

	var overall float64
	if display == hub.StageComplete {
		overall = 100
	} else {
		switch cur {
		case hub.StageScan:
			overall = weightScan * scanFrac
		case hub.StagePackaging:
			overall = weightScan + weightPackaging*packFrac
		case hub.StageUpload:
			overall = weightScan + weightPackaging + weightUpload*upFrac
		}
	}
	overallPct := int(math.Round(overall))
	if overallPct > 100 {
		overallPct = 100
	}

	// Stage durations. In-flight intervals end at "now"; once the run is no
	// longer running and no end is known, they are simply not shown.
	liveEnd := end
	if liveEnd == 0 && in.Status == hub.StatusRunning {
		liveEnd = now
	}

	scanStart := b.scanStart
	if scanStart == 0 {
		scanStart = in.StartedAt
	}
	scanEnd := b.packagingStart
	if scanEnd == 0 {
		scanEnd = b.uploadStart
	}
	if scanEnd == 0 {
		scanEnd = liveEnd
	}
	packEnd := b.uploadStart
	if packEnd == 0 {
		packEnd = liveEnd
	}

	stages := []StageProgress{
		{Stage: hub.StageScan, Percent: scanFrac * 100, HasPercent: scanKnown},
		{Stage: hub.StagePackaging, Percent: packFrac * 100, HasPercent: packKnown},
		{Stage: hub.StageUpload, Percent: upFrac * 100, HasPercent: upKnown},
	}
	setDuration(&stages[0], scanStart, scanEnd)
	setDuration(&stages[1], b.packagingStart, packEnd)
	setDuration(&stages[2], b.uploadStart, liveEnd)

	fracs := []float64{scanFrac, packFrac, upFrac}
	knowns := []bool{scanKnown, packKnown, upKnown}
	for i := range stages {
		stages[i].State = stepState(i, rank, display, fracs[i], knowns[i])
	}

	var report Report
	report.DisplayStage = display
	report.OverallPercent = overallPct
	report.Stages = stages

	totalStart := in.StartedAt
	if totalStart == 0 {
		totalStart = b.scanStart
	}
	if totalStart > 0 && liveEnd > totalStart {
		report.TotalDuration = liveEnd - totalStart
		report.HasTotalDuration = true
	}

	report.Rate, report.RateSource = deriveRate(in, b, snap, transfer, display, end)
	report.PeakRate = in.PeakRate
	report.ShowPeakRate = in.PeakRate > 0 && in.PeakRate > report.Rate

	if snap != nil && snap.ETASeconds > 0 && !in.Status.Terminal() && display != hub.StageComplete {
		report.ETASeconds = snap.ETASeconds
		report.HasETA = true
	}

	if in.Status.Failed() {
		report.FailedStage = attributeFailure(in.Events, snap, end, now)
	}

	return report
}

func setDuration(sp *StageProgress, start, end float64) {
	if start > 0 && end > 0 && end >= start {
		sp.Duration = end - start
		sp.HasDuration = true
	}
}

func stepState(idx, rank int, display hub.Stage, frac float64, known bool) StepState {
	if display == hub.StageComplete {
		return StepDone
	}
	switch {
	case rank > idx:
		return StepDone
	case rank == idx:
		if known && frac >= 1 {
			return StepDone
		}
		return StepActive
	default:
		return StepPending
	}
}

// deriveRate applies the display precedence: a live rate from the snapshot
// wins; once the run has ended, the averaged final rate computed from the
// transfer totals; otherwise unknown.
func deriveRate(in Input, b boundaries, snap *hub.ProgressSnapshot, transfer *hub.TransferDetail, display hub.Stage, end float64) (float64, RateSource) {
	if snap != nil && snap.RateBPS > 0 {
		return snap.RateBPS, RateLive
	}

	if !in.Status.Terminal() && display != hub.StageComplete {
		return 0, RateUnknown
	}

	var totalBytes int64
	if transfer != nil && transfer.TotalBytes > 0 {
		totalBytes = transfer.TotalBytes
	} else if snap != nil && snap.Total != nil && (snap.Stage == hub.StageUpload || snap.Stage == hub.StageComplete) {
		totalBytes = snap.Total.Bytes
	}
	if totalBytes <= 0 || end <= 0 {
		return 0, RateUnknown
	}

	var denom float64
	if b.uploadStart > 0 && end > b.uploadStart {
		denom = end - b.uploadStart
	} else {
		start := in.StartedAt
		if start == 0 {
			start = b.scanStart
		}
		if start > 0 && end > start {
			denom = end - start
		}
	}
	if denom <= 0 {
		return 0, RateUnknown
	}
	return float64(totalBytes) / denom, RateFinal
}

// attributeFailure picks the stage a failed run died in: the latest stage
// boundary event at or before the end marker, upload preferred over
// packaging over scan on equal timestamps, with the snapshot's stage as the
// last resort.
func attributeFailure(events []eventlog.Event, snap *hub.ProgressSnapshot, end, now float64) hub.Stage {
	cutoff := end
	if cutoff == 0 {
		cutoff = now
	}
	if cutoff == 0 {
		cutoff = math.MaxFloat64
	}

	pref := map[string]int{
		eventlog.KindScan:      1,
		eventlog.KindPackaging: 2,
		eventlog.KindUpload:    3,
	}
	stageOf := map[string]hub.Stage{
		eventlog.KindScan:      hub.StageScan,
		eventlog.KindPackaging: hub.StagePackaging,
		eventlog.KindUpload:    hub.StageUpload,
	}

	var best hub.Stage
	var bestTS float64
	bestPref := 0
	for _, ev := range events {
		p, ok := pref[ev.Kind]
		if !ok || ev.Timestamp > cutoff {
			continue
		}
		if ev.Timestamp > bestTS || (ev.Timestamp == bestTS && p > bestPref) {
			best = stageOf[ev.Kind]
			bestTS = ev.Timestamp
			bestPref = p
		}
	}
	if best != "" {
		return best
	}
	if snap != nil {
		return snap.Stage
	}
	return ""
}
