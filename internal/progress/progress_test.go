package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastionhq/bastionctl/internal/eventlog"
	"github.com/bastionhq/bastionctl/internal/hub"
)

func boundaryEvent(seq int64, ts float64, kind string) eventlog.Event {
	return eventlog.Event{
		Sequence:  seq,
		Timestamp: ts,
		Level:     eventlog.LevelInfo,
		Kind:      kind,
		Message:   kind,
	}
}

func TestOverallWeighting(t *testing.T) {
	cases := []struct {
		name string
		in   Input
		want int
	}{
		{
			name: "packaging halfway",
			in: Input{
				Status: hub.StatusRunning,
				Snapshot: &hub.ProgressSnapshot{
					Stage: hub.StagePackaging,
					Done:  &hub.UnitCounts{Bytes: 50},
					Total: &hub.UnitCounts{Bytes: 100},
				},
			},
			want: 28, // 5 + 45*0.5 = 27.5, rounded half-up
		},
		{
			name: "scan halfway",
			in: Input{
				Status: hub.StatusRunning,
				Snapshot: &hub.ProgressSnapshot{
					Stage: hub.StageScan,
					Done:  &hub.UnitCounts{Bytes: 50},
					Total: &hub.UnitCounts{Bytes: 100},
				},
			},
			want: 3, // 5*0.5 = 2.5
		},
		{
			name: "upload at 40 percent",
			in: Input{
				Status: hub.StatusRunning,
				Snapshot: &hub.ProgressSnapshot{
					Stage: hub.StageUpload,
					Detail: &hub.SnapshotDetail{
						Transfer: &hub.TransferDetail{TotalBytes: 1000, DoneBytes: 400},
					},
				},
			},
			want: 70, // 5 + 45 + 50*0.4
		},
		{
			name: "complete stage",
			in: Input{
				Status:   hub.StatusRunning,
				Snapshot: &hub.ProgressSnapshot{Stage: hub.StageComplete},
			},
			want: 100,
		},
		{
			name: "no information",
			in:   Input{Status: hub.StatusPending},
			want: 0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Derive(tc.in)
			assert.Equal(t, tc.want, got.OverallPercent)
		})
	}
}

func TestUploadFullyTransferredDisplaysComplete(t *testing.T) {
	rep := Derive(Input{
		Status: hub.StatusRunning,
		Snapshot: &hub.ProgressSnapshot{
			Stage: hub.StageUpload,
			Detail: &hub.SnapshotDetail{
				Transfer: &hub.TransferDetail{TotalBytes: 100, DoneBytes: 100},
			},
		},
	})

	assert.Equal(t, hub.StageComplete, rep.DisplayStage)
	assert.Equal(t, 100, rep.OverallPercent)
	for _, st := range rep.Stages {
		assert.Equal(t, StepDone, st.State, "stage %s", st.Stage)
	}
}

func TestUploadPrefersTransferBlockOverTopLevelCounts(t *testing.T) {
	rep := Derive(Input{
		Status: hub.StatusRunning,
		Snapshot: &hub.ProgressSnapshot{
			Stage: hub.StageUpload,
			// Top-level counts still describe source units; the transfer
			// block is authoritative for upload bytes.
			Done:  &hub.UnitCounts{Bytes: 10},
			Total: &hub.UnitCounts{Bytes: 1000},
			Detail: &hub.SnapshotDetail{
				Transfer: &hub.TransferDetail{TotalBytes: 200, DoneBytes: 100},
			},
		},
	})

	up := rep.Stages[2]
	require.True(t, up.HasPercent)
	assert.InDelta(t, 50.0, up.Percent, 0.001)
}

func TestUploadFallsBackToTopLevelCounts(t *testing.T) {
	rep := Derive(Input{
		Status: hub.StatusRunning,
		Snapshot: &hub.ProgressSnapshot{
			Stage: hub.StageUpload,
			Done:  &hub.UnitCounts{Bytes: 25},
			Total: &hub.UnitCounts{Bytes: 100},
		},
	})

	up := rep.Stages[2]
	require.True(t, up.HasPercent)
	assert.InDelta(t, 25.0, up.Percent, 0.001)
}

func TestFinalRateFromTransferTotals(t *testing.T) {
	rep := Derive(Input{
		Status: hub.StatusSuccess,
		Snapshot: &hub.ProgressSnapshot{
			Stage: hub.StageComplete,
			Detail: &hub.SnapshotDetail{
				Transfer: &hub.TransferDetail{TotalBytes: 100, DoneBytes: 100},
			},
		},
		Events: []eventlog.Event{
			boundaryEvent(1, 100, eventlog.KindScan),
			boundaryEvent(2, 102, eventlog.KindPackaging),
			boundaryEvent(3, 105, eventlog.KindUpload),
			boundaryEvent(4, 115, eventlog.KindComplete),
		},
	})

	assert.Equal(t, RateFinal, rep.RateSource)
	assert.InDelta(t, 10.0, rep.Rate, 0.001, "100 bytes over the 10s upload window")
}

func TestFinalRateFallsBackToRunWindow(t *testing.T) {
	// No upload boundary event: the denominator degrades to the whole run.
	rep := Derive(Input{
		Status:    hub.StatusSuccess,
		StartedAt: 100,
		EndedAt:   120,
		Snapshot: &hub.ProgressSnapshot{
			Stage: hub.StageComplete,
			Detail: &hub.SnapshotDetail{
				Transfer: &hub.TransferDetail{TotalBytes: 100, DoneBytes: 100},
			},
		},
	})

	assert.Equal(t, RateFinal, rep.RateSource)
	assert.InDelta(t, 5.0, rep.Rate, 0.001)
}

func TestLiveRateWinsOverFinal(t *testing.T) {
	rep := Derive(Input{
		Status: hub.StatusRunning,
		Snapshot: &hub.ProgressSnapshot{
			Stage:   hub.StageUpload,
			RateBPS: 2048,
			Detail: &hub.SnapshotDetail{
				Transfer: &hub.TransferDetail{TotalBytes: 100, DoneBytes: 50},
			},
		},
	})

	assert.Equal(t, RateLive, rep.RateSource)
	assert.InDelta(t, 2048.0, rep.Rate, 0.001)
}

func TestNoFinalRateWhileRunning(t *testing.T) {
	rep := Derive(Input{
		Status: hub.StatusRunning,
		Snapshot: &hub.ProgressSnapshot{
			Stage: hub.StageUpload,
			Detail: &hub.SnapshotDetail{
				Transfer: &hub.TransferDetail{TotalBytes: 100, DoneBytes: 50},
			},
		},
		Events: []eventlog.Event{
			boundaryEvent(1, 105, eventlog.KindUpload),
		},
	})

	assert.Equal(t, RateUnknown, rep.RateSource)
}

func TestPeakRateSurfacedOnlyWhenAboveDisplayed(t *testing.T) {
	t.Run("peak above live rate", func(t *testing.T) {
		rep := Derive(Input{
			Status:   hub.StatusRunning,
			Snapshot: &hub.ProgressSnapshot{Stage: hub.StageUpload, RateBPS: 100},
			PeakRate: 250,
		})
		assert.True(t, rep.ShowPeakRate)
		assert.InDelta(t, 250.0, rep.PeakRate, 0.001)
	})

	t.Run("peak equal to live rate", func(t *testing.T) {
		rep := Derive(Input{
			Status:   hub.StatusRunning,
			Snapshot: &hub.ProgressSnapshot{Stage: hub.StageUpload, RateBPS: 100},
			PeakRate: 100,
		})
		assert.False(t, rep.ShowPeakRate)
	})
}

func TestStageDurationsFromBoundaryEvents(t *testing.T) {
	rep := Derive(Input{
		Status:    hub.StatusSuccess,
		StartedAt: 99,
		EndedAt:   116,
		Snapshot:  &hub.ProgressSnapshot{Stage: hub.StageComplete},
		Events: []eventlog.Event{
			boundaryEvent(1, 100, eventlog.KindScan),
			boundaryEvent(2, 102, eventlog.KindPackaging),
			boundaryEvent(3, 105, eventlog.KindUpload),
			boundaryEvent(4, 115, eventlog.KindComplete),
		},
	})

	scan, pack, up := rep.Stages[0], rep.Stages[1], rep.Stages[2]
	require.True(t, scan.HasDuration)
	assert.InDelta(t, 2.0, scan.Duration, 0.001)
	require.True(t, pack.HasDuration)
	assert.InDelta(t, 3.0, pack.Duration, 0.001)
	require.True(t, up.HasDuration)
	assert.InDelta(t, 11.0, up.Duration, 0.001, "upload runs until the run end timestamp")

	require.True(t, rep.HasTotalDuration)
	assert.InDelta(t, 17.0, rep.TotalDuration, 0.001)
}

func TestInProgressDurationUsesSnapshotClock(t *testing.T) {
	rep := Derive(Input{
		Status:    hub.StatusRunning,
		StartedAt: 100,
		Snapshot: &hub.ProgressSnapshot{
			Stage:      hub.StageUpload,
			ObservedAt: 130,
		},
		Events: []eventlog.Event{
			boundaryEvent(1, 105, eventlog.KindUpload),
		},
	})

	up := rep.Stages[2]
	require.True(t, up.HasDuration)
	assert.InDelta(t, 25.0, up.Duration, 0.001)
}

func TestNoInProgressDurationWhenNotRunning(t *testing.T) {
	rep := Derive(Input{
		Status:    hub.StatusPending,
		StartedAt: 100,
		Snapshot:  &hub.ProgressSnapshot{Stage: hub.StageUpload, ObservedAt: 130},
		Events: []eventlog.Event{
			boundaryEvent(1, 105, eventlog.KindUpload),
		},
	})

	assert.False(t, rep.Stages[2].HasDuration)
	assert.False(t, rep.HasTotalDuration)
}

func TestFailureAttribution(t *testing.T) {
	t.Run("latest boundary before end wins", func(t *testing.T) {
		rep := Derive(Input{
			Status:  hub.StatusFailed,
			EndedAt: 110,
			Events: []eventlog.Event{
				boundaryEvent(1, 100, eventlog.KindScan),
				boundaryEvent(2, 104, eventlog.KindPackaging),
				boundaryEvent(3, 108, eventlog.KindUpload),
				boundaryEvent(4, 110, eventlog.KindFailed),
			},
		})
		assert.Equal(t, hub.StageUpload, rep.FailedStage)
	})

	t.Run("boundaries after end are ignored", func(t *testing.T) {
		rep := Derive(Input{
			Status:  hub.StatusFailed,
			EndedAt: 106,
			Events: []eventlog.Event{
				boundaryEvent(1, 100, eventlog.KindScan),
				boundaryEvent(2, 104, eventlog.KindPackaging),
				boundaryEvent(3, 108, eventlog.KindUpload),
			},
		})
		assert.Equal(t, hub.StagePackaging, rep.FailedStage)
	})

	t.Run("falls back to snapshot stage", func(t *testing.T) {
		rep := Derive(Input{
			Status:   hub.StatusRejected,
			Snapshot: &hub.ProgressSnapshot{Stage: hub.StageScan},
		})
		assert.Equal(t, hub.StageScan, rep.FailedStage)
	})

	t.Run("not set for successful runs", func(t *testing.T) {
		rep := Derive(Input{
			Status:   hub.StatusSuccess,
			Snapshot: &hub.ProgressSnapshot{Stage: hub.StageComplete},
		})
		assert.Empty(t, rep.FailedStage)
	})
}

func TestETAPassthrough(t *testing.T) {
	t.Run("live run", func(t *testing.T) {
		rep := Derive(Input{
			Status:   hub.StatusRunning,
			Snapshot: &hub.ProgressSnapshot{Stage: hub.StageUpload, ETASeconds: 42},
		})
		require.True(t, rep.HasETA)
		assert.InDelta(t, 42.0, rep.ETASeconds, 0.001)
	})

	t.Run("suppressed once terminal", func(t *testing.T) {
		rep := Derive(Input{
			Status:   hub.StatusSuccess,
			Snapshot: &hub.ProgressSnapshot{Stage: hub.StageComplete, ETASeconds: 42},
		})
		assert.False(t, rep.HasETA)
	})
}

func TestStepStates(t *testing.T) {
	rep := Derive(Input{
		Status: hub.StatusRunning,
		Snapshot: &hub.ProgressSnapshot{
			Stage: hub.StagePackaging,
			Done:  &hub.UnitCounts{Bytes: 10},
			Total: &hub.UnitCounts{Bytes: 100},
		},
	})

	assert.Equal(t, StepDone, rep.Stages[0].State)
	assert.Equal(t, StepActive, rep.Stages[1].State)
	assert.Equal(t, StepPending, rep.Stages[2].State)
}

func TestStageInferenceFromEventsWithoutSnapshot(t *testing.T) {
	rep := Derive(Input{
		Status: hub.StatusRunning,
		Events: []eventlog.Event{
			boundaryEvent(1, 100, eventlog.KindScan),
			boundaryEvent(2, 104, eventlog.KindPackaging),
		},
	})

	assert.Equal(t, hub.StagePackaging, rep.DisplayStage)
	assert.Equal(t, StepDone, rep.Stages[0].State)
	assert.Equal(t, StepActive, rep.Stages[1].State)
}
