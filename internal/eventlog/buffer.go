package eventlog

import (
	"sort"
	"sync"
)

// Buffer is the ordered, append-only event store for one run or operation.
// Its lifetime matches one open detail view.
//
// All writes funnel through two mutations: ReplaceAll for the initial REST
// backfill and TryAppend for live pushes. TryAppend accepts an event only
// when its sequence is above the current high-water mark, so duplicates and
// stale out-of-order deliveries degrade to silent no-ops regardless of
// which origin delivered first.
//
// Buffer is safe for concurrent use.
type Buffer struct {
	mu     sync.RWMutex
	events []Event
	hwm    int64
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// ReplaceAll resets the buffer to the given backfill. The input may arrive
// unsorted or with duplicate sequences; the stored result is ascending with
// one event per sequence. An empty backfill is valid and leaves the
// high-water mark at zero.
func (b *Buffer) ReplaceAll(events []Event) {
	ordered := make([]Event, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Sequence < ordered[j].Sequence
	})

	deduped := ordered[:0]
	for _, ev := range ordered {
		if n := len(deduped); n > 0 && deduped[n-1].Sequence == ev.Sequence {
			continue
		}
		deduped = append(deduped, ev)
	}

	var hwm int64
	if len(deduped) > 0 {
		hwm = deduped[len(deduped)-1].Sequence
	}

	b.mu.Lock()
	b.events = deduped
	b.hwm = hwm
	b.mu.Unlock()
}

// TryAppend stores ev iff its sequence is above the high-water mark and
// reports whether it did. A rejection is expected behavior, not an error:
// the live transport is at-least-once and may race the backfill.
func (b *Buffer) TryAppend(ev Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ev.Sequence <= b.hwm {
		return false
	}
	b.events = append(b.events, ev)
	b.hwm = ev.Sequence
	return true
}

// SnapshotOrdered returns a copy of the buffer in ascending sequence order.
func (b *Buffer) SnapshotOrdered() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// HighWaterMark returns the highest sequence accepted so far, 0 when empty.
// It is the resume cursor for live subscriptions.
func (b *Buffer) HighWaterMark() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.hwm
}

// Len returns the number of stored events.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}
