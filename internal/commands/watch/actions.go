package watch

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bastionhq/bastionctl/internal/runview"
)

// maxBatch caps how many pending updates are folded into one message so a
// chatty stream cannot starve input handling.
const maxBatch = 64

// openView opens the viewing session against the hub
func (m Model) openView() tea.Msg {
	if err := m.view.Open(context.Background(), m.target); err != nil {
		return OpenFailedMsg{Err: err}
	}
	return nil
}

// waitForBatch blocks for the next controller update, then drains whatever
// else is already pending into a single message
func waitForBatch(updates <-chan runview.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return BatchMsg{Closed: true}
		}

		batch := BatchMsg{Updates: []runview.Update{u}}
		for len(batch.Updates) < maxBatch {
			select {
			case u, ok := <-updates:
				if !ok {
					batch.Closed = true
					return batch
				}
				batch.Updates = append(batch.Updates, u)
			default:
				return batch
			}
		}
		return batch
	}
}

// tickCountdown schedules the next reconnect countdown redraw
func tickCountdown() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return CountdownTickMsg(t)
	})
}
