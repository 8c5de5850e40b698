package watch

import (
	"time"

	"github.com/bastionhq/bastionctl/internal/runview"
)

// Messages for the watch TUI
type (
	// OpenFailedMsg is sent when the viewing session could not be opened.
	OpenFailedMsg struct {
		Err error
	}

	// BatchMsg carries controller updates drained from the view. Closed
	// reports that the controller shut down and no further batches follow.
	BatchMsg struct {
		Updates []runview.Update
		Closed  bool
	}

	// CountdownTickMsg drives the reconnect countdown in the status bar.
	CountdownTickMsg time.Time
)
