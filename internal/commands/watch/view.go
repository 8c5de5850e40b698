package watch

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/muesli/reflow/wordwrap"

	"github.com/bastionhq/bastionctl/internal/eventlog"
	"github.com/bastionhq/bastionctl/internal/hub"
	"github.com/bastionhq/bastionctl/internal/progress"
	"github.com/bastionhq/bastionctl/internal/stream"
	"github.com/bastionhq/bastionctl/internal/utils"
)

// View renders the TUI
func (m Model) View() string {
	if m.openErr != nil {
		return m.styles.Error.Render("✗ ") + m.openErr.Error() + "\n"
	}
	if !m.ready || m.loading {
		return fmt.Sprintf("\n %s Opening %s...\n", m.spinner.View(), m.target)
	}

	var sb strings.Builder
	sb.WriteString(m.renderHeader())
	sb.WriteString("\n\n")
	sb.WriteString(m.renderProgress())
	sb.WriteString("\n")
	sb.WriteString(m.viewport.View())
	sb.WriteString("\n")
	sb.WriteString(m.renderStatusBar())
	sb.WriteString("\n")
	sb.WriteString(m.help.View(m.keymap))
	return sb.String()
}

func (m Model) renderHeader() string {
	title := m.styles.Title.Render("Watching " + m.target.String())
	if m.status == nil {
		return title
	}

	parts := []string{title}
	if m.status.Label != "" {
		parts = append(parts, m.styles.Subtle.Render(m.status.Label))
	}
	parts = append(parts, m.renderStatusBadge(m.status.Status))
	if m.status.Error != "" {
		parts = append(parts, m.styles.Error.Render(m.status.Error))
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderStatusBadge(s hub.Status) string {
	label := strings.ToUpper(string(s))
	switch {
	case s == hub.StatusSuccess:
		return m.styles.Success.Render(label)
	case s.Failed():
		return m.styles.Error.Render(label)
	case s == hub.StatusCanceled:
		return m.styles.Warning.Render(label)
	case s == hub.StatusRunning:
		return m.styles.Info.Render(label)
	default:
		return m.styles.Subtle.Render(label)
	}
}

func (m Model) renderProgress() string {
	if !m.hasReport {
		return m.styles.Subtle.Render("waiting for status...") + "\n"
	}

	var sb strings.Builder
	sb.WriteString(m.overall.View())
	sb.WriteString(fmt.Sprintf(" %3d%%", m.report.OverallPercent))
	if m.report.HasTotalDuration {
		sb.WriteString(m.styles.Subtle.Render("  " + utils.FormatDuration(seconds(m.report.TotalDuration))))
	}
	sb.WriteString("\n")

	for _, st := range m.report.Stages {
		sb.WriteString(m.renderStage(st))
		sb.WriteString("\n")
	}

	if line := m.renderRates(); line != "" {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m Model) renderStage(st progress.StageProgress) string {
	name := fmt.Sprintf("%-9s", st.Stage)

	if m.report.FailedStage == st.Stage {
		return m.styles.Error.Render("  ✗ " + name + " failed")
	}

	switch st.State {
	case progress.StepDone:
		line := "  ✓ " + name
		if st.HasDuration {
			line += " " + utils.FormatDuration(seconds(st.Duration))
		}
		return m.styles.StageDone.Render(line)

	case progress.StepActive:
		line := "  ▸ " + name
		if st.HasPercent {
			line += fmt.Sprintf(" %3.0f%%", st.Percent)
		}
		if st.HasDuration {
			line += " " + utils.FormatDuration(seconds(st.Duration))
		}
		return m.styles.StageActive.Render(line)

	default:
		return m.styles.StagePending.Render("  · " + name)
	}
}

func (m Model) renderRates() string {
	var parts []string

	if m.report.RateSource != progress.RateUnknown {
		rate := utils.FormatRate(m.report.Rate)
		if m.report.RateSource == progress.RateFinal {
			rate += " avg"
		}
		parts = append(parts, "rate "+rate)
	}
	if m.report.ShowPeakRate {
		parts = append(parts, "peak "+utils.FormatRate(m.report.PeakRate))
	}
	if m.report.HasETA {
		parts = append(parts, "eta "+utils.FormatDuration(seconds(m.report.ETASeconds)))
	}

	if len(parts) == 0 {
		return ""
	}
	return m.styles.Subtle.Render("  " + strings.Join(parts, "   "))
}

func (m Model) renderEvents() string {
	events := m.view.Events()
	if len(events) == 0 {
		if m.degraded != nil {
			return m.styles.Warning.Render("event history unavailable") + "\n" +
				m.styles.Subtle.Render("live events will appear here when the stream delivers them")
		}
		return m.styles.Subtle.Render("no events yet")
	}

	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}

	var sb strings.Builder
	for i, ev := range events {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(m.renderEvent(ev, width))
	}
	return sb.String()
}

func (m Model) renderEvent(ev eventlog.Event, width int) string {
	var sb strings.Builder
	sb.WriteString(m.styles.EventTime.Render(ev.Time().Format("15:04:05")))
	sb.WriteString(" ")
	sb.WriteString(m.renderLevel(ev.Level))
	if ev.Kind != "" {
		sb.WriteString(" ")
		sb.WriteString(m.styles.EventKind.Render(ev.Kind))
	}
	if ev.Message != "" {
		sb.WriteString(" ")
		sb.WriteString(ev.Message)
	}

	if len(ev.Fields) > 0 {
		keys := make([]string, 0, len(ev.Fields))
		for k := range ev.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(m.styles.Subtle.Render(fmt.Sprintf(" %s=%v", k, ev.Fields[k])))
		}
	}

	return wordwrap.String(sb.String(), width)
}

func (m Model) renderLevel(level eventlog.Level) string {
	padded := fmt.Sprintf("%-5s", level)
	switch level {
	case eventlog.LevelDebug:
		return m.styles.LevelDebug.Render(padded)
	case eventlog.LevelWarn:
		return m.styles.LevelWarn.Render(padded)
	case eventlog.LevelError:
		return m.styles.LevelError.Render(padded)
	default:
		return padded
	}
}

func (m Model) renderStatusBar() string {
	var parts []string

	fs := m.view.FollowState()
	if fs.Enabled {
		parts = append(parts, m.styles.Success.Render("following"))
	} else if fs.UnseenCount > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("paused, %d new below", fs.UnseenCount)))
	} else {
		parts = append(parts, m.styles.Subtle.Render("paused"))
	}

	parts = append(parts, m.renderConnection())

	if m.degraded != nil {
		parts = append(parts, m.styles.Warning.Render("history unavailable"))
	}
	if m.pollStopped && m.pollErr != nil {
		parts = append(parts, m.styles.Warning.Render("status polling stopped"))
	}
	if m.finished {
		parts = append(parts, m.styles.Subtle.Render("finished, q to quit"))
	}

	bar := strings.Join(parts, m.styles.Subtle.Render(" | "))
	return m.styles.StatusBar.Width(m.width).Render(bar)
}

func (m Model) renderConnection() string {
	switch m.streamStat.State {
	case stream.StateLive:
		return m.styles.Success.Render("live")

	case stream.StateConnecting:
		return m.styles.Info.Render("connecting...")

	case stream.StateReconnecting:
		remaining := time.Until(m.retryAt).Round(time.Second)
		if remaining > 0 {
			return m.styles.Warning.Render(
				fmt.Sprintf("reconnecting in %s (attempt %d)", remaining, m.streamStat.Attempt))
		}
		return m.styles.Warning.Render(fmt.Sprintf("reconnecting (attempt %d)", m.streamStat.Attempt))

	case stream.StateError:
		return m.styles.Error.Render("stream error")

	default:
		if m.finished {
			return m.styles.Subtle.Render("stream closed")
		}
		return m.styles.Subtle.Render("disconnected")
	}
}

// seconds converts a float seconds value to a time.Duration.
func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
