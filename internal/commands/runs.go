package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/urfave/cli/v2"

	"github.com/bastionhq/bastionctl/internal/app"
	"github.com/bastionhq/bastionctl/internal/eventlog"
	"github.com/bastionhq/bastionctl/internal/hub"
	"github.com/bastionhq/bastionctl/internal/loggy"
	"github.com/bastionhq/bastionctl/internal/progress"
	"github.com/bastionhq/bastionctl/internal/runview"
	"github.com/bastionhq/bastionctl/internal/utils"
)

// RunsCommand returns the CLI command for inspecting runs headlessly
func RunsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "Inspect backup runs",
		Description: "Headless run inspection: recent runs, one-shot status with derived " +
			"progress, the raw event log (optionally followed live), and a markdown run " +
			"report. Use 'bastionctl watch' for the interactive view.",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent runs",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "job",
						Aliases: []string{"j"},
						Usage:   "Only show runs of this job ID",
					},
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"l"},
						Usage:   "Maximum number of runs to show",
						Value:   20,
					},
				},
				Action: runsListAction,
			},
			{
				Name:      "show",
				Usage:     "Show one run's status and derived progress",
				ArgsUsage: "<run-id>",
				Action:    runsShowAction,
			},
			{
				Name:      "events",
				Usage:     "Print a run's event log",
				ArgsUsage: "<run-id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "follow",
						Aliases: []string{"f"},
						Usage:   "Keep printing live events until the run ends or interrupt",
					},
					&cli.IntFlag{
						Name:    "tail",
						Aliases: []string{"n"},
						Usage:   "Only print the last N backfilled events (0 = all)",
					},
				},
				Action: runsEventsAction,
			},
			{
				Name:      "report",
				Usage:     "Render a markdown report for a finished run",
				ArgsUsage: "<run-id>",
				Action:    runsReportAction,
			},
		},
	}
}

func runsListAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return fmt.Errorf("failed to get application from context: %w", err)
	}

	runs, err := application.Hub.ListRuns(c.Context, c.String("job"), c.Int("limit"))
	if err != nil {
		utils.PrintError(fmt.Sprintf("Failed to list runs: %s", err))
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		utils.PrintInfo("No runs found")
		return nil
	}

	headers := []string{"Run ID", "Job", "Status", "Started", "Duration", "Size"}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			r.JobName,
			string(r.Status),
			utils.FormatTime(epochTime(r.StartedAt)),
			runDuration(r.StartedAt, r.EndedAt),
			runSize(r.Totals),
		})
	}

	utils.PrintTable(headers, rows, utils.TableOptions{Title: "Recent Runs"})
	return nil
}

func runsShowAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return fmt.Errorf("failed to get application from context: %w", err)
	}

	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("a run ID is required")
	}

	status, report, _, err := fetchRunReport(c.Context, application, hub.RunTarget(id))
	if err != nil {
		utils.PrintError(fmt.Sprintf("Failed to fetch run: %s", err))
		return fmt.Errorf("failed to fetch run: %w", err)
	}

	utils.PrintHeading(fmt.Sprintf("Run %s", id))
	utils.PrintKeyValue("Job", status.Label)
	utils.PrintKeyValueWithColor("Status", string(status.Status), statusColors(status.Status))
	utils.PrintKeyValue("Started", utils.FormatTime(epochTime(status.StartedAt)))
	if status.EndedAt > 0 {
		utils.PrintKeyValue("Ended", utils.FormatTime(epochTime(status.EndedAt)))
	}
	if report.HasTotalDuration {
		utils.PrintKeyValue("Duration", utils.FormatDuration(secondsDuration(report.TotalDuration)))
	}
	if status.Error != "" {
		utils.PrintKeyValueWithColor("Error", status.Error, utils.Theme.Error)
	}

	utils.PrintDivider()
	utils.PrintKeyValue("Progress", fmt.Sprintf("%d%% (%s)", report.OverallPercent, report.DisplayStage))
	for _, st := range report.Stages {
		fmt.Println("  " + stageLine(st))
	}

	if report.RateSource != progress.RateUnknown {
		label := utils.FormatRate(report.Rate)
		if report.RateSource == progress.RateFinal {
			label += " (avg)"
		}
		utils.PrintKeyValue("Rate", label)
	}
	if report.HasETA {
		utils.PrintKeyValue("ETA", utils.FormatDuration(secondsDuration(report.ETASeconds)))
	}
	if report.FailedStage != "" {
		utils.PrintKeyValueWithColor("Failed during", string(report.FailedStage), utils.Theme.Error)
	}

	return nil
}

func runsEventsAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return fmt.Errorf("failed to get application from context: %w", err)
	}

	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("a run ID is required")
	}
	target := hub.RunTarget(id)

	if !c.Bool("follow") {
		events, err := application.Hub.TargetEvents(c.Context, target, 0, application.Config.Watch.BackfillLimit)
		if err != nil {
			utils.PrintError(fmt.Sprintf("Failed to fetch events: %s", err))
			return fmt.Errorf("failed to fetch events: %w", err)
		}
		if tail := c.Int("tail"); tail > 0 && len(events) > tail {
			events = events[len(events)-tail:]
		}
		for _, ev := range events {
			fmt.Println(formatEventLine(ev))
		}
		return nil
	}

	return followEvents(c.Context, application, target, c.Int("tail"))
}

// followEvents drives the run view controller headlessly: the backfill and
// every later accepted event are printed as log lines until the run reaches
// a terminal state or the user interrupts.
func followEvents(parent context.Context, application *app.App, target hub.Target, tail int) error {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	watchCfg := application.Config.Watch
	view := runview.New(runview.Config{
		Backend:          application.Hub,
		Logger:           loggy.Default(),
		PollInterval:     watchCfg.PollInterval,
		BackfillLimit:    watchCfg.BackfillLimit,
		DrainGrace:       watchCfg.DrainGrace,
		PollFailureLimit: watchCfg.PollFailureLimit,
	})
	defer view.Close()

	if err := view.Open(ctx, target); err != nil {
		return fmt.Errorf("failed to open run view: %w", err)
	}

	// The updates channel may coalesce under pressure, so printing works off
	// the controller's ordered snapshot instead of the notification payloads.
	printed := 0
	flush := func() {
		events := view.Events()
		if printed == 0 && tail > 0 && len(events) > tail {
			printed = len(events) - tail
		}
		for ; printed < len(events); printed++ {
			fmt.Println(formatEventLine(events[printed]))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-view.Updates():
			if !ok {
				return nil
			}
			switch u.Kind {
			case runview.UpdateBackfill:
				if u.Err != nil {
					utils.PrintWarning(fmt.Sprintf("Event history unavailable, following live only: %s", u.Err))
					continue
				}
				flush()
			case runview.UpdateEvent:
				flush()
			case runview.UpdatePollStopped:
				flush()
				if u.Err != nil {
					utils.PrintWarning(fmt.Sprintf("Status polling stopped: %s", u.Err))
					continue
				}
				if st := view.StatusSnapshot(); st != nil {
					utils.PrintInfo(fmt.Sprintf("Run finished: %s", st.Status))
				}
				return nil
			}
		}
	}
}

func runsReportAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return fmt.Errorf("failed to get application from context: %w", err)
	}

	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("a run ID is required")
	}

	status, report, events, err := fetchRunReport(c.Context, application, hub.RunTarget(id))
	if err != nil {
		utils.PrintError(fmt.Sprintf("Failed to fetch run: %s", err))
		return fmt.Errorf("failed to fetch run: %w", err)
	}

	md := buildRunReport(id, status, report, events)

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		// Plain markdown is still a usable report.
		fmt.Println(md)
		return nil
	}

	out, err := renderer.Render(md)
	if err != nil {
		fmt.Println(md)
		return nil
	}
	fmt.Print(out)

	return nil
}

// fetchRunReport grabs the run's status and event history and derives the
// progress report, the shared first step of show and report.
func fetchRunReport(ctx context.Context, application *app.App, target hub.Target) (*hub.StatusSnapshot, progress.Report, []eventlog.Event, error) {
	status, err := application.Hub.TargetStatus(ctx, target)
	if err != nil {
		return nil, progress.Report{}, nil, err
	}

	events, err := application.Hub.TargetEvents(ctx, target, 0, application.Config.Watch.BackfillLimit)
	if err != nil {
		loggy.Warn("Event history fetch failed, deriving from status only",
			"target", target.String(), "error", err)
		events = nil
	}

	report := progress.Derive(progress.Input{
		Status:    status.Status,
		StartedAt: status.StartedAt,
		EndedAt:   status.EndedAt,
		Snapshot:  status.Progress,
		Events:    events,
	})

	return status, report, events, nil
}

// buildRunReport assembles the markdown source for `runs report`.
func buildRunReport(id string, status *hub.StatusSnapshot, report progress.Report, events []eventlog.Event) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Run Report: %s\n\n", id)
	fmt.Fprintf(&b, "**Job:** %s  \n", status.Label)
	fmt.Fprintf(&b, "**Status:** %s  \n", status.Status)
	fmt.Fprintf(&b, "**Started:** %s  \n", utils.FormatTime(epochTime(status.StartedAt)))
	if status.EndedAt > 0 {
		fmt.Fprintf(&b, "**Ended:** %s  \n", utils.FormatTime(epochTime(status.EndedAt)))
	}
	if report.HasTotalDuration {
		fmt.Fprintf(&b, "**Duration:** %s  \n", utils.FormatDuration(secondsDuration(report.TotalDuration)))
	}
	fmt.Fprintf(&b, "**Overall progress:** %d%%\n\n", report.OverallPercent)

	b.WriteString("## Stages\n\n")
	b.WriteString("| Stage | State | Progress | Duration |\n")
	b.WriteString("|-------|-------|----------|----------|\n")
	for _, st := range report.Stages {
		pct := "-"
		if st.HasPercent {
			pct = fmt.Sprintf("%.0f%%", st.Percent)
		}
		dur := "-"
		if st.HasDuration {
			dur = utils.FormatDuration(secondsDuration(st.Duration))
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", st.Stage, stepStateLabel(st.State), pct, dur)
	}
	b.WriteString("\n")

	if report.RateSource != progress.RateUnknown || report.ShowPeakRate {
		b.WriteString("## Transfer\n\n")
		if report.RateSource != progress.RateUnknown {
			label := utils.FormatRate(report.Rate)
			if report.RateSource == progress.RateFinal {
				label += " (averaged over the upload)"
			}
			fmt.Fprintf(&b, "- Rate: %s\n", label)
		}
		if report.ShowPeakRate {
			fmt.Fprintf(&b, "- Peak rate: %s\n", utils.FormatRate(report.PeakRate))
		}
		b.WriteString("\n")
	}

	if status.Status.Failed() {
		b.WriteString("## Failure\n\n")
		if report.FailedStage != "" {
			fmt.Fprintf(&b, "- Failed during: **%s**\n", report.FailedStage)
		}
		if status.Error != "" {
			fmt.Fprintf(&b, "- Error: %s\n", status.Error)
		}
		for _, ev := range events {
			if ev.Level == eventlog.LevelError {
				fmt.Fprintf(&b, "- %s\n", ev.Message)
			}
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Events\n\n%d events recorded.\n", len(events))

	return b.String()
}

func stageLine(st progress.StageProgress) string {
	marker := "·"
	switch st.State {
	case progress.StepActive:
		marker = ">"
	case progress.StepDone:
		marker = "✓"
	}

	line := fmt.Sprintf("%s %-10s", marker, st.Stage)
	if st.HasPercent {
		line += fmt.Sprintf(" %3.0f%%", st.Percent)
	}
	if st.HasDuration {
		line += "  " + utils.FormatDuration(secondsDuration(st.Duration))
	}
	return line
}

func stepStateLabel(s progress.StepState) string {
	switch s {
	case progress.StepActive:
		return "active"
	case progress.StepDone:
		return "done"
	default:
		return "pending"
	}
}

func formatEventLine(ev eventlog.Event) string {
	ts := ev.Time().Local().Format("15:04:05")
	level := strings.ToUpper(string(ev.Level))

	line := fmt.Sprintf("%s %-5s %-12s %s", ts, level, ev.Kind, ev.Message)
	switch ev.Level {
	case eventlog.LevelError:
		return color.RedString("%s", line)
	case eventlog.LevelWarn:
		return color.YellowString("%s", line)
	default:
		return line
	}
}

func statusColors(s hub.Status) text.Colors {
	switch {
	case s == hub.StatusSuccess:
		return utils.Theme.Success
	case s.Failed():
		return utils.Theme.Error
	case s == hub.StatusRunning:
		return utils.Theme.Info
	default:
		return utils.Theme.Subtle
	}
}

func epochTime(sec float64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(sec), 0)
}

func secondsDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}

func runDuration(start, end float64) string {
	if start <= 0 {
		return "-"
	}
	if end <= 0 {
		return "running"
	}
	return utils.FormatDuration(secondsDuration(end - start))
}

func runSize(totals *hub.UnitCounts) string {
	if totals == nil || totals.Bytes <= 0 {
		return "-"
	}
	return utils.FormatBytes(totals.Bytes)
}
