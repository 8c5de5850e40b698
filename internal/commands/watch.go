package commands

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v2"

	"github.com/bastionhq/bastionctl/internal/app"
	"github.com/bastionhq/bastionctl/internal/commands/watch"
	"github.com/bastionhq/bastionctl/internal/follow"
	"github.com/bastionhq/bastionctl/internal/hub"
	"github.com/bastionhq/bastionctl/internal/loggy"
	"github.com/bastionhq/bastionctl/internal/runview"
)

// WatchCommand returns the CLI command for watching a run live
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Watch a run or operation live",
		ArgsUsage: "<run-id>",
		Description: "Opens a live view of a run: backfilled event history, new events " +
			"as they stream in, stage progress and transfer rates. The view follows new " +
			"output until you scroll up, and resumes when you return to the bottom.",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "operation",
				Aliases: []string{"o"},
				Usage:   "Treat the argument as an operation ID (restore, verify)",
			},
		},
		Action: watchAction,
	}
}

func watchAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return fmt.Errorf("failed to get application from context: %w", err)
	}

	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("a run or operation ID is required")
	}

	target := hub.RunTarget(id)
	if c.Bool("operation") {
		target = hub.OperationTarget(id)
	}

	watchCfg := application.Config.Watch
	view := runview.New(runview.Config{
		Backend:          application.Hub,
		Logger:           loggy.Default(),
		PollInterval:     watchCfg.PollInterval,
		BackfillLimit:    watchCfg.BackfillLimit,
		DrainGrace:       watchCfg.DrainGrace,
		PollFailureLimit: watchCfg.PollFailureLimit,
		// The TUI reports scroll distance in viewport rows; one row of
		// slack still counts as the bottom.
		Follow: follow.Config{BottomThreshold: 1},
	})
	defer view.Close()

	loggy.Debug("Starting watch TUI", "target", target.String())

	m := watch.NewModel(view, target)
	p := tea.NewProgram(m, tea.WithAltScreen())

	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("failed to run watch UI: %w", err)
	}
	if fm, ok := final.(watch.Model); ok && fm.OpenErr() != nil {
		return fm.OpenErr()
	}

	return nil
}
