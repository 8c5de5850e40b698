package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/bastionhq/bastionctl/internal/app"
	"github.com/bastionhq/bastionctl/internal/commands"
)

// Version information - populated at build time
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cliApp := &cli.App{
		Name:  "bastionctl",
		Usage: "Terminal console for a Bastion backup hub",
		Description: "bastionctl watches backup runs and restore/verify operations live,\n" +
			"inspects run history and progress, and manages named hub connection profiles.\n\n" +
			"Point it at a hub with 'bastionctl profile add', then follow a run with\n" +
			"'bastionctl watch <run-id>'.",
		Version: Version,
		Compiled: func() time.Time {
			t, err := time.Parse(time.RFC3339, BuildTime)
			if err != nil {
				return time.Now()
			}
			return t
		}(),
		Before: func(c *cli.Context) error {
			// The init command sets the environment up itself; everything else
			// expects a ready application.
			if c.Args().First() == "init" {
				return nil
			}

			application, err := app.New()
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}

			// Store the app instance in the context for later use
			c.App.Metadata = map[string]interface{}{
				"app": application,
			}

			return nil
		},
		After: func(c *cli.Context) error {
			// Gracefully shutdown the application
			if app, ok := c.App.Metadata["app"].(*app.App); ok {
				return app.Shutdown()
			}
			return nil
		},
		Commands: []*cli.Command{
			commands.InitCommand(),
			commands.WatchCommand(),
			commands.RunsCommand(),
			commands.ProfileCommand(),
			commands.MigrateCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
