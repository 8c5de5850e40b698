package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/bastionhq/bastionctl/internal/app"
	"github.com/bastionhq/bastionctl/internal/profile"
	"github.com/bastionhq/bastionctl/internal/utils"
)

// ProfileCommand returns the CLI command for managing hub connection profiles
func ProfileCommand() *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "Manage hub connection profiles",
		Description: "A profile pairs a hub URL with the API token used to authenticate " +
			"against it. The active profile is used by every command that talks to the hub; " +
			"BASTION_HUB_URL and BASTION_HUB_TOKEN act as fallbacks when no profile is active.",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Save a new hub connection",
				ArgsUsage: "<hub-url>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "name",
						Aliases: []string{"n"},
						Usage:   "Profile name (generated when omitted)",
					},
					&cli.StringFlag{
						Name:    "token",
						Aliases: []string{"t"},
						Usage:   "API token for the hub",
					},
				},
				Action: profileAddAction,
			},
			{
				Name:   "list",
				Usage:  "List saved profiles",
				Action: profileListAction,
			},
			{
				Name:      "use",
				Usage:     "Activate a profile by name or ID",
				ArgsUsage: "<name-or-id>",
				Action:    profileUseAction,
			},
			{
				Name:      "remove",
				Usage:     "Delete a profile by name or ID",
				ArgsUsage: "<name-or-id>",
				Action:    profileRemoveAction,
			},
		},
	}
}

func profileAddAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return fmt.Errorf("failed to get application from context: %w", err)
	}

	hubURL := c.Args().First()
	if hubURL == "" {
		return fmt.Errorf("a hub URL is required, e.g. bastionctl profile add https://hub.example.com")
	}

	prof, err := application.Profiles.AddProfile(c.Context, c.String("name"), hubURL, c.String("token"))
	if err != nil {
		utils.PrintError(fmt.Sprintf("Failed to add profile: %s", err))
		return fmt.Errorf("failed to add profile: %w", err)
	}

	utils.PrintSuccess("Profile " + color.CyanString("%s", prof.Name) + " added")
	if prof.Active {
		utils.PrintInfo("This is now the active profile")
	} else {
		utils.PrintInfo("Activate it with " + color.CyanString("bastionctl profile use %s", prof.Name))
	}
	if prof.APIToken == "" {
		utils.PrintWarning("No token set; requests will fall back to BASTION_HUB_TOKEN")
	}

	return nil
}

func profileListAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return fmt.Errorf("failed to get application from context: %w", err)
	}

	profiles, err := application.Profiles.ListProfiles(c.Context)
	if err != nil {
		utils.PrintError(fmt.Sprintf("Failed to list profiles: %s", err))
		return fmt.Errorf("failed to list profiles: %w", err)
	}

	if len(profiles) == 0 {
		utils.PrintInfo("No profiles saved yet. Add one with " +
			color.CyanString("bastionctl profile add <hub-url>"))
		return nil
	}

	headers := []string{"", "Name", "Hub URL", "Token", "Created"}
	rows := make([][]string, 0, len(profiles))
	for _, p := range profiles {
		rows = append(rows, []string{
			activeMarker(p),
			p.Name,
			p.HubURL,
			tokenMarker(p),
			utils.FormatTime(p.CreatedAt),
		})
	}

	utils.PrintTable(headers, rows, utils.TableOptions{Title: "Hub Profiles"})
	return nil
}

func profileUseAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return fmt.Errorf("failed to get application from context: %w", err)
	}

	nameOrID := c.Args().First()
	if nameOrID == "" {
		return fmt.Errorf("a profile name or ID is required")
	}

	prof, err := application.Profiles.UseProfile(c.Context, nameOrID)
	if err != nil {
		utils.PrintError(fmt.Sprintf("Failed to activate profile: %s", err))
		return fmt.Errorf("failed to activate profile: %w", err)
	}

	utils.PrintSuccess("Profile " + color.CyanString("%s", prof.Name) + " is now active")
	utils.PrintInfo("Hub URL: " + color.YellowString("%s", prof.HubURL))

	return nil
}

func profileRemoveAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return fmt.Errorf("failed to get application from context: %w", err)
	}

	nameOrID := c.Args().First()
	if nameOrID == "" {
		return fmt.Errorf("a profile name or ID is required")
	}

	prof, err := application.Profiles.RemoveProfile(c.Context, nameOrID)
	if err != nil {
		utils.PrintError(fmt.Sprintf("Failed to remove profile: %s", err))
		return fmt.Errorf("failed to remove profile: %w", err)
	}

	utils.PrintSuccess("Profile " + color.CyanString("%s", prof.Name) + " removed")
	if prof.Active {
		utils.PrintWarning("The active profile was removed; activate another with " +
			color.CyanString("bastionctl profile use <name>"))
	}

	return nil
}

func activeMarker(p *profile.Profile) string {
	if p.Active {
		return "*"
	}
	return ""
}

func tokenMarker(p *profile.Profile) string {
	if p.APIToken != "" {
		return "set"
	}
	return "-"
}
