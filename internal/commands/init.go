package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bastionhq/bastionctl/internal/config"
	"github.com/bastionhq/bastionctl/internal/database"
	"github.com/bastionhq/bastionctl/internal/utils"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

// InitCommand returns the CLI command for initializing the console
func InitCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Initialize or update the bastionctl environment",
		Description: "Sets up the bastionctl environment including the configuration " +
			"directory and the local database with its schema. Use this command for " +
			"first-time setup or to refresh the configuration file after an upgrade.",
		Action: func(c *cli.Context) error {
			utils.PrintHeading("Initializing bastionctl")

			homeDir, err := os.UserHomeDir()
			if err != nil {
				utils.PrintError(fmt.Sprintf("Failed to get user home directory: %s", err))
				return fmt.Errorf("failed to get user home directory: %w", err)
			}

			// Set up config directory (typically ~/.bastionctl)
			configDir := filepath.Join(homeDir, ".bastionctl")
			utils.PrintInfo("Configuration directory: " + color.YellowString("%s", configDir))

			if err := os.MkdirAll(configDir, 0755); err != nil {
				utils.PrintError(fmt.Sprintf("Failed to create config directory: %s", err))
				return fmt.Errorf("failed to create config directory: %w", err)
			}

			// Extract the default environment file, backing up any existing one
			utils.PrintInfo("Extracting default configuration file")
			configFilePath := filepath.Join(configDir, ".env")

			if err := config.SetupConfigDirectory(configDir, true); err != nil {
				utils.PrintWarning(fmt.Sprintf("Failed to set up configuration files: %s", err))
				// Continue anyway as this is not critical
			}

			cfg, err := config.LoadFromEnv(configDir, configFilePath, true)
			if err != nil {
				utils.PrintError(fmt.Sprintf("Failed to load configuration: %s", err))
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			utils.PrintInfo("Initializing database...")
			if err := database.InitDB(cfg); err != nil {
				utils.PrintError(fmt.Sprintf("Failed to initialize database: %s", err))
				return fmt.Errorf("failed to initialize database: %w", err)
			}

			utils.PrintInfo("Applying database migrations...")
			applied, err := database.RunMigrations()
			if err != nil {
				utils.PrintError(fmt.Sprintf("Failed to apply migrations: %s", err))
				return fmt.Errorf("failed to apply migrations: %w", err)
			}

			utils.PrintSuccess("bastionctl initialized successfully!")

			if applied {
				utils.PrintSuccess("Database schema updated")
			} else {
				utils.PrintInfo("Database schema is already up-to-date")
			}

			utils.PrintInfo("Configuration file: " + color.YellowString("%s", configFilePath))
			utils.PrintInfo("Database location: " + color.YellowString("%s", cfg.Database.Path))
			utils.PrintInfo("Log file location: " + color.YellowString("%s", cfg.Logging.Output))
			fmt.Println("")
			utils.PrintInfo("Add a hub profile with " + color.CyanString("bastionctl profile add") +
				" and start watching runs with " + color.CyanString("bastionctl watch") + ".")

			return nil
		},
	}
}
