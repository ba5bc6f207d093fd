package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ashureev/mentor-labs/internal/config"
	"github.com/ashureev/mentor-labs/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mentor-server",
	Short: "Multi-persona startup mentor",
	Long: `Runs the dialogue orchestrator that routes each founder message to a mentor,
a specialist advisor or the advisory committee, or walks the founder through a
structured interview.`,
	SilenceUsage: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		if err := godotenv.Load(); err != nil {
			slog.Info("No .env file found, using environment variables")
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "YAML config file (defaults to $CONFIG_FILE)")
}

// loadConfig reads the configuration and installs the default logger.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	logger := logging.New(logging.ParseLevel(cfg.Server.LogLevel))
	slog.SetDefault(logger)
	return cfg, logger, nil
}
