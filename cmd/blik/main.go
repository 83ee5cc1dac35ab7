// Command blik is the 360-review feedback platform. The serve subcommand
// runs the full application; landing runs only the marketing site with no
// database wired in; upgrade applies one-time data migration steps.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"blik/config"
	"blik/core/utils"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "blik",
	Short:         "Blik - open source 360-degree feedback platform",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func loadConfig() (*config.AppConfig, *utils.Logger, error) {
	logger := utils.NewLogger()
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logger, nil
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("BLIK_CONFIG"), "path to the YAML config file")
	rootCmd.AddCommand(serveCmd, landingCmd, upgradeCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
