package main

import (
	"fmt"
	"os"

	"rehabclinic/course-builder/internal/config"
	"rehabclinic/course-builder/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "course-builder",
	Short: "Rehabilitation course builder API",
	Long: `course-builder serves the API therapists use to arrange exercise
courses for their patients, day by day, and submit them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", ".", "directory containing config.yaml")
	rootCmd.AddCommand(serveCmd, indexesCmd)
}

// @title Course Builder API
// @version 1.0
// @description API for arranging multi-day rehabilitation exercise courses.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and builds the logger shared by every command.
func bootstrap() (config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}
