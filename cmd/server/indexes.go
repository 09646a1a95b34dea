package main

import (
	"context"
	"fmt"
	"time"

	"rehabclinic/course-builder/internal/repository/mongo"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var indexesCmd = &cobra.Command{
	Use:   "indexes",
	Short: "Create the MongoDB indexes and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		dbClient, err := mongo.ConnectDB(cfg.Database.URI)
		if err != nil {
			return fmt.Errorf("connect to MongoDB: %w", err)
		}
		defer func() { _ = mongo.DisconnectDB(dbClient) }()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := mongo.EnsureIndexes(ctx, dbClient.Database(cfg.Database.Name), logger); err != nil {
			return fmt.Errorf("ensure indexes: %w", err)
		}
		logger.Info("Indexes ensured", zap.String("database", cfg.Database.Name))
		return nil
	},
}
