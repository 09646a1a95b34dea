package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Default connection timeout
const defaultTimeout = 10 * time.Second

// ConnectDB establishes a connection to MongoDB using the provided URI and
// verifies it with a ping against the primary.
func ConnectDB(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	// The initial connect can succeed against an unresponsive server, so ping separately.
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()

	if err = client.Ping(pingCtx, readpref.Primary()); err != nil {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)
		return nil, err
	}

	return client, nil
}

// DisconnectDB gracefully disconnects the MongoDB client.
func DisconnectDB(client *mongo.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	return client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes of every collection concurrently.
func EnsureIndexes(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	g, ctx := errgroup.WithContext(ctx)
	for name, ensure := range map[string]func(context.Context, *mongo.Collection) error{
		userCollectionName:     EnsureUserIndexes,
		exerciseCollectionName: EnsureExerciseIndexes,
		courseCollectionName:   EnsureCourseIndexes,
	} {
		name, ensure := name, ensure
		g.Go(func() error {
			if err := ensure(ctx, db.Collection(name)); err != nil {
				logger.Warn("Failed to create indexes", zap.String("collection", name), zap.Error(err))
				return err
			}
			logger.Debug("Indexes ensured", zap.String("collection", name))
			return nil
		})
	}
	return g.Wait()
}
