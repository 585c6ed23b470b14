package sink

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"notespresence/internal/config"
	"notespresence/internal/models"
)

// MongoWriter updates the user document matching the session token.
type MongoWriter struct {
	client *mongo.Client
	users  *mongo.Collection
}

// NewMongoWriter connects to the configured deployment.
func NewMongoWriter(ctx context.Context, cfg config.Mongo) (*MongoWriter, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoWriter{
		client: client,
		users:  client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// Write sets isOnline and updatedTime on the document whose token matches.
func (w *MongoWriter) Write(ctx context.Context, report models.PresenceReport) error {
	filter := bson.M{"token": report.Token}
	update := bson.M{"$set": bson.M{
		"isOnline":    report.IsOnline,
		"updatedTime": report.ObservedAt.UnixMilli(),
	}}
	res, err := w.users.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrUnknownToken
	}
	return nil
}

// Close disconnects the client.
func (w *MongoWriter) Close(ctx context.Context) error {
	return w.client.Disconnect(ctx)
}
