// Package store persists chat messages in MongoDB, the relay's durable
// collaborator. The collection is treated as append-only: records are never
// updated or deleted.
package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Tyrowin/chatrelay/internal/server"
)

// MongoStore implements server.MessageStore on top of a MongoDB collection.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects to MongoDB using the provided configuration and
// verifies the connection with a ping before returning.
func NewMongoStore(ctx context.Context, cfg server.MongoConfig) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return &MongoStore{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// SaveMessage inserts a single message document.
func (s *MongoStore) SaveMessage(ctx context.Context, msg server.Message) error {
	_, err := s.coll.InsertOne(ctx, msg)
	return err
}

// RecentMessages returns up to limit of the most recently persisted messages,
// ordered oldest first. The query sorts newest-first and limits, then the
// result is reversed in memory so older rows beyond the limit never surface.
func (s *MongoStore) RecentMessages(ctx context.Context, limit int) ([]server.Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	opts := options.Find().SetSort(bson.M{"timestamp": -1}).SetLimit(int64(limit))
	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}

	var msgs []server.Message
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
