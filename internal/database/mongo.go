// Package database owns the MongoDB connection used by the document stores.
// The client is created once in main and passed down explicitly; nothing in
// this package is process-global.
package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	connectTimeout = 15 * time.Second
	connectRetries = 3
	retryBackoff   = 2 * time.Second
)

// Mongo bundles a connected client with the application database.
type Mongo struct {
	Client *mongo.Client
	DB     *mongo.Database
}

// Connect dials MongoDB, retrying a few times so that the API can start
// alongside a database container that is still booting.
func Connect(ctx context.Context, uri, dbName string) (*Mongo, error) {
	var lastErr error
	for attempt := 1; attempt <= connectRetries; attempt++ {
		m, err := connectOnce(ctx, uri, dbName)
		if err == nil {
			log.Printf("[mongo] connected db=%s", dbName)
			return m, nil
		}
		lastErr = err
		log.Printf("[mongo] connection attempt %d failed: %v", attempt, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryBackoff):
		}
	}
	return nil, fmt.Errorf("database: connect: %w", lastErr)
}

func connectOnce(ctx context.Context, uri, dbName string) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return &Mongo{Client: client, DB: client.Database(dbName)}, nil
}

// EnsureIndexes creates the given indexes on each named collection. Creating
// an index that already exists is a no-op on the server.
func (m *Mongo) EnsureIndexes(ctx context.Context, indexes map[string][]mongo.IndexModel) error {
	for coll, models := range indexes {
		if len(models) == 0 {
			continue
		}
		if _, err := m.DB.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("database: create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

// Close disconnects the client.
func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := m.Client.Disconnect(ctx); err != nil {
		return fmt.Errorf("database: disconnect: %w", err)
	}
	log.Println("[mongo] disconnected")
	return nil
}
