package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	conversationsCollection = "conversations"
	listingsCollection      = "listings"
	usersCollection         = "users"
	sessionsCollection      = "sessions"
)

type Client struct {
	DB *mongo.Database
}

func New(ctx context.Context, uri, database string) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	opts := options.Client().ApplyURI(uri).SetRetryWrites(true)
	m, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	return &Client{DB: m.Database(database)}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.Client().Ping(ctx, readpref.Primary())
}

func (c *Client) Close(ctx context.Context) error {
	return c.DB.Client().Disconnect(ctx)
}

// EnsureIndexes creates the indexes every repository relies on. The partial
// unique index on conversations is what keeps one active conversation per
// listing and participant pair under concurrent starts.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	for _, ensure := range []func(context.Context, *mongo.Database) error{
		ensureConversationIndexes,
		ensureListingIndexes,
		ensureUserIndexes,
		ensureSessionIndexes,
	} {
		if err := ensure(ctx, c.DB); err != nil {
			return err
		}
	}
	return nil
}
