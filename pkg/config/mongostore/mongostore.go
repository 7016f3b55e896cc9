package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andrej220/fanout/pkg/config/configstore"
	"github.com/andrej220/fanout/pkg/lg"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	_ configstore.ConfigStore = (*MongoStore)(nil)
	_ configstore.Watcher     = (*MongoStore)(nil)
)

type MongoStore struct {
	Client     *mongo.Client
	Collection *mongo.Collection
	ID         string // _id of the stored document, e.g. "inventory"
}

func New(uri, dbName, collName, id string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoStore{
		Client:     client,
		Collection: client.Database(dbName).Collection(collName),
		ID:         id,
	}, nil
}

func (m *MongoStore) Load(ctx context.Context, out any) error {
	if out == nil {
		return fmt.Errorf("load %s: output must not be nil", m.ID)
	}
	res := m.Collection.FindOne(ctx, bson.M{"_id": m.ID})
	if err := res.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("load %s: no such document in %s", m.ID, m.Collection.Name())
		}
		return fmt.Errorf("load %s: %w", m.ID, err)
	}
	if err := res.Decode(out); err != nil {
		return fmt.Errorf("load %s: failed to decode: %w", m.ID, err)
	}
	return nil
}

func (m *MongoStore) Save(ctx context.Context, in any) error {
	if in == nil {
		return fmt.Errorf("save %s: input must not be nil", m.ID)
	}
	_, err := m.Collection.ReplaceOne(
		ctx,
		bson.M{"_id": m.ID},
		in,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", m.ID, err)
	}
	return nil
}

// Watch follows a change stream on the document. Change streams need a replica set.
func (m *MongoStore) Watch(ctx context.Context, onChange func()) error {
	if onChange == nil {
		return fmt.Errorf("onChange callback cannot be nil")
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"documentKey._id": m.ID}}},
	}
	stream, err := m.Collection.Watch(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("failed to open change stream: %w", err)
	}
	logger := lg.FromContext(ctx).With(lg.String("document", m.ID))
	go func() {
		defer stream.Close(context.Background())
		for stream.Next(ctx) {
			onChange()
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			logger.Warn("Change stream failed", lg.Err(err))
		}
	}()
	return nil
}

func (m *MongoStore) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}
