// Package archive keeps dispatch payloads in MongoDB, one document per execution.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/andrej220/fanout/pkg/config"
	"github.com/andrej220/fanout/pkg/lg"
	"github.com/andrej220/fanout/pkg/result"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	DefaultDatabase   = "fanout"
	DefaultCollection = "executions"

	opTimeout = 30 * time.Second
)

type Archive struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Connect opens the archive described by cfg and verifies the connection.
func Connect(ctx context.Context, cfg config.ArchiveConfig) (*Archive, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db, coll := cfg.DBName, cfg.Collection
	if db == "" {
		db = DefaultDatabase
	}
	if coll == "" {
		coll = DefaultCollection
	}
	lg.FromContext(ctx).Info("Connected to archive", lg.String("db", db), lg.String("collection", coll))
	return &Archive{client: client, coll: client.Database(db).Collection(coll)}, nil
}

// New wraps an existing collection.
func New(coll *mongo.Collection) *Archive {
	return &Archive{coll: coll}
}

// Store upserts the payload keyed by its execution id. Storing the same
// execution twice replaces the earlier document.
func (a *Archive) Store(ctx context.Context, p *result.Payload) error {
	doc, err := toDocument(p)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err = a.coll.ReplaceOne(ctx, bson.M{"_id": p.ID.String()}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("archive %s: ReplaceOne failed: %w", p.ID, err)
	}
	return nil
}

// Get returns the archived payload as JSON. An unknown id is a not_found error.
func (a *Archive) Get(ctx context.Context, id uuid.UUID) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var raw bson.Raw
	err := a.coll.FindOne(ctx, bson.M{"_id": id.String()}, options.FindOne().SetProjection(bson.M{"_id": 0})).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, result.Errorf(result.KindNotFound, "execution %s is not archived", id)
	}
	if err != nil {
		return nil, fmt.Errorf("archive %s: FindOne failed: %w", id, err)
	}
	out, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, fmt.Errorf("archive %s: decode failed: %w", id, err)
	}
	return out, nil
}

func (a *Archive) Close(ctx context.Context) error {
	if a.client == nil {
		return nil
	}
	return a.client.Disconnect(ctx)
}

// toDocument converts the payload through its JSON form so that the stored
// document keeps the host order of the aggregate.
func toDocument(p *result.Payload) (bson.D, error) {
	if p == nil {
		return nil, errors.New("archive: nil payload")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("archive %s: marshal payload: %w", p.ID, err)
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
		return nil, fmt.Errorf("archive %s: convert payload: %w", p.ID, err)
	}
	return append(bson.D{{Key: "_id", Value: p.ID.String()}}, doc...), nil
}
