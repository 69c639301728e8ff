package persistence

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is a Store backed by MongoDB. Each collection is one document
// keyed by its name.
type MongoStore struct {
	coll *mongo.Collection
}

// Ensure it implements Store.
var _ Store = (*MongoStore)(nil)

type mongoCollectionDoc struct {
	Name      string    `bson:"_id"`
	Payload   []byte    `bson:"payload"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoStore creates a Mongo-backed store.
// dbName defaults to "flowgate" if empty, collName defaults to "collections".
func NewMongoStore(client *mongo.Client, dbName, collName string) *MongoStore {
	if dbName == "" {
		dbName = "flowgate"
	}
	if collName == "" {
		collName = "collections"
	}

	return &MongoStore{
		coll: client.Database(dbName).Collection(collName),
	}
}

func (s *MongoStore) ReadCollection(ctx context.Context, c Collection) ([]byte, error) {
	var doc mongoCollectionDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": string(c)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return doc.Payload, nil
}

func (s *MongoStore) WriteCollection(ctx context.Context, c Collection, payload []byte) error {
	doc := mongoCollectionDoc{
		Name:      string(c),
		Payload:   payload,
		UpdatedAt: time.Now().UTC(),
	}
	_, err := s.coll.ReplaceOne(ctx,
		bson.M{"_id": string(c)},
		doc,
		options.Replace().SetUpsert(true),
	)
	return err
}
