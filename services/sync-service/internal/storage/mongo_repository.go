package storage

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/md-rashed-zaman/calendarsync/libs/mongox"
	"github.com/md-rashed-zaman/calendarsync/services/sync-service/internal/model"
)

const businessKeyIndex = "business_key_unique"

type MongoRepository struct {
	client *mongox.Client
	coll   *mongo.Collection
}

func NewMongoRepository(client *mongox.Client, database, collection string) *MongoRepository {
	return &MongoRepository{
		client: client,
		coll:   client.Database(database).Collection(collection),
	}
}

// EnsureIndexes creates the unique business-key index and the lastSyncedAt
// index used by Latest. It fails when the collection already holds duplicate
// keys written before the index existed.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "Cliente", Value: 1},
				{Key: "Servicio", Value: 1},
				{Key: "Hora", Value: 1},
				{Key: "Fecha", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName(businessKeyIndex),
		},
		{
			Keys:    bson.D{{Key: "lastSyncedAt", Value: -1}},
			Options: options.Index().SetName("last_synced_desc"),
		},
	})
	return err
}

// Upsert replaces the whole document stored under a's business key, or
// inserts it.
func (r *MongoRepository) Upsert(ctx context.Context, a model.Appointment) error {
	_, err := r.coll.ReplaceOne(ctx, keyFilter(a.Key()), a, options.Replace().SetUpsert(true))
	return err
}

func (r *MongoRepository) Count(ctx context.Context) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.D{})
}

// Latest returns the most recently synced record, or nil for an empty collection.
func (r *MongoRepository) Latest(ctx context.Context) (*model.Appointment, error) {
	var a model.Appointment
	err := r.coll.FindOne(ctx, bson.D{},
		options.FindOne().SetSort(bson.D{{Key: "lastSyncedAt", Value: -1}}),
	).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *MongoRepository) Ping(ctx context.Context) error {
	return mongox.ReadyCheck(r.client)(ctx)
}

// keyFilter matches on the business key. A nil label matches documents whose
// field is null or absent.
func keyFilter(k model.BusinessKey) bson.D {
	return bson.D{
		{Key: "Cliente", Value: k.Client},
		{Key: "Servicio", Value: k.Service},
		{Key: "Hora", Value: k.TimeLabel},
		{Key: "Fecha", Value: k.DateLabel},
	}
}
