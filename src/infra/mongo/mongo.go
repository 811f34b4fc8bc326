package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"webinyframework/src/entity"
)

// NewMongoClient connects and pings the deployment. Nested documents decode
// as bson.M so entity attributes receive maps.
func NewMongoClient(ctx context.Context, uri string, poolSize uint64, timeout time.Duration) (*mongo.Client, error) {
	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(poolSize).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongo.NewMongoClient - connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo.NewMongoClient - ping: %w", err)
	}
	return client, nil
}

// Database is the entity.Storage backed by one MongoDB database.
type Database struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewDatabase(client *mongo.Client, name string) *Database {
	return &Database{client: client, db: client.Database(name)}
}

func (d *Database) Find(ctx context.Context, collection string, filter bson.M, opts entity.FindOptions) ([]bson.M, error) {
	findOptions := options.Find()
	if len(opts.Sort) > 0 {
		sort := bson.D{}
		for _, field := range opts.Sort {
			direction := 1
			if field.Desc {
				direction = -1
			}
			sort = append(sort, bson.E{Key: field.Field, Value: direction})
		}
		findOptions.SetSort(sort)
	}
	if opts.Limit > 0 {
		findOptions.SetLimit(opts.Limit)
	}
	if opts.Skip > 0 {
		findOptions.SetSkip(opts.Skip)
	}

	cursor, err := d.db.Collection(collection).Find(ctx, filter, findOptions)
	if err != nil {
		return nil, fmt.Errorf("Database.Find - %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	documents := make([]bson.M, 0)
	if err := cursor.All(ctx, &documents); err != nil {
		return nil, fmt.Errorf("Database.Find - %s decode: %w", collection, err)
	}
	return documents, nil
}

func (d *Database) FindOne(ctx context.Context, collection string, filter bson.M) (bson.M, error) {
	var document bson.M
	err := d.db.Collection(collection).FindOne(ctx, filter).Decode(&document)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Database.FindOne - %s: %w", collection, err)
	}
	return document, nil
}

func (d *Database) Count(ctx context.Context, collection string, filter bson.M) (int64, error) {
	count, err := d.db.Collection(collection).CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("Database.Count - %s: %w", collection, err)
	}
	return count, nil
}

func (d *Database) Insert(ctx context.Context, collection string, document bson.M) error {
	if _, err := d.db.Collection(collection).InsertOne(ctx, document); err != nil {
		return fmt.Errorf("Database.Insert - %s: %w", collection, err)
	}
	return nil
}

func (d *Database) Update(ctx context.Context, collection string, filter bson.M, set bson.M) error {
	if _, err := d.db.Collection(collection).UpdateMany(ctx, filter, bson.M{"$set": set}); err != nil {
		return fmt.Errorf("Database.Update - %s: %w", collection, err)
	}
	return nil
}

func (d *Database) Delete(ctx context.Context, collection string, filter bson.M) (int64, error) {
	result, err := d.db.Collection(collection).DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("Database.Delete - %s: %w", collection, err)
	}
	return result.DeletedCount, nil
}

// Drop removes the whole database.
func (d *Database) Drop(ctx context.Context) error {
	return d.db.Drop(ctx)
}

func (d *Database) HealthCheck(ctx context.Context) error {
	return d.client.Ping(ctx, readpref.Primary())
}

func (d *Database) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}
