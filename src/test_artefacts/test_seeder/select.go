package test_seeder

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"webinyframework/src/entity"
)

func (ts TestSeeder) SelectByID(ctx context.Context, collection, id string) (bson.M, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("Seeder.SelectByID - %w", err)
	}
	return ts.storage.FindOne(ctx, collection, bson.M{"_id": oid})
}

func (ts TestSeeder) SelectAll(ctx context.Context, collection string, filter bson.M) ([]bson.M, error) {
	return ts.storage.Find(ctx, collection, filter, entity.FindOptions{})
}
