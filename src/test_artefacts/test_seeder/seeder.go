package test_seeder

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"webinyframework/src/entity"
)

// TestSeeder writes and reads raw documents, bypassing the entity manager.
type TestSeeder struct {
	storage entity.Storage
}

func New(storage entity.Storage) TestSeeder {
	return TestSeeder{storage: storage}
}

func (ts TestSeeder) Clear(ctx context.Context, collections ...string) {
	for _, collection := range collections {
		if _, err := ts.storage.Delete(ctx, collection, bson.M{}); err != nil {
			panic(fmt.Sprintf("Failed to clear %s: %v", collection, err))
		}
	}
}
