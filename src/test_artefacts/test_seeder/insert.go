package test_seeder

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InsertDocument stores the document as is and returns its id. An _id is generated when missing.
func (ts TestSeeder) InsertDocument(ctx context.Context, collection string, document bson.M) string {
	oid, ok := document["_id"].(primitive.ObjectID)
	if !ok {
		oid = primitive.NewObjectID()
	}

	stored := bson.M{}
	for key, value := range document {
		stored[key] = value
	}
	stored["_id"] = oid

	if err := ts.storage.Insert(ctx, collection, stored); err != nil {
		panic(fmt.Sprintf("Seeder.InsertDocument failed: %v", err))
	}
	return oid.Hex()
}

// InsertLink stores a many2many join document.
func (ts TestSeeder) InsertLink(ctx context.Context, collection, thisField, thisID, relatedField, relatedID string) {
	ts.InsertDocument(ctx, collection, bson.M{thisField: thisID, relatedField: relatedID})
}
