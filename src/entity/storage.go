package entity

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Storage is the document store the manager persists entities to.
// FindOne returns a nil document and no error when nothing matches.
type Storage interface {
	Find(ctx context.Context, collection string, filter bson.M, opts FindOptions) ([]bson.M, error)
	FindOne(ctx context.Context, collection string, filter bson.M) (bson.M, error)
	Count(ctx context.Context, collection string, filter bson.M) (int64, error)
	Insert(ctx context.Context, collection string, document bson.M) error
	Update(ctx context.Context, collection string, filter bson.M, set bson.M) error
	Delete(ctx context.Context, collection string, filter bson.M) (int64, error)
}

type SortField struct {
	Field string
	Desc  bool
}

type FindOptions struct {
	Sort  []SortField
	Limit int64
	Skip  int64
}

// ParseSort reads a comma separated list of fields, a leading "-" meaning descending
// and a leading "+" ascending, e.g. "-createdOn,title".
func ParseSort(spec string) []SortField {
	var fields []SortField
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		field := SortField{Field: part}
		switch part[0] {
		case '-':
			field.Field = part[1:]
			field.Desc = true
		case '+':
			field.Field = part[1:]
		}

		if field.Field == "id" {
			field.Field = "_id"
		}
		if field.Field != "" {
			fields = append(fields, field)
		}
	}

	return fields
}
