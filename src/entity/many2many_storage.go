package entity

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Many2ManyStorage persists many2many links as documents of the join collection,
// one document per linked pair.
type Many2ManyStorage struct {
	storage Storage
}

func NewMany2ManyStorage(storage Storage) *Many2ManyStorage {
	return &Many2ManyStorage{storage: storage}
}

// Load returns the ids linked to the owner of the attribute, in link order.
func (s *Many2ManyStorage) Load(ctx context.Context, attribute *Many2ManyAttribute) ([]string, error) {
	thisField, relatedField, err := attribute.fields()
	if err != nil {
		return nil, err
	}

	links, err := s.storage.Find(ctx, attribute.joinCollection, bson.M{thisField: attribute.parent.ID()}, FindOptions{})
	if err != nil {
		return nil, fmt.Errorf("Many2ManyStorage.Load - %s: %w", attribute.joinCollection, err)
	}

	ids := make([]string, 0, len(links))
	seen := make(map[string]struct{}, len(links))
	for _, link := range links {
		id, ok := link[relatedField].(string)
		if !ok {
			continue
		}
		if _, duplicate := seen[id]; duplicate {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// Save makes the links of the owner equal to ids.
func (s *Many2ManyStorage) Save(ctx context.Context, attribute *Many2ManyAttribute, ids []string) error {
	thisField, relatedField, err := attribute.fields()
	if err != nil {
		return err
	}

	current, err := s.Load(ctx, attribute)
	if err != nil {
		return err
	}
	existing := make(map[string]struct{}, len(current))
	for _, id := range current {
		existing[id] = struct{}{}
	}

	owner := attribute.parent.ID()
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := wanted[id]; ok {
			continue
		}
		wanted[id] = struct{}{}
		if _, ok := existing[id]; ok {
			continue
		}

		link := bson.M{"_id": primitive.NewObjectID(), thisField: owner, relatedField: id}
		if err := s.storage.Insert(ctx, attribute.joinCollection, link); err != nil {
			return fmt.Errorf("Many2ManyStorage.Save - link %s: %w", attribute.joinCollection, err)
		}
	}

	var removed []string
	for _, id := range current {
		if _, ok := wanted[id]; !ok {
			removed = append(removed, id)
		}
	}
	if len(removed) == 0 {
		return nil
	}

	filter := bson.M{thisField: owner, relatedField: bson.M{"$in": removed}}
	if _, err := s.storage.Delete(ctx, attribute.joinCollection, filter); err != nil {
		return fmt.Errorf("Many2ManyStorage.Save - unlink %s: %w", attribute.joinCollection, err)
	}
	return nil
}

// DeleteAll removes every link of the owner.
func (s *Many2ManyStorage) DeleteAll(ctx context.Context, attribute *Many2ManyAttribute) error {
	thisField, _, err := attribute.fields()
	if err != nil {
		return err
	}

	if _, err := s.storage.Delete(ctx, attribute.joinCollection, bson.M{thisField: attribute.parent.ID()}); err != nil {
		return fmt.Errorf("Many2ManyStorage.DeleteAll - %s: %w", attribute.joinCollection, err)
	}
	return nil
}

// loadRelated fetches the linked documents in link order. Links to missing documents are dropped.
func (s *Many2ManyStorage) loadRelated(ctx context.Context, attribute *Many2ManyAttribute) ([]any, error) {
	ids, err := s.Load(ctx, attribute)
	if err != nil || len(ids) == 0 {
		return nil, err
	}

	class, err := attribute.parent.manager.Class(attribute.className)
	if err != nil {
		return nil, err
	}

	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return nil, fmt.Errorf("%w: %q in %s", ErrInvalidID, id, attribute.joinCollection)
		}
		oids = append(oids, oid)
	}

	documents, err := s.storage.Find(ctx, class.Collection, bson.M{"_id": bson.M{"$in": oids}}, FindOptions{})
	if err != nil {
		return nil, fmt.Errorf("Many2ManyStorage.Load - %s: %w", class.Name, err)
	}

	byID := make(map[string]bson.M, len(documents))
	for _, document := range documents {
		id, err := documentID(document)
		if err != nil {
			return nil, err
		}
		byID[id] = document
	}

	items := make([]any, 0, len(documents))
	for _, id := range ids {
		if document, ok := byID[id]; ok {
			items = append(items, document)
		}
	}
	return items, nil
}
