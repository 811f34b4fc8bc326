package entity

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

type collectionSource func(ctx context.Context) ([]any, error)

type collectionCounter func(ctx context.Context) (int64, error)

// Collection is an ordered sequence of entities of one class. Items are kept in
// their raw form (document, id or entity) and normalized into entities on access.
// Query backed collections run their query on first access.
type Collection struct {
	manager *Manager
	class   string
	source  collectionSource
	counter collectionCounter
	items   []any
	loaded  bool
}

func newQueryCollection(m *Manager, class *Class, filter bson.M, opts FindOptions) *Collection {
	c := &Collection{manager: m, class: class.Name}
	c.source = func(ctx context.Context) ([]any, error) {
		documents, err := m.storage.Find(ctx, class.Collection, filter, opts)
		if err != nil {
			return nil, fmt.Errorf("Collection.load - find %s failed: %w", class.Name, err)
		}

		items := make([]any, len(documents))
		for i, document := range documents {
			items[i] = document
		}
		return items, nil
	}
	c.counter = func(ctx context.Context) (int64, error) {
		return m.storage.Count(ctx, class.Collection, filter)
	}
	return c
}

func newLazyCollection(m *Manager, class string, source collectionSource) *Collection {
	return &Collection{manager: m, class: class, source: source}
}

// NewCollection builds an in-memory collection from entities, documents or ids.
func NewCollection(m *Manager, class string, items ...any) *Collection {
	return &Collection{manager: m, class: class, items: items, loaded: true}
}

func (c *Collection) ClassName() string {
	return c.class
}

func (c *Collection) load(ctx context.Context) error {
	if c.loaded {
		return nil
	}

	items, err := c.source(ctx)
	if err != nil {
		return err
	}
	c.items = items
	c.loaded = true
	return nil
}

// Count is the number of items in the collection.
func (c *Collection) Count(ctx context.Context) (int, error) {
	if err := c.load(ctx); err != nil {
		return 0, err
	}
	return len(c.items), nil
}

// TotalCount ignores limit and offset of the underlying query.
func (c *Collection) TotalCount(ctx context.Context) (int64, error) {
	if c.counter != nil {
		return c.counter(ctx)
	}

	count, err := c.Count(ctx)
	return int64(count), err
}

func (c *Collection) At(ctx context.Context, index int) (*Entity, error) {
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	if index < 0 || index >= len(c.items) {
		return nil, fmt.Errorf("Collection.At - index %d out of range [0, %d)", index, len(c.items))
	}

	e, err := c.normalize(ctx, c.items[index])
	if err != nil {
		return nil, err
	}
	c.items[index] = e
	return e, nil
}

func (c *Collection) All(ctx context.Context) ([]*Entity, error) {
	if err := c.load(ctx); err != nil {
		return nil, err
	}

	entities := make([]*Entity, 0, len(c.items))
	for i := range c.items {
		e, err := c.At(ctx, i)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

func (c *Collection) Each(ctx context.Context, fn func(e *Entity) error) error {
	entities, err := c.All(ctx)
	if err != nil {
		return err
	}

	for _, e := range entities {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// Filter returns an in-memory collection with the entities accepted by fn.
func (c *Collection) Filter(ctx context.Context, fn func(e *Entity) bool) (*Collection, error) {
	entities, err := c.All(ctx)
	if err != nil {
		return nil, err
	}

	filtered := NewCollection(c.manager, c.class)
	for _, e := range entities {
		if fn(e) {
			filtered.items = append(filtered.items, e)
		}
	}
	return filtered, nil
}

func (c *Collection) Map(ctx context.Context, fn func(e *Entity) (any, error)) ([]any, error) {
	entities, err := c.All(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]any, 0, len(entities))
	for _, e := range entities {
		result, err := fn(e)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// IDs reads the ids without normalizing the items.
func (c *Collection) IDs(ctx context.Context) ([]string, error) {
	if err := c.load(ctx); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(c.items))
	for _, item := range c.items {
		id, err := itemID(item)
		if err != nil {
			return nil, err
		}
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Contains accepts an entity or an id.
func (c *Collection) Contains(ctx context.Context, item any) (bool, error) {
	id, err := itemID(item)
	if err != nil || id == "" {
		return false, err
	}

	ids, err := c.IDs(ctx)
	if err != nil {
		return false, err
	}
	for _, candidate := range ids {
		if candidate == id {
			return true, nil
		}
	}
	return false, nil
}

// Delete removes every entity, honoring each entity's delete policies.
func (c *Collection) Delete(ctx context.Context) error {
	entities, err := c.All(ctx)
	if err != nil {
		return err
	}

	for _, e := range entities {
		if !e.Exists() {
			continue
		}
		if err := c.manager.Delete(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collection) ToArray(ctx context.Context, fields string, depth int) ([]map[string]any, error) {
	return NewDataExtractor(depth).ExtractCollection(ctx, c, fields)
}

// entities returns the items already normalized, without loading anything.
func (c *Collection) entities() []*Entity {
	var entities []*Entity
	for _, item := range c.items {
		if e, ok := item.(*Entity); ok {
			entities = append(entities, e)
		}
	}
	return entities
}

func (c *Collection) normalize(ctx context.Context, item any) (*Entity, error) {
	switch v := item.(type) {
	case *Entity:
		return v, nil
	case bson.M:
		return c.manager.hydrate(c.class, v)
	case string:
		return c.manager.FindByID(ctx, c.class, v)
	}
	return nil, fmt.Errorf("%w: collection item %T", ErrInvalidValue, item)
}

func itemID(item any) (string, error) {
	switch v := item.(type) {
	case *Entity:
		return v.ID(), nil
	case bson.M:
		return documentID(v)
	case string:
		return v, nil
	}
	return "", fmt.Errorf("%w: collection item %T", ErrInvalidValue, item)
}
