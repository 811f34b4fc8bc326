package entity

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Entity is a record backed by one document. Entities are not safe for concurrent use.
type Entity struct {
	class      *Class
	manager    *Manager
	id         string
	attributes map[string]Attribute
	order      []string
}

func (e *Entity) Class() *Class {
	return e.class
}

func (e *Entity) ClassName() string {
	return e.class.Name
}

func (e *Entity) Manager() *Manager {
	return e.manager
}

// ID returns the hex ObjectId, empty until the entity is saved.
func (e *Entity) ID() string {
	return e.id
}

func (e *Entity) Exists() bool {
	return e.id != ""
}

func (e *Entity) Attr(name string) Attribute {
	return e.attributes[name]
}

// Attributes are returned in declaration order.
func (e *Entity) Attributes() []Attribute {
	attributes := make([]Attribute, 0, len(e.order))
	for _, name := range e.order {
		attributes = append(attributes, e.attributes[name])
	}
	return attributes
}

func (e *Entity) Get(name string) any {
	if name == "id" {
		return e.id
	}

	attribute := e.attributes[name]
	if attribute == nil {
		return nil
	}
	return attribute.Value()
}

func (e *Entity) Set(name string, value any) error {
	if name == "id" {
		return ErrImmutableID
	}

	attribute := e.attributes[name]
	if attribute == nil {
		return fmt.Errorf("%w: %s.%s", ErrUnknownAttribute, e.class.Name, name)
	}
	return attribute.SetValue(value)
}

// GetEntity loads the entity referenced by a many2one attribute.
func (e *Entity) GetEntity(ctx context.Context, name string) (*Entity, error) {
	attribute, ok := e.attributes[name].(*Many2OneAttribute)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s is not a many2one attribute", ErrUnknownAttribute, e.class.Name, name)
	}
	return attribute.Load(ctx)
}

// GetCollection returns the value of a one2many or many2many attribute.
func (e *Entity) GetCollection(name string) (*Collection, error) {
	switch attribute := e.attributes[name].(type) {
	case *One2ManyAttribute:
		return attribute.Collection(), nil
	case *Many2ManyAttribute:
		return attribute.Collection(), nil
	}
	return nil, fmt.Errorf("%w: %s.%s is not a collection attribute", ErrUnknownAttribute, e.class.Name, name)
}

// Populate assigns application input to attributes. Every failure is collected
// into a single *ValidationError.
func (e *Entity) Populate(data map[string]any) error {
	failures := newValidationError(e.class.Name)

	for _, name := range e.order {
		attribute := e.attributes[name]
		if attribute.SkipsOnPopulate() {
			continue
		}
		if attribute.IsOnce() && e.Exists() {
			continue
		}

		value, present := data[name]
		if !present {
			if attribute.IsRequired() && !e.Exists() && attribute.IsEmpty() {
				failures.add(name, errors.New("value is required"))
			}
			continue
		}

		if err := attribute.SetValue(value); err != nil {
			failures.add(name, err)
			continue
		}

		if attribute.IsRequired() && attribute.IsEmpty() {
			failures.add(name, errors.New("value is required"))
		}
	}

	if failures.empty() {
		return nil
	}
	return failures
}

func (e *Entity) IsDirty() bool {
	for _, attribute := range e.attributes {
		if attribute.IsDirty() {
			return true
		}
	}
	return false
}

func (e *Entity) Save(ctx context.Context) error {
	return e.manager.Save(ctx, e)
}

func (e *Entity) Delete(ctx context.Context) error {
	return e.manager.Delete(ctx, e)
}

// ToArray flattens the entity graph, see DataExtractor.
func (e *Entity) ToArray(ctx context.Context, fields string, depth int) (map[string]any, error) {
	return NewDataExtractor(depth).Extract(ctx, e, fields)
}

// ToDB builds the full document of the entity.
func (e *Entity) ToDB() (bson.M, error) {
	document, err := e.toDB(false)
	if err != nil {
		return nil, err
	}

	if e.Exists() {
		oid, err := primitive.ObjectIDFromHex(e.id)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidID, e.id)
		}
		document["_id"] = oid
	}
	return document, nil
}

func (e *Entity) toDB(dirtyOnly bool) (bson.M, error) {
	document := bson.M{}
	for _, name := range e.order {
		attribute := e.attributes[name]
		if !attribute.StoresToDB() {
			continue
		}
		if dirtyOnly && !attribute.IsDirty() {
			continue
		}

		value, err := attribute.ToDB()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.class.Name, err)
		}
		document[name] = value
	}
	return document, nil
}

func (e *Entity) validateRequired() error {
	failures := newValidationError(e.class.Name)
	for _, name := range e.order {
		attribute := e.attributes[name]
		if attribute.IsRequired() && attribute.IsEmpty() {
			failures.add(name, errors.New("value is required"))
		}
	}

	if failures.empty() {
		return nil
	}
	return failures
}

func (e *Entity) fromDB(document bson.M) error {
	id, err := documentID(document)
	if err != nil {
		return err
	}
	e.id = id

	for _, name := range e.order {
		value, present := document[name]
		if !present {
			continue
		}
		if err := e.attributes[name].FromDB(value); err != nil {
			return fmt.Errorf("%s(%s): %w", e.class.Name, id, err)
		}
	}

	e.markClean()
	return nil
}

func (e *Entity) markClean() {
	for _, attribute := range e.attributes {
		attribute.markClean()
	}
}

// markStoredClean leaves collection attributes dirty until their relations are saved.
func (e *Entity) markStoredClean() {
	for _, attribute := range e.attributes {
		switch attribute.(type) {
		case *One2ManyAttribute, *Many2ManyAttribute:
			continue
		}
		attribute.markClean()
	}
}

func (e *Entity) relationAttributes() (many2one []*Many2OneAttribute, one2many []*One2ManyAttribute, many2many []*Many2ManyAttribute) {
	for _, name := range e.order {
		switch attribute := e.attributes[name].(type) {
		case *Many2OneAttribute:
			many2one = append(many2one, attribute)
		case *One2ManyAttribute:
			one2many = append(one2many, attribute)
		case *Many2ManyAttribute:
			many2many = append(many2many, attribute)
		}
	}
	return many2one, one2many, many2many
}

func documentID(document bson.M) (string, error) {
	switch id := document["_id"].(type) {
	case primitive.ObjectID:
		return id.Hex(), nil
	case string:
		if !primitive.IsValidObjectID(id) {
			return "", fmt.Errorf("%w: %s", ErrInvalidID, id)
		}
		return id, nil
	}
	return "", fmt.Errorf("%w: document has no _id", ErrInvalidID)
}
