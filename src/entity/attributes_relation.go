package entity

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OnDeletePolicy decides what happens to one2many children when their parent is deleted.
type OnDeletePolicy string

const (
	OnDeleteCascade  OnDeletePolicy = "cascade"
	OnDeleteRestrict OnDeletePolicy = "restrict"
	OnDeleteIgnore   OnDeletePolicy = "ignore"
)

// Many2OneAttribute references a single entity. The value is either the id of the
// referenced entity or the entity itself once loaded or assigned.
type Many2OneAttribute struct {
	attributeBase[*Many2OneAttribute]
	className      string
	updateExisting bool
}

func newMany2OneAttribute(name string, parent *Entity) *Many2OneAttribute {
	a := &Many2OneAttribute{}
	a.init(name, parent, a, nil)
	return a
}

func (a *Many2OneAttribute) SetEntity(class string) *Many2OneAttribute {
	a.className = class
	return a
}

// SetUpdateExisting saves a modified, already persisted referenced entity together with the parent.
func (a *Many2OneAttribute) SetUpdateExisting(flag bool) *Many2OneAttribute {
	a.updateExisting = flag
	return a
}

func (a *Many2OneAttribute) RelatedClass() string {
	return a.className
}

// ID of the referenced entity, empty when nothing is referenced or the entity is new.
func (a *Many2OneAttribute) ID() string {
	switch v := a.value.(type) {
	case string:
		return v
	case *Entity:
		return v.ID()
	}
	return ""
}

func (a *Many2OneAttribute) IsEmpty() bool {
	return a.value == nil
}

// Load returns the referenced entity, fetching it through the pool when only the id is known.
// A reference to a missing document yields nil.
func (a *Many2OneAttribute) Load(ctx context.Context) (*Entity, error) {
	switch v := a.value.(type) {
	case *Entity:
		return v, nil
	case string:
		e, err := a.parent.manager.FindByID(ctx, a.className, v)
		if errors.Is(err, ErrEntityNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		a.value = e
		return e, nil
	}
	return nil, nil
}

func (a *Many2OneAttribute) loaded() *Entity {
	e, _ := a.value.(*Entity)
	return e
}

func (a *Many2OneAttribute) SetValue(value any) error {
	if err := a.checkOnce(); err != nil {
		return err
	}
	if a.onSet != nil {
		value = a.onSet(value)
	}

	item, err := relationItem(a.parent.manager, a.className, value)
	if err != nil {
		return fmt.Errorf("attribute %q: %w", a.name, err)
	}
	a.setReference(item)
	return nil
}

func (a *Many2OneAttribute) setReference(value any) {
	before := a.ID()
	a.value = value
	if e, ok := value.(*Entity); ok && !e.Exists() {
		a.dirty = true
		return
	}
	if a.ID() != before {
		a.dirty = true
	}
}

func (a *Many2OneAttribute) ToDB() (any, error) {
	var stored any
	switch v := a.value.(type) {
	case string:
		stored = v
	case *Entity:
		if !v.Exists() {
			return nil, fmt.Errorf("attribute %q: %w: referenced %s", a.name, ErrNotPersisted, v.ClassName())
		}
		stored = v.ID()
	}

	if a.onToDB != nil {
		stored = a.onToDB(stored)
	}
	return stored, nil
}

func (a *Many2OneAttribute) FromDB(value any) error {
	if a.onFromDB != nil {
		value = a.onFromDB(value)
	}

	a.dirty = false
	switch v := value.(type) {
	case nil:
		a.value = nil
	case string:
		a.value = v
	case primitive.ObjectID:
		a.value = v.Hex()
	default:
		return fmt.Errorf("attribute %q: %w", a.name, invalidValue("entity id", value))
	}
	return nil
}

func (a *Many2OneAttribute) ToArray() any {
	var out any
	if id := a.ID(); id != "" {
		out = id
	}
	if a.onToArray != nil {
		return a.onToArray(out)
	}
	return out
}

// One2ManyAttribute is the reverse side of a many2one attribute on the related class.
type One2ManyAttribute struct {
	attributeBase[*One2ManyAttribute]
	className        string
	relatedAttribute string
	onDelete         OnDeletePolicy
	sort             []SortField
	collection       *Collection
	assigned         bool
}

func newOne2ManyAttribute(name string, parent *Entity, relatedAttribute string) *One2ManyAttribute {
	a := &One2ManyAttribute{relatedAttribute: relatedAttribute, onDelete: OnDeleteCascade}
	a.init(name, parent, a, nil)
	a.storeToDB = false
	return a
}

func (a *One2ManyAttribute) SetEntity(class string) *One2ManyAttribute {
	a.className = class
	return a
}

func (a *One2ManyAttribute) SetOnDelete(policy OnDeletePolicy) *One2ManyAttribute {
	a.onDelete = policy
	return a
}

// SetSort orders the loaded children, e.g. "-createdOn".
func (a *One2ManyAttribute) SetSort(spec string) *One2ManyAttribute {
	a.sort = ParseSort(spec)
	return a
}

func (a *One2ManyAttribute) RelatedClass() string {
	return a.className
}

func (a *One2ManyAttribute) RelatedAttribute() string {
	return a.relatedAttribute
}

func (a *One2ManyAttribute) OnDelete() OnDeletePolicy {
	return a.onDelete
}

func (a *One2ManyAttribute) filter() bson.M {
	return bson.M{a.relatedAttribute: a.parent.ID()}
}

// Collection returns the children, queried lazily for persisted parents.
func (a *One2ManyAttribute) Collection() *Collection {
	if a.collection != nil {
		return a.collection
	}

	m := a.parent.manager
	if !a.parent.Exists() {
		a.collection = NewCollection(m, a.className)
		return a.collection
	}

	class, err := m.Class(a.className)
	if err != nil {
		return newLazyCollection(m, a.className, func(context.Context) ([]any, error) { return nil, err })
	}
	a.collection = newQueryCollection(m, class, a.filter(), FindOptions{Sort: a.sort})
	return a.collection
}

func (a *One2ManyAttribute) Value() any {
	if a.onGet != nil {
		return a.onGet(a.Collection())
	}
	return a.Collection()
}

func (a *One2ManyAttribute) IsEmpty() bool {
	if a.collection != nil && a.collection.loaded {
		return len(a.collection.items) == 0
	}
	return !a.parent.Exists()
}

// SetValue replaces the children. On save, children left out are deleted when the
// policy is cascade and unlinked otherwise.
func (a *One2ManyAttribute) SetValue(value any) error {
	if err := a.checkOnce(); err != nil {
		return err
	}
	if a.onSet != nil {
		value = a.onSet(value)
	}

	items, err := relationItems(a.parent.manager, a.className, value)
	if err != nil {
		return fmt.Errorf("attribute %q: %w", a.name, err)
	}

	a.collection = NewCollection(a.parent.manager, a.className, items...)
	a.assigned = true
	a.dirty = true
	return nil
}

func (a *One2ManyAttribute) Add(ctx context.Context, value any) error {
	item, err := relationItem(a.parent.manager, a.className, value)
	if err != nil {
		return fmt.Errorf("attribute %q: %w", a.name, err)
	}
	if item == nil {
		return nil
	}

	collection := a.Collection()
	if err := collection.load(ctx); err != nil {
		return err
	}
	collection.items = append(collection.items, item)
	a.assigned = true
	a.dirty = true
	return nil
}

func (a *One2ManyAttribute) ToDB() (any, error) { return nil, nil }

func (a *One2ManyAttribute) FromDB(any) error { return nil }

func (a *One2ManyAttribute) ToArray() any { return nil }

func (a *One2ManyAttribute) markClean() {
	a.dirty = false
	a.assigned = false
	a.collection = nil
}

// Many2ManyAttribute links entities through a join collection whose documents hold
// one field per side.
type Many2ManyAttribute struct {
	attributeBase[*Many2ManyAttribute]
	className      string
	joinCollection string
	thisField      string
	relatedField   string
	collection     *Collection
	assigned       bool
}

func newMany2ManyAttribute(name string, parent *Entity, joinCollection string) *Many2ManyAttribute {
	a := &Many2ManyAttribute{joinCollection: joinCollection}
	a.init(name, parent, a, nil)
	a.storeToDB = false
	return a
}

func (a *Many2ManyAttribute) SetEntity(class string) *Many2ManyAttribute {
	a.className = class
	return a
}

// SetFields overrides the join document field names, which default to the class names.
func (a *Many2ManyAttribute) SetFields(thisField string, relatedField string) *Many2ManyAttribute {
	a.thisField = thisField
	a.relatedField = relatedField
	return a
}

func (a *Many2ManyAttribute) RelatedClass() string {
	return a.className
}

func (a *Many2ManyAttribute) JoinCollection() string {
	return a.joinCollection
}

func (a *Many2ManyAttribute) fields() (string, string, error) {
	thisField, relatedField := a.thisField, a.relatedField
	if thisField == "" {
		thisField = a.parent.ClassName()
	}
	if relatedField == "" {
		relatedField = a.className
	}
	if thisField == relatedField {
		return "", "", fmt.Errorf("%w: %s.%s uses %q on both sides", ErrAmbiguousJoinFields, a.parent.ClassName(), a.name, thisField)
	}
	return thisField, relatedField, nil
}

func (a *Many2ManyAttribute) Collection() *Collection {
	if a.collection != nil {
		return a.collection
	}

	m := a.parent.manager
	if !a.parent.Exists() {
		a.collection = NewCollection(m, a.className)
		return a.collection
	}

	a.collection = newLazyCollection(m, a.className, func(ctx context.Context) ([]any, error) {
		return m.many2many.loadRelated(ctx, a)
	})
	return a.collection
}

func (a *Many2ManyAttribute) Value() any {
	if a.onGet != nil {
		return a.onGet(a.Collection())
	}
	return a.Collection()
}

func (a *Many2ManyAttribute) IsEmpty() bool {
	if a.collection != nil && a.collection.loaded {
		return len(a.collection.items) == 0
	}
	return !a.parent.Exists()
}

func (a *Many2ManyAttribute) SetValue(value any) error {
	if err := a.checkOnce(); err != nil {
		return err
	}
	if a.onSet != nil {
		value = a.onSet(value)
	}

	items, err := relationItems(a.parent.manager, a.className, value)
	if err != nil {
		return fmt.Errorf("attribute %q: %w", a.name, err)
	}

	a.collection = NewCollection(a.parent.manager, a.className, items...)
	a.assigned = true
	a.dirty = true
	return nil
}

func (a *Many2ManyAttribute) Add(ctx context.Context, value any) error {
	item, err := relationItem(a.parent.manager, a.className, value)
	if err != nil {
		return fmt.Errorf("attribute %q: %w", a.name, err)
	}
	if item == nil {
		return nil
	}

	collection := a.Collection()
	if err := collection.load(ctx); err != nil {
		return err
	}
	contains, err := collection.Contains(ctx, item)
	if err != nil {
		return err
	}
	if contains {
		return nil
	}

	collection.items = append(collection.items, item)
	a.assigned = true
	a.dirty = true
	return nil
}

func (a *Many2ManyAttribute) Remove(ctx context.Context, value any) error {
	id, err := itemID(value)
	if err != nil {
		return fmt.Errorf("attribute %q: %w", a.name, err)
	}

	collection := a.Collection()
	if err := collection.load(ctx); err != nil {
		return err
	}

	kept := make([]any, 0, len(collection.items))
	for _, item := range collection.items {
		candidate, err := itemID(item)
		if err != nil {
			return err
		}
		if id != "" && candidate == id {
			continue
		}
		kept = append(kept, item)
	}

	collection.items = kept
	a.assigned = true
	a.dirty = true
	return nil
}

func (a *Many2ManyAttribute) ToDB() (any, error) { return nil, nil }

func (a *Many2ManyAttribute) FromDB(any) error { return nil }

func (a *Many2ManyAttribute) ToArray() any { return nil }

func (a *Many2ManyAttribute) markClean() {
	a.dirty = false
	a.assigned = false
	a.collection = nil
}

func relationItems(m *Manager, class string, value any) ([]any, error) {
	if value == nil {
		return nil, nil
	}

	if collection, ok := value.(*Collection); ok {
		if !collection.loaded {
			return nil, fmt.Errorf("%w: collection must be loaded before it is assigned", ErrInvalidValue)
		}
		value = collection.items
	}

	list, ok := toList(value)
	if !ok {
		list = []any{value}
	}

	items := make([]any, 0, len(list))
	for _, element := range list {
		item, err := relationItem(m, class, element)
		if err != nil {
			return nil, err
		}
		if item != nil {
			items = append(items, item)
		}
	}
	return items, nil
}

// relationItem turns input into an id string or an entity of the related class.
// Objects carrying an id reference that entity, other objects build a new entity.
func relationItem(m *Manager, class string, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		if !primitive.IsValidObjectID(v) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidID, v)
		}
		return v, nil
	case primitive.ObjectID:
		return v.Hex(), nil
	case *Entity:
		if v.ClassName() != class {
			return nil, fmt.Errorf("%w: expected %s entity, got %s", ErrInvalidValue, class, v.ClassName())
		}
		return v, nil
	}

	object, ok := toObject(value)
	if !ok {
		return nil, invalidValue(class+" entity, id or object", value)
	}

	if id, ok := object["id"].(string); ok && id != "" {
		return relationItem(m, class, id)
	}

	e, err := m.New(class)
	if err != nil {
		return nil, err
	}
	if err := e.Populate(object); err != nil {
		return nil, err
	}
	return e, nil
}
