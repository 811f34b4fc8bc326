package entity

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// Event is emitted after an entity has been written or removed.
type Event struct {
	Type   EventType
	Class  string
	ID     string
	Entity *Entity
}

type Observer interface {
	OnEntityEvent(ctx context.Context, event Event)
}

type ObserverFunc func(ctx context.Context, event Event)

func (f ObserverFunc) OnEntityEvent(ctx context.Context, event Event) {
	f(ctx, event)
}

// Manager owns the class registry, the storage handle and the entity pool.
type Manager struct {
	logger    *slog.Logger
	storage   Storage
	pool      *Pool
	many2many *Many2ManyStorage
	now       func() time.Time

	mu        sync.RWMutex
	classes   map[string]*Class
	observers []Observer
}

func NewManager(logger *slog.Logger, storage Storage) *Manager {
	return &Manager{
		logger:    logger,
		storage:   storage,
		pool:      NewPool(),
		many2many: NewMany2ManyStorage(storage),
		now:       time.Now,
		classes:   make(map[string]*Class),
	}
}

// Session returns a manager with its own pool sharing storage, classes and observers.
// Entities are not safe for concurrent use, so each unit of work runs in a session.
func (m *Manager) Session() *Manager {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return &Manager{
		logger:    m.logger,
		storage:   m.storage,
		pool:      NewPool(),
		many2many: m.many2many,
		now:       m.now,
		classes:   maps.Clone(m.classes),
		observers: slices.Clone(m.observers),
	}
}

func (m *Manager) Storage() Storage {
	return m.storage
}

func (m *Manager) Pool() *Pool {
	return m.pool
}

func (m *Manager) Many2Many() *Many2ManyStorage {
	return m.many2many
}

// Register adds classes to the registry. The structure of every class is built once
// so that declaration mistakes surface here.
func (m *Manager) Register(classes ...Class) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, class := range classes {
		if err := class.validate(); err != nil {
			return err
		}
		if _, exists := m.classes[class.Name]; exists {
			return fmt.Errorf("%w: %s", ErrClassExists, class.Name)
		}

		registered := class
		if _, err := m.build(&registered); err != nil {
			return err
		}
		m.classes[class.Name] = &registered
	}
	return nil
}

func (m *Manager) Class(name string) (*Class, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	class, ok := m.classes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClass, name)
	}
	return class, nil
}

// ClassNames returns the registered class names, sorted.
func (m *Manager) ClassNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.classes))
	for name := range m.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) Observe(observer Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.observers = append(m.observers, observer)
}

// New builds an empty entity with default values applied.
func (m *Manager) New(class string) (*Entity, error) {
	c, err := m.Class(class)
	if err != nil {
		return nil, err
	}

	e, err := m.build(c)
	if err != nil {
		return nil, err
	}

	for _, attribute := range e.Attributes() {
		defaulted, ok := attribute.(interface{ DefaultValue() any })
		if !ok || defaulted.DefaultValue() == nil {
			continue
		}
		if err := attribute.SetValue(defaulted.DefaultValue()); err != nil {
			return nil, fmt.Errorf("Manager.New - %s default: %w", class, err)
		}
	}
	return e, nil
}

func (m *Manager) build(class *Class) (*Entity, error) {
	e := &Entity{class: class, manager: m, attributes: make(map[string]Attribute)}
	s := &Structure{entity: e}

	class.Structure(s)
	if class.Timestamps {
		s.Attr(CreatedOnAttribute).DateTime().SetOnce(true).SetSkipOnPopulate(true)
		s.Attr(ModifiedOnAttribute).DateTime().SetSkipOnPopulate(true)
	}
	if s.err != nil {
		return nil, fmt.Errorf("Manager.New - %s structure: %w", class.Name, s.err)
	}

	for _, name := range e.order {
		var related string
		switch attribute := e.attributes[name].(type) {
		case *Many2OneAttribute:
			related = attribute.className
		case *One2ManyAttribute:
			related = attribute.className
			if attribute.relatedAttribute == "" {
				return nil, fmt.Errorf("%w: %s.%s has no related attribute", ErrInvalidClass, class.Name, name)
			}
		case *Many2ManyAttribute:
			related = attribute.className
			if attribute.joinCollection == "" {
				return nil, fmt.Errorf("%w: %s.%s has no join collection", ErrInvalidClass, class.Name, name)
			}
		default:
			continue
		}
		if related == "" {
			return nil, fmt.Errorf("%w: %s.%s has no related class", ErrInvalidClass, class.Name, name)
		}
	}
	return e, nil
}

// hydrate turns a stored document into an entity, reusing the pooled instance when
// the document is already known.
func (m *Manager) hydrate(class string, document bson.M) (*Entity, error) {
	id, err := documentID(document)
	if err != nil {
		return nil, err
	}
	if pooled, ok := m.pool.Get(class, id); ok {
		return pooled, nil
	}

	c, err := m.Class(class)
	if err != nil {
		return nil, err
	}
	e, err := m.build(c)
	if err != nil {
		return nil, err
	}
	if err := e.fromDB(document); err != nil {
		return nil, err
	}
	return m.pool.Add(e), nil
}

func (m *Manager) FindByID(ctx context.Context, class string, id string) (*Entity, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if pooled, ok := m.pool.Get(class, id); ok {
		return pooled, nil
	}

	c, err := m.Class(class)
	if err != nil {
		return nil, err
	}

	document, err := m.storage.FindOne(ctx, c.Collection, bson.M{"_id": oid})
	if err != nil {
		return nil, fmt.Errorf("Manager.FindByID - %s(%s): %w", class, id, err)
	}
	if document == nil {
		return nil, fmt.Errorf("%w: %s(%s)", ErrEntityNotFound, class, id)
	}
	return m.hydrate(class, document)
}

// FindOne returns the first match or ErrEntityNotFound.
func (m *Manager) FindOne(ctx context.Context, class string, filter bson.M) (*Entity, error) {
	c, err := m.Class(class)
	if err != nil {
		return nil, err
	}
	normalized, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}

	document, err := m.storage.FindOne(ctx, c.Collection, normalized)
	if err != nil {
		return nil, fmt.Errorf("Manager.FindOne - %s: %w", class, err)
	}
	if document == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, class)
	}
	return m.hydrate(class, document)
}

// Find returns a collection whose query runs on first access.
func (m *Manager) Find(class string, filter bson.M, opts FindOptions) (*Collection, error) {
	c, err := m.Class(class)
	if err != nil {
		return nil, err
	}
	normalized, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}
	return newQueryCollection(m, c, normalized, opts), nil
}

func (m *Manager) Count(ctx context.Context, class string, filter bson.M) (int64, error) {
	c, err := m.Class(class)
	if err != nil {
		return 0, err
	}
	normalized, err := normalizeFilter(filter)
	if err != nil {
		return 0, err
	}

	count, err := m.storage.Count(ctx, c.Collection, normalized)
	if err != nil {
		return 0, fmt.Errorf("Manager.Count - %s: %w", class, err)
	}
	return count, nil
}

// Save persists the entity and the related entities reachable from it.
func (m *Manager) Save(ctx context.Context, e *Entity) error {
	return m.save(ctx, e, make(map[*Entity]struct{}))
}

func (m *Manager) save(ctx context.Context, e *Entity, visited map[*Entity]struct{}) error {
	if _, ok := visited[e]; ok {
		return nil
	}
	visited[e] = struct{}{}

	if err := e.validateRequired(); err != nil {
		return err
	}

	many2one, one2many, many2many := e.relationAttributes()
	for _, attribute := range many2one {
		target := attribute.loaded()
		if target == nil {
			continue
		}
		if target.Exists() && !(attribute.updateExisting && target.IsDirty()) {
			continue
		}
		if err := m.save(ctx, target, visited); err != nil {
			return fmt.Errorf("Manager.Save - %s.%s: %w", e.ClassName(), attribute.name, err)
		}
	}

	relationsDirty := false
	for _, attribute := range one2many {
		relationsDirty = relationsDirty || attribute.IsDirty()
	}
	for _, attribute := range many2many {
		relationsDirty = relationsDirty || attribute.IsDirty()
	}

	eventType, err := m.persist(ctx, e)
	if err != nil {
		return err
	}

	for _, attribute := range one2many {
		if err := m.saveOne2Many(ctx, e, attribute, visited); err != nil {
			return err
		}
	}
	for _, attribute := range many2many {
		if err := m.saveMany2Many(ctx, e, attribute, visited); err != nil {
			return err
		}
	}

	if eventType == "" && relationsDirty {
		eventType = EventUpdated
	}
	if eventType != "" {
		m.notify(ctx, Event{Type: eventType, Class: e.ClassName(), ID: e.ID(), Entity: e})
	}
	return nil
}

// persist writes the stored attributes of e. It returns an empty event type when
// nothing had to be written.
func (m *Manager) persist(ctx context.Context, e *Entity) (EventType, error) {
	now := m.now().UTC()

	if !e.Exists() {
		if e.class.Timestamps {
			if e.attributes[CreatedOnAttribute].IsEmpty() {
				if err := e.attributes[CreatedOnAttribute].SetValue(now); err != nil {
					return "", err
				}
			}
			if err := e.attributes[ModifiedOnAttribute].SetValue(now); err != nil {
				return "", err
			}
		}

		document, err := e.toDB(false)
		if err != nil {
			return "", fmt.Errorf("Manager.Save - %w", err)
		}
		oid := primitive.NewObjectID()
		document["_id"] = oid

		if err := m.storage.Insert(ctx, e.class.Collection, document); err != nil {
			return "", fmt.Errorf("Manager.Save - insert %s: %w", e.ClassName(), err)
		}

		e.id = oid.Hex()
		m.pool.Add(e)
		e.markStoredClean()
		m.logger.DebugContext(ctx, "entity inserted", "class", e.ClassName(), "id", e.id)
		return EventCreated, nil
	}

	document, err := e.toDB(true)
	if err != nil {
		return "", fmt.Errorf("Manager.Save - %w", err)
	}
	if len(document) == 0 {
		return "", nil
	}

	if e.class.Timestamps {
		if err := e.attributes[ModifiedOnAttribute].SetValue(now); err != nil {
			return "", err
		}
		if document, err = e.toDB(true); err != nil {
			return "", fmt.Errorf("Manager.Save - %w", err)
		}
	}

	oid, err := primitive.ObjectIDFromHex(e.id)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidID, e.id)
	}
	if err := m.storage.Update(ctx, e.class.Collection, bson.M{"_id": oid}, document); err != nil {
		return "", fmt.Errorf("Manager.Save - update %s(%s): %w", e.ClassName(), e.id, err)
	}

	e.markStoredClean()
	m.logger.DebugContext(ctx, "entity updated", "class", e.ClassName(), "id", e.id, "fields", len(document))
	return EventUpdated, nil
}

func (m *Manager) saveOne2Many(ctx context.Context, parent *Entity, attribute *One2ManyAttribute, visited map[*Entity]struct{}) error {
	collection := attribute.collection
	if collection == nil || !collection.loaded {
		return nil
	}

	var children []*Entity
	if attribute.assigned {
		all, err := collection.All(ctx)
		if err != nil {
			return err
		}
		children = all
	} else {
		children = collection.entities()
	}

	kept := make(map[string]struct{}, len(children))
	for _, child := range children {
		if err := child.Set(attribute.relatedAttribute, parent); err != nil {
			return fmt.Errorf("Manager.Save - %s.%s: %w", parent.ClassName(), attribute.name, err)
		}
		if !child.Exists() || child.IsDirty() {
			if err := m.save(ctx, child, visited); err != nil {
				return fmt.Errorf("Manager.Save - %s.%s: %w", parent.ClassName(), attribute.name, err)
			}
		}
		kept[child.ID()] = struct{}{}
	}

	if attribute.assigned {
		if err := m.releaseChildren(ctx, parent, attribute, kept, visited); err != nil {
			return err
		}
	}

	attribute.markClean()
	return nil
}

// releaseChildren handles children that are no longer part of an assigned one2many value.
func (m *Manager) releaseChildren(ctx context.Context, parent *Entity, attribute *One2ManyAttribute, kept map[string]struct{}, visited map[*Entity]struct{}) error {
	current, err := m.Find(attribute.className, attribute.filter(), FindOptions{})
	if err != nil {
		return err
	}
	children, err := current.All(ctx)
	if err != nil {
		return err
	}

	for _, child := range children {
		if _, ok := kept[child.ID()]; ok {
			continue
		}

		if attribute.onDelete == OnDeleteCascade {
			if err := m.Delete(ctx, child); err != nil {
				return fmt.Errorf("Manager.Save - %s.%s: %w", parent.ClassName(), attribute.name, err)
			}
			continue
		}

		if err := child.Set(attribute.relatedAttribute, nil); err != nil {
			return err
		}
		if err := m.save(ctx, child, visited); err != nil {
			return fmt.Errorf("Manager.Save - %s.%s: %w", parent.ClassName(), attribute.name, err)
		}
	}
	return nil
}

func (m *Manager) saveMany2Many(ctx context.Context, parent *Entity, attribute *Many2ManyAttribute, visited map[*Entity]struct{}) error {
	if !attribute.assigned || attribute.collection == nil {
		return nil
	}

	ids := make([]string, 0, len(attribute.collection.items))
	for _, item := range attribute.collection.items {
		if related, ok := item.(*Entity); ok && (!related.Exists() || related.IsDirty()) {
			if err := m.save(ctx, related, visited); err != nil {
				return fmt.Errorf("Manager.Save - %s.%s: %w", parent.ClassName(), attribute.name, err)
			}
		}

		id, err := itemID(item)
		if err != nil {
			return err
		}
		if id == "" {
			return fmt.Errorf("Manager.Save - %s.%s: %w", parent.ClassName(), attribute.name, ErrNotPersisted)
		}
		ids = append(ids, id)
	}

	if err := m.many2many.Save(ctx, attribute, ids); err != nil {
		return err
	}
	attribute.markClean()
	return nil
}

// Delete removes the entity and whatever its one2many policies cascade to. The whole
// plan is checked before the first document is removed.
func (m *Manager) Delete(ctx context.Context, e *Entity) error {
	if !e.Exists() {
		return fmt.Errorf("Manager.Delete - %s: %w", e.ClassName(), ErrNotPersisted)
	}

	plan := &deletePlan{visited: make(map[poolKey]struct{})}
	if err := m.planDelete(ctx, e, plan); err != nil {
		return err
	}

	for _, target := range plan.entities {
		if err := m.remove(ctx, target); err != nil {
			return err
		}
	}
	return nil
}

type deletePlan struct {
	visited  map[poolKey]struct{}
	entities []*Entity
}

func (m *Manager) planDelete(ctx context.Context, e *Entity, plan *deletePlan) error {
	key := poolKey{class: e.ClassName(), id: e.ID()}
	if _, ok := plan.visited[key]; ok {
		return nil
	}
	plan.visited[key] = struct{}{}

	_, one2many, many2many := e.relationAttributes()
	for _, attribute := range many2many {
		if err := m.checkReciprocal(e, attribute); err != nil {
			return err
		}
	}

	for _, attribute := range one2many {
		switch attribute.onDelete {
		case OnDeleteIgnore:
			continue
		case OnDeleteRestrict:
			count, err := m.Count(ctx, attribute.className, attribute.filter())
			if err != nil {
				return err
			}
			if count > 0 {
				return fmt.Errorf("Manager.Delete - %s(%s).%s has %d related %s: %w",
					e.ClassName(), e.ID(), attribute.name, count, attribute.className, ErrDeleteRestricted)
			}
		default:
			children, err := m.Find(attribute.className, attribute.filter(), FindOptions{})
			if err != nil {
				return err
			}
			entities, err := children.All(ctx)
			if err != nil {
				return err
			}
			for _, child := range entities {
				if err := m.planDelete(ctx, child, plan); err != nil {
					return err
				}
			}
		}
	}

	plan.entities = append(plan.entities, e)
	return nil
}

func (m *Manager) checkReciprocal(e *Entity, attribute *Many2ManyAttribute) error {
	related, err := m.Class(attribute.className)
	if err != nil {
		return err
	}
	prototype, err := m.build(related)
	if err != nil {
		return err
	}

	for _, candidate := range prototype.attributes {
		reciprocal, ok := candidate.(*Many2ManyAttribute)
		if ok && reciprocal.joinCollection == attribute.joinCollection && reciprocal.className == e.ClassName() {
			return nil
		}
	}
	return fmt.Errorf("Manager.Delete - %s.%s: %w on %s", e.ClassName(), attribute.name, ErrMissingReciprocal, attribute.className)
}

func (m *Manager) remove(ctx context.Context, e *Entity) error {
	_, _, many2many := e.relationAttributes()
	for _, attribute := range many2many {
		if err := m.many2many.DeleteAll(ctx, attribute); err != nil {
			return err
		}
	}

	oid, err := primitive.ObjectIDFromHex(e.id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidID, e.id)
	}
	if _, err := m.storage.Delete(ctx, e.class.Collection, bson.M{"_id": oid}); err != nil {
		return fmt.Errorf("Manager.Delete - %s(%s): %w", e.ClassName(), e.id, err)
	}

	id := e.id
	m.pool.Remove(e)
	e.id = ""
	m.logger.DebugContext(ctx, "entity deleted", "class", e.ClassName(), "id", id)
	m.notify(ctx, Event{Type: EventDeleted, Class: e.ClassName(), ID: id, Entity: e})
	return nil
}

func (m *Manager) notify(ctx context.Context, event Event) {
	m.mu.RLock()
	observers := m.observers
	m.mu.RUnlock()

	for _, observer := range observers {
		observer.OnEntityEvent(ctx, event)
	}
}

// normalizeFilter maps "id" to "_id" and converts hex ids to ObjectIDs.
func normalizeFilter(filter bson.M) (bson.M, error) {
	normalized := make(bson.M, len(filter))
	for key, condition := range filter {
		if key != "id" && key != "_id" {
			normalized[key] = condition
			continue
		}

		converted, err := idCondition(condition)
		if err != nil {
			return nil, err
		}
		normalized["_id"] = converted
	}
	return normalized, nil
}

func idCondition(condition any) (any, error) {
	switch v := condition.(type) {
	case primitive.ObjectID:
		return v, nil
	case string:
		oid, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidID, v)
		}
		return oid, nil
	}

	if list, ok := toList(condition); ok {
		ids := make([]primitive.ObjectID, 0, len(list))
		for _, element := range list {
			converted, err := idCondition(element)
			if err != nil {
				return nil, err
			}
			oid, ok := converted.(primitive.ObjectID)
			if !ok {
				return nil, fmt.Errorf("%w: %v", ErrInvalidID, element)
			}
			ids = append(ids, oid)
		}
		return bson.M{"$in": ids}, nil
	}

	if operators, ok := toObject(condition); ok {
		converted := make(bson.M, len(operators))
		for operator, operand := range operators {
			value, err := idCondition(operand)
			if err != nil {
				return nil, err
			}
			// a list operand already comes back as {"$in": [...]}
			if in, ok := value.(bson.M); ok && (operator == "$in" || operator == "$nin") {
				value = in["$in"]
			}
			converted[operator] = value
		}
		return converted, nil
	}

	return nil, fmt.Errorf("%w: unsupported id condition %T", ErrInvalidID, condition)
}
