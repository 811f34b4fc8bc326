package entity

import "fmt"

const (
	CreatedOnAttribute  = "createdOn"
	ModifiedOnAttribute = "modifiedOn"
)

// Class describes an entity type: its collection and its attribute structure.
type Class struct {
	Name       string
	Collection string
	Structure  func(s *Structure)
	// Timestamps adds createdOn and modifiedOn date-time attributes maintained on save.
	Timestamps bool
}

func (c Class) validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidClass)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: class %s has no collection", ErrInvalidClass, c.Name)
	}
	if c.Structure == nil {
		return fmt.Errorf("%w: class %s has no structure", ErrInvalidClass, c.Name)
	}
	return nil
}

// Structure collects attribute declarations while an entity is being built.
type Structure struct {
	entity *Entity
	err    error
}

func (s *Structure) Attr(name string) *AttributeBuilder {
	return &AttributeBuilder{structure: s, name: name}
}

func (s *Structure) add(attribute Attribute) {
	name := attribute.Name()
	switch {
	case s.err != nil:
		return
	case name == "" || name == "id" || name == "_id":
		s.err = fmt.Errorf("%w: %q is a reserved name", ErrDuplicateAttribute, name)
		return
	case s.entity.attributes[name] != nil:
		s.err = fmt.Errorf("%w: %s.%s", ErrDuplicateAttribute, s.entity.class.Name, name)
		return
	}

	s.entity.attributes[name] = attribute
	s.entity.order = append(s.entity.order, name)
}

// AttributeBuilder picks the variant of a named attribute.
type AttributeBuilder struct {
	structure *Structure
	name      string
}

func (b *AttributeBuilder) parent() *Entity {
	return b.structure.entity
}

func (b *AttributeBuilder) Char() *CharAttribute {
	a := newCharAttribute(b.name, b.parent())
	b.structure.add(a)
	return a
}

func (b *AttributeBuilder) Select(options ...string) *SelectAttribute {
	a := newSelectAttribute(b.name, b.parent(), options)
	b.structure.add(a)
	return a
}

func (b *AttributeBuilder) Integer() *IntegerAttribute {
	a := newIntegerAttribute(b.name, b.parent())
	b.structure.add(a)
	return a
}

func (b *AttributeBuilder) Float() *FloatAttribute {
	a := newFloatAttribute(b.name, b.parent())
	b.structure.add(a)
	return a
}

func (b *AttributeBuilder) Boolean() *BooleanAttribute {
	a := newBooleanAttribute(b.name, b.parent())
	b.structure.add(a)
	return a
}

func (b *AttributeBuilder) Array() *ArrayAttribute {
	a := newArrayAttribute(b.name, b.parent())
	b.structure.add(a)
	return a
}

func (b *AttributeBuilder) Object() *ObjectAttribute {
	a := newObjectAttribute(b.name, b.parent())
	b.structure.add(a)
	return a
}

func (b *AttributeBuilder) Date() *DateAttribute {
	a := newDateAttribute(b.name, b.parent())
	b.structure.add(a)
	return a
}

func (b *AttributeBuilder) DateTime() *DateTimeAttribute {
	a := newDateTimeAttribute(b.name, b.parent())
	b.structure.add(a)
	return a
}

func (b *AttributeBuilder) GeoPoint() *GeoPointAttribute {
	a := newGeoPointAttribute(b.name, b.parent())
	b.structure.add(a)
	return a
}

func (b *AttributeBuilder) Dynamic(compute DynamicFunc) *DynamicAttribute {
	a := newDynamicAttribute(b.name, b.parent(), compute)
	b.structure.add(a)
	return a
}

func (b *AttributeBuilder) Many2One() *Many2OneAttribute {
	a := newMany2OneAttribute(b.name, b.parent())
	b.structure.add(a)
	return a
}

// One2Many declares a reverse relation: relatedAttribute is the many2one attribute on
// the related class pointing back to this entity.
func (b *AttributeBuilder) One2Many(relatedAttribute string) *One2ManyAttribute {
	a := newOne2ManyAttribute(b.name, b.parent(), relatedAttribute)
	b.structure.add(a)
	return a
}

// Many2Many declares a relation stored in the given join collection.
func (b *AttributeBuilder) Many2Many(collection string) *Many2ManyAttribute {
	a := newMany2ManyAttribute(b.name, b.parent(), collection)
	b.structure.add(a)
	return a
}
