package entity

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Attribute is a typed, named slot on an entity.
type Attribute interface {
	Name() string
	Parent() *Entity
	Value() any
	SetValue(value any) error
	ToDB() (any, error)
	FromDB(value any) error
	ToArray() any
	IsEmpty() bool
	IsDirty() bool
	IsRequired() bool
	IsOnce() bool
	SkipsOnPopulate() bool
	StoresToDB() bool

	markClean()
}

// Callback transforms a value on its way in or out of an attribute.
type Callback func(value any) any

// valueHandler is the per-variant part of a scalar attribute.
type valueHandler interface {
	normalize(value any) (any, error)
	toDB(value any) (any, error)
	fromDB(value any) (any, error)
	toArray(value any) any
}

type attributeBase[T any] struct {
	self    T
	handler valueHandler

	name   string
	parent *Entity

	value        any
	defaultValue any
	dirty        bool

	required       bool
	once           bool
	skipOnPopulate bool
	storeToDB      bool
	validators     string

	onGet     Callback
	onSet     Callback
	onToDB    Callback
	onFromDB  Callback
	onToArray Callback
}

func (a *attributeBase[T]) init(name string, parent *Entity, self T, handler valueHandler) {
	a.name = name
	a.parent = parent
	a.self = self
	a.handler = handler
	a.storeToDB = true
}

func (a *attributeBase[T]) Name() string {
	return a.name
}

func (a *attributeBase[T]) Parent() *Entity {
	return a.parent
}

func (a *attributeBase[T]) SetRequired(flag bool) T {
	a.required = flag
	return a.self
}

// SetOnce makes the attribute writable only until the entity is persisted with a value.
func (a *attributeBase[T]) SetOnce(flag bool) T {
	a.once = flag
	return a.self
}

func (a *attributeBase[T]) SetSkipOnPopulate(flag bool) T {
	a.skipOnPopulate = flag
	return a.self
}

func (a *attributeBase[T]) SetStoreToDB(flag bool) T {
	a.storeToDB = flag
	return a.self
}

// SetDefaultValue is applied when a new entity is built.
func (a *attributeBase[T]) SetDefaultValue(value any) T {
	a.defaultValue = value
	return a.self
}

// SetValidators takes a go-playground/validator tag, e.g. "min=3,max=64".
func (a *attributeBase[T]) SetValidators(tag string) T {
	a.validators = tag
	return a.self
}

func (a *attributeBase[T]) OnGet(fn Callback) T {
	a.onGet = fn
	return a.self
}

func (a *attributeBase[T]) OnSet(fn Callback) T {
	a.onSet = fn
	return a.self
}

func (a *attributeBase[T]) OnToDB(fn Callback) T {
	a.onToDB = fn
	return a.self
}

func (a *attributeBase[T]) OnFromDB(fn Callback) T {
	a.onFromDB = fn
	return a.self
}

func (a *attributeBase[T]) OnToArray(fn Callback) T {
	a.onToArray = fn
	return a.self
}

func (a *attributeBase[T]) DefaultValue() any {
	return a.defaultValue
}

func (a *attributeBase[T]) IsRequired() bool {
	return a.required
}

func (a *attributeBase[T]) IsOnce() bool {
	return a.once
}

func (a *attributeBase[T]) SkipsOnPopulate() bool {
	return a.skipOnPopulate
}

func (a *attributeBase[T]) StoresToDB() bool {
	return a.storeToDB
}

func (a *attributeBase[T]) IsDirty() bool {
	return a.dirty
}

func (a *attributeBase[T]) markClean() {
	a.dirty = false
}

func (a *attributeBase[T]) Value() any {
	if a.onGet != nil {
		return a.onGet(a.value)
	}
	return a.value
}

func (a *attributeBase[T]) IsEmpty() bool {
	return isEmptyValue(a.value)
}

func (a *attributeBase[T]) SetValue(value any) error {
	if err := a.checkOnce(); err != nil {
		return err
	}

	if a.onSet != nil {
		value = a.onSet(value)
	}

	if value == nil {
		a.assign(nil)
		return nil
	}

	normalized, err := a.handler.normalize(value)
	if err != nil {
		return fmt.Errorf("attribute %q: %w", a.name, err)
	}

	if err := a.runValidators(normalized); err != nil {
		return err
	}

	a.assign(normalized)
	return nil
}

func (a *attributeBase[T]) ToDB() (any, error) {
	var stored any
	if a.value != nil {
		var err error
		stored, err = a.handler.toDB(a.value)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", a.name, err)
		}
	}

	if a.onToDB != nil {
		stored = a.onToDB(stored)
	}
	return stored, nil
}

func (a *attributeBase[T]) FromDB(value any) error {
	if a.onFromDB != nil {
		value = a.onFromDB(value)
	}

	a.dirty = false
	if value == nil {
		a.value = nil
		return nil
	}

	loaded, err := a.handler.fromDB(value)
	if err != nil {
		return fmt.Errorf("attribute %q: %w", a.name, err)
	}
	a.value = loaded
	return nil
}

func (a *attributeBase[T]) ToArray() any {
	value := a.Value()
	var out any
	if value != nil {
		out = a.handler.toArray(value)
	}

	if a.onToArray != nil {
		return a.onToArray(out)
	}
	return out
}

func (a *attributeBase[T]) checkOnce() error {
	if a.once && a.parent != nil && a.parent.Exists() && !isEmptyValue(a.value) {
		return fmt.Errorf("attribute %q: %w", a.name, ErrAttributeOnce)
	}
	return nil
}

func (a *attributeBase[T]) assign(value any) {
	if reflect.DeepEqual(a.value, value) {
		return
	}
	a.value = value
	a.dirty = true
}

func (a *attributeBase[T]) runValidators(value any) error {
	if a.validators == "" {
		return nil
	}

	err := validate.Var(value, a.validators)
	if err == nil {
		return nil
	}

	var failures validator.ValidationErrors
	if errors.As(err, &failures) {
		rules := make([]string, 0, len(failures))
		for _, failure := range failures {
			rule := failure.Tag()
			if failure.Param() != "" {
				rule += "=" + failure.Param()
			}
			rules = append(rules, rule)
		}
		return fmt.Errorf("attribute %q: %w: failed on %s", a.name, ErrInvalidValue, strings.Join(rules, ","))
	}

	return fmt.Errorf("attribute %q: %w: %v", a.name, ErrInvalidValue, err)
}

func isEmptyValue(value any) bool {
	if value == nil {
		return true
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func invalidValue(expected string, value any) error {
	return fmt.Errorf("%w: expected %s, got %T", ErrInvalidValue, expected, value)
}
