package entity

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrEntityNotFound      = errors.New("entity not found")
	ErrUnknownClass        = errors.New("unknown entity class")
	ErrClassExists         = errors.New("entity class already registered")
	ErrInvalidClass        = errors.New("invalid entity class")
	ErrInvalidID           = errors.New("invalid entity id")
	ErrImmutableID         = errors.New("entity id can not be changed")
	ErrUnknownAttribute    = errors.New("unknown attribute")
	ErrDuplicateAttribute  = errors.New("attribute already defined")
	ErrInvalidValue        = errors.New("invalid attribute value")
	ErrAttributeOnce       = errors.New("attribute value can only be set once")
	ErrReadOnlyAttribute   = errors.New("attribute is read-only")
	ErrValidation          = errors.New("entity validation failed")
	ErrNotPersisted        = errors.New("entity is not persisted")
	ErrDeleteRestricted    = errors.New("entity deletion is restricted")
	ErrMissingReciprocal   = errors.New("many2many attribute has no reciprocal attribute")
	ErrAmbiguousJoinFields = errors.New("many2many join fields are ambiguous")
)

// ValidationError carries one message per failed attribute.
type ValidationError struct {
	Class  string
	Errors map[string]string
}

func newValidationError(class string) *ValidationError {
	return &ValidationError{Class: class, Errors: make(map[string]string)}
}

func (v *ValidationError) add(attribute string, err error) {
	v.Errors[attribute] = err.Error()
}

func (v *ValidationError) empty() bool {
	return len(v.Errors) == 0
}

func (v *ValidationError) Error() string {
	names := make([]string, 0, len(v.Errors))
	for name := range v.Errors {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, v.Errors[name]))
	}

	return fmt.Sprintf("%s %s: %s", v.Class, ErrValidation.Error(), strings.Join(parts, "; "))
}

func (v *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
