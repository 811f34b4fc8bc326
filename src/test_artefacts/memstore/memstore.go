package memstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"webinyframework/src/entity"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store is an in-memory entity.Storage. It understands equality (array fields match
// when they contain the value) and the $in, $nin, $ne, $exists, $gt, $gte, $lt and
// $lte operators.
type Store struct {
	mu          sync.Mutex
	collections map[string][]bson.M
	calls       map[string]int
	failures    map[string]error
}

func New() *Store {
	return &Store{
		collections: make(map[string][]bson.M),
		calls:       make(map[string]int),
		failures:    make(map[string]error),
	}
}

// FailOn makes every call of the operation ("find", "insert", ...) return err.
func (s *Store) FailOn(operation string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[operation] = err
}

// Calls counts the invocations of an operation.
func (s *Store) Calls(operation string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[operation]
}

// Documents returns copies of the documents of a collection in insertion order.
func (s *Store) Documents(collection string) []bson.M {
	s.mu.Lock()
	defer s.mu.Unlock()

	documents := make([]bson.M, 0, len(s.collections[collection]))
	for _, document := range s.collections[collection] {
		documents = append(documents, copyDocument(document))
	}
	return documents
}

func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.collections = make(map[string][]bson.M)
	s.calls = make(map[string]int)
	s.failures = make(map[string]error)
}

func (s *Store) enter(operation string) error {
	s.calls[operation]++
	return s.failures[operation]
}

func (s *Store) Find(ctx context.Context, collection string, filter bson.M, opts entity.FindOptions) ([]bson.M, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter("find"); err != nil {
		return nil, err
	}

	var found []bson.M
	for _, document := range s.collections[collection] {
		if matches(document, filter) {
			found = append(found, document)
		}
	}

	if len(opts.Sort) > 0 {
		sort.SliceStable(found, func(i, j int) bool {
			for _, field := range opts.Sort {
				c := compare(found[i][field.Field], found[j][field.Field])
				if c == 0 {
					continue
				}
				if field.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if opts.Skip > 0 {
		if opts.Skip >= int64(len(found)) {
			found = nil
		} else {
			found = found[opts.Skip:]
		}
	}
	if opts.Limit > 0 && opts.Limit < int64(len(found)) {
		found = found[:opts.Limit]
	}

	result := make([]bson.M, 0, len(found))
	for _, document := range found {
		result = append(result, copyDocument(document))
	}
	return result, nil
}

func (s *Store) FindOne(ctx context.Context, collection string, filter bson.M) (bson.M, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter("findOne"); err != nil {
		return nil, err
	}

	for _, document := range s.collections[collection] {
		if matches(document, filter) {
			return copyDocument(document), nil
		}
	}
	return nil, nil
}

func (s *Store) Count(ctx context.Context, collection string, filter bson.M) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter("count"); err != nil {
		return 0, err
	}

	var count int64
	for _, document := range s.collections[collection] {
		if matches(document, filter) {
			count++
		}
	}
	return count, nil
}

func (s *Store) Insert(ctx context.Context, collection string, document bson.M) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter("insert"); err != nil {
		return err
	}

	stored := copyDocument(document)
	if _, ok := stored["_id"]; !ok {
		stored["_id"] = primitive.NewObjectID()
	}
	for _, existing := range s.collections[collection] {
		if equal(existing["_id"], stored["_id"]) {
			return fmt.Errorf("memstore: duplicate _id %v in %s", stored["_id"], collection)
		}
	}

	s.collections[collection] = append(s.collections[collection], stored)
	return nil
}

func (s *Store) Update(ctx context.Context, collection string, filter bson.M, set bson.M) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter("update"); err != nil {
		return err
	}

	for _, document := range s.collections[collection] {
		if !matches(document, filter) {
			continue
		}
		for key, value := range copyDocument(set) {
			document[key] = value
		}
		return nil
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection string, filter bson.M) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter("delete"); err != nil {
		return 0, err
	}

	var kept []bson.M
	var deleted int64
	for _, document := range s.collections[collection] {
		if matches(document, filter) {
			deleted++
			continue
		}
		kept = append(kept, document)
	}
	s.collections[collection] = kept
	return deleted, nil
}

func matches(document bson.M, filter bson.M) bool {
	for key, condition := range filter {
		value, present := document[key]
		if operators, ok := operatorMap(condition); ok {
			for operator, operand := range operators {
				if !matchOperator(value, present, operator, operand) {
					return false
				}
			}
			continue
		}
		if !matchValue(value, condition) {
			return false
		}
	}
	return true
}

func operatorMap(condition any) (bson.M, bool) {
	var operators bson.M
	switch v := condition.(type) {
	case bson.M:
		operators = v
	case map[string]any:
		operators = v
	default:
		return nil, false
	}

	for key := range operators {
		if !strings.HasPrefix(key, "$") {
			return nil, false
		}
	}
	return operators, len(operators) > 0
}

func matchOperator(value any, present bool, operator string, operand any) bool {
	switch operator {
	case "$in":
		for _, candidate := range list(operand) {
			if matchValue(value, candidate) {
				return true
			}
		}
		return false
	case "$nin":
		for _, candidate := range list(operand) {
			if matchValue(value, candidate) {
				return false
			}
		}
		return true
	case "$ne":
		return !matchValue(value, operand)
	case "$eq":
		return matchValue(value, operand)
	case "$exists":
		wanted, _ := operand.(bool)
		return present == wanted
	case "$gt":
		return present && compare(value, operand) > 0
	case "$gte":
		return present && compare(value, operand) >= 0
	case "$lt":
		return present && compare(value, operand) < 0
	case "$lte":
		return present && compare(value, operand) <= 0
	}
	panic(fmt.Sprintf("memstore: unsupported operator %s", operator))
}

// matchValue follows mongo equality: an array field matches when one of its elements does.
func matchValue(value any, condition any) bool {
	if equal(value, condition) {
		return true
	}
	if _, isList := condition.([]any); isList {
		return false
	}
	for _, element := range list(value) {
		if equal(element, condition) {
			return true
		}
	}
	return false
}

func list(value any) []any {
	switch v := value.(type) {
	case []any:
		return v
	case primitive.A:
		return v
	case nil:
		return nil
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil
	}
	if rv.Kind() == reflect.Array && rv.Type() == reflect.TypeOf(primitive.ObjectID{}) {
		return nil
	}

	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func equal(a any, b any) bool {
	if af, ok := number(a); ok {
		bf, ok := number(b)
		return ok && af == bf
	}
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	return reflect.DeepEqual(a, b)
}

func number(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// compare orders nil first, then numbers, strings, times and ObjectIDs.
func compare(a any, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		}
		return 1
	}

	if af, ok := number(a); ok {
		if bf, ok := number(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}

	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case primitive.ObjectID:
		if bv, ok := b.(primitive.ObjectID); ok {
			return strings.Compare(av.Hex(), bv.Hex())
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func copyDocument(document bson.M) bson.M {
	out := make(bson.M, len(document))
	for key, value := range document {
		out[key] = copyValue(value)
	}
	return out
}

func copyValue(value any) any {
	switch v := value.(type) {
	case bson.M:
		return copyDocument(v)
	case map[string]any:
		return map[string]any(copyDocument(v))
	case []any:
		out := make([]any, len(v))
		for i, element := range v {
			out[i] = copyValue(element)
		}
		return out
	case primitive.A:
		out := make(primitive.A, len(v))
		for i, element := range v {
			out[i] = copyValue(element)
		}
		return out
	}
	return value
}
