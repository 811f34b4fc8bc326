package entity

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	DateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

type CharAttribute struct {
	attributeBase[*CharAttribute]
}

func newCharAttribute(name string, parent *Entity) *CharAttribute {
	a := &CharAttribute{}
	a.init(name, parent, a, a)
	return a
}

func (a *CharAttribute) normalize(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	}
	return nil, invalidValue("string", value)
}

func (a *CharAttribute) toDB(value any) (any, error) { return value, nil }

func (a *CharAttribute) fromDB(value any) (any, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	return fmt.Sprint(value), nil
}

func (a *CharAttribute) toArray(value any) any { return value }

type SelectAttribute struct {
	attributeBase[*SelectAttribute]
	options []string
}

func newSelectAttribute(name string, parent *Entity, options []string) *SelectAttribute {
	a := &SelectAttribute{options: options}
	a.init(name, parent, a, a)
	return a
}

func (a *SelectAttribute) SetOptions(options ...string) *SelectAttribute {
	a.options = options
	return a
}

func (a *SelectAttribute) Options() []string {
	return a.options
}

func (a *SelectAttribute) normalize(value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, invalidValue("string", value)
	}
	if !slices.Contains(a.options, s) {
		return nil, fmt.Errorf("%w: %q is not one of [%s]", ErrInvalidValue, s, strings.Join(a.options, ", "))
	}
	return s, nil
}

func (a *SelectAttribute) toDB(value any) (any, error) { return value, nil }

func (a *SelectAttribute) fromDB(value any) (any, error) { return fmt.Sprint(value), nil }

func (a *SelectAttribute) toArray(value any) any { return value }

type IntegerAttribute struct {
	attributeBase[*IntegerAttribute]
}

func newIntegerAttribute(name string, parent *Entity) *IntegerAttribute {
	a := &IntegerAttribute{}
	a.init(name, parent, a, a)
	return a
}

func (a *IntegerAttribute) normalize(value any) (any, error) {
	return toInt64(value)
}

func (a *IntegerAttribute) toDB(value any) (any, error) { return value, nil }

func (a *IntegerAttribute) fromDB(value any) (any, error) { return toInt64(value) }

func (a *IntegerAttribute) toArray(value any) any { return value }

type FloatAttribute struct {
	attributeBase[*FloatAttribute]
}

func newFloatAttribute(name string, parent *Entity) *FloatAttribute {
	a := &FloatAttribute{}
	a.init(name, parent, a, a)
	return a
}

func (a *FloatAttribute) normalize(value any) (any, error) {
	return toFloat64(value)
}

func (a *FloatAttribute) toDB(value any) (any, error) { return value, nil }

func (a *FloatAttribute) fromDB(value any) (any, error) { return toFloat64(value) }

func (a *FloatAttribute) toArray(value any) any { return value }

type BooleanAttribute struct {
	attributeBase[*BooleanAttribute]
}

func newBooleanAttribute(name string, parent *Entity) *BooleanAttribute {
	a := &BooleanAttribute{}
	a.init(name, parent, a, a)
	return a
}

func (a *BooleanAttribute) normalize(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, invalidValue("boolean", value)
		}
		return b, nil
	}

	if n, err := toInt64(value); err == nil && (n == 0 || n == 1) {
		return n == 1, nil
	}
	return nil, invalidValue("boolean", value)
}

func (a *BooleanAttribute) toDB(value any) (any, error) { return value, nil }

func (a *BooleanAttribute) fromDB(value any) (any, error) { return a.normalize(value) }

func (a *BooleanAttribute) toArray(value any) any { return value }

type ArrayAttribute struct {
	attributeBase[*ArrayAttribute]
}

func newArrayAttribute(name string, parent *Entity) *ArrayAttribute {
	a := &ArrayAttribute{}
	a.init(name, parent, a, a)
	return a
}

func (a *ArrayAttribute) normalize(value any) (any, error) {
	list, ok := toList(value)
	if !ok {
		return nil, invalidValue("array", value)
	}
	return list, nil
}

func (a *ArrayAttribute) toDB(value any) (any, error) { return value, nil }

func (a *ArrayAttribute) fromDB(value any) (any, error) { return a.normalize(normalizeBSON(value)) }

func (a *ArrayAttribute) toArray(value any) any { return value }

type ObjectAttribute struct {
	attributeBase[*ObjectAttribute]
}

func newObjectAttribute(name string, parent *Entity) *ObjectAttribute {
	a := &ObjectAttribute{}
	a.init(name, parent, a, a)
	return a
}

func (a *ObjectAttribute) normalize(value any) (any, error) {
	object, ok := toObject(value)
	if !ok {
		return nil, invalidValue("object", value)
	}
	return object, nil
}

func (a *ObjectAttribute) toDB(value any) (any, error) { return value, nil }

func (a *ObjectAttribute) fromDB(value any) (any, error) { return a.normalize(normalizeBSON(value)) }

func (a *ObjectAttribute) toArray(value any) any { return value }

type DateAttribute struct {
	attributeBase[*DateAttribute]
}

func newDateAttribute(name string, parent *Entity) *DateAttribute {
	a := &DateAttribute{}
	a.init(name, parent, a, a)
	return a
}

func (a *DateAttribute) normalize(value any) (any, error) {
	t, err := toTime(value, DateLayout)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

func (a *DateAttribute) toDB(value any) (any, error) { return value, nil }

func (a *DateAttribute) fromDB(value any) (any, error) { return a.normalize(value) }

func (a *DateAttribute) toArray(value any) any {
	t, ok := value.(time.Time)
	if !ok {
		return value
	}
	return t.Format(DateLayout)
}

type DateTimeAttribute struct {
	attributeBase[*DateTimeAttribute]
	format string
}

func newDateTimeAttribute(name string, parent *Entity) *DateTimeAttribute {
	a := &DateTimeAttribute{format: time.RFC3339}
	a.init(name, parent, a, a)
	return a
}

// SetFormat changes the layout used when the value is extracted to an array.
func (a *DateTimeAttribute) SetFormat(layout string) *DateTimeAttribute {
	a.format = layout
	return a
}

func (a *DateTimeAttribute) normalize(value any) (any, error) {
	t, err := toTime(value, time.RFC3339, dateTimeLayout, DateLayout)
	if err != nil {
		return nil, err
	}
	// BSON dates carry millisecond precision.
	return t.UTC().Truncate(time.Millisecond), nil
}

func (a *DateTimeAttribute) toDB(value any) (any, error) { return value, nil }

func (a *DateTimeAttribute) fromDB(value any) (any, error) { return a.normalize(value) }

func (a *DateTimeAttribute) toArray(value any) any {
	t, ok := value.(time.Time)
	if !ok {
		return value
	}
	return t.Format(a.format)
}

// GeoPoint is stored as a GeoJSON point.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type GeoPointAttribute struct {
	attributeBase[*GeoPointAttribute]
}

func newGeoPointAttribute(name string, parent *Entity) *GeoPointAttribute {
	a := &GeoPointAttribute{}
	a.init(name, parent, a, a)
	return a
}

func (a *GeoPointAttribute) normalize(value any) (any, error) {
	var point GeoPoint
	switch v := value.(type) {
	case GeoPoint:
		point = v
	case *GeoPoint:
		point = *v
	default:
		object, ok := toObject(normalizeBSON(value))
		if !ok {
			return nil, invalidValue("geo point", value)
		}

		var err error
		if coordinates, found := object["coordinates"]; found {
			point, err = geoPointFromCoordinates(coordinates)
		} else {
			point, err = geoPointFromLatLng(object)
		}
		if err != nil {
			return nil, err
		}
	}

	if point.Lat < -90 || point.Lat > 90 || point.Lng < -180 || point.Lng > 180 {
		return nil, fmt.Errorf("%w: coordinates out of range (%v, %v)", ErrInvalidValue, point.Lat, point.Lng)
	}
	return point, nil
}

func (a *GeoPointAttribute) toDB(value any) (any, error) {
	point := value.(GeoPoint)
	return bson.M{"type": "Point", "coordinates": []any{point.Lng, point.Lat}}, nil
}

func (a *GeoPointAttribute) fromDB(value any) (any, error) { return a.normalize(value) }

func (a *GeoPointAttribute) toArray(value any) any {
	point, ok := value.(GeoPoint)
	if !ok {
		return value
	}
	return map[string]any{"lat": point.Lat, "lng": point.Lng}
}

func geoPointFromCoordinates(coordinates any) (GeoPoint, error) {
	list, ok := toList(coordinates)
	if !ok || len(list) != 2 {
		return GeoPoint{}, invalidValue("[lng, lat] coordinates", coordinates)
	}

	lng, err := toFloat64(list[0])
	if err != nil {
		return GeoPoint{}, err
	}
	lat, err := toFloat64(list[1])
	if err != nil {
		return GeoPoint{}, err
	}
	return GeoPoint{Lat: lat, Lng: lng}, nil
}

func geoPointFromLatLng(object map[string]any) (GeoPoint, error) {
	lat, err := toFloat64(object["lat"])
	if err != nil {
		return GeoPoint{}, err
	}
	lng, err := toFloat64(object["lng"])
	if err != nil {
		return GeoPoint{}, err
	}
	return GeoPoint{Lat: lat, Lng: lng}, nil
}

// DynamicFunc computes the value of a dynamic attribute from its entity.
type DynamicFunc func(e *Entity) any

type DynamicAttribute struct {
	attributeBase[*DynamicAttribute]
	compute DynamicFunc
}

func newDynamicAttribute(name string, parent *Entity, compute DynamicFunc) *DynamicAttribute {
	a := &DynamicAttribute{compute: compute}
	a.init(name, parent, a, nil)
	a.storeToDB = false
	a.skipOnPopulate = true
	return a
}

func (a *DynamicAttribute) Value() any {
	var value any
	if a.compute != nil {
		value = a.compute(a.parent)
	}
	if a.onGet != nil {
		return a.onGet(value)
	}
	return value
}

func (a *DynamicAttribute) IsEmpty() bool {
	return isEmptyValue(a.Value())
}

func (a *DynamicAttribute) SetValue(value any) error {
	return fmt.Errorf("attribute %q: %w", a.name, ErrReadOnlyAttribute)
}

func (a *DynamicAttribute) ToDB() (any, error) {
	value := normalizeBSON(a.Value())
	if a.onToDB != nil {
		value = a.onToDB(value)
	}
	return value, nil
}

// FromDB ignores stored values, the attribute is always recomputed.
func (a *DynamicAttribute) FromDB(value any) error {
	return nil
}

func (a *DynamicAttribute) ToArray() any {
	value := a.Value()
	if a.onToArray != nil {
		return a.onToArray(value)
	}
	return value
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, invalidValue("integer", value)
		}
		return int64(v), nil
	case float32:
		return toInt64(float64(v))
	case float64:
		// float64(math.MaxInt64) rounds up to 2^63, which is already out of range.
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, invalidValue("integer", value)
		}
		return int64(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, invalidValue("integer", value)
		}
		return n, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, invalidValue("integer", value)
		}
		return n, nil
	}
	return 0, invalidValue("integer", value)
}

func toFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, invalidValue("float", value)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, invalidValue("float", value)
		}
		return f, nil
	case nil:
		return 0, invalidValue("float", value)
	}

	n, err := toInt64(value)
	if err != nil {
		return 0, invalidValue("float", value)
	}
	return float64(n), nil
}

func toTime(value any, layouts ...string) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		if v != nil {
			return *v, nil
		}
	case primitive.DateTime:
		return v.Time(), nil
	case string:
		for _, layout := range layouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: %q does not match %s", ErrInvalidValue, v, strings.Join(layouts, " or "))
	case int64, int, json.Number:
		seconds, err := toInt64(v)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(seconds, 0), nil
	}
	return time.Time{}, invalidValue("time", value)
}

func toList(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case primitive.A:
		return []any(v), true
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}

	list := make([]any, rv.Len())
	for i := range list {
		list[i] = rv.Index(i).Interface()
	}
	return list, true
}

func toObject(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case bson.M:
		return map[string]any(v), true
	case bson.D:
		object := make(map[string]any, len(v))
		for _, element := range v {
			object[element.Key] = element.Value
		}
		return object, true
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}

	object := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		object[iter.Key().String()] = iter.Value().Interface()
	}
	return object, true
}

// normalizeBSON turns driver document and array types into plain maps and slices.
func normalizeBSON(value any) any {
	switch v := value.(type) {
	case bson.M:
		return normalizeObject(map[string]any(v))
	case map[string]any:
		return normalizeObject(v)
	case bson.D:
		object, _ := toObject(v)
		return normalizeObject(object)
	case primitive.A:
		return normalizeList([]any(v))
	case []any:
		return normalizeList(v)
	case primitive.DateTime:
		return v.Time().UTC()
	}
	return value
}

func normalizeObject(object map[string]any) map[string]any {
	out := make(map[string]any, len(object))
	for key, value := range object {
		out[key] = normalizeBSON(value)
	}
	return out
}

func normalizeList(list []any) []any {
	out := make([]any, len(list))
	for i, value := range list {
		out[i] = normalizeBSON(value)
	}
	return out
}
