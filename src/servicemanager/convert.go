package servicemanager

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

// invoke calls fn with converted arguments and unwraps a trailing error result.
func invoke(fn reflect.Value, arguments []any) ([]reflect.Value, error) {
	t := fn.Type()

	if t.IsVariadic() {
		if len(arguments) < t.NumIn()-1 {
			return nil, fmt.Errorf("%w: expected at least %d arguments, got %d", ErrArgumentType, t.NumIn()-1, len(arguments))
		}
	} else if len(arguments) != t.NumIn() {
		return nil, fmt.Errorf("%w: expected %d arguments, got %d", ErrArgumentType, t.NumIn(), len(arguments))
	}

	in := make([]reflect.Value, len(arguments))
	for i, argument := range arguments {
		var target reflect.Type
		if t.IsVariadic() && i >= t.NumIn()-1 {
			target = t.In(t.NumIn() - 1).Elem()
		} else {
			target = t.In(i)
		}

		value, err := convert(argument, target)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in[i] = value
	}

	out := fn.Call(in)
	if len(out) > 0 && t.Out(len(out)-1) == errorType {
		if err, _ := out[len(out)-1].Interface().(error); err != nil {
			return nil, err
		}
		out = out[:len(out)-1]
	}
	return out, nil
}

func convert(value any, target reflect.Type) (reflect.Value, error) {
	if value == nil {
		switch target.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(target), nil
		}
		return reflect.Value{}, fmt.Errorf("%w: nil for %s", ErrArgumentType, target)
	}

	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(target) {
		out := reflect.New(target).Elem()
		out.Set(v)
		return out, nil
	}

	if target == durationType {
		switch raw := value.(type) {
		case string:
			d, err := time.ParseDuration(raw)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("%w: %v", ErrArgumentType, err)
			}
			return reflect.ValueOf(d), nil
		}
	}

	switch target.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := toInt(value)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%w: %v for %s", ErrArgumentType, err, target)
		}
		out := reflect.New(target).Elem()
		if out.OverflowInt(n) {
			return reflect.Value{}, fmt.Errorf("%w: %d overflows %s", ErrArgumentType, n, target)
		}
		out.SetInt(n)
		return out, nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := toInt(value)
		if err != nil || n < 0 {
			return reflect.Value{}, fmt.Errorf("%w: %v for %s", ErrArgumentType, value, target)
		}
		out := reflect.New(target).Elem()
		if out.OverflowUint(uint64(n)) {
			return reflect.Value{}, fmt.Errorf("%w: %d overflows %s", ErrArgumentType, n, target)
		}
		out.SetUint(uint64(n))
		return out, nil

	case reflect.Float32, reflect.Float64:
		var f float64
		switch raw := value.(type) {
		case string:
			parsed, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("%w: %v", ErrArgumentType, err)
			}
			f = parsed
		default:
			if !v.CanConvert(target) || v.Kind() == reflect.String || v.Kind() == reflect.Bool {
				return reflect.Value{}, fmt.Errorf("%w: %T for %s", ErrArgumentType, value, target)
			}
			f = v.Convert(reflect.TypeOf(f)).Float()
		}
		out := reflect.New(target).Elem()
		out.SetFloat(f)
		return out, nil

	case reflect.String:
		switch v.Kind() {
		case reflect.String:
			return v.Convert(target), nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Float32, reflect.Float64, reflect.Bool:
			return reflect.ValueOf(fmt.Sprint(value)).Convert(target), nil
		}

	case reflect.Bool:
		if raw, ok := value.(string); ok {
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("%w: %v", ErrArgumentType, err)
			}
			return reflect.ValueOf(b).Convert(target), nil
		}

	case reflect.Slice:
		if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
			out := reflect.MakeSlice(target, v.Len(), v.Len())
			for i := 0; i < v.Len(); i++ {
				element, err := convert(v.Index(i).Interface(), target.Elem())
				if err != nil {
					return reflect.Value{}, fmt.Errorf("index %d: %w", i, err)
				}
				out.Index(i).Set(element)
			}
			return out, nil
		}

	case reflect.Map:
		if v.Kind() == reflect.Map {
			out := reflect.MakeMapWithSize(target, v.Len())
			iter := v.MapRange()
			for iter.Next() {
				key, err := convert(iter.Key().Interface(), target.Key())
				if err != nil {
					return reflect.Value{}, fmt.Errorf("key %v: %w", iter.Key(), err)
				}
				element, err := convert(iter.Value().Interface(), target.Elem())
				if err != nil {
					return reflect.Value{}, fmt.Errorf("key %v: %w", iter.Key(), err)
				}
				out.SetMapIndex(key, element)
			}
			return out, nil
		}
	}

	return reflect.Value{}, fmt.Errorf("%w: %T for %s", ErrArgumentType, value, target)
}

func toInt(value any) (int64, error) {
	switch n := value.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%d out of range", n)
		}
		return int64(n), nil
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case string:
		return strconv.ParseInt(n, 10, 64)
	}
	return 0, fmt.Errorf("%T is not a number", value)
}

func floatToInt(f float64) (int64, error) {
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%v is not a whole number", f)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%v out of range", f)
	}
	return int64(f), nil
}
