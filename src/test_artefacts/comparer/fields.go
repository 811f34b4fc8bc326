package comparer

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func IgnoreFieldsFor[T any](fields ...string) cmp.Option {
	var t T
	return cmpopts.IgnoreFields(t, fields...)
}

// IgnoreKeys drops map entries with the given keys, e.g. generated ids or timestamps.
func IgnoreKeys(keys ...string) cmp.Option {
	ignored := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		ignored[key] = struct{}{}
	}

	return cmpopts.IgnoreMapEntries(func(key string, _ any) bool {
		_, ok := ignored[key]
		return ok
	})
}
