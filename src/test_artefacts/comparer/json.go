package comparer

import (
	"encoding/json"
	"reflect"

	"github.com/google/go-cmp/cmp"
)

// JSONBody compares response bodies semantically, ignoring key order and whitespace.
func JSONBody() cmp.Option {
	return cmp.Comparer(func(x, y []byte) bool {
		if len(x) == 0 || len(y) == 0 {
			return len(x) == len(y)
		}

		var xObj, yObj any
		if err := json.Unmarshal(x, &xObj); err != nil {
			return false
		}
		if err := json.Unmarshal(y, &yObj); err != nil {
			return false
		}
		return reflect.DeepEqual(xObj, yObj)
	})
}
