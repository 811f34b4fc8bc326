package env

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var errEmpty = errors.New("empty value")

// lookup parses the variable, falling back to the first default when it is unset or
// malformed. Without a default the zero value is returned.
func lookup[T any](name string, parse func(string) (T, error), defaultValue []T) T {
	value, err := parse(os.Getenv(name))
	if err != nil && len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return value
}

// mustLookup panics naming the variable and the expected kind of value.
func mustLookup[T any](name, kind string, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		panic(fmt.Sprintf("env: %s is required", name))
	}
	value, err := parse(raw)
	if err != nil {
		panic(fmt.Sprintf("env: %s must be %s, got %q", name, kind, raw))
	}
	return value
}

func parseString(raw string) (string, error) {
	if raw == "" {
		return "", errEmpty
	}
	return raw, nil
}

// GetString returns the variable or the default when it is empty.
func GetString(name string, defaultValue ...string) string {
	return lookup(name, parseString, defaultValue)
}

func MustGetString(name string) string {
	return mustLookup(name, "a string", parseString)
}

func GetInt(name string, defaultValue ...int) int {
	return lookup(name, strconv.Atoi, defaultValue)
}

func MustGetInt(name string) int {
	return mustLookup(name, "an integer", strconv.Atoi)
}

// GetDuration reads values such as "30s" or "1m30s".
func GetDuration(name string, defaultValue ...time.Duration) time.Duration {
	return lookup(name, time.ParseDuration, defaultValue)
}

// GetStrings splits a comma separated variable, dropping empty items.
func GetStrings(name string, defaultValue ...string) []string {
	values := make([]string, 0)
	for _, item := range strings.Split(GetString(name, defaultValue...), ",") {
		if item = strings.TrimSpace(item); item != "" {
			values = append(values, item)
		}
	}
	return values
}
