package servicemanager

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"
)

var (
	ErrServiceNotFound   = errors.New("service not found")
	ErrParameterNotFound = errors.New("parameter not found")
	ErrUnknownFactory    = errors.New("unknown factory")
	ErrInvalidFactory    = errors.New("invalid factory")
	ErrAbstractService   = errors.New("abstract service can not be instantiated")
	ErrCircularReference = errors.New("circular reference")
	ErrArgumentType      = errors.New("argument type mismatch")
	ErrUnknownMethod     = errors.New("unknown method")
)

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	placeholder = regexp.MustCompile(`%%|%([^%\s]+)%`)
)

// ServiceManager builds services from registered factories and a declarative config.
// Arguments may reference services ("@Name"), parameters ("%name%") and environment
// variables ("%env:NAME%").
type ServiceManager struct {
	logger *slog.Logger

	mu          sync.Mutex
	factories   map[string]reflect.Value
	definitions map[string]ServiceConfig
	parameters  map[string]any
	instances   map[string]any
	lookupEnv   func(string) (string, bool)
}

func New(logger *slog.Logger) *ServiceManager {
	return &ServiceManager{
		logger:      logger,
		factories:   make(map[string]reflect.Value),
		definitions: make(map[string]ServiceConfig),
		parameters:  make(map[string]any),
		instances:   make(map[string]any),
		lookupEnv:   os.LookupEnv,
	}
}

// RegisterFactory makes a constructor available to service definitions. The
// constructor is any function returning a value, optionally followed by an error.
func (sm *ServiceManager) RegisterFactory(name string, constructor any) error {
	fn := reflect.ValueOf(constructor)
	if fn.Kind() != reflect.Func {
		return fmt.Errorf("%w: %s is a %T, not a function", ErrInvalidFactory, name, constructor)
	}

	t := fn.Type()
	switch {
	case t.NumOut() == 1 && t.Out(0) != errorType:
	case t.NumOut() == 2 && t.Out(1) == errorType:
	default:
		return fmt.Errorf("%w: %s must return a value and optionally an error", ErrInvalidFactory, name)
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.factories[name] = fn
	return nil
}

// RegisterInstance adds an already built service.
func (sm *ServiceManager) RegisterInstance(name string, instance any) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.instances[name] = instance
}

func (sm *ServiceManager) SetParameter(name string, value any) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.parameters[name] = value
}

// Parameter returns a parameter with its placeholders resolved.
func (sm *ServiceManager) Parameter(name string) (any, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.parameter(name, nil)
}

// Load merges a config into the manager. Later definitions replace earlier ones.
func (sm *ServiceManager) Load(config Config) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for name, value := range config.Parameters {
		sm.parameters[name] = value
	}
	for name, service := range config.Services {
		if name == "" {
			return fmt.Errorf("ServiceManager.Load - service without a name")
		}
		sm.definitions[name] = service
		delete(sm.instances, name)
	}

	sm.logger.Debug("service config loaded", "services", len(config.Services), "parameters", len(config.Parameters))
	return nil
}

func (sm *ServiceManager) Has(name string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, ok := sm.instances[name]; ok {
		return true
	}
	_, ok := sm.definitions[name]
	return ok
}

func (sm *ServiceManager) Get(name string) (any, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.get(name, nil)
}

// Resolve fetches a service and asserts its type.
func Resolve[T any](sm *ServiceManager, name string) (T, error) {
	var zero T

	service, err := sm.Get(name)
	if err != nil {
		return zero, err
	}

	typed, ok := service.(T)
	if !ok {
		return zero, fmt.Errorf("%w: service %s is %T, not %s", ErrArgumentType, name, service, reflect.TypeOf((*T)(nil)).Elem())
	}
	return typed, nil
}

// GetByTag returns the services carrying the tag, ordered by name. Abstract services are skipped.
func (sm *ServiceManager) GetByTag(tag string) ([]any, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	names := make([]string, 0)
	for name := range sm.definitions {
		definition, err := sm.definition(name, nil)
		if err != nil {
			return nil, err
		}
		if !definition.Abstract && slices.Contains(definition.Tags, tag) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	services := make([]any, 0, len(names))
	for _, name := range names {
		service, err := sm.get(name, nil)
		if err != nil {
			return nil, err
		}
		services = append(services, service)
	}
	return services, nil
}

func (sm *ServiceManager) get(name string, chain []string) (any, error) {
	if instance, ok := sm.instances[name]; ok {
		return instance, nil
	}

	if slices.Contains(chain, name) {
		return nil, fmt.Errorf("%w: %s", ErrCircularReference, strings.Join(append(chain, name), " -> "))
	}
	chain = append(chain, name)

	definition, err := sm.definition(name, nil)
	if err != nil {
		return nil, err
	}
	if definition.Abstract {
		return nil, fmt.Errorf("%w: %s", ErrAbstractService, name)
	}

	instance, err := sm.build(name, definition, chain)
	if err != nil {
		return nil, err
	}

	if definition.Scope != ScopePrototype {
		sm.instances[name] = instance
	}
	sm.logger.Debug("service built", "service", name, "factory", definition.Factory)
	return instance, nil
}

// definition merges a service with its parents: the child's factory, arguments and
// scope win, tags are combined and the parent's calls run first.
func (sm *ServiceManager) definition(name string, chain []string) (ServiceConfig, error) {
	definition, ok := sm.definitions[name]
	if !ok {
		return ServiceConfig{}, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	if definition.Parent == "" {
		return definition, nil
	}

	if slices.Contains(chain, name) {
		return ServiceConfig{}, fmt.Errorf("%w: %s", ErrCircularReference, strings.Join(append(chain, name), " -> "))
	}
	parent, err := sm.definition(definition.Parent, append(chain, name))
	if err != nil {
		return ServiceConfig{}, fmt.Errorf("service %s parent: %w", name, err)
	}

	merged := parent
	merged.Parent = ""
	merged.Abstract = definition.Abstract
	if definition.Factory != "" {
		merged.Factory = definition.Factory
	}
	if definition.Arguments != nil {
		merged.Arguments = definition.Arguments
	}
	if definition.Scope != "" {
		merged.Scope = definition.Scope
	}
	merged.Calls = append(slices.Clone(parent.Calls), definition.Calls...)
	merged.Tags = slices.Clone(parent.Tags)
	for _, tag := range definition.Tags {
		if !slices.Contains(merged.Tags, tag) {
			merged.Tags = append(merged.Tags, tag)
		}
	}
	return merged, nil
}

func (sm *ServiceManager) build(name string, definition ServiceConfig, chain []string) (any, error) {
	factory, ok := sm.factories[definition.Factory]
	if !ok {
		return nil, fmt.Errorf("%w: %q for service %s", ErrUnknownFactory, definition.Factory, name)
	}

	arguments, err := sm.resolveList(definition.Arguments, chain)
	if err != nil {
		return nil, fmt.Errorf("service %s: %w", name, err)
	}

	out, err := invoke(factory, arguments)
	if err != nil {
		return nil, fmt.Errorf("service %s: factory %s: %w", name, definition.Factory, err)
	}
	instance := out[0].Interface()

	for _, call := range definition.Calls {
		method := reflect.ValueOf(instance).MethodByName(call.Method)
		if !method.IsValid() {
			return nil, fmt.Errorf("%w: %T has no method %s (service %s)", ErrUnknownMethod, instance, call.Method, name)
		}

		arguments, err := sm.resolveList(call.Arguments, chain)
		if err != nil {
			return nil, fmt.Errorf("service %s: call %s: %w", name, call.Method, err)
		}
		if _, err := invoke(method, arguments); err != nil {
			return nil, fmt.Errorf("service %s: call %s: %w", name, call.Method, err)
		}
	}
	return instance, nil
}

func (sm *ServiceManager) resolveList(values []any, chain []string) ([]any, error) {
	resolved := make([]any, len(values))
	for i, value := range values {
		v, err := sm.resolve(value, chain)
		if err != nil {
			return nil, err
		}
		resolved[i] = v
	}
	return resolved, nil
}

func (sm *ServiceManager) resolve(value any, chain []string) (any, error) {
	switch v := value.(type) {
	case string:
		return sm.resolveString(v, chain)
	case []any:
		return sm.resolveList(v, chain)
	case map[string]any:
		resolved := make(map[string]any, len(v))
		for key, element := range v {
			r, err := sm.resolve(element, chain)
			if err != nil {
				return nil, err
			}
			resolved[key] = r
		}
		return resolved, nil
	}
	return value, nil
}

// resolveString handles "@Service" references and parameter placeholders. A value that
// is a single placeholder keeps the type of the parameter; "@@" and "%%" escape.
func (sm *ServiceManager) resolveString(value string, chain []string) (any, error) {
	if strings.HasPrefix(value, "@@") {
		return value[1:], nil
	}
	if strings.HasPrefix(value, "@") && len(value) > 1 {
		return sm.get(value[1:], chain)
	}

	if match := placeholder.FindStringSubmatch(value); match != nil && match[0] == value && match[1] != "" {
		return sm.parameter(match[1], nil)
	}

	var failure error
	interpolated := placeholder.ReplaceAllStringFunc(value, func(token string) string {
		if token == "%%" {
			return "%"
		}
		parameter, err := sm.parameter(token[1:len(token)-1], nil)
		if err != nil {
			failure = err
			return token
		}
		return fmt.Sprint(parameter)
	})
	if failure != nil {
		return nil, failure
	}
	return interpolated, nil
}

func (sm *ServiceManager) parameter(name string, chain []string) (any, error) {
	if env, ok := strings.CutPrefix(name, "env:"); ok {
		value, found := sm.lookupEnv(env)
		if !found {
			return nil, fmt.Errorf("%w: environment variable %s", ErrParameterNotFound, env)
		}
		return value, nil
	}

	value, ok := sm.parameters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrParameterNotFound, name)
	}
	if slices.Contains(chain, name) {
		return nil, fmt.Errorf("%w: %s", ErrCircularReference, strings.Join(append(chain, name), " -> "))
	}

	text, isString := value.(string)
	if !isString {
		return value, nil
	}
	if match := placeholder.FindStringSubmatch(text); match != nil && match[0] == text && match[1] != "" {
		return sm.parameter(match[1], append(chain, name))
	}

	var failure error
	interpolated := placeholder.ReplaceAllStringFunc(text, func(token string) string {
		if token == "%%" {
			return "%"
		}
		nested, err := sm.parameter(token[1:len(token)-1], append(chain, name))
		if err != nil {
			failure = err
			return token
		}
		return fmt.Sprint(nested)
	})
	if failure != nil {
		return nil, failure
	}
	return interpolated, nil
}
