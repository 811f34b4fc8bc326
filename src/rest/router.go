package rest

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/mod/semver"
)

// LatestVersion selects the highest registered version of a service.
const LatestVersion = "latest"

var ErrInvalidService = errors.New("invalid rest service")

type segment struct {
	static string
	param  *Param
}

type route struct {
	method   *Method
	segments []segment
	required int
}

type registered struct {
	api     string
	service *Service
	routes  []route
}

// Match is a resolved route.
type Match struct {
	API     string
	Version string
	Service *Service
	Method  *Method
	Params  map[string]any
}

// Router resolves paths shaped {prefix}/{api}/{version}/{service}/{method url}.
type Router struct {
	prefix string

	mu       sync.RWMutex
	services map[string]map[string]map[string]*registered
}

func NewRouter(prefix string) *Router {
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		prefix = "/" + prefix
	}
	return &Router{
		prefix:   prefix,
		services: map[string]map[string]map[string]*registered{},
	}
}

func (r *Router) Prefix() string {
	return r.prefix
}

// Register adds a service under an api name. Versions follow semver with or without the "v" prefix.
func (r *Router) Register(api string, service Service) error {
	version := canonicalVersion(service.Version)
	if service.Name == "" || !semver.IsValid(version) {
		return fmt.Errorf("%w: service %q version %q", ErrInvalidService, service.Name, service.Version)
	}

	service.Methods = slices.Clone(service.Methods)
	for i := range service.Methods {
		service.Methods[i].Params = slices.Clone(service.Methods[i].Params)
	}

	entry := &registered{api: api, service: &service}
	for i := range service.Methods {
		method := &service.Methods[i]
		if method.Handler == nil {
			return fmt.Errorf("%w: %s.%s has no handler", ErrInvalidService, service.Name, method.Name)
		}
		if method.Verb == "" {
			method.Verb = http.MethodGet
		}
		method.Verb = strings.ToUpper(method.Verb)

		built, err := buildRoute(method)
		if err != nil {
			return fmt.Errorf("%w: %s.%s: %v", ErrInvalidService, service.Name, method.Name, err)
		}
		entry.routes = append(entry.routes, built)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := Kebab(service.Name)
	if r.services[api] == nil {
		r.services[api] = map[string]map[string]*registered{}
	}
	if r.services[api][name] == nil {
		r.services[api][name] = map[string]*registered{}
	}
	r.services[api][name][version] = entry
	return nil
}

// RegisterProviders registers every value implementing Provider, as returned by a
// service container lookup.
func (r *Router) RegisterProviders(api string, providers []any) error {
	for _, value := range providers {
		provider, ok := value.(Provider)
		if !ok {
			return fmt.Errorf("%w: %T does not provide a rest service", ErrInvalidService, value)
		}
		if err := r.Register(api, provider.RestService()); err != nil {
			return err
		}
	}
	return nil
}

// Services lists the registered services of every api.
func (r *Router) Services() []*Service {
	r.mu.RLock()
	defer r.mu.RUnlock()

	services := make([]*Service, 0)
	for _, byName := range r.services {
		for _, byVersion := range byName {
			for _, entry := range byVersion {
				services = append(services, entry.service)
			}
		}
	}
	slices.SortFunc(services, func(a, b *Service) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return semver.Compare(canonicalVersion(a.Version), canonicalVersion(b.Version))
	})
	return services
}

// RouteInfo describes one registered method.
type RouteInfo struct {
	API     string `json:"api"`
	Service string `json:"service"`
	Version string `json:"version"`
	Method  string `json:"method"`
	Verb    string `json:"verb"`
	Path    string `json:"path"`
}

// Routes lists every method route ordered by path and verb. Optional params are shown as {name?}.
func (r *Router) Routes() []RouteInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make([]RouteInfo, 0)
	for api, byName := range r.services {
		for name, byVersion := range byName {
			for version, entry := range byVersion {
				for _, rt := range entry.routes {
					parts := []string{r.prefix, api, version, name}
					for _, seg := range rt.segments {
						switch {
						case seg.param == nil:
							parts = append(parts, seg.static)
						case seg.param.Optional:
							parts = append(parts, "{"+seg.param.Name+"?}")
						default:
							parts = append(parts, "{"+seg.param.Name+"}")
						}
					}
					routes = append(routes, RouteInfo{
						API:     api,
						Service: entry.service.Name,
						Version: version,
						Method:  rt.method.Name,
						Verb:    rt.method.Verb,
						Path:    strings.Join(parts, "/"),
					})
				}
			}
		}
	}
	slices.SortFunc(routes, func(a, b RouteInfo) int {
		if c := strings.Compare(a.Path, b.Path); c != 0 {
			return c
		}
		return strings.Compare(a.Verb, b.Verb)
	})
	return routes
}

// Match finds the method for a verb and path. The returned error is an *Error
// with status 404, 405 or 400.
func (r *Router) Match(verb, path string) (*Match, error) {
	rest, ok := strings.CutPrefix(path, r.prefix)
	if !ok || (rest != "" && !strings.HasPrefix(rest, "/")) {
		return nil, notFound(path)
	}

	parts := splitPath(rest)
	if len(parts) < 3 {
		return nil, notFound(path)
	}
	api, versionSegment, serviceName, tail := parts[0], parts[1], parts[2], parts[3:]

	r.mu.RLock()
	versions := r.services[api][serviceName]
	version := versionSegment
	if versionSegment == LatestVersion {
		version = latest(versions)
	} else {
		version = canonicalVersion(versionSegment)
	}
	entry := versions[version]
	r.mu.RUnlock()

	if entry == nil {
		return nil, notFound(path)
	}

	var (
		best    *route
		bestKey []bool
		allowed []string
	)
	for i := range entry.routes {
		candidate := &entry.routes[i]
		key, ok := candidate.match(tail)
		if !ok {
			continue
		}
		if candidate.method.Verb != strings.ToUpper(verb) {
			if !slices.Contains(allowed, candidate.method.Verb) {
				allowed = append(allowed, candidate.method.Verb)
			}
			continue
		}
		if best == nil || outranks(key, bestKey) {
			best, bestKey = candidate, key
		}
	}

	if best == nil {
		if len(allowed) > 0 {
			slices.Sort(allowed)
			return nil, NewError(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
				fmt.Sprintf("method %s is not allowed, use %s", verb, strings.Join(allowed, ", ")))
		}
		return nil, notFound(path)
	}

	params, err := best.params(tail)
	if err != nil {
		return nil, err
	}

	return &Match{
		API:     api,
		Version: version,
		Service: entry.service,
		Method:  best.method,
		Params:  params,
	}, nil
}

func buildRoute(method *Method) (route, error) {
	params := make(map[string]*Param, len(method.Params))
	for i := range method.Params {
		param := &method.Params[i]
		if param.Type == "" {
			param.Type = ParamString
		}
		switch param.Type {
		case ParamString, ParamInteger, ParamFloat, ParamBoolean:
		default:
			return route{}, fmt.Errorf("param %s has unknown type %q", param.Name, param.Type)
		}
		params[param.Name] = param
	}

	pattern := method.URL
	if pattern == "" {
		parts := make([]string, 0, len(method.Params)+1)
		if !method.Default {
			parts = append(parts, Kebab(method.Name))
		}
		for _, param := range method.Params {
			parts = append(parts, "{"+param.Name+"}")
		}
		pattern = strings.Join(parts, "/")
	}

	built := route{method: method}
	used := make(map[string]bool)
	for _, part := range splitPath(pattern) {
		name, isParam := strings.CutPrefix(part, "{")
		if !isParam {
			if len(built.segments) > built.required {
				return route{}, fmt.Errorf("static segment %q follows an optional param", part)
			}
			built.segments = append(built.segments, segment{static: part})
			built.required++
			continue
		}

		name = strings.TrimSuffix(name, "}")
		param, ok := params[name]
		if !ok {
			return route{}, fmt.Errorf("url references unknown param %q", name)
		}
		used[name] = true

		if param.Optional {
			built.segments = append(built.segments, segment{param: param})
			continue
		}
		if len(built.segments) > built.required {
			return route{}, fmt.Errorf("required param %s follows an optional param", name)
		}
		built.segments = append(built.segments, segment{param: param})
		built.required++
	}

	for name := range params {
		if !used[name] {
			return route{}, fmt.Errorf("param %s is not part of the url", name)
		}
	}
	return built, nil
}

// match reports whether the path segments fit the route and returns its rank key:
// true for every static segment.
func (rt *route) match(parts []string) ([]bool, bool) {
	if len(parts) < rt.required || len(parts) > len(rt.segments) {
		return nil, false
	}

	key := make([]bool, len(parts))
	for i, part := range parts {
		seg := rt.segments[i]
		if seg.param == nil {
			if seg.static != part {
				return nil, false
			}
			key[i] = true
		}
	}
	return key, true
}

func outranks(key, other []bool) bool {
	for i := range key {
		if key[i] != other[i] {
			return key[i]
		}
	}
	return false
}

func (rt *route) params(parts []string) (map[string]any, error) {
	params := make(map[string]any)
	for i, seg := range rt.segments {
		if seg.param == nil {
			continue
		}
		if i >= len(parts) {
			params[seg.param.Name] = seg.param.Default
			continue
		}

		value, err := convertParam(seg.param, parts[i])
		if err != nil {
			return nil, NewError(http.StatusBadRequest, "INVALID_PARAM",
				fmt.Sprintf("param %s must be %s", seg.param.Name, seg.param.Type)).WithData(map[string]any{"param": seg.param.Name, "value": parts[i]})
		}
		params[seg.param.Name] = value
	}
	return params, nil
}

func convertParam(param *Param, value string) (any, error) {
	switch param.Type {
	case ParamInteger:
		return strconv.ParseInt(value, 10, 64)
	case ParamFloat:
		return strconv.ParseFloat(value, 64)
	case ParamBoolean:
		return strconv.ParseBool(value)
	}
	return value, nil
}

func latest(versions map[string]*registered) string {
	highest := ""
	for version := range versions {
		if highest == "" || semver.Compare(version, highest) > 0 {
			highest = version
		}
	}
	return highest
}

func canonicalVersion(version string) string {
	if version == "" {
		return ""
	}
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	return version
}

func splitPath(path string) []string {
	parts := make([]string, 0)
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func notFound(path string) *Error {
	return NewError(http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("no service method matches %s", path))
}

// Kebab converts camel and pascal case names: "listByAuthor" becomes "list-by-author".
func Kebab(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				previous := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(previous) || unicode.IsDigit(previous) || (unicode.IsUpper(previous) && nextLower) {
					b.WriteByte('-')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if r == '_' || r == ' ' {
			b.WriteByte('-')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
