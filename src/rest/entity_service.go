package rest

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"slices"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"webinyframework/src/entity"
	webhttp "webinyframework/src/http"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

var listQueryParams = []string{"page", "perPage", "sort", "fields", "depth"}

type ListMeta struct {
	TotalCount  int64 `json:"totalCount"`
	TotalPages  int64 `json:"totalPages"`
	PerPage     int64 `json:"perPage"`
	CurrentPage int64 `json:"currentPage"`
}

type ListResult struct {
	List []map[string]any `json:"list"`
	Meta ListMeta         `json:"meta"`
}

// EntityService exposes one entity class as a CRUD service.
type EntityService struct {
	manager  *entity.Manager
	class    string
	name     string
	version  string
	cacheTTL time.Duration
	tags     []string
}

// NewEntityService builds the service for a registered class. List and get responses
// are cached for cacheTTLSeconds, zero disables caching.
func NewEntityService(manager *entity.Manager, className, serviceName string, cacheTTLSeconds int) (*EntityService, error) {
	prototype, err := manager.New(className)
	if err != nil {
		return nil, fmt.Errorf("rest.NewEntityService - %w", err)
	}
	if serviceName == "" {
		serviceName = className
	}

	tags := []string{className}
	for _, attribute := range prototype.Attributes() {
		related, ok := attribute.(interface{ RelatedClass() string })
		if ok && !slices.Contains(tags, related.RelatedClass()) {
			tags = append(tags, related.RelatedClass())
		}
	}

	return &EntityService{
		manager:  manager,
		class:    className,
		name:     serviceName,
		version:  "1.0",
		cacheTTL: time.Duration(cacheTTLSeconds) * time.Second,
		tags:     tags,
	}, nil
}

func (s *EntityService) ClassName() string {
	return s.class
}

func (s *EntityService) RestService() Service {
	id := []Param{{Name: "id", Type: ParamString}}
	return Service{
		Name:      s.name,
		Version:   s.version,
		CacheTags: slices.Clone(s.tags),
		Methods: []Method{
			{Name: "list", Verb: http.MethodGet, Default: true, CacheTTL: s.cacheTTL, Handler: s.list},
			{Name: "get", Verb: http.MethodGet, URL: "{id}", Params: id, CacheTTL: s.cacheTTL, Handler: s.get},
			{Name: "create", Verb: http.MethodPost, Default: true, Handler: s.create},
			{Name: "update", Verb: http.MethodPatch, URL: "{id}", Params: id, Handler: s.update},
			{Name: "delete", Verb: http.MethodDelete, URL: "{id}", Params: id, Handler: s.delete},
		},
	}
}

func (s *EntityService) list(call *Call) (any, error) {
	request := call.Request

	page, err := positiveQuery(request, "page", 1)
	if err != nil {
		return nil, err
	}
	perPage, err := positiveQuery(request, "perPage", DefaultPerPage)
	if err != nil {
		return nil, err
	}
	perPage = min(perPage, MaxPerPage)
	if page-1 > math.MaxInt64/perPage {
		return nil, NewError(http.StatusBadRequest, "INVALID_QUERY", "page is out of range")
	}
	depth, err := depthQuery(request)
	if err != nil {
		return nil, err
	}

	manager := s.manager.Session()
	filter, err := s.filter(manager, request)
	if err != nil {
		return nil, err
	}

	ctx := call.Context()
	total, err := manager.Count(ctx, s.class, filter)
	if err != nil {
		return nil, s.mapError(err)
	}

	collection, err := manager.Find(s.class, filter, entity.FindOptions{
		Sort:  entity.ParseSort(request.Query("sort", "")),
		Limit: perPage,
		Skip:  (page - 1) * perPage,
	})
	if err != nil {
		return nil, s.mapError(err)
	}

	fields, err := fieldsQuery(request)
	if err != nil {
		return nil, err
	}
	items, err := collection.ToArray(ctx, fields, depth)
	if err != nil {
		return nil, s.mapError(err)
	}

	return ListResult{
		List: items,
		Meta: ListMeta{
			TotalCount:  total,
			TotalPages:  int64(math.Ceil(float64(total) / float64(perPage))),
			PerPage:     perPage,
			CurrentPage: page,
		},
	}, nil
}

func (s *EntityService) get(call *Call) (any, error) {
	depth, err := depthQuery(call.Request)
	if err != nil {
		return nil, err
	}

	e, err := s.manager.Session().FindByID(call.Context(), s.class, call.Param("id").(string))
	if err != nil {
		return nil, s.mapError(err)
	}
	return s.render(call, e, depth)
}

func (s *EntityService) create(call *Call) (any, error) {
	payload, err := call.Request.Payload()
	if err != nil {
		return nil, payloadError(err)
	}

	e, err := s.manager.Session().New(s.class)
	if err != nil {
		return nil, err
	}
	if err := e.Populate(payload); err != nil {
		return nil, s.mapError(err)
	}
	if err := e.Save(call.Context()); err != nil {
		return nil, s.mapError(err)
	}

	call.SetStatus(http.StatusCreated)
	return s.render(call, e, entity.DefaultDepth)
}

func (s *EntityService) update(call *Call) (any, error) {
	payload, err := call.Request.Payload()
	if err != nil {
		return nil, payloadError(err)
	}

	e, err := s.manager.Session().FindByID(call.Context(), s.class, call.Param("id").(string))
	if err != nil {
		return nil, s.mapError(err)
	}
	if err := e.Populate(payload); err != nil {
		return nil, s.mapError(err)
	}
	if err := e.Save(call.Context()); err != nil {
		return nil, s.mapError(err)
	}
	return s.render(call, e, entity.DefaultDepth)
}

func (s *EntityService) delete(call *Call) (any, error) {
	e, err := s.manager.Session().FindByID(call.Context(), s.class, call.Param("id").(string))
	if err != nil {
		return nil, s.mapError(err)
	}
	if err := e.Delete(call.Context()); err != nil {
		return nil, s.mapError(err)
	}
	return true, nil
}

func (s *EntityService) render(call *Call, e *entity.Entity, depth int) (any, error) {
	fields, err := fieldsQuery(call.Request)
	if err != nil {
		return nil, err
	}
	data, err := e.ToArray(call.Context(), fields, depth)
	if err != nil {
		return nil, s.mapError(err)
	}
	return data, nil
}

// filter turns the remaining query parameters into equality conditions. Values are
// normalized by the attribute they target, so "pages=120" matches the stored integer.
func (s *EntityService) filter(manager *entity.Manager, request *webhttp.Request) (bson.M, error) {
	filter := bson.M{}
	for name, values := range request.QueryValues() {
		if slices.Contains(listQueryParams, name) || len(values) == 0 {
			continue
		}
		if name == "id" {
			filter["id"] = values[0]
			continue
		}

		prototype, err := manager.New(s.class)
		if err != nil {
			return nil, err
		}
		attribute := prototype.Attr(name)
		if !filterable(attribute) {
			return nil, NewError(http.StatusBadRequest, "INVALID_FILTER", fmt.Sprintf("%s can not be filtered by %s", s.class, name))
		}

		if err := attribute.SetValue(values[0]); err != nil {
			return nil, NewError(http.StatusBadRequest, "INVALID_FILTER", err.Error())
		}
		stored, err := attribute.ToDB()
		if err != nil {
			return nil, NewError(http.StatusBadRequest, "INVALID_FILTER", err.Error())
		}
		filter[name] = stored
	}
	return filter, nil
}

func filterable(attribute entity.Attribute) bool {
	if attribute == nil || !attribute.StoresToDB() {
		return false
	}
	switch attribute.(type) {
	case *entity.One2ManyAttribute, *entity.Many2ManyAttribute, *entity.DynamicAttribute,
		*entity.ArrayAttribute, *entity.ObjectAttribute, *entity.GeoPointAttribute:
		return false
	}
	return true
}

func (s *EntityService) mapError(err error) error {
	var validation *entity.ValidationError
	switch {
	case errors.As(err, &validation):
		return NewError(http.StatusUnprocessableEntity, "VALIDATION_FAILED", err.Error()).WithData(validation.Errors)
	case errors.Is(err, entity.ErrEntityNotFound):
		return NewError(http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, entity.ErrInvalidID):
		return NewError(http.StatusBadRequest, "INVALID_ID", err.Error())
	case errors.Is(err, entity.ErrDeleteRestricted), errors.Is(err, entity.ErrMissingReciprocal):
		return NewError(http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, entity.ErrValidation), errors.Is(err, entity.ErrInvalidValue),
		errors.Is(err, entity.ErrAttributeOnce), errors.Is(err, entity.ErrImmutableID),
		errors.Is(err, entity.ErrNotPersisted):
		return NewError(http.StatusUnprocessableEntity, "VALIDATION_FAILED", err.Error())
	}
	return fmt.Errorf("EntityService %s: %w", s.class, err)
}

func payloadError(err error) error {
	if errors.Is(err, webhttp.ErrPayloadTooLarge) {
		return NewError(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", err.Error())
	}
	return NewError(http.StatusBadRequest, "INVALID_PAYLOAD", err.Error())
}

func positiveQuery(request *webhttp.Request, name string, defaultValue int64) (int64, error) {
	raw := request.Query(name, "")
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 1 {
		return 0, NewError(http.StatusBadRequest, "INVALID_QUERY", fmt.Sprintf("%s must be a positive integer", name))
	}
	return value, nil
}

func depthQuery(request *webhttp.Request) (int, error) {
	raw := request.Query("depth", "")
	if raw == "" {
		return entity.DefaultDepth, nil
	}
	depth, err := strconv.Atoi(raw)
	if err != nil || depth < 0 {
		return 0, NewError(http.StatusBadRequest, "INVALID_QUERY", "depth must be a non negative integer")
	}
	if depth > entity.MaxDepth {
		return 0, NewError(http.StatusBadRequest, "INVALID_QUERY", fmt.Sprintf("depth can not exceed %d", entity.MaxDepth))
	}
	return depth, nil
}

func fieldsQuery(request *webhttp.Request) (string, error) {
	fields := request.Query("fields", "")
	if entity.FieldsDepth(fields) > entity.MaxDepth {
		return "", NewError(http.StatusBadRequest, "INVALID_QUERY", fmt.Sprintf("fields can not nest deeper than %d", entity.MaxDepth))
	}
	return fields, nil
}
