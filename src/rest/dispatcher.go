package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	webhttp "webinyframework/src/http"
)

var ErrUnavailableServer = errors.New("Oops, something unexpected happened. Please try again later.")

type errorReport struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Data    any    `json:"data"`
}

type dataEnvelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	ErrorReport errorReport `json:"errorReport"`
}

// Dispatcher serves the services registered on a router. Cache and limiter are optional.
type Dispatcher struct {
	logger  *slog.Logger
	router  *Router
	cache   Cache
	limiter RateLimiter
	proxies webhttp.TrustedProxies
}

func NewDispatcher(logger *slog.Logger, router *Router, cache Cache, limiter RateLimiter, proxies webhttp.TrustedProxies) *Dispatcher {
	return &Dispatcher{
		logger:  logger,
		router:  router,
		cache:   cache,
		limiter: limiter,
		proxies: proxies,
	}
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	request := webhttp.NewRequest(r, d.proxies)
	requestID := request.Header("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger := d.logger.With("request_id", requestID, "method", request.Method(), "path", request.Path())

	response := d.dispatch(logger, request)
	response.SetHeader("X-Request-Id", requestID)

	if err := response.Send(w); err != nil {
		logger.Warn("failed to send response", "error", err)
	}
}

func (d *Dispatcher) dispatch(logger *slog.Logger, request *webhttp.Request) *webhttp.Response {
	ctx := request.Context()

	match, err := d.router.Match(request.Method(), request.Path())
	if err != nil {
		return d.failure(logger, err)
	}
	method := match.Method

	var limitHeaders map[string]string
	if !method.IgnoreRateLimit && d.limiter != nil {
		limit, err := d.limiter.Allow(ctx, request.ClientIP())
		if err != nil {
			logger.Warn("rate limiter unavailable", "error", err)
		} else {
			limitHeaders = map[string]string{
				"X-RateLimit-Limit":     strconv.Itoa(limit.Limit),
				"X-RateLimit-Remaining": strconv.Itoa(limit.Remaining),
				"X-RateLimit-Reset":     strconv.Itoa(int(limit.Reset.Round(time.Second) / time.Second)),
			}
			if !limit.Allowed {
				response := d.failure(logger, NewError(http.StatusTooManyRequests, "RATE_LIMITED", "too many requests"))
				return withHeaders(response, limitHeaders)
			}
		}
	}

	cacheable := d.cache != nil && method.Verb == http.MethodGet && method.CacheTTL > 0
	var cacheKey string
	if cacheable {
		cacheKey = CacheKey(match, request.QueryValues())
		body, found, err := d.cache.Get(ctx, cacheKey)
		if err != nil {
			logger.Warn("cache lookup failed", "error", err)
		}
		if found {
			response := webhttp.NewResponse(body, http.StatusOK).
				SetContentType("application/json; charset=utf-8").
				SetHeader("X-Rest-Cache", "hit")
			d.setCacheControl(response, method)
			return withHeaders(response, limitHeaders)
		}
	}

	call := &Call{Request: request, Service: match.Service, Method: method, Params: match.Params}
	data, err := method.Handler(call)
	if err != nil {
		return withHeaders(d.failure(logger, err), limitHeaders)
	}

	body, err := json.Marshal(dataEnvelope{Data: data})
	if err != nil {
		return withHeaders(d.failure(logger, err), limitHeaders)
	}

	response := webhttp.NewResponse(body, call.Status()).SetContentType("application/json; charset=utf-8")
	if cacheable {
		response.SetHeader("X-Rest-Cache", "miss")
		if err := d.cache.Set(ctx, cacheKey, body, method.CacheTTL, match.Service.CacheTags); err != nil {
			logger.Warn("cache store failed", "error", err)
		}
	}
	d.setCacheControl(response, method)
	return withHeaders(response, limitHeaders)
}

func (d *Dispatcher) setCacheControl(response *webhttp.Response, method *Method) {
	response.SetCacheControl(webhttp.CacheControl{MaxAge: method.HeaderCacheTTL})
}

// failure renders an error envelope. Errors other than *Error are logged and hidden.
func (d *Dispatcher) failure(logger *slog.Logger, err error) *webhttp.Response {
	var restErr *Error
	if !errors.As(err, &restErr) {
		logger.Error("rest call failed", "error", err)
		restErr = NewError(http.StatusInternalServerError, "INTERNAL_ERROR", ErrUnavailableServer.Error())
	}

	response, marshalErr := webhttp.NewJSONResponse(errorEnvelope{ErrorReport: errorReport{
		Message: restErr.Message,
		Code:    restErr.Code,
		Data:    restErr.Data,
	}}, restErr.Status)
	if marshalErr != nil {
		logger.Error("failed to render error", "error", marshalErr)
		response = webhttp.NewResponse([]byte(`{"errorReport":{"message":"`+ErrUnavailableServer.Error()+`","code":"INTERNAL_ERROR","data":null}}`), http.StatusInternalServerError).
			SetContentType("application/json; charset=utf-8")
	}
	response.SetCacheControl(webhttp.CacheControl{})
	return response
}

func withHeaders(response *webhttp.Response, headers map[string]string) *webhttp.Response {
	for name, value := range headers {
		response.SetHeader(name, value)
	}
	return response
}
