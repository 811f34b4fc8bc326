package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	webhttp "webinyframework/src/http"
)

type ParamType string

const (
	ParamString  ParamType = "string"
	ParamInteger ParamType = "integer"
	ParamFloat   ParamType = "float"
	ParamBoolean ParamType = "boolean"
)

// Param is a typed path segment of a method URL.
type Param struct {
	Name     string
	Type     ParamType
	Optional bool
	Default  any
}

// HandlerFunc returns the data placed in the response envelope.
type HandlerFunc func(call *Call) (any, error)

// Method describes one endpoint of a service.
//
// An empty URL is derived from the method name in kebab case followed by one
// segment per param. Default methods are served from the service root.
type Method struct {
	Name            string
	Verb            string
	URL             string
	Default         bool
	Params          []Param
	CacheTTL        time.Duration
	HeaderCacheTTL  time.Duration
	IgnoreRateLimit bool
	Handler         HandlerFunc
}

type Service struct {
	Name      string
	Version   string
	Methods   []Method
	CacheTags []string
}

// Provider is implemented by components exposing a REST service.
type Provider interface {
	RestService() Service
}

// Call is the context of a single handler invocation.
type Call struct {
	Request *webhttp.Request
	Service *Service
	Method  *Method
	Params  map[string]any

	status int
}

func (c *Call) Context() context.Context {
	return c.Request.Context()
}

func (c *Call) Param(name string) any {
	return c.Params[name]
}

// SetStatus overrides the 200 status of a successful call.
func (c *Call) SetStatus(status int) {
	c.status = status
}

func (c *Call) Status() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

// Error is rendered as the errorReport of the response envelope.
type Error struct {
	Status  int
	Code    string
	Message string
	Data    any
}

func NewError(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func (e *Error) WithData(data any) *Error {
	e.Data = data
	return e
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}
