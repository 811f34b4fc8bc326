package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CacheControl describes the client side caching of a response.
type CacheControl struct {
	MaxAge  time.Duration
	Private bool
	NoStore bool
}

func (c CacheControl) header() string {
	if c.NoStore {
		return "no-store"
	}
	if c.MaxAge <= 0 {
		return "no-cache"
	}

	directives := []string{"public"}
	if c.Private {
		directives[0] = "private"
	}
	directives = append(directives, "max-age="+strconv.Itoa(int(c.MaxAge/time.Second)))
	return strings.Join(directives, ", ")
}

type Response struct {
	status int
	header http.Header
	body   []byte
	now    func() time.Time
}

func NewResponse(body []byte, status int) *Response {
	return &Response{
		status: status,
		header: make(http.Header),
		body:   body,
		now:    time.Now,
	}
}

func NewJSONResponse(data any, status int) (*Response, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("http.NewJSONResponse - %w", err)
	}

	response := NewResponse(body, status)
	response.SetContentType("application/json; charset=utf-8")
	return response, nil
}

func (r *Response) Status() int {
	return r.status
}

func (r *Response) SetStatus(status int) *Response {
	r.status = status
	return r
}

func (r *Response) Header() http.Header {
	return r.header
}

func (r *Response) SetHeader(name, value string) *Response {
	r.header.Set(name, value)
	return r
}

func (r *Response) SetContentType(contentType string) *Response {
	return r.SetHeader("Content-Type", contentType)
}

func (r *Response) Body() []byte {
	return r.body
}

func (r *Response) SetBody(body []byte) *Response {
	r.body = body
	return r
}

// SetCacheControl writes Cache-Control and a matching Expires header.
func (r *Response) SetCacheControl(control CacheControl) *Response {
	r.header.Set("Cache-Control", control.header())

	expires := r.now().UTC()
	if !control.NoStore && control.MaxAge > 0 {
		expires = expires.Add(control.MaxAge)
	}
	r.header.Set("Expires", expires.Format(http.TimeFormat))
	return r
}

func (r *Response) Send(w http.ResponseWriter) error {
	for name, values := range r.header {
		w.Header()[name] = values
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(r.body)))
	w.WriteHeader(r.status)

	if _, err := w.Write(r.body); err != nil {
		return fmt.Errorf("Response.Send - %w", err)
	}
	return nil
}
