package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
)

// MaxPayloadSize bounds the JSON body read by Payload.
const MaxPayloadSize = 10 << 20

var (
	ErrInvalidPayload  = errors.New("invalid JSON payload")
	ErrPayloadTooLarge = errors.New("payload too large")
)

// TrustedProxies lists the peers whose X-Forwarded-* headers are honored.
type TrustedProxies []netip.Prefix

// ParseTrustedProxies reads a comma separated list of addresses or CIDR ranges.
func ParseTrustedProxies(list string) (TrustedProxies, error) {
	proxies := make(TrustedProxies, 0)
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		if strings.Contains(item, "/") {
			prefix, err := netip.ParsePrefix(item)
			if err != nil {
				return nil, fmt.Errorf("http.ParseTrustedProxies - %w", err)
			}
			proxies = append(proxies, prefix.Masked())
			continue
		}

		addr, err := netip.ParseAddr(item)
		if err != nil {
			return nil, fmt.Errorf("http.ParseTrustedProxies - %w", err)
		}
		proxies = append(proxies, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return proxies, nil
}

func (t TrustedProxies) trusts(ip string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range t {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// Request is a read-only view over an incoming HTTP request.
type Request struct {
	raw     *http.Request
	proxies TrustedProxies

	decoded    bool
	payload    map[string]any
	payloadErr error
}

func NewRequest(r *http.Request, proxies TrustedProxies) *Request {
	return &Request{raw: r, proxies: proxies}
}

// Method returns the request verb. POST requests may override it with X-HTTP-Method-Override.
func (r *Request) Method() string {
	method := strings.ToUpper(r.raw.Method)
	if method == http.MethodPost {
		if override := strings.TrimSpace(r.raw.Header.Get("X-HTTP-Method-Override")); override != "" {
			return strings.ToUpper(override)
		}
	}
	return method
}

func (r *Request) Path() string {
	return r.raw.URL.Path
}

func (r *Request) Query(name, defaultValue string) string {
	values := r.raw.URL.Query()
	if !values.Has(name) {
		return defaultValue
	}
	return values.Get(name)
}

func (r *Request) QueryValues() url.Values {
	return r.raw.URL.Query()
}

func (r *Request) Header(name string) string {
	return r.raw.Header.Get(name)
}

// Payload decodes the JSON object body once. Numbers are kept as json.Number.
func (r *Request) Payload() (map[string]any, error) {
	if r.decoded {
		return r.payload, r.payloadErr
	}
	r.decoded = true
	r.payload = map[string]any{}

	if r.raw.Body == nil || r.raw.Body == http.NoBody {
		return r.payload, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.raw.Body, MaxPayloadSize+1))
	if err != nil {
		r.payloadErr = fmt.Errorf("Request.Payload - %w", err)
		return nil, r.payloadErr
	}
	if len(body) > MaxPayloadSize {
		r.payloadErr = ErrPayloadTooLarge
		return nil, r.payloadErr
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return r.payload, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&r.payload); err != nil {
		r.payload = nil
		r.payloadErr = fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		return nil, r.payloadErr
	}
	return r.payload, nil
}

func (r *Request) PayloadValue(name string, defaultValue any) any {
	payload, err := r.Payload()
	if err != nil {
		return defaultValue
	}
	if value, ok := payload[name]; ok {
		return value
	}
	return defaultValue
}

// Post reads a form field from an urlencoded or multipart body.
func (r *Request) Post(name, defaultValue string) string {
	if err := r.raw.ParseMultipartForm(MaxPayloadSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return defaultValue
	}
	if !r.raw.PostForm.Has(name) {
		return defaultValue
	}
	return r.raw.PostForm.Get(name)
}

// ClientIP returns the peer address, or the nearest untrusted X-Forwarded-For hop
// when the peer is a trusted proxy.
func (r *Request) ClientIP() string {
	remote := r.remoteIP()
	if !r.proxies.trusts(remote) {
		return remote
	}

	forwarded := r.raw.Header.Values("X-Forwarded-For")
	hops := make([]string, 0)
	for _, header := range forwarded {
		for _, hop := range strings.Split(header, ",") {
			if hop = strings.TrimSpace(hop); hop != "" {
				hops = append(hops, hop)
			}
		}
	}
	if len(hops) == 0 {
		return remote
	}

	for i := len(hops) - 1; i >= 0; i-- {
		if !r.proxies.trusts(hops[i]) {
			return hops[i]
		}
	}
	return hops[0]
}

func (r *Request) IsSecure() bool {
	if r.raw.TLS != nil {
		return true
	}
	if !r.proxies.trusts(r.remoteIP()) {
		return false
	}
	return strings.EqualFold(r.raw.Header.Get("X-Forwarded-Proto"), "https")
}

func (r *Request) Context() context.Context {
	return r.raw.Context()
}

func (r *Request) Raw() *http.Request {
	return r.raw
}

func (r *Request) remoteIP() string {
	host, _, err := net.SplitHostPort(r.raw.RemoteAddr)
	if err != nil {
		return r.raw.RemoteAddr
	}
	return host
}
