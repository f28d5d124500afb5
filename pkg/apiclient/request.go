package apiclient

import (
	"net/http"
	"net/url"
)

// Request describes a call relative to the client's base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header

	// Body is JSON encoded unless it is nil, []byte, json.RawMessage or string.
	Body any

	// SkipAuthRefresh tells the auth interceptor never to refresh-and-retry
	// this request on a 401. Set on the auth endpoints themselves.
	SkipAuthRefresh bool

	// Retried is set once the request has been replayed after a refresh.
	Retried bool
}

// RequestOption customises a Request built by the helper methods.
type RequestOption func(*Request)

// SkipAuthRefresh marks the request as exempt from refresh-and-retry.
func SkipAuthRefresh() RequestOption {
	return func(r *Request) {
		r.SkipAuthRefresh = true
	}
}

func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		r.Header.Set(key, value)
	}
}

func WithQuery(key, value string) RequestOption {
	return func(r *Request) {
		if r.Query == nil {
			r.Query = url.Values{}
		}
		r.Query.Add(key, value)
	}
}

// NewRequest builds a Request and applies opts.
func NewRequest(method, path string, body any, opts ...RequestOption) *Request {
	r := &Request{
		Method: method,
		Path:   path,
		Header: http.Header{},
		Body:   body,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Clone returns a deep copy of the request metadata. Body is shared.
func (r *Request) Clone() *Request {
	out := *r
	if out.Method == "" {
		out.Method = http.MethodGet
	}
	out.Header = r.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}
	if r.Query != nil {
		out.Query = make(url.Values, len(r.Query))
		for k, v := range r.Query {
			out.Query[k] = append([]string(nil), v...)
		}
	}
	return &out
}

// URL returns the path with its encoded query string.
func (r *Request) URL() string {
	if len(r.Query) == 0 {
		return r.Path
	}
	return r.Path + "?" + r.Query.Encode()
}
