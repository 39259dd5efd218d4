package api

import (
	"net/http"
	"net/url"
)

type requestOptions struct {
	header           http.Header
	query            url.Values
	skipInvalidation bool
	token            *string
}

// Option adjusts a single request.
type Option func(*requestOptions)

// WithHeader sets an extra request header.
func WithHeader(key, value string) Option {
	return func(o *requestOptions) {
		if o.header == nil {
			o.header = make(http.Header)
		}
		o.header.Set(key, value)
	}
}

// WithQuery adds a query parameter.
func WithQuery(key, value string) Option {
	return func(o *requestOptions) {
		if o.query == nil {
			o.query = make(url.Values)
		}
		o.query.Add(key, value)
	}
}

// SkipInvalidation keeps a 401/403 from ending the browser session. Calls
// where such a status means bad input, like login, use it.
func SkipInvalidation() Option {
	return func(o *requestOptions) {
		o.skipInvalidation = true
	}
}

// WithToken uses raw as the bearer credential instead of the configured
// TokenSource.
func WithToken(raw string) Option {
	return func(o *requestOptions) {
		o.token = &raw
	}
}
