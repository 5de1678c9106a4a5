package http

import (
	"net/http"
	"time"
)

const defaultTimeout = 30 * time.Second

type Client struct {
	client         *http.Client
	defaultHeaders map[string]string
}

type ClientOption func(*Client)

// WithTimeout bounds every round trip made by the client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithHTTPClient replaces the underlying client, e.g. with an httptest one.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.client = hc
	}
}

// WithDefaultHeader sets a header applied to every request unless the
// request already carries it.
func WithDefaultHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.defaultHeaders[key] = value
	}
}

func NewHttpClient(opts ...ClientOption) *Client {
	c := &Client{
		client: &http.Client{Timeout: defaultTimeout},
		defaultHeaders: map[string]string{
			"Content-Type": "application/json",
			"accept":       "application/json",
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (hc *Client) applyDefaultHeaders(req *http.Request) {
	for key, value := range hc.defaultHeaders {
		// Only set default header if it's not already set
		if req.Header.Get(key) == "" {
			req.Header.Set(key, value)
		}
	}
}

type RequestOption func(*http.Request)

func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value) // We use Set() to overwrite existing headers
	}
}
