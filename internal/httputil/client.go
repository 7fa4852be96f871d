package httputil

import (
	"net/http"
	"time"
)

const DefaultTimeout = 30 * time.Second

// NewClient returns an HTTP client with standard timeout configuration.
// A non-empty userAgent is sent on every request that does not set one.
func NewClient(userAgent string) *http.Client {
	c := &http.Client{
		Timeout: DefaultTimeout,
	}
	if userAgent != "" {
		c.Transport = &uaTransport{ua: userAgent, next: http.DefaultTransport}
	}
	return c
}

type uaTransport struct {
	ua   string
	next http.RoundTripper
}

func (t *uaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.ua)
	}
	return t.next.RoundTrip(req)
}
