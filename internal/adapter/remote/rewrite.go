package remote

import (
	"fmt"
	"net/http"
	"net/url"
)

// RewriteTransport sends every request to target's scheme and host,
// keeping path and query. It lets a local mirror stand in for the
// script host without changing the configured endpoint.
type RewriteTransport struct {
	target *url.URL
	base   http.RoundTripper
}

func NewRewriteTransport(target string, base http.RoundTripper) (*RewriteTransport, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse override url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("override url %q needs scheme and host", target)
	}
	if base == nil {
		base = http.DefaultTransport
	}
	return &RewriteTransport{target: u, base: base}, nil
}

func (t *RewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = t.target.Scheme
	out.URL.Host = t.target.Host
	out.Host = t.target.Host
	return t.base.RoundTrip(out)
}
