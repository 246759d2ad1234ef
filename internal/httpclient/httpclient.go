// Package httpclient builds the outbound HTTP client shared by the API
// clients and source fetchers.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// UserAgent is sent on every outbound request.
const UserAgent = "venuesync/1.0 (+https://github.com/alfredjeanlab/venuesync)"

// New returns a client with bounded dial, TLS and overall timeouts.
// Redirects are followed with the default policy.
func New(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: &userAgent{next: tr}}
}

type userAgent struct {
	next http.RoundTripper
}

func (u *userAgent) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", UserAgent)
	}
	return u.next.RoundTrip(req)
}
