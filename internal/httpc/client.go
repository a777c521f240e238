// Package httpc builds HTTP clients with shared transport defaults for
// the speech and reasoning provider APIs. Use it instead of
// http.DefaultClient so every outbound call has connect and idle
// timeouts set.
package httpc

import (
	"net"
	"net/http"
	"time"
)

const (
	connectTimeout  = 10 * time.Second
	keepAlive       = 30 * time.Second
	idleConnTimeout = 90 * time.Second
)

// NewClient returns an HTTP client with the given overall request
// timeout. Provider APIs are called repeatedly per call session, so the
// transport keeps idle connections warm.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   connectTimeout,
				KeepAlive: keepAlive,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       idleConnTimeout,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}
