package resolver

import (
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	fetchHTTPClientTimeout         = 20 * time.Second
	fetchHTTPDialTimeout           = 5 * time.Second
	fetchHTTPKeepAlive             = 30 * time.Second
	fetchHTTPTLSHandshakeTimeout   = 5 * time.Second
	fetchHTTPResponseHeaderTimeout = 10 * time.Second
	fetchHTTPExpectContinueTimeout = 1 * time.Second
	fetchHTTPIdleConnTimeout       = 90 * time.Second

	fetchRetryWaitMin = 200 * time.Millisecond
	fetchRetryWaitMax = 2 * time.Second
)

var fetchHTTPTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   fetchHTTPDialTimeout,
		KeepAlive: fetchHTTPKeepAlive,
	}).DialContext,
	TLSHandshakeTimeout:   fetchHTTPTLSHandshakeTimeout,
	ResponseHeaderTimeout: fetchHTTPResponseHeaderTimeout,
	ExpectContinueTimeout: fetchHTTPExpectContinueTimeout,
	IdleConnTimeout:       fetchHTTPIdleConnTimeout,
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout:   fetchHTTPClientTimeout,
		Transport: fetchHTTPTransport,
	}
}

// NewRetryableHTTPClient returns a standard client that retries
// connection errors and 5xx responses up to retryMax times.
func NewRetryableHTTPClient(retryMax int) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = max(0, retryMax)
	retryClient.RetryWaitMin = fetchRetryWaitMin
	retryClient.RetryWaitMax = fetchRetryWaitMax
	retryClient.Logger = nil
	retryClient.HTTPClient = newHTTPClient()

	return retryClient.StandardClient()
}
