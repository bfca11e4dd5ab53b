package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"
)

// Options tunes an outbound client. Timeout bounds the whole exchange; leave
// it zero when callers bound each request with a context deadline instead.
type Options struct {
	ConnectTimeout time.Duration
	Timeout        time.Duration
	InsecureTLS    bool
}

// New creates an HTTP client for calls to third-party APIs.
func New(opts Options) *http.Client {
	connect := opts.ConnectTimeout
	if connect <= 0 {
		connect = 5 * time.Second
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   connect,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if opts.InsecureTLS {
		// The model vendor signs its endpoints with a national CA that is
		// absent from most system trust stores.
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
	}
}

// Retry runs fn up to attempts times, doubling the delay between attempts up
// to one second. Only errors accepted by retriable are retried.
func Retry(ctx context.Context, attempts int, baseDelay time.Duration, retriable func(error) bool, fn func() error) error {
	var err error
	delay := baseDelay
	for i := 0; i < attempts || i == 0; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i >= attempts-1 || !retriable(err) {
			return err
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay *= 2
		if delay > time.Second {
			delay = time.Second
		}
	}
	return err
}

// IsTimeout reports whether err came from an expired deadline, either a
// context deadline or a network-level timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
