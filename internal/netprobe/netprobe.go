// Package netprobe answers two questions asked once before the first
// fetch attempt: is there connectivity at all, and does the target
// host answer. Neither failure is retried, retrying cannot fix an
// unreachable target.
package netprobe

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"
)

const (
	connectivityAddr    = "8.8.8.8:53"
	connectivityTimeout = 3 * time.Second
	targetTimeout       = 5 * time.Second
)

// Prober performs reachability preflight checks.
type Prober interface {
	Connectivity(ctx context.Context) bool
	Reachable(ctx context.Context, rawURL string) bool
}

// Dialer is the production Prober, probing with plain TCP dials and a
// HEAD request fallback.
type Dialer struct {
	client *http.Client
}

func NewDialer() Dialer {
	return Dialer{
		client: &http.Client{Timeout: targetTimeout},
	}
}

// Connectivity dials a well-known public resolver to tell "no network"
// apart from "target down".
func (d Dialer) Connectivity(ctx context.Context) bool {
	dialer := net.Dialer{Timeout: connectivityTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", connectivityAddr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Reachable dials the target host, falling back to a HEAD request for
// hosts which only speak HTTP(S) on non-default ports.
func (d Dialer) Reachable(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}

	host := parsed.Host
	if parsed.Port() == "" {
		port := "80"
		if parsed.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(parsed.Hostname(), port)
	}

	dialer := net.Dialer{Timeout: targetTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", host)
	if err == nil {
		_ = conn.Close()
		return true
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode < 400
}
