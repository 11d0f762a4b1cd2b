package ratelimit

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// HostLimiter keeps one limiter per host so a slow CDN does not hold back
// requests to the page's own origin.
type HostLimiter struct {
	newLimiter func() Limiter
	mu         sync.Mutex
	hosts      map[string]Limiter
}

// Strategies accepted by ForStrategy
const (
	StrategyWindow = "window"
	StrategyBucket = "bucket"
)

// PerSecond allows n requests per host in any one-second window
func PerSecond(n int) *HostLimiter {
	return NewHostLimiter(func() Limiter { return NewSlidingWindow(n, time.Second) })
}

// BurstPerSecond lets n requests per host through at the start of each
// second and holds the rest until the next refill.
func BurstPerSecond(n int) *HostLimiter {
	return NewHostLimiter(func() Limiter { return NewTokenBucket(n, time.Second) })
}

// ForStrategy picks the per-host limiter by name; "" means window
func ForStrategy(strategy string, n int) (*HostLimiter, error) {
	switch strings.ToLower(strategy) {
	case "", StrategyWindow:
		return PerSecond(n), nil
	case StrategyBucket:
		return BurstPerSecond(n), nil
	}
	return nil, fmt.Errorf("unknown rate strategy %q (want %s or %s)", strategy, StrategyWindow, StrategyBucket)
}

func NewHostLimiter(newLimiter func() Limiter) *HostLimiter {
	return &HostLimiter{newLimiter: newLimiter, hosts: make(map[string]Limiter)}
}

// For returns the limiter for host, creating it on first use
func (h *HostLimiter) For(host string) Limiter {
	host = strings.ToLower(host)

	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.hosts[host]
	if !ok {
		l = h.newLimiter()
		h.hosts[host] = l
	}
	return l
}

// Transport waits for the request's host limiter before every round trip
type Transport struct {
	base    http.RoundTripper
	limiter *HostLimiter
}

// NewTransport wraps base; nil means http.DefaultTransport
func NewTransport(base http.RoundTripper, limiter *HostLimiter) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{base: base, limiter: limiter}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.For(req.URL.Host).Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}
