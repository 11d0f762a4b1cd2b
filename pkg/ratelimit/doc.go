// Package ratelimit throttles outgoing requests.
//
// Two algorithms implement Limiter:
//
//   - TokenBucket hands out a fixed number of tokens per period, allowing a
//     burst followed by a quiet period.
//   - SlidingWindow admits at most N requests in any window, which spreads
//     requests more evenly.
//
// HostLimiter keeps one limiter per host; ForStrategy chooses between the two
// by name. Transport applies a HostLimiter to an http.RoundTripper:
//
//	client := &http.Client{
//	    Transport: ratelimit.NewTransport(nil, ratelimit.PerSecond(5)),
//	}
package ratelimit
