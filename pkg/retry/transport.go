package retry

import (
	"io"
	"net/http"
	"time"

	errs "imgsniff/pkg/errors"
	"imgsniff/pkg/logger"
)

// Policy decides how many times and on which statuses a request is retried
type Policy struct {
	MaxAttempts int
	Backoff     BackoffStrategy
	// RetryableStatus lists response codes that trigger another attempt.
	// Transport errors are always retried.
	RetryableStatus []int
}

// DefaultPolicy retries three times on 429 and the common 5xx statuses
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		Backoff:         DefaultExponentialBackoff(),
		RetryableStatus: []int{429, 500, 502, 503, 504},
	}
}

func (p Policy) retryable(code int) bool {
	if len(p.RetryableStatus) == 0 {
		return errs.IsRetryableStatusCode(code)
	}
	for _, c := range p.RetryableStatus {
		if c == code {
			return true
		}
	}
	return false
}

// Transport is an http.RoundTripper that retries transient failures.
// After the last attempt the final response (or error) is returned as is,
// so callers still see the real status code.
type Transport struct {
	Base   http.RoundTripper
	Policy Policy
	Logger logger.Logger
}

// NewTransport wraps base (http.DefaultTransport when nil)
func NewTransport(base http.RoundTripper, policy Policy, log logger.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Backoff == nil {
		policy.Backoff = DefaultExponentialBackoff()
	}
	return &Transport{Base: base, Policy: policy, Logger: log}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	log := logger.OrGlobal(t.Logger)

	for attempt := 1; ; attempt++ {
		attemptReq := req
		if attempt > 1 && req.Body != nil {
			if req.GetBody == nil {
				// body already consumed and cannot be replayed
				return nil, errs.New(errs.ErrorTypeNetwork, 0, "cannot retry %s %s: body not rewindable", req.Method, req.URL)
			}
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			attemptReq = req.Clone(ctx)
			attemptReq.Body = body
		}

		start := time.Now()
		resp, err := t.Base.RoundTrip(attemptReq)
		last := attempt >= t.Policy.MaxAttempts

		if err != nil {
			logger.LogRequest(log, req.Method, req.URL.String(), 0, time.Since(start))
			if ctx.Err() != nil || last {
				return nil, err
			}
		} else {
			logger.LogRequest(log, req.Method, req.URL.String(), resp.StatusCode, time.Since(start))
			if !t.Policy.retryable(resp.StatusCode) || last {
				return resp, nil
			}
			// drain so the connection can be reused
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
			resp.Body.Close()
		}

		delay := t.Policy.Backoff.NextDelay(attempt)
		log.DebugWithFields("retrying request", map[string]interface{}{
			"url":      req.URL.String(),
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
		})
		if werr := Wait(ctx, delay); werr != nil {
			return nil, werr
		}
	}
}
