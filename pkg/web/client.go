package web

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	errs "imgsniff/pkg/errors"
	"imgsniff/pkg/logger"
	"imgsniff/pkg/ratelimit"
	"imgsniff/pkg/retry"
)

// maxPageBytes bounds how much of a root page is read
const maxPageBytes = 20 << 20

// Options configures the shared HTTP session
type Options struct {
	PageTimeout    time.Duration
	AcceptLanguage string
	Policy         retry.Policy
	// RequestsPerSecond caps requests to any single host; 0 means no cap
	RequestsPerSecond int
	// RateStrategy is ratelimit.StrategyWindow (default) or StrategyBucket
	RateStrategy string
	// Transport is the base transport under the retry middleware; nil means
	// http.DefaultTransport.
	Transport http.RoundTripper
}

// Client is the HTTP session shared by page fetching, probing, metadata and
// downloads. It is safe for concurrent use.
type Client struct {
	httpClient     *http.Client
	fetch          FetchContext
	acceptLanguage string
	pageTimeout    time.Duration
	logger         logger.Logger
}

// NewClient builds a client whose transport retries transient failures
// according to opts.Policy.
func NewClient(opts Options, fc FetchContext, log logger.Logger) *Client {
	log = logger.OrGlobal(log)
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = 30 * time.Second
	}

	base := opts.Transport
	if opts.RequestsPerSecond > 0 {
		limiter, err := ratelimit.ForStrategy(opts.RateStrategy, opts.RequestsPerSecond)
		if err != nil {
			log.WithError(err).Warn("Falling back to the sliding window rate limit")
			limiter = ratelimit.PerSecond(opts.RequestsPerSecond)
		}
		base = ratelimit.NewTransport(base, limiter)
	}

	return &Client{
		httpClient: &http.Client{
			Transport: retry.NewTransport(base, opts.Policy, log),
		},
		fetch:          fc,
		acceptLanguage: opts.AcceptLanguage,
		pageTimeout:    opts.PageTimeout,
		logger:         log,
	}
}

// WithFetchContext returns a client sharing the connection pool but sending
// a different identity.
func (c *Client) WithFetchContext(fc FetchContext) *Client {
	clone := *c
	clone.fetch = fc
	return &clone
}

func (c *Client) FetchContext() FetchContext {
	return c.fetch
}

// NewRequest builds a request carrying the fetch context headers
func (c *Client) NewRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeInvalidInput, err, "failed to create request")
	}
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	if c.acceptLanguage != "" {
		req.Header.Set("Accept-Language", c.acceptLanguage)
	}
	c.fetch.Apply(req)
	return req, nil
}

// Do sends req. Transport failures become network errors; any response,
// whatever its status, is returned to the caller.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "%s %s", req.Method, req.URL)
	}
	return resp, nil
}

// Head sends a HEAD request; redirects are followed
func (c *Client) Head(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := c.NewRequest(ctx, http.MethodHead, rawURL)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Get sends a GET request. The caller closes the body.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Page is a fetched root document
type Page struct {
	// URL is the final URL after redirects; relative references resolve against it
	URL     string
	Content string
}

// FetchPage downloads the markup of target. Any failure is a page_fetch
// error, fatal to the session.
func (c *Client) FetchPage(ctx context.Context, target string) (*Page, error) {
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errs.New(errs.ErrorTypeInvalidInput, 0, "invalid target URL %q", target)
	}

	ctx, cancel := context.WithTimeout(ctx, c.pageTimeout)
	defer cancel()

	req, err := c.NewRequest(ctx, http.MethodGet, target)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	c.logger.DebugWithFields("fetching page", map[string]interface{}{"url": target})
	resp, err := c.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypePageFetch, err, "failed to fetch %s", target)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.Wrap(errs.ErrorTypePageFetch, errs.FromStatus(resp.StatusCode, target), "failed to fetch %s", target)
	}

	reader, err := charset.NewReader(io.LimitReader(resp.Body, maxPageBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypePageFetch, err, "unsupported page encoding")
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypePageFetch, err, "failed to read %s", target)
	}

	final := target
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	c.logger.DebugWithFields("page fetched", map[string]interface{}{
		"url":   final,
		"bytes": len(body),
	})

	return &Page{URL: final, Content: string(body)}, nil
}

// ContentLength parses the Content-Length header. 0 means absent or
// unparseable.
func ContentLength(h http.Header) uint64 {
	n, err := strconv.ParseUint(strings.TrimSpace(h.Get("Content-Length")), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
