package web

import (
	"net/http"
	"sort"
	"strings"
)

// FetchContext is the request identity shared by every outgoing call of a
// session: user agent, referer, cookies and extra headers. It is a value;
// the With* methods return modified copies.
type FetchContext struct {
	userAgent string
	referer   string
	cookies   []*http.Cookie
	headers   map[string]string
}

// NewFetchContext copies its arguments so later changes by the caller are
// not observed.
func NewFetchContext(userAgent, referer string, cookies []*http.Cookie, headers map[string]string) FetchContext {
	return FetchContext{
		userAgent: userAgent,
		referer:   referer,
		cookies:   copyCookies(cookies),
		headers:   copyHeaders(headers),
	}
}

func (fc FetchContext) UserAgent() string { return fc.userAgent }
func (fc FetchContext) Referer() string   { return fc.referer }

// Cookies returns a copy of the carried cookies
func (fc FetchContext) Cookies() []*http.Cookie { return copyCookies(fc.cookies) }

// Headers returns a copy of the extra headers
func (fc FetchContext) Headers() map[string]string { return copyHeaders(fc.headers) }

func (fc FetchContext) WithUserAgent(ua string) FetchContext {
	return NewFetchContext(ua, fc.referer, fc.cookies, fc.headers)
}

func (fc FetchContext) WithReferer(referer string) FetchContext {
	return NewFetchContext(fc.userAgent, referer, fc.cookies, fc.headers)
}

// WithCookies replaces same-named cookies and appends new ones
func (fc FetchContext) WithCookies(cookies []*http.Cookie) FetchContext {
	merged := copyCookies(fc.cookies)
	for _, c := range cookies {
		replaced := false
		for i, existing := range merged {
			if existing.Name == c.Name {
				cc := *c
				merged[i] = &cc
				replaced = true
				break
			}
		}
		if !replaced {
			cc := *c
			merged = append(merged, &cc)
		}
	}
	return FetchContext{userAgent: fc.userAgent, referer: fc.referer, cookies: merged, headers: copyHeaders(fc.headers)}
}

// WithHeaders overlays extra headers
func (fc FetchContext) WithHeaders(headers map[string]string) FetchContext {
	merged := copyHeaders(fc.headers)
	if merged == nil {
		merged = make(map[string]string, len(headers))
	}
	for k, v := range headers {
		merged[k] = v
	}
	return FetchContext{userAgent: fc.userAgent, referer: fc.referer, cookies: copyCookies(fc.cookies), headers: merged}
}

// Apply sets the context's headers and cookies on req. Extra headers are
// applied first so User-Agent and Referer from the context take precedence
// when both are set.
func (fc FetchContext) Apply(req *http.Request) {
	keys := make([]string, 0, len(fc.headers))
	for k := range fc.headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		req.Header.Set(k, fc.headers[k])
	}
	if fc.userAgent != "" {
		req.Header.Set("User-Agent", fc.userAgent)
	}
	if fc.referer != "" {
		req.Header.Set("Referer", fc.referer)
	}
	for _, c := range fc.cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
}

// ParseCookieHeader turns a "name=value; other=value" header into cookies.
// Malformed pairs are skipped.
func ParseCookieHeader(header string) []*http.Cookie {
	var cookies []*http.Cookie
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		parsed, err := http.ParseCookie(part)
		if err != nil {
			continue
		}
		cookies = append(cookies, parsed...)
	}
	return cookies
}

// ParseHeaderPairs parses "Key=Value" or "Key: Value" entries
func ParseHeaderPairs(pairs []string) map[string]string {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		sep := strings.IndexAny(p, ":=")
		if sep <= 0 {
			continue
		}
		key := strings.TrimSpace(p[:sep])
		val := strings.TrimSpace(p[sep+1:])
		if key != "" {
			out[http.CanonicalHeaderKey(key)] = val
		}
	}
	return out
}

func copyCookies(in []*http.Cookie) []*http.Cookie {
	if in == nil {
		return nil
	}
	out := make([]*http.Cookie, 0, len(in))
	for _, c := range in {
		if c == nil {
			continue
		}
		cc := *c
		out = append(out, &cc)
	}
	return out
}

func copyHeaders(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
