package browser

import (
	"encoding/json"
	"math"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"

	"imgsniff/pkg/extract"
	"imgsniff/pkg/web"
)

// collectScript returns a JSON array of {value, source} in page order:
// live <img> attributes, <picture> sources, anchors, then the computed
// background-image of every element.
const collectScript = `(() => {
  const refs = [];
  const push = (value, source) => {
    if (value && typeof value === 'string') refs.push({value: value, source: source});
  };
  document.querySelectorAll('img').forEach(img => {
    push(img.getAttribute('src') ? img.src : '', 'IMG_SRC');
    push(img.getAttribute('data-src'), 'DATA_SRC');
    push(img.getAttribute('data-original'), 'DATA_ORIGINAL');
    push(img.getAttribute('srcset'), 'SRCSET');
  });
  document.querySelectorAll('picture source[srcset]').forEach(src => {
    push(src.getAttribute('srcset'), 'SRCSET');
  });
  document.querySelectorAll('a[href]').forEach(a => push(a.href, 'ANCHOR_HREF'));
  document.querySelectorAll('*').forEach(el => {
    const bg = window.getComputedStyle(el).backgroundImage;
    if (bg && bg !== 'none') push(bg, 'CSS_BACKGROUND');
  });
  return JSON.stringify(refs);
})()`

func decodeRefs(raw string) ([]extract.DOMRef, error) {
	if raw == "" {
		return nil, nil
	}
	var refs []extract.DOMRef
	if err := json.Unmarshal([]byte(raw), &refs); err != nil {
		return nil, err
	}
	return refs, nil
}

func cookieFromNetwork(c *network.Cookie) *http.Cookie {
	if c == nil {
		return nil
	}
	hc := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
	}
	if !c.Session && c.Expires > 0 {
		sec, frac := math.Modf(c.Expires)
		hc.Expires = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
	switch c.SameSite {
	case network.CookieSameSiteLax:
		hc.SameSite = http.SameSiteLaxMode
	case network.CookieSameSiteStrict:
		hc.SameSite = http.SameSiteStrictMode
	case network.CookieSameSiteNone:
		hc.SameSite = http.SameSiteNoneMode
	}
	return hc
}

// cookieParams converts user-supplied cookies for injection before the
// first navigation. Cookies without a domain are scoped by URL instead.
func cookieParams(cookies []*http.Cookie, target string) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		}
		if p.Domain == "" {
			if u, err := url.Parse(target); err == nil && u.Host != "" {
				p.URL = u.Scheme + "://" + u.Host
			}
		}
		if p.Path == "" {
			p.Path = "/"
		}
		if !c.Expires.IsZero() {
			exp := cdp.TimeSinceEpoch(c.Expires.UTC())
			p.Expires = &exp
		}
		params = append(params, p)
	}
	return params
}

// extraHeaders returns the context's extra headers minus those the browser
// manages itself.
func extraHeaders(fc web.FetchContext) network.Headers {
	h := fc.Headers()
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := network.Headers{}
	for _, k := range keys {
		switch http.CanonicalHeaderKey(k) {
		case "User-Agent", "Cookie", "Content-Length", "Host":
			continue
		}
		out[http.CanonicalHeaderKey(k)] = h[k]
	}
	if ref := fc.Referer(); ref != "" {
		out["Referer"] = ref
	}
	return out
}
