// Package extract finds candidate image references in a page, either in raw
// markup or in references reported by a rendered DOM.
package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"imgsniff/pkg/classify"
	errs "imgsniff/pkg/errors"
	"imgsniff/pkg/models"
)

// DOMRef is a raw reference read from a live document, in page order
type DOMRef struct {
	Value  string            `json:"value"`
	Source models.SourceHint `json:"source"`
}

var (
	// one group so matches come back in document order
	elementSelector = cascadia.MustCompile("img, picture source[srcset], a[href], [style]")
	baseSelector    = cascadia.MustCompile("base[href]")
	styleSelector   = cascadia.MustCompile("style")
)

// collector resolves, classifies and deduplicates references. First
// encounter wins.
type collector struct {
	base *url.URL
	seen map[string]struct{}
	out  []models.ImageCandidate
}

func newCollector(baseURL string) (*collector, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || !base.IsAbs() || base.Host == "" {
		return nil, errs.New(errs.ErrorTypeInvalidInput, 0, "malformed base URL %q", baseURL)
	}
	return &collector{base: base, seen: make(map[string]struct{})}, nil
}

func (c *collector) add(raw string, source models.SourceHint) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(strings.ToLower(raw), "data:") {
		return
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return
	}
	abs := c.base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return
	}
	resolved := abs.String()

	ok := classify.IsImageURL(resolved)
	if source == models.SourceAnchorHref {
		ok = classify.HasImageExtension(resolved)
	}
	if !ok {
		return
	}
	if _, dup := c.seen[resolved]; dup {
		return
	}
	c.seen[resolved] = struct{}{}
	c.out = append(c.out, models.ImageCandidate{RawURL: resolved, Source: source})
}

func (c *collector) addSrcset(srcset string) {
	for _, u := range SrcsetURLs(srcset) {
		c.add(u, models.SourceSrcset)
	}
}

// ExtractCandidates parses markup and returns candidate image URLs resolved
// against baseURL (or the document's <base href>), in document order.
func ExtractCandidates(pageContent, baseURL string) ([]models.ImageCandidate, error) {
	c, err := newCollector(baseURL)
	if err != nil {
		return nil, err
	}

	root, err := html.Parse(strings.NewReader(pageContent))
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, err, "failed to parse page")
	}
	doc := goquery.NewDocumentFromNode(root)

	if href, ok := doc.FindMatcher(baseSelector).First().Attr("href"); ok {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			c.base = c.base.ResolveReference(ref)
		}
	}

	doc.FindMatcher(elementSelector).Each(func(_ int, s *goquery.Selection) {
		switch goquery.NodeName(s) {
		case "img":
			if v, ok := s.Attr("src"); ok {
				c.add(v, models.SourceImgSrc)
			}
			if v, ok := s.Attr("data-src"); ok {
				c.add(v, models.SourceDataSrc)
			}
			if v, ok := s.Attr("data-original"); ok {
				c.add(v, models.SourceDataOriginal)
			}
			if v, ok := s.Attr("srcset"); ok {
				c.addSrcset(v)
			}
		case "source":
			if s.ParentFiltered("picture").Length() > 0 {
				c.addSrcset(s.AttrOr("srcset", ""))
			}
		case "a":
			c.add(s.AttrOr("href", ""), models.SourceAnchorHref)
		}

		if style, ok := s.Attr("style"); ok {
			for _, u := range InlineStyleURLs(style) {
				c.add(u, models.SourceCSSBackground)
			}
		}
	})

	doc.FindMatcher(styleSelector).Each(func(_ int, s *goquery.Selection) {
		for _, u := range StylesheetURLs(s.Text()) {
			c.add(u, models.SourceCSSBackground)
		}
	})

	return c.out, nil
}

// FromDOM applies the same resolution, classification and deduplication to
// references collected from a rendered page.
func FromDOM(refs []DOMRef, baseURL string) ([]models.ImageCandidate, error) {
	c, err := newCollector(baseURL)
	if err != nil {
		return nil, err
	}

	for _, ref := range refs {
		switch ref.Source {
		case models.SourceSrcset:
			c.addSrcset(ref.Value)
		case models.SourceCSSBackground:
			if strings.Contains(strings.ToLower(ref.Value), "url(") {
				for _, u := range cssURLs(ref.Value) {
					c.add(u, models.SourceCSSBackground)
				}
				continue
			}
			c.add(ref.Value, ref.Source)
		default:
			c.add(ref.Value, ref.Source)
		}
	}

	return c.out, nil
}

// SrcsetURLs returns the URL token of each comma-separated srcset entry
func SrcsetURLs(srcset string) []string {
	var urls []string
	for _, entry := range strings.Split(srcset, ",") {
		fields := strings.Fields(entry)
		if len(fields) > 0 {
			urls = append(urls, fields[0])
		}
	}
	return urls
}
