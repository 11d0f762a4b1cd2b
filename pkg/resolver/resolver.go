// Package resolver guesses the full-size variant of a thumbnail URL.
package resolver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"imgsniff/pkg/logger"
	"imgsniff/pkg/web"
)

// Rule rewrites every occurrence of Old with New
type Rule struct {
	Old string
	New string
}

// DefaultRules are evaluated independently, each against the original URL
var DefaultRules = []Rule{
	{"_thumb", ""},
	{"_small", ""},
	{"_medium", ""},
	{"-thumb", ""},
	{"-small", ""},
	{"-medium", ""},
	{"thumb_", ""},
	{"small_", ""},
	{"medium_", ""},
	{"_t.", "."},
	{"_s.", "."},
	{"_m.", "."},
}

type Resolver struct {
	client  *web.Client
	rules   []Rule
	timeout time.Duration
	enabled bool
	logger  logger.Logger
}

type Options struct {
	Enabled      bool
	ProbeTimeout time.Duration
	Rules        []Rule
}

func New(client *web.Client, opts Options, log logger.Logger) *Resolver {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	if opts.Rules == nil {
		opts.Rules = DefaultRules
	}
	return &Resolver{
		client:  client,
		rules:   opts.Rules,
		timeout: opts.ProbeTimeout,
		enabled: opts.Enabled,
		logger:  logger.OrGlobal(log),
	}
}

// Candidates lists url followed by one rewrite per matching rule, without
// duplicates.
func (r *Resolver) Candidates(url string) []string {
	out := []string{url}
	seen := map[string]struct{}{url: {}}
	for _, rule := range r.rules {
		if rule.Old == "" || !strings.Contains(url, rule.Old) {
			continue
		}
		c := strings.ReplaceAll(url, rule.Old, rule.New)
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// ResolveOriginal probes every candidate with HEAD and returns the one with
// the strictly largest Content-Length among 200 responses. Ties keep the
// earlier candidate; when nothing qualifies the input is returned.
func (r *Resolver) ResolveOriginal(ctx context.Context, url string) string {
	if !r.enabled {
		return url
	}
	candidates := r.Candidates(url)
	if len(candidates) == 1 {
		return url
	}

	sizes := make([]uint64, len(candidates))
	ok := make([]bool, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range candidates {
		g.Go(func() error {
			sizes[i], ok[i] = r.probe(gctx, c)
			return nil
		})
	}
	_ = g.Wait()

	best, bestSize := url, uint64(0)
	for i, c := range candidates {
		if ok[i] && sizes[i] > bestSize {
			best, bestSize = c, sizes[i]
		}
	}

	if best != url {
		r.logger.DebugWithFields("resolved larger variant", map[string]interface{}{
			"from": url,
			"to":   best,
			"size": bestSize,
		})
	}
	return best
}

func (r *Resolver) probe(ctx context.Context, url string) (uint64, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.client.Head(ctx, url)
	if err != nil {
		return 0, false
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, false
	}
	size := web.ContentLength(resp.Header)
	if size == 0 && resp.ContentLength > 0 {
		size = uint64(resp.ContentLength)
	}
	return size, true
}
