package sniffer

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgsniff/pkg/browser"
	"imgsniff/pkg/checkpoint"
	"imgsniff/pkg/config"
	errs "imgsniff/pkg/errors"
	"imgsniff/pkg/extract"
	"imgsniff/pkg/logger"
	"imgsniff/pkg/models"
	"imgsniff/pkg/ranking"
	"imgsniff/pkg/retry"
	"imgsniff/pkg/storage"
	"imgsniff/pkg/web"
)

const kb = 1024

func newTestSniffer(t *testing.T, resolve bool) *Sniffer {
	t.Helper()
	client := web.NewClient(web.Options{
		PageTimeout: 5 * time.Second,
		Policy:      retry.Policy{MaxAttempts: 1, Backoff: &retry.ConstantBackoff{}},
	}, web.NewFetchContext("imgsniff-test/1.0", "", nil, nil), logger.NewNopLogger())

	return NewWithClient(client, Settings{
		Workers:          4,
		ResolveOriginals: resolve,
		ProbeTimeout:     2 * time.Second,
		MetadataTimeout:  2 * time.Second,
		DownloadTimeout:  5 * time.Second,
	}, logger.NewNopLogger())
}

func defaultOptions() Options {
	return Options{MinKB: 10, Order: ranking.OrderBySize}
}

// progressLog records every callback
type progressLog struct {
	mu        sync.Mutex
	messages  []string
	fractions []float64
}

func (p *progressLog) record(msg string, f float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	p.fractions = append(p.fractions, f)
}

func urlsOf(images []models.ResolvedImage) []string {
	out := make([]string, len(images))
	for i, img := range images {
		out[i] = img.URL
	}
	return out
}

func TestSniffFiltersAndOrdersBySize(t *testing.T) {
	site := newMockSite(t)
	site.addPage("/gallery", `<html><body>
		<img src="/img/small.jpg">
		<img src="/img/medium.jpg">
		<img data-src="/img/large.jpg">
	</body></html>`)
	site.addImage("/img/small.jpg", mockImage{size: 5 * kb})
	site.addImage("/img/medium.jpg", mockImage{size: 50 * kb})
	site.addImage("/img/large.jpg", mockImage{size: 200 * kb})

	s := newTestSniffer(t, true)
	result, err := s.Sniff(context.Background(), site.URL("/gallery"), defaultOptions(), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Candidates)
	assert.Equal(t, 3, result.Checked)
	assert.Equal(t, []string{site.URL("/img/large.jpg"), site.URL("/img/medium.jpg")}, urlsOf(result.Images))
	assert.Equal(t, uint64(200*kb), result.Images[0].ByteSize)
	assert.Equal(t, "large.jpg", result.Images[0].Filename)
	assert.NotEmpty(t, result.SessionID)
	assert.Equal(t, site.URL("/gallery"), result.PageURL)

	records := result.Records()
	require.Len(t, records, 2)
	assert.Equal(t, uint64(200*kb), records[0].Size)
}

func TestSniffPageOrder(t *testing.T) {
	site := newMockSite(t)
	site.addPage("/", `<img src="/a.png"><img src="/b.png"><img src="/c.png">`)
	site.addImage("/a.png", mockImage{size: 20 * kb, contentType: "image/png"})
	site.addImage("/b.png", mockImage{size: 90 * kb, contentType: "image/png"})
	site.addImage("/c.png", mockImage{size: 40 * kb, contentType: "image/png"})

	opts := defaultOptions()
	opts.Order = ranking.OrderByPage
	result, err := newTestSniffer(t, true).Sniff(context.Background(), site.URL("/"), opts, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{site.URL("/a.png"), site.URL("/b.png"), site.URL("/c.png")}, urlsOf(result.Images))
}

func TestSniffResolvesThumbnails(t *testing.T) {
	site := newMockSite(t)
	site.addPage("/", `<img src="/p_thumb.jpg"><img src="/q_thumb.jpg">`)
	site.addImage("/p_thumb.jpg", mockImage{size: 12 * kb})
	site.addImage("/p.jpg", mockImage{size: 300 * kb})
	site.addImage("/q_thumb.jpg", mockImage{size: 15 * kb})

	result, err := newTestSniffer(t, true).Sniff(context.Background(), site.URL("/"), defaultOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{site.URL("/p.jpg"), site.URL("/q_thumb.jpg")}, urlsOf(result.Images))

	result, err = newTestSniffer(t, false).Sniff(context.Background(), site.URL("/"), defaultOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{site.URL("/q_thumb.jpg"), site.URL("/p_thumb.jpg")}, urlsOf(result.Images))
}

func TestSniffEstimatesSizeWithoutContentLength(t *testing.T) {
	site := newMockSite(t)
	site.addPage("/", `<div style="background-image: url('/images/hero')"></div>`)
	site.addImage("/images/hero", mockImage{size: 50 * kb, chunked: true, contentType: "image/webp"})

	result, err := newTestSniffer(t, true).Sniff(context.Background(), site.URL("/"), defaultOptions(), nil)
	require.NoError(t, err)
	require.Len(t, result.Images, 1)
	assert.GreaterOrEqual(t, result.Images[0].ByteSize, uint64(50*kb))
	assert.Regexp(t, `^image_\d+\.webp$`, result.Images[0].Filename)
}

func TestSniffNoCandidates(t *testing.T) {
	site := newMockSite(t)
	site.addPage("/", `<html><body><p>nothing here</p><img src="data:image/png;base64,AAAA"></body></html>`)

	progress := &progressLog{}
	result, err := newTestSniffer(t, true).Sniff(context.Background(), site.URL("/"), defaultOptions(), progress.record)
	require.NoError(t, err)
	assert.Zero(t, result.Candidates)
	require.NotNil(t, result.Images)
	assert.Empty(t, result.Images)
	assert.Equal(t, 1.0, progress.fractions[len(progress.fractions)-1])
	assert.Equal(t, 1, site.requests())
}

func TestSniffPageFetchFailure(t *testing.T) {
	site := newMockSite(t)
	site.failPage("/down", http.StatusInternalServerError)

	result, err := newTestSniffer(t, true).Sniff(context.Background(), site.URL("/down"), defaultOptions(), nil)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errs.IsType(err, errs.ErrorTypePageFetch))
}

func TestSniffInvalidInput(t *testing.T) {
	s := newTestSniffer(t, true)

	for _, target := range []string{"", "not a url", "ftp://x.com/", "https://"} {
		_, err := s.Sniff(context.Background(), target, defaultOptions(), nil)
		assert.True(t, errs.IsType(err, errs.ErrorTypeInvalidInput), "target %q: %v", target, err)
	}

	opts := defaultOptions()
	opts.MinKB = -1
	_, err := s.Sniff(context.Background(), "https://x.com/", opts, nil)
	assert.True(t, errs.IsType(err, errs.ErrorTypeInvalidInput))
}

func TestSniffProgressMilestones(t *testing.T) {
	site := newMockSite(t)
	site.addPage("/", `<img src="/1.jpg"><img src="/2.jpg"><img src="/3.jpg"><img src="/4.jpg">`)
	for _, p := range []string{"/1.jpg", "/2.jpg", "/3.jpg", "/4.jpg"} {
		site.addImage(p, mockImage{size: 30 * kb})
	}

	progress := &progressLog{}
	_, err := newTestSniffer(t, true).Sniff(context.Background(), site.URL("/"), defaultOptions(), progress.record)
	require.NoError(t, err)

	f := progress.fractions
	require.Len(t, f, 8)
	assert.Equal(t, []float64{0.1, 0.3, 0.5}, f[:3])
	assert.InDelta(t, 0.6, f[3], 1e-9)
	assert.InDelta(t, 0.9, f[6], 1e-9)
	assert.Equal(t, 1.0, f[7])
	for i := 1; i < len(f); i++ {
		assert.GreaterOrEqual(t, f[i], f[i-1])
	}
	assert.Equal(t, "Found 4 candidates", progress.messages[2])
}

func TestSniffSendsConfiguredIdentity(t *testing.T) {
	site := newMockSite(t)
	site.addPage("/", `<img src="/a.jpg">`)
	site.addImage("/a.jpg", mockImage{size: 20 * kb, cookie: "sid=abc"})

	opts := defaultOptions()
	opts.Fetch = web.NewFetchContext("ProfileUA/1", "", web.ParseCookieHeader("sid=abc"), nil)

	result, err := newTestSniffer(t, true).Sniff(context.Background(), site.URL("/"), opts, nil)
	require.NoError(t, err)
	require.Len(t, result.Images, 1)
	assert.True(t, site.sawUserAgent("ProfileUA/1"))
	assert.True(t, site.sawReferer(site.URL("/")))

	// without the cookie the image is forbidden and drops below the threshold
	result, err = newTestSniffer(t, true).Sniff(context.Background(), site.URL("/"), defaultOptions(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Images)
}

func TestSniffCancelled(t *testing.T) {
	site := newMockSite(t)
	site.addPage("/", `<img src="/a.jpg">`)
	site.addImage("/a.jpg", mockImage{size: 20 * kb})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestSniffer(t, true).Sniff(ctx, site.URL("/"), defaultOptions(), nil)
	assert.Error(t, err)
}

// fakeRenderer stands in for headless Chrome
type fakeRenderer struct {
	result *browser.Result
	err    error
	closed int
	mu     sync.Mutex
}

func (f *fakeRenderer) Render(ctx context.Context, target string, fc web.FetchContext) (*browser.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeRenderer) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func (f *fakeRenderer) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed > 0
}

func TestSniffRenderedUsesBrowserIdentity(t *testing.T) {
	site := newMockSite(t)
	site.addImage("/lazy/1.jpg", mockImage{size: 80 * kb, cookie: "session=xyz"})
	site.addImage("/bg.png", mockImage{size: 40 * kb, contentType: "image/png", cookie: "session=xyz"})

	page := site.URL("/app")
	renderer := &fakeRenderer{result: &browser.Result{
		URL: page,
		Refs: []extract.DOMRef{
			{Value: site.URL("/lazy/1.jpg"), Source: models.SourceImgSrc},
			{Value: `url("/bg.png")`, Source: models.SourceCSSBackground},
			{Value: site.URL("/lazy/1.jpg"), Source: models.SourceDataSrc},
		},
		Fetch: web.NewFetchContext("HeadlessChrome/124", page, web.ParseCookieHeader("session=xyz"), nil),
	}}

	s := newTestSniffer(t, true)
	s.SetRenderer(func(ctx context.Context, opts browser.Options, log logger.Logger) (Renderer, error) {
		return renderer, nil
	})

	opts := defaultOptions()
	opts.Render = true
	result, err := s.Sniff(context.Background(), page, opts, nil)
	require.NoError(t, err)

	assert.True(t, renderer.isClosed())
	assert.Equal(t, 2, result.Candidates)
	assert.Equal(t, []string{site.URL("/lazy/1.jpg"), site.URL("/bg.png")}, urlsOf(result.Images))
	assert.True(t, site.sawUserAgent("HeadlessChrome/124"))
	assert.Equal(t, "HeadlessChrome/124", result.Fetch.UserAgent())
}

func TestSniffRenderFailureClosesBrowser(t *testing.T) {
	renderer := &fakeRenderer{err: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	s := newTestSniffer(t, true)
	s.SetRenderer(func(ctx context.Context, opts browser.Options, log logger.Logger) (Renderer, error) {
		return renderer, nil
	})

	opts := defaultOptions()
	opts.Render = true
	_, err := s.Sniff(context.Background(), "https://unreachable.invalid/", opts, nil)
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypePageFetch))
	assert.True(t, renderer.isClosed())

	s.SetRenderer(func(ctx context.Context, opts browser.Options, log logger.Logger) (Renderer, error) {
		return nil, errors.New("chrome not found")
	})
	_, err = s.Sniff(context.Background(), "https://unreachable.invalid/", opts, nil)
	assert.True(t, errs.IsType(err, errs.ErrorTypePageFetch))
}

func TestDownloadAfterSniff(t *testing.T) {
	site := newMockSite(t)
	site.addPage("/", `<img src="/one.jpg"><img src="/two.jpg"><img src="/three.jpg">`)
	site.addImage("/one.jpg", mockImage{size: 30 * kb})
	site.addImage("/two.jpg", mockImage{size: 20 * kb, failGet: true})
	site.addImage("/three.jpg", mockImage{size: 10 * kb})

	s := newTestSniffer(t, true)
	result, err := s.Sniff(context.Background(), site.URL("/"), defaultOptions(), nil)
	require.NoError(t, err)
	require.Len(t, result.Images, 3)

	dir := filepath.Join(t.TempDir(), "images")
	var started int32
	results, err := s.Download(context.Background(), result, DownloadOptions{
		Dir:     dir,
		Workers: 2,
		OnStart: func(models.ResolvedImage) { atomic.AddInt32(&started, 1) },
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	ok, total := storage.Summary(results)
	assert.Equal(t, 2, ok)
	assert.Equal(t, 3, total)
	assert.False(t, results[1].Success)
	assert.FileExists(t, filepath.Join(dir, "one.jpg"))
	assert.FileExists(t, filepath.Join(dir, "three.jpg"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, int32(3), atomic.LoadInt32(&started))
}

func TestDownloadResumeSkipsSavedImages(t *testing.T) {
	site := newMockSite(t)
	site.addPage("/", `<img src="/one.jpg"><img src="/two.jpg"><img src="/three.jpg">`)
	site.addImage("/one.jpg", mockImage{size: 30 * kb})
	site.addImage("/two.jpg", mockImage{size: 20 * kb, failGet: true})
	site.addImage("/three.jpg", mockImage{size: 10 * kb})

	s := newTestSniffer(t, true)
	result, err := s.Sniff(context.Background(), site.URL("/"), defaultOptions(), nil)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "images")
	_, err = s.Download(context.Background(), result, DownloadOptions{Dir: dir, Workers: 2, Resume: true})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, checkpoint.FileName))

	var started int32
	results, err := s.Download(context.Background(), result, DownloadOptions{
		Dir:     dir,
		Workers: 2,
		Resume:  true,
		OnStart: func(models.ResolvedImage) { atomic.AddInt32(&started, 1) },
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Skipped)
	assert.Equal(t, filepath.Join(dir, "one.jpg"), results[0].SavedPath)
	assert.False(t, results[1].Success)
	assert.True(t, results[2].Skipped)
	// only the image that failed before is requested again
	assert.Equal(t, int32(1), atomic.LoadInt32(&started))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestDownloadFreshDiscardsCheckpoint(t *testing.T) {
	site := newMockSite(t)
	site.addPage("/", `<img src="/one.jpg"><img src="/two.jpg">`)
	site.addImage("/one.jpg", mockImage{size: 30 * kb})
	site.addImage("/two.jpg", mockImage{size: 20 * kb})

	s := newTestSniffer(t, true)
	result, err := s.Sniff(context.Background(), site.URL("/"), defaultOptions(), nil)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "images")
	_, err = s.Download(context.Background(), result, DownloadOptions{Dir: dir, Workers: 2, Resume: true})
	require.NoError(t, err)

	var started int32
	results, err := s.Download(context.Background(), result, DownloadOptions{
		Dir:     dir,
		Workers: 1,
		Resume:  true,
		Fresh:   true,
		OnStart: func(models.ResolvedImage) { atomic.AddInt32(&started, 1) },
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Success)
		assert.False(t, r.Skipped)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&started))
	assert.Equal(t, filepath.Join(dir, "one_1.jpg"), results[0].SavedPath)

	// the new checkpoint only knows the second round's files
	cpm := checkpoint.NewManager(dir, nil)
	cp, err := cpm.Load(result.Target)
	require.NoError(t, err)
	name, ok := cp.Lookup(site.URL("/one.jpg"))
	assert.True(t, ok)
	assert.Equal(t, "one_1.jpg", name)

	// fresh without resume leaves no checkpoint behind
	_, err = s.Download(context.Background(), result, DownloadOptions{Dir: dir, Workers: 1, Fresh: true})
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, checkpoint.FileName))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sniff.Order = "page"
	cfg.Browser.Enabled = true
	cfg.Browser.WaitSeconds = 2
	cfg.Browser.MaxScrolls = 3

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, ranking.OrderByPage, opts.Order)
	assert.True(t, opts.Render)
	assert.Equal(t, 2*time.Second, opts.Browser.Wait)
	assert.Equal(t, 3, opts.Browser.MaxScrolls)
	assert.Equal(t, config.DefaultUserAgent, opts.Fetch.UserAgent())

	cfg.Sniff.Order = "shuffle"
	_, err = OptionsFromConfig(cfg)
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	s := New(cfg, logger.NewNopLogger())
	assert.Equal(t, cfg.Sniff.Workers, s.settings.Workers)
	assert.Equal(t, config.DefaultUserAgent, s.client.FetchContext().UserAgent())
}
