package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "imgsniff/pkg/errors"
	"imgsniff/pkg/logger"
	"imgsniff/pkg/retry"
)

func testOptions() Options {
	return Options{
		PageTimeout: 5 * time.Second,
		Policy: retry.Policy{
			MaxAttempts:     3,
			Backoff:         &retry.ConstantBackoff{Delay: time.Millisecond},
			RetryableStatus: []int{429, 500, 502, 503, 504},
		},
	}
}

func TestFetchPageSendsFetchContext(t *testing.T) {
	var gotUA, gotReferer, gotCookie, gotExtra string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		gotReferer = r.Referer()
		if c, err := r.Cookie("session"); err == nil {
			gotCookie = c.Value
		}
		gotExtra = r.Header.Get("X-Trace")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body><img src=a.png></body></html>"))
	}))
	defer srv.Close()

	fc := NewFetchContext("sniffer/1.0", "https://ref.example", []*http.Cookie{{Name: "session", Value: "abc"}}, map[string]string{"X-Trace": "1"})
	client := NewClient(testOptions(), fc, logger.NewNopLogger())

	page, err := client.FetchPage(context.Background(), srv.URL+"/gallery")
	require.NoError(t, err)

	assert.Contains(t, page.Content, "<img src=a.png>")
	assert.Equal(t, srv.URL+"/gallery", page.URL)
	assert.Equal(t, "sniffer/1.0", gotUA)
	assert.Equal(t, "https://ref.example", gotReferer)
	assert.Equal(t, "abc", gotCookie)
	assert.Equal(t, "1", gotExtra)
}

func TestFetchPageReportsFinalURLAfterRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new/", http.StatusFound)
	})
	mux.HandleFunc("/new/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(testOptions(), FetchContext{}, logger.NewNopLogger())
	page, err := client.FetchPage(context.Background(), srv.URL+"/old")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/new/", page.URL)
}

func TestFetchPageErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(testOptions(), FetchContext{}, logger.NewNopLogger())

	_, err := client.FetchPage(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypePageFetch))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits), "503 retried by transport")

	_, err = client.FetchPage(context.Background(), "not a url")
	assert.True(t, errs.IsType(err, errs.ErrorTypeInvalidInput))

	_, err = client.FetchPage(context.Background(), "http://127.0.0.1:1/unreachable")
	assert.True(t, errs.IsType(err, errs.ErrorTypePageFetch))
}

func TestFetchPageDecodesCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write([]byte("<p>caf\xe9</p>"))
	}))
	defer srv.Close()

	client := NewClient(testOptions(), FetchContext{}, logger.NewNopLogger())
	page, err := client.FetchPage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, page.Content, "café")
}

func TestWithFetchContextLeavesOriginal(t *testing.T) {
	base := NewClient(testOptions(), NewFetchContext("a", "", nil, nil), logger.NewNopLogger())
	derived := base.WithFetchContext(base.FetchContext().WithUserAgent("b"))

	assert.Equal(t, "a", base.FetchContext().UserAgent())
	assert.Equal(t, "b", derived.FetchContext().UserAgent())
}

func TestContentLength(t *testing.T) {
	h := http.Header{}
	assert.Equal(t, uint64(0), ContentLength(h))
	h.Set("Content-Length", "51200")
	assert.Equal(t, uint64(51200), ContentLength(h))
	h.Set("Content-Length", "-1")
	assert.Equal(t, uint64(0), ContentLength(h))
}

func TestRequestsPerSecondThrottlesPerHost(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	opts := testOptions()
	opts.RequestsPerSecond = 1
	c := NewClient(opts, FetchContext{}, logger.NewNopLogger())

	resp, err := c.Head(context.Background(), srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = c.Head(ctx, srv.URL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestBucketStrategyAdmitsBurst(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	opts := testOptions()
	opts.RequestsPerSecond = 3
	opts.RateStrategy = "bucket"
	c := NewClient(opts, FetchContext{}, logger.NewNopLogger())

	for i := 0; i < 3; i++ {
		resp, err := c.Head(context.Background(), srv.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := c.Head(ctx, srv.URL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}
