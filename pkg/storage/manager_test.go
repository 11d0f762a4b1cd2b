package storage

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "imgsniff/pkg/errors"
	"imgsniff/pkg/logger"
	"imgsniff/pkg/models"
	"imgsniff/pkg/retry"
	"imgsniff/pkg/web"
)

func newClient() *web.Client {
	return web.NewClient(web.Options{
		Policy: retry.Policy{MaxAttempts: 1, Backoff: &retry.ConstantBackoff{}},
	}, web.FetchContext{}, logger.NewNopLogger())
}

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/a.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(bytes.Repeat([]byte{0xFF}, 20000))
	})
	mux.HandleFunc("/b.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	})
	mux.HandleFunc("/render", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/webp")
		w.Write([]byte("webp-bytes"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewManagerCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")

	m, err := NewManager(dir, newClient(), logger.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, dir, m.Dir())
	assert.DirExists(t, dir)

	_, err = NewManager(dir, newClient(), logger.NewNopLogger())
	assert.NoError(t, err)
}

func TestDownloadSavesFile(t *testing.T) {
	srv := imageServer(t)
	dir := t.TempDir()
	m, err := NewManager(dir, newClient(), logger.NewNopLogger())
	require.NoError(t, err)

	res := m.Download(context.Background(), models.ResolvedImage{URL: srv.URL + "/a.jpg", Filename: "a.jpg"}, 0)
	require.True(t, res.Success, "%v", res.Err)
	assert.Equal(t, filepath.Join(dir, "a.jpg"), res.SavedPath)
	assert.Equal(t, int64(20000), res.Bytes)

	data, err := os.ReadFile(res.SavedPath)
	require.NoError(t, err)
	assert.Len(t, data, 20000)
	assert.NoFileExists(t, res.SavedPath+".part")
}

func TestDownloadTwiceAddsSuffix(t *testing.T) {
	srv := imageServer(t)
	dir := t.TempDir()
	m, err := NewManager(dir, newClient(), logger.NewNopLogger())
	require.NoError(t, err)

	img := models.ResolvedImage{URL: srv.URL + "/b.png", Filename: "b.png"}
	first := m.Download(context.Background(), img, 0)
	second := m.Download(context.Background(), img, 0)

	require.True(t, first.Success)
	require.True(t, second.Success)
	assert.Equal(t, filepath.Join(dir, "b.png"), first.SavedPath)
	assert.Equal(t, filepath.Join(dir, "b_1.png"), second.SavedPath)
}

func TestDownloadFailureLeavesNothing(t *testing.T) {
	srv := imageServer(t)
	dir := t.TempDir()
	m, err := NewManager(dir, newClient(), logger.NewNopLogger())
	require.NoError(t, err)

	res := m.Download(context.Background(), models.ResolvedImage{URL: srv.URL + "/missing.jpg", Filename: "missing.jpg"}, 0)
	assert.False(t, res.Success)
	assert.True(t, errs.IsType(res.Err, errs.ErrorTypeNotFound))
	assert.Empty(t, res.SavedPath)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadAllMixedOutcome(t *testing.T) {
	srv := imageServer(t)
	dir := t.TempDir()
	m, err := NewManager(dir, newClient(), logger.NewNopLogger())
	require.NoError(t, err)

	images := []models.ResolvedImage{
		{URL: srv.URL + "/a.jpg", Filename: "a.jpg"},
		{URL: srv.URL + "/missing.jpg", Filename: "missing.jpg"},
		{URL: srv.URL + "/b.png", Filename: "b.png"},
	}
	var calls []int
	results := m.DownloadAll(context.Background(), images, false, 2, func(done int, r models.DownloadResult) {
		calls = append(calls, done)
	})

	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, images[i].URL, r.SourceURL)
	}
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.True(t, results[2].Success)
	assert.Equal(t, []int{1, 2, 3}, calls)

	ok, total := Summary(results)
	assert.Equal(t, 2, ok)
	assert.Equal(t, 3, total)
}

func TestDownloadAllOrdinalNames(t *testing.T) {
	srv := imageServer(t)
	dir := t.TempDir()
	m, err := NewManager(dir, newClient(), logger.NewNopLogger())
	require.NoError(t, err)

	images := []models.ResolvedImage{
		{URL: srv.URL + "/a.jpg", Filename: "a.jpg"},
		{URL: srv.URL + "/render", ContentType: "image/webp"},
		{URL: srv.URL + "/b.png", Filename: "b.png"},
	}
	results := m.DownloadAll(context.Background(), images, true, 3, nil)

	var names []string
	for _, r := range results {
		require.True(t, r.Success, "%v", r.Err)
		names = append(names, filepath.Base(r.SavedPath))
	}
	sort.Strings(names)
	assert.Equal(t, []string{"001.jpg", "002.webp", "003.png"}, names)
}

func TestDownloadAllSameNameConcurrently(t *testing.T) {
	srv := imageServer(t)
	dir := t.TempDir()
	m, err := NewManager(dir, newClient(), logger.NewNopLogger())
	require.NoError(t, err)

	images := make([]models.ResolvedImage, 6)
	for i := range images {
		images[i] = models.ResolvedImage{URL: srv.URL + "/b.png", Filename: "b.png"}
	}
	results := m.DownloadAll(context.Background(), images, false, 6, nil)

	seen := map[string]bool{}
	for _, r := range results {
		require.True(t, r.Success)
		assert.False(t, seen[r.SavedPath], "duplicate path %s", r.SavedPath)
		seen[r.SavedPath] = true
	}
	assert.Len(t, seen, 6)
}

func TestDownloadCancelled(t *testing.T) {
	srv := imageServer(t)
	m, err := NewManager(t.TempDir(), newClient(), logger.NewNopLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := m.Download(ctx, models.ResolvedImage{URL: srv.URL + "/a.jpg", Filename: "a.jpg"}, 0)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestTargetName(t *testing.T) {
	tests := []struct {
		name    string
		img     models.ResolvedImage
		ordinal int
		want    string
	}{
		{"derived", models.ResolvedImage{URL: "https://x.com/p.jpg", Filename: "p.jpg"}, 0, "p.jpg"},
		{"ordinal from filename", models.ResolvedImage{URL: "https://x.com/p", Filename: "p.GIF"}, 7, "007.gif"},
		{"ordinal from url", models.ResolvedImage{URL: "https://x.com/p.png?x=1"}, 1, "001.png"},
		{"ordinal from content type", models.ResolvedImage{URL: "https://x.com/p", ContentType: "image/webp"}, 12, "012.webp"},
		{"ordinal default", models.ResolvedImage{URL: "https://x.com/p"}, 3, "003.jpg"},
		{"separators", models.ResolvedImage{Filename: "..\\evil/name.png"}, 0, "_evil_name.png"},
		{"hidden", models.ResolvedImage{Filename: ".hidden.png"}, 0, "hidden.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TargetName(tt.img, tt.ordinal))
		})
	}

	synth := TargetName(models.ResolvedImage{URL: "https://x.com/render", ContentType: "image/png"}, 0)
	assert.Regexp(t, `^image_\d+\.png$`, synth)
}

func TestStartHookSeesEveryImage(t *testing.T) {
	srv := imageServer(t)
	seen := make(chan string, 2)
	m, err := NewManager(t.TempDir(), newClient(), logger.NewNopLogger(),
		WithStartHook(func(img models.ResolvedImage) { seen <- img.URL }))
	require.NoError(t, err)

	m.DownloadAll(context.Background(), []models.ResolvedImage{
		{URL: srv.URL + "/a.jpg"},
		{URL: srv.URL + "/b.png"},
	}, false, 2, nil)
	close(seen)

	var urls []string
	for u := range seen {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	assert.Equal(t, []string{srv.URL + "/a.jpg", srv.URL + "/b.png"}, urls)
}

func TestSkipReturnsStoredPathWithoutRequest(t *testing.T) {
	srv := imageServer(t)
	dir := t.TempDir()
	stored := filepath.Join(dir, "a.jpg")
	require.NoError(t, os.WriteFile(stored, []byte("kept"), 0644))

	started := 0
	m, err := NewManager(dir, newClient(), logger.NewNopLogger(),
		WithStartHook(func(models.ResolvedImage) { started++ }),
		WithSkip(func(img models.ResolvedImage) (string, bool) {
			if img.URL == srv.URL+"/a.jpg" {
				return stored, true
			}
			return "", false
		}))
	require.NoError(t, err)

	r := m.Download(context.Background(), models.ResolvedImage{URL: srv.URL + "/a.jpg"}, 0)
	assert.True(t, r.Success)
	assert.True(t, r.Skipped)
	assert.Equal(t, stored, r.SavedPath)
	assert.Zero(t, started)

	r = m.Download(context.Background(), models.ResolvedImage{URL: srv.URL + "/b.png"}, 0)
	assert.True(t, r.Success)
	assert.False(t, r.Skipped)
	assert.Equal(t, 1, started)
}
