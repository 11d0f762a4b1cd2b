package browser

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgsniff/pkg/models"
	"imgsniff/pkg/web"
)

func TestScrollUntilStableStopsWhenHeightSettles(t *testing.T) {
	heights := []int64{1000, 2000, 3000, 3000}
	calls := 0
	height := func(context.Context) (int64, error) {
		h := heights[calls]
		calls++
		return h, nil
	}
	scrolled := 0
	scroll := func(context.Context) error { scrolled++; return nil }

	n, err := scrollUntilStable(context.Background(), 10, 0, height, scroll)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, scrolled)
}

func TestScrollUntilStableHonorsMax(t *testing.T) {
	h := int64(0)
	height := func(context.Context) (int64, error) { h += 100; return h, nil }
	scrolled := 0
	scroll := func(context.Context) error { scrolled++; return nil }

	n, err := scrollUntilStable(context.Background(), 4, 0, height, scroll)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, scrolled)

	n, err = scrollUntilStable(context.Background(), 0, 0, height, scroll)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestScrollUntilStablePropagatesErrors(t *testing.T) {
	boom := errors.New("target closed")
	height := func(context.Context) (int64, error) { return 10, nil }
	_, err := scrollUntilStable(context.Background(), 3, 0, height, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = scrollUntilStable(ctx, 3, time.Second, height, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecodeRefs(t *testing.T) {
	refs, err := decodeRefs(`[{"value":"https://x.com/a.png","source":"IMG_SRC"},{"value":"url(\"b.jpg\")","source":"CSS_BACKGROUND"}]`)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, models.SourceImgSrc, refs[0].Source)
	assert.Equal(t, `url("b.jpg")`, refs[1].Value)

	refs, err = decodeRefs("")
	require.NoError(t, err)
	assert.Empty(t, refs)

	_, err = decodeRefs("{not json")
	assert.Error(t, err)
}

func TestCookieFromNetwork(t *testing.T) {
	assert.Nil(t, cookieFromNetwork(nil))

	hc := cookieFromNetwork(&network.Cookie{
		Name:     "sid",
		Value:    "abc",
		Domain:   ".x.com",
		Path:     "/",
		Expires:  1700000000.5,
		HTTPOnly: true,
		Secure:   true,
		SameSite: network.CookieSameSiteLax,
	})
	assert.Equal(t, "sid", hc.Name)
	assert.Equal(t, ".x.com", hc.Domain)
	assert.True(t, hc.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, hc.SameSite)
	assert.Equal(t, int64(1700000000), hc.Expires.Unix())

	session := cookieFromNetwork(&network.Cookie{Name: "s", Session: true, Expires: -1})
	assert.True(t, session.Expires.IsZero())
}

func TestCookieParams(t *testing.T) {
	params := cookieParams([]*http.Cookie{
		{Name: "a", Value: "1"},
		{Name: "b", Value: "2", Domain: "cdn.x.com", Path: "/img", Expires: time.Unix(1700000000, 0)},
	}, "https://x.com/page?q=1")

	require.Len(t, params, 2)
	assert.Equal(t, "https://x.com", params[0].URL)
	assert.Equal(t, "/", params[0].Path)
	assert.Nil(t, params[0].Expires)
	assert.Equal(t, "cdn.x.com", params[1].Domain)
	assert.Empty(t, params[1].URL)
	require.NotNil(t, params[1].Expires)
}

func TestExtraHeadersDropsBrowserManaged(t *testing.T) {
	fc := web.NewFetchContext("ua", "https://ref", nil, map[string]string{
		"user-agent": "x",
		"Cookie":     "a=b",
		"X-Token":    "t",
	})
	h := extraHeaders(fc)
	assert.Equal(t, network.Headers{"X-Token": "t", "Referer": "https://ref"}, h)
}

func TestAllocatorOptionsAddsExecPath(t *testing.T) {
	base := allocatorOptions(DefaultOptions())
	opts := DefaultOptions()
	opts.ChromePath = "/usr/bin/chromium"
	assert.Len(t, allocatorOptions(opts), len(base)+1)
}

func TestCollectScriptCoversSources(t *testing.T) {
	for _, s := range []string{"IMG_SRC", "DATA_SRC", "DATA_ORIGINAL", "SRCSET", "ANCHOR_HREF", "CSS_BACKGROUND", "getComputedStyle"} {
		assert.Contains(t, collectScript, s)
	}
}
