package sniffer

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// mockImage describes how the mock site serves one image path
type mockImage struct {
	size        int
	contentType string
	// chunked omits Content-Length on both HEAD and GET
	chunked bool
	// failGet makes GET return 500 while HEAD keeps answering
	failGet bool
	// cookie, when set, is required as "name=value" or the server answers 403
	cookie string
}

// mockSite simulates a site with HTML pages and image resources
type mockSite struct {
	server       *httptest.Server
	mu           sync.RWMutex
	pages        map[string]string
	pageStatus   map[string]int
	images       map[string]mockImage
	requestCount int32
	userAgents   map[string]bool
	referers     map[string]bool
}

func newMockSite(t *testing.T) *mockSite {
	t.Helper()
	m := &mockSite{
		pages:      make(map[string]string),
		pageStatus: make(map[string]int),
		images:     make(map[string]mockImage),
		userAgents: make(map[string]bool),
		referers:   make(map[string]bool),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockSite) URL(path string) string {
	return m.server.URL + path
}

func (m *mockSite) addPage(path, html string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[path] = html
}

func (m *mockSite) failPage(path string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageStatus[path] = status
}

func (m *mockSite) addImage(path string, img mockImage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if img.contentType == "" {
		img.contentType = "image/jpeg"
	}
	m.images[path] = img
}

func (m *mockSite) sawUserAgent(ua string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userAgents[ua]
}

func (m *mockSite) sawReferer(ref string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.referers[ref]
}

func (m *mockSite) requests() int {
	return int(atomic.LoadInt32(&m.requestCount))
}

func (m *mockSite) handle(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.requestCount, 1)

	m.mu.Lock()
	m.userAgents[r.UserAgent()] = true
	if ref := r.Referer(); ref != "" {
		m.referers[ref] = true
	}
	status, failed := m.pageStatus[r.URL.Path]
	page, isPage := m.pages[r.URL.Path]
	img, isImage := m.images[r.URL.Path]
	m.mu.Unlock()

	switch {
	case failed:
		w.WriteHeader(status)
	case isPage:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(page))
	case isImage:
		m.serveImage(w, r, img)
	default:
		http.NotFound(w, r)
	}
}

func (m *mockSite) serveImage(w http.ResponseWriter, r *http.Request, img mockImage) {
	if img.cookie != "" {
		name, value, _ := strings.Cut(img.cookie, "=")
		c, err := r.Cookie(name)
		if err != nil || c.Value != value {
			w.WriteHeader(http.StatusForbidden)
			return
		}
	}
	if r.Method == http.MethodGet && img.failGet {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", img.contentType)
	if !img.chunked {
		w.Header().Set("Content-Length", strconv.Itoa(img.size))
	}
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	chunk := bytes.Repeat([]byte{0x42}, 4096)
	for sent := 0; sent < img.size; sent += len(chunk) {
		n := len(chunk)
		if img.size-sent < n {
			n = img.size - sent
		}
		if _, err := w.Write(chunk[:n]); err != nil {
			return
		}
		if img.chunked {
			w.(http.Flusher).Flush()
		}
	}
}
