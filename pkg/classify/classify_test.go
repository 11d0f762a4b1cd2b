package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsImageURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"data:image/png;base64,AAAA", false},
		{"DATA:image/png;base64,AAAA", false},
		{"https://x.com/a.JPG", true},
		{"https://x.com/gallery/image", true},
		{"https://x.com/a.txt", false},
		{"https://x.com/photo.webp?w=300", true},
		{"https://x.com/icon.svg#frag", true},
		{"https://cdn.x.com/IMAGES/123", true},
		{"https://x.com/page.html", false},
		{"", false},
		{"://broken/a.png", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, IsImageURL(tt.url))
		})
	}
}

func TestHasImageExtension(t *testing.T) {
	assert.True(t, HasImageExtension("https://x.com/full/a.jpeg"))
	assert.True(t, HasImageExtension("/relative/b.BMP"))
	assert.False(t, HasImageExtension("https://x.com/gallery/image"))
	assert.False(t, HasImageExtension("https://x.com/a.png.html"))
	assert.False(t, HasImageExtension("https://x.com/view?file=a.png"))
}

func TestExtensionFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://x.com/a.png", ".png"},
		{"https://x.com/a.jpeg", ".jpeg"},
		{"https://x.com/a.jpg", ".jpg"},
		{"https://x.com/img?fmt=.webp", ".webp"},
		{"https://x.com/a.png.jpg", ".png"},
		{"https://x.com/blob/123", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtensionFromURL(tt.url), tt.url)
	}
}

func TestExtensionFromContentType(t *testing.T) {
	tests := []struct {
		ct   string
		want string
	}{
		{"image/png", ".png"},
		{"image/jpeg; charset=binary", ".jpg"},
		{"IMAGE/GIF", ".gif"},
		{"image/webp", ".webp"},
		{"image/svg+xml", ".svg"},
		{"image/x-ms-bmp", ".bmp"},
		{"application/x-png", ".png"},
		{"text/html", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtensionFromContentType(tt.ct), tt.ct)
	}
}
