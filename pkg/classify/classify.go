// Package classify decides whether a URL plausibly points at an image and
// infers file extensions from URLs and content types.
package classify

import (
	"net/url"
	"strings"
)

// ImageExtensions are the suffixes treated as image references
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".svg"}

// substring probe order; .jpg last so ".jpeg" and others win first
var extensionPriority = []string{".png", ".gif", ".webp", ".jpeg", ".bmp", ".svg", ".jpg"}

// IsImageURL reports whether raw looks like an image reference. data: URIs
// never qualify.
func IsImageURL(raw string) bool {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" || strings.HasPrefix(lower, "data:") {
		return false
	}
	return HasImageExtension(raw) || strings.Contains(lower, "image")
}

// HasImageExtension tests only the URL path suffix
func HasImageExtension(raw string) bool {
	p := strings.ToLower(pathOf(raw))
	for _, ext := range ImageExtensions {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	return false
}

// ExtensionFromURL returns the first known extension appearing anywhere in
// the URL, or "" when none does.
func ExtensionFromURL(raw string) string {
	lower := strings.ToLower(raw)
	for _, ext := range extensionPriority {
		if strings.Contains(lower, ext) {
			return ext
		}
	}
	return ""
}

// ExtensionFromContentType maps an image MIME type to an extension, or ""
func ExtensionFromContentType(ct string) string {
	ct = strings.ToLower(ct)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	switch strings.TrimSpace(ct) {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp", "image/x-ms-bmp":
		return ".bmp"
	case "image/svg+xml":
		return ".svg"
	}
	switch {
	case strings.Contains(ct, "png"):
		return ".png"
	case strings.Contains(ct, "gif"):
		return ".gif"
	case strings.Contains(ct, "webp"):
		return ".webp"
	}
	return ""
}

func pathOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	return u.Path
}
