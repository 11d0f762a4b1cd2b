// Package metadata learns the byte size, content type and optionally the
// pixel dimensions of an image URL with as little transfer as possible.
package metadata

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	// decoders registered for image.DecodeConfig
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"imgsniff/pkg/classify"
	"imgsniff/pkg/logger"
	"imgsniff/pkg/models"
	"imgsniff/pkg/web"
)

const (
	chunkSize = 8 << 10
	// partial reads stop once more than this many bytes were counted
	partialReadLimit = 1 << 20
	// enough for the header of every registered format in practice
	headerPrefixLimit = 64 << 10
)

type Options struct {
	Timeout          time.Duration
	DecodeDimensions bool
}

// Fetcher is safe for concurrent use
type Fetcher struct {
	client  *web.Client
	timeout time.Duration
	decode  bool
	logger  logger.Logger
}

func New(client *web.Client, opts Options, log logger.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Fetcher{
		client:  client,
		timeout: opts.Timeout,
		decode:  opts.DecodeDimensions,
		logger:  logger.OrGlobal(log),
	}
}

// response is what one request told us
type response struct {
	status      int
	size        uint64
	contentType string
	width       uint32
	height      uint32
}

// FetchMetadata never fails. When nothing can be learned the result only
// carries the URL and a derived filename.
func (f *Fetcher) FetchMetadata(ctx context.Context, rawURL string) models.ResolvedImage {
	img := models.ResolvedImage{URL: rawURL}

	head, headErr := f.head(ctx, rawURL)
	if headErr == nil && head.status == http.StatusOK {
		img.ByteSize = head.size
		img.ContentType = head.contentType
	}

	if headErr != nil || head.status != http.StatusOK || img.ByteSize == 0 || f.decode {
		get, err := f.get(ctx, rawURL)
		if err != nil {
			f.logger.DebugWithFields("metadata fetch failed", map[string]interface{}{
				"url":   rawURL,
				"error": err.Error(),
			})
		} else if get.status >= 200 && get.status < 300 {
			if get.size > img.ByteSize {
				img.ByteSize = get.size
			}
			if img.ContentType == "" {
				img.ContentType = get.contentType
			}
			img.Width, img.Height = get.width, get.height
		}
	}

	if img.ByteSize == 0 {
		// a type without any size signal is not a result
		img.ContentType = ""
	}
	img.Filename = Filename(rawURL, img.ContentType)
	return img
}

func (f *Fetcher) head(ctx context.Context, rawURL string) (response, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	resp, err := f.client.Head(ctx, rawURL)
	if err != nil {
		return response{}, err
	}
	resp.Body.Close()

	return response{
		status:      resp.StatusCode,
		size:        lengthOf(resp),
		contentType: resp.Header.Get("Content-Type"),
	}, nil
}

// get streams the body only as far as needed: a bounded count when no
// length was announced, and a header prefix when dimensions are wanted.
func (f *Fetcher) get(ctx context.Context, rawURL string) (response, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	resp, err := f.client.Get(ctx, rawURL)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()

	r := response{
		status:      resp.StatusCode,
		size:        lengthOf(resp),
		contentType: resp.Header.Get("Content-Type"),
	}
	if r.status < 200 || r.status >= 300 {
		return r, nil
	}

	var prefix []byte
	if r.size == 0 {
		r.size, prefix = readPartial(resp.Body, f.decode)
	} else if f.decode {
		prefix, _ = io.ReadAll(io.LimitReader(resp.Body, headerPrefixLimit))
	}
	if f.decode {
		r.width, r.height = DecodeDimensions(prefix)
	}
	return r, nil
}

// lengthOf prefers the larger of the header and the parsed length; the
// transport drops the header when it transparently decompresses.
func lengthOf(resp *http.Response) uint64 {
	n := web.ContentLength(resp.Header)
	if resp.ContentLength > 0 && uint64(resp.ContentLength) > n {
		n = uint64(resp.ContentLength)
	}
	return n
}

// readPartial counts body bytes in chunks until EOF or past the limit. The
// count is a lower bound for large bodies.
func readPartial(body io.Reader, keepPrefix bool) (uint64, []byte) {
	buf := make([]byte, chunkSize)
	var (
		total  uint64
		prefix []byte
	)
	for total <= partialReadLimit {
		n, err := body.Read(buf)
		if n > 0 {
			total += uint64(n)
			if keepPrefix && len(prefix) < headerPrefixLimit {
				prefix = append(prefix, buf[:n]...)
			}
		}
		if err != nil {
			break
		}
	}
	return total, prefix
}

// DecodeDimensions reads width and height from an image header. Unknown or
// truncated data yields 0, 0.
func DecodeDimensions(prefix []byte) (uint32, uint32) {
	if len(prefix) == 0 {
		return 0, 0
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(prefix))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0
	}
	return uint32(cfg.Width), uint32(cfg.Height)
}

// Filename is the last path segment of rawURL when it has an extension,
// otherwise image_<n><ext> with n a stable hash of the URL.
func Filename(rawURL, contentType string) string {
	if u, err := url.Parse(rawURL); err == nil {
		name := path.Base(u.Path)
		if name != "." && name != "/" && strings.Contains(name, ".") {
			return name
		}
	}

	ext := classify.ExtensionFromContentType(contentType)
	switch ext {
	case ".png", ".gif", ".webp":
	default:
		ext = ".jpg"
	}

	h := fnv.New32a()
	h.Write([]byte(rawURL))
	return fmt.Sprintf("image_%d%s", h.Sum32()%10000, ext)
}
