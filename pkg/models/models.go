package models

// SourceHint records where on the page a candidate URL was found
type SourceHint string

const (
	SourceImgSrc        SourceHint = "IMG_SRC"
	SourceDataSrc       SourceHint = "DATA_SRC"
	SourceDataOriginal  SourceHint = "DATA_ORIGINAL"
	SourceSrcset        SourceHint = "SRCSET"
	SourceCSSBackground SourceHint = "CSS_BACKGROUND"
	SourceAnchorHref    SourceHint = "ANCHOR_HREF"
)

type ImageCandidate struct {
	RawURL string
	Source SourceHint
}

// ResolvedImage is the best-known variant of a candidate plus what the
// server told us about it. Width and Height are 0 when unknown.
type ResolvedImage struct {
	URL         string
	ByteSize    uint64
	ContentType string
	Width       uint32
	Height      uint32
	Filename    string
}

func (r ResolvedImage) HasDimensions() bool {
	return r.Width > 0 && r.Height > 0
}

type DownloadResult struct {
	SourceURL string
	SavedPath string
	Success   bool
	// Skipped means the image was already on disk and not requested again
	Skipped bool
	Err     error
	Bytes   int64
}

// Record is the serialized form of a ResolvedImage
type Record struct {
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	Size        uint64 `json:"size"`
	Width       uint32 `json:"width"`
	Height      uint32 `json:"height"`
	ContentType string `json:"contentType"`
}

func ToRecord(img ResolvedImage) Record {
	return Record{
		URL:         img.URL,
		Filename:    img.Filename,
		Size:        img.ByteSize,
		Width:       img.Width,
		Height:      img.Height,
		ContentType: img.ContentType,
	}
}

// Records never returns nil so an empty result serializes as []
func Records(images []ResolvedImage) []Record {
	out := make([]Record, 0, len(images))
	for _, img := range images {
		out = append(out, ToRecord(img))
	}
	return out
}

// FromRecord is the inverse of ToRecord
func FromRecord(r Record) ResolvedImage {
	return ResolvedImage{
		URL:         r.URL,
		ByteSize:    r.Size,
		ContentType: r.ContentType,
		Width:       r.Width,
		Height:      r.Height,
		Filename:    r.Filename,
	}
}

// FromRecords restores the images of a saved result list
func FromRecords(records []Record) []ResolvedImage {
	out := make([]ResolvedImage, 0, len(records))
	for _, r := range records {
		out = append(out, FromRecord(r))
	}
	return out
}
