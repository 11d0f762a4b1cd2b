package ui

import (
	"fmt"
	"io"
	"text/tabwriter"

	"imgsniff/pkg/models"
)

// PrintImages writes a human-readable table of images
func PrintImages(w io.Writer, images []models.ResolvedImage) {
	if len(images) == 0 {
		fmt.Fprintln(w, Yellow("No images matched"))
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSIZE\tDIMENSIONS\tTYPE\tURL")
	for i, img := range images {
		dims := "-"
		if img.HasDimensions() {
			dims = fmt.Sprintf("%dx%d", img.Width, img.Height)
		}
		ct := img.ContentType
		if ct == "" {
			ct = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, formatBytes(int64(img.ByteSize)), dims, ct, img.URL)
	}
	tw.Flush()
}
