// Package ranking filters resolved images by size and orders the survivors.
package ranking

import (
	"fmt"
	"sort"
	"strings"

	errs "imgsniff/pkg/errors"
	"imgsniff/pkg/models"
)

// Order is the sort policy applied after filtering
type Order string

const (
	// OrderBySize sorts largest first; equal sizes keep arrival order
	OrderBySize Order = "size"
	// OrderByPage keeps the order in which images were found on the page
	OrderByPage Order = "page"
)

func (o Order) String() string {
	return string(o)
}

func ParseOrder(s string) (Order, error) {
	switch Order(strings.ToLower(strings.TrimSpace(s))) {
	case "", OrderBySize:
		return OrderBySize, nil
	case OrderByPage:
		return OrderByPage, nil
	}
	return "", errs.New(errs.ErrorTypeInvalidInput, 0, "unknown order %q (want %s or %s)", s, OrderBySize, OrderByPage)
}

// Threshold converts a kilobyte threshold to bytes
func Threshold(minKB int) uint64 {
	if minKB <= 0 {
		return 0
	}
	return uint64(minKB) * 1024
}

// Filter returns the images of at least minKB kilobytes in the given order.
// The input slice is never modified.
func Filter(images []models.ResolvedImage, minKB int, order Order) []models.ResolvedImage {
	min := Threshold(minKB)
	kept := make([]models.ResolvedImage, 0, len(images))
	for _, img := range images {
		if img.ByteSize >= min {
			kept = append(kept, img)
		}
	}

	if order != OrderByPage {
		sort.SliceStable(kept, func(i, j int) bool {
			return kept[i].ByteSize > kept[j].ByteSize
		})
	}
	return kept
}

// Describe summarizes a filter outcome for logs and the terminal
func Describe(total, kept, minKB int) string {
	return fmt.Sprintf("%d of %d images are at least %d KB", kept, total, minKB)
}
