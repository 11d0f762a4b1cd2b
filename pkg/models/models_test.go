package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordJSONFieldNames(t *testing.T) {
	img := ResolvedImage{
		URL:         "https://x.com/a.png",
		ByteSize:    204800,
		ContentType: "image/png",
		Filename:    "a.png",
	}

	data, err := json.Marshal(ToRecord(img))
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"url":"https://x.com/a.png","filename":"a.png","size":204800,"width":0,"height":0,"contentType":"image/png"}`,
		string(data))
}

func TestRecordsEmptyIsArray(t *testing.T) {
	data, err := json.Marshal(Records(nil))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestHasDimensions(t *testing.T) {
	assert.False(t, ResolvedImage{}.HasDimensions())
	assert.False(t, ResolvedImage{Width: 10}.HasDimensions())
	assert.True(t, ResolvedImage{Width: 10, Height: 20}.HasDimensions())
}

func TestFromRecordsRestoresImages(t *testing.T) {
	images := []ResolvedImage{
		{URL: "https://x.com/a.jpg", ByteSize: 2048, ContentType: "image/jpeg", Width: 4, Height: 3, Filename: "a.jpg"},
		{URL: "https://x.com/b", ByteSize: 99, Filename: "image_12.jpg"},
	}
	assert.Equal(t, images, FromRecords(Records(images)))
	assert.Empty(t, FromRecords(nil))
}
