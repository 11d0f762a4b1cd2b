package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgsniff/pkg/models"
)

func sample() []models.Record {
	return models.Records([]models.ResolvedImage{
		{URL: "https://x.com/a.jpg?w=1&h=2", Filename: "a.jpg", ByteSize: 204800, ContentType: "image/jpeg", Width: 800, Height: 600},
		{URL: "https://x.com/b.png", Filename: "b.png", ByteSize: 51200, ContentType: "image/png"},
	})
}

func TestWriteFieldNames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sample()))

	var raw []map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	require.Len(t, raw, 2)

	keys := make([]string, 0, len(raw[0]))
	for k := range raw[0] {
		keys = append(keys, k)
	}
	assert.ElementsMatch(t, []string{"url", "filename", "size", "width", "height", "contentType"}, keys)
	assert.EqualValues(t, 0, raw[1]["width"])
	assert.Contains(t, buf.String(), "w=1&h=2", "URLs must not be HTML-escaped")
}

func TestWriteEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, nil))
	assert.Equal(t, "[]", strings.TrimSpace(buf.String()))
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.json")

	require.NoError(t, Save(path, sample()))
	assert.NoFileExists(t, path+".tmp")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, sample(), loaded)

	// overwrite in place
	require.NoError(t, Save(path, nil))
	loaded, err = Load(path)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0644))
	_, err = Load(bad)
	assert.Error(t, err)
}
