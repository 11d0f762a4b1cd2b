package extract

import (
	"testing"

	cssast "github.com/aymerick/douceur/css"
	"github.com/stretchr/testify/assert"
)

func TestInlineStyleURLs(t *testing.T) {
	tests := []struct {
		style string
		want  []string
	}{
		{`background-image: url("/a.png")`, []string{"/a.png"}},
		{`color: red; background: url(b.jpg) center / cover`, []string{"b.jpg"}},
		{`border-image: url(c.png)`, nil},
		{`BACKGROUND-IMAGE: url('d.gif'), url(e.gif)`, []string{"d.gif", "e.gif"}},
		{`background-image:url(/tight.png);`, []string{"/tight.png"}},
		{`  background: url("/spaced.webp")  `, []string{"/spaced.webp"}},
		{``, nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InlineStyleURLs(tt.style), tt.style)
	}
}

func TestStylesheetURLsNested(t *testing.T) {
	css := `
		.a { background-image: url(/one.png) }
		@media screen { .b { background: url("/two.jpg") } }
		.c { list-style-image: url(/skip.png) }
	`
	assert.Equal(t, []string{"/one.png", "/two.jpg"}, StylesheetURLs(css))
}

func TestFallbackURLs(t *testing.T) {
	broken := `.x { background-image: url(/rescued.png); .y { background:url('/two.webp')`
	assert.Equal(t, []string{"/rescued.png", "/two.webp"}, fallbackURLs(broken))

	// every url() of a layered background is kept
	assert.Equal(t, []string{"/a.png", "/b.png"}, fallbackURLs(`background: url(/a.png), url("/b.png") center`))
	assert.Empty(t, fallbackURLs(`background-color: red; border-image: url(/c.png)`))
}

func TestDeclarationURLsReportsLostValue(t *testing.T) {
	urls, ok := declarationURLs([]*cssast.Declaration{{Property: "color", Value: "red"}, {Property: "background-image", Value: ""}})
	assert.False(t, ok)
	assert.Empty(t, urls)

	urls, ok = declarationURLs([]*cssast.Declaration{{Property: "Background", Value: "url(/x.png) no-repeat"}})
	assert.True(t, ok)
	assert.Equal(t, []string{"/x.png"}, urls)
}
