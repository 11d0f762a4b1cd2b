package extract

import (
	"regexp"
	"strings"

	cssast "github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
)

var (
	urlFunc = regexp.MustCompile(`(?i)url\(\s*["']?([^"')\s]+)["']?\s*\)`)
	// used when douceur rejects the text or loses a declaration value
	backgroundDecl = regexp.MustCompile(`(?i)background(?:-image)?\s*:([^;{}]*)`)
)

// InlineStyleURLs returns background image URLs from a style attribute. The
// attribute is parsed as the body of a single rule.
func InlineStyleURLs(style string) []string {
	style = strings.TrimSpace(style)
	if style == "" {
		return nil
	}
	return StylesheetURLs("x{" + style + "}")
}

// StylesheetURLs returns background image URLs from a stylesheet, including
// rules nested in at-rules such as @media.
func StylesheetURLs(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	sheet, err := parser.Parse(text)
	if err != nil {
		return fallbackURLs(text)
	}

	var (
		urls []string
		lost bool
	)
	var walk func(rules []*cssast.Rule)
	walk = func(rules []*cssast.Rule) {
		for _, rule := range rules {
			found, ok := declarationURLs(rule.Declarations)
			urls = append(urls, found...)
			lost = lost || !ok
			walk(rule.Rules)
		}
	}
	walk(sheet.Rules)
	if lost {
		return fallbackURLs(text)
	}
	return urls
}

// declarationURLs reports false when a background declaration came back
// without a value.
func declarationURLs(decls []*cssast.Declaration) ([]string, bool) {
	var urls []string
	for _, d := range decls {
		switch strings.ToLower(strings.TrimSpace(d.Property)) {
		case "background", "background-image":
			if strings.TrimSpace(d.Value) == "" {
				return nil, false
			}
			urls = append(urls, cssURLs(d.Value)...)
		}
	}
	return urls, true
}

func cssURLs(value string) []string {
	var urls []string
	for _, m := range urlFunc.FindAllStringSubmatch(value, -1) {
		urls = append(urls, m[1])
	}
	return urls
}

func fallbackURLs(text string) []string {
	var urls []string
	for _, m := range backgroundDecl.FindAllStringSubmatch(text, -1) {
		urls = append(urls, cssURLs(m[1])...)
	}
	return urls
}
