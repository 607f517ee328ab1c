// Package cleaner converts raw fetched HTML into clean Markdown text for
// the extractor, grounded on ares-core/src/traits.rs's Cleaner trait.
// Boilerplate stripping (nav/header/footer/script removal) follows
// crawler/internal/content/rawcontent/extractor.go's extractBodyHTML;
// the actual HTML→Markdown conversion is delegated to
// html-to-markdown/v2, present in the pack's go.mod listings with no
// call-site, so its wiring here follows the library's documented
// package-level ConvertString API.
package cleaner

import (
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"

	"github.com/andreabozzo/ares/internal/apperrors"
)

// noiseSelectors strips elements that contribute no extractable content,
// mirroring extractBodyHTML's removal list.
var noiseSelectors = []string{
	"header", "footer", "nav", "aside",
	".header", ".footer", ".navigation", ".sidebar", ".menu",
	"script", "style", "noscript", "svg",
}

// Cleaner converts raw HTML to Markdown.
type Cleaner struct {
	extraExcludes []string
}

// New builds a Cleaner. extraExcludes are additional CSS selectors to
// strip before conversion, beyond the built-in noise list.
func New(extraExcludes ...string) *Cleaner {
	return &Cleaner{extraExcludes: extraExcludes}
}

// Clean strips non-content chrome from html and converts the remainder to
// Markdown.
func (c *Cleaner) Clean(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", apperrors.NewCleaner("parse HTML: " + err.Error())
	}

	for _, sel := range noiseSelectors {
		doc.Find(sel).Remove()
	}
	for _, sel := range c.extraExcludes {
		if sel != "" {
			doc.Find(sel).Remove()
		}
	}

	body := doc.Find("body")
	var cleanedHTML string
	if body.Length() > 0 {
		cleanedHTML, _ = body.Html()
	} else {
		cleanedHTML, _ = doc.Html()
	}

	markdown, err := md.ConvertString(cleanedHTML)
	if err != nil {
		return "", apperrors.NewCleaner("convert HTML to markdown: " + err.Error())
	}
	return strings.TrimSpace(markdown), nil
}
