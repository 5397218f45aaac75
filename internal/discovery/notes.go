package discovery

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// StripHTML reduces show notes to plain text. Feed descriptions commonly
// arrive as HTML fragments full of links, lists, and tracking markup that
// would pollute digest scripts.
func StripHTML(html string) string {
	html = strings.TrimSpace(html)
	if html == "" {
		return ""
	}
	if !strings.ContainsRune(html, '<') {
		return collapseWhitespace(html)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return collapseWhitespace(html)
	}
	doc.Find("script, style").Remove()
	return collapseWhitespace(doc.Text())
}

func collapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
