package feed

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

// Cleaner turns feed entry markup into plain text.
type Cleaner struct{}

func NewCleaner() *Cleaner {
	return &Cleaner{}
}

// Run strips tags, scripts and styles from the given HTML fragment and
// collapses whitespace. The result is NFC-normalized so that equal-looking
// content fingerprints equally regardless of the feed's unicode form.
func (c *Cleaner) Run(html string) string {
	if html == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return norm.NFC.String(strings.TrimSpace(html))
	}

	doc.Find("script, style").Remove()

	text := strings.Join(strings.Fields(doc.Text()), " ")
	return norm.NFC.String(text)
}
