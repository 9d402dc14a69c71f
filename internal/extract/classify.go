package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/guildcrawl/internal/domain"
)

// DefaultDenialSignatures are page titles served by anti-bot edges instead of content.
var DefaultDenialSignatures = []string{
	"Access denied",
	"Attention Required! | Cloudflare",
	"Just a moment...",
	"Please Wait... | Cloudflare",
}

// Classifier decides what kind of page was fetched.
type Classifier struct {
	signatures []string
}

// NewClassifier creates a classifier. An empty list uses DefaultDenialSignatures.
func NewClassifier(signatures []string) *Classifier {
	if len(signatures) == 0 {
		signatures = DefaultDenialSignatures
	}
	return &Classifier{signatures: signatures}
}

// IsDenial reports whether title matches a denial signature.
func (c *Classifier) IsDenial(title string) bool {
	if title == "" {
		return false
	}
	for _, sig := range c.signatures {
		if strings.Contains(title, sig) {
			return true
		}
	}
	return false
}

// Classify returns the page kind. Denial wins over everything else, so a
// challenge page never yields records or links.
func (c *Classifier) Classify(p Page) domain.PageKind {
	switch {
	case c.IsDenial(p.Title):
		return domain.PageDenial
	case len(p.Records) > 0:
		return domain.PageListing
	case p.HasListingMarkup:
		return domain.PageEmpty
	default:
		return domain.PageUnexpected
	}
}

// Title returns the trimmed <title> text of an HTML document, or "" when it
// cannot be parsed.
func Title(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
