// Package extract turns a fetched listing page into server records and the
// links needed for discovery.
package extract

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/jonesrussell/guildcrawl/internal/domain"
)

// Selectors used on listing pages.
const (
	selServerInfo  = ".server-info"
	selServerBody  = ".server-body"
	selServerName  = ".server-name a"
	selDescription = ".server-description"
	selTag         = ".tag"
	selCategory    = ".server-category"
	selNextLink    = ".next a"
	selCategoryURL = ".category"
	selPagination  = ".pagination"
)

// Page is everything the crawl needs from one fetched document.
type Page struct {
	URL           string
	Title         string
	Records       []domain.ServerRecord
	NextHref      string
	CategoryHrefs []string
	TagHrefs      []string
	// HasListingMarkup is true when the document looks like a server listing,
	// even one with zero entries.
	HasListingMarkup bool
}

// Parse extracts records and links from body. scrapeTime is stamped on every record.
func Parse(body []byte, pageURL string, scrapeTime float64) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Page{}, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	page := Page{
		URL:   pageURL,
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}

	page.Records = extractRecords(doc, scrapeTime)
	page.NextHref, _ = doc.Find(selNextLink).First().Attr("href")
	page.CategoryHrefs = hrefs(doc.Find(selCategoryURL))
	page.TagHrefs = hrefs(doc.Find(selTag))
	page.HasListingMarkup = doc.Find(selServerInfo).Length() > 0 ||
		doc.Find(selCategoryURL).Length() > 0 ||
		doc.Find(selPagination).Length() > 0

	return page, nil
}

// extractRecords pairs each .server-info block with the .server-body at the same index.
func extractRecords(doc *goquery.Document, scrapeTime float64) []domain.ServerRecord {
	infos := doc.Find(selServerInfo)
	bodies := doc.Find(selServerBody)
	n := min(infos.Length(), bodies.Length())

	records := make([]domain.ServerRecord, 0, n)
	for i := range n {
		info := infos.Eq(i)
		bodySel := bodies.Eq(i)

		nameLink := info.Find(selServerName).First()
		link, ok := nameLink.Attr("href")
		if !ok || link == "" {
			continue
		}

		records = append(records, domain.ServerRecord{
			ScrapeTime:        scrapeTime,
			PlatformLink:      link,
			GuildID:           domain.GuildIDFromLink(link),
			ServerName:        strings.TrimSpace(nameLink.Text()),
			ServerDescription: strings.TrimSpace(ownText(bodySel.Find(selDescription))),
			Tags:              tags(bodySel.Find(selTag)),
			Category:          strings.TrimSpace(ownText(info.Find(selCategory).First())),
		})
	}
	return records
}

func tags(sel *goquery.Selection) []domain.Tag {
	out := make([]domain.Tag, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		id, hasID := s.Attr("data-id")
		title, hasTitle := s.Attr("title")
		if hasID && hasTitle {
			out = append(out, domain.Tag{ID: id, Name: title})
		}
	})
	return out
}

// ownText joins the text nodes that are direct children of the selection,
// skipping text nested inside child elements such as icons or badges.
func ownText(sel *goquery.Selection) string {
	var b strings.Builder
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		if node := s.Get(0); node != nil && node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
	})
	return b.String()
}

func hrefs(sel *goquery.Selection) []string {
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok && href != "" {
			out = append(out, href)
		}
	})
	return out
}

// ScrapeTime returns the server-reported Date header as epoch seconds, or
// fetchedAt when the header is absent or unparseable.
func ScrapeTime(h http.Header, fetchedAt time.Time) float64 {
	if raw := h.Get("Date"); raw != "" {
		if t, err := http.ParseTime(raw); err == nil {
			return float64(t.Unix())
		}
	}
	return float64(fetchedAt.UnixNano()) / float64(time.Second)
}
