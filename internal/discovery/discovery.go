// Package discovery expands a fetched listing page into follow-up requests.
//
// Priorities are offsets from the page's record count n:
//
//	pagination  n + 50
//	category    n + 25
//	tag         n + 1
//
// so for any single page the three bands never overlap.
package discovery

import (
	"net/url"
	"slices"
	"strings"

	"github.com/jonesrussell/guildcrawl/internal/domain"
	"github.com/jonesrussell/guildcrawl/internal/extract"
)

const (
	// DefaultBaseURL is the crawled site.
	DefaultBaseURL = "https://disboard.org"
	// WebCachePrefix routes a URL through the public cache mirror.
	WebCachePrefix = "https://webcache.googleusercontent.com/search?q=cache:"

	// DefaultPaginationThreshold is the minimum record count for following "next".
	DefaultPaginationThreshold = 5
	// DefaultTagThreshold is the minimum record count for following tag links.
	DefaultTagThreshold = 5

	PaginationOffset = 50
	CategoryOffset   = 25
	TagOffset        = 1
)

// Config controls which links are followed and how their URLs are built.
type Config struct {
	BaseURL             string
	Prefix              string
	Postfixes           []string
	FollowPagination    bool
	FollowCategory      bool
	FollowTag           bool
	PaginationThreshold int
	TagThreshold        int
}

// Discoverer computes follow-up requests. It holds no mutable state.
type Discoverer struct {
	cfg  Config
	base *url.URL
}

// New creates a Discoverer. A zero BaseURL uses DefaultBaseURL; nil Postfixes
// uses the unfiltered variants.
func New(cfg Config) (*Discoverer, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Postfixes == nil {
		cfg.Postfixes = Postfixes("", nil)
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	return &Discoverer{cfg: cfg, base: base}, nil
}

// Discover returns pagination, category and tag requests for page, in that order.
// The caller must not pass denial pages.
func (d *Discoverer) Discover(page extract.Page) []*domain.Request {
	n := len(page.Records)
	var out []*domain.Request

	if d.cfg.FollowPagination && n >= d.cfg.PaginationThreshold && page.NextHref != "" {
		if next, err := d.base.Parse(page.NextHref); err == nil {
			out = append(out, domain.NewRequest(d.cfg.Prefix+next.String(), n+PaginationOffset, domain.SourcePagination))
		}
	}

	if d.cfg.FollowCategory {
		out = d.expand(out, page.CategoryHrefs, n+CategoryOffset, domain.SourceCategory)
	}

	if d.cfg.FollowTag && n >= d.cfg.TagThreshold {
		out = d.expand(out, page.TagHrefs, n+TagOffset, domain.SourceTag)
	}

	return out
}

func (d *Discoverer) expand(out []*domain.Request, hrefs []string, priority int, source string) []*domain.Request {
	for _, href := range unique(hrefs) {
		for _, postfix := range d.cfg.Postfixes {
			u := d.cfg.Prefix + d.cfg.BaseURL + href + postfix
			out = append(out, domain.NewRequest(u, priority, source))
		}
	}
	return out
}

// StartURLs returns the seed URLs: explicit when given, otherwise the
// /servers listing once unfiltered and once per postfix.
func (d *Discoverer) StartURLs(explicit []string) []string {
	if len(explicit) > 0 {
		return unique(explicit)
	}

	root := d.cfg.Prefix + d.cfg.BaseURL + "/servers"
	variants := append([]string{""}, d.cfg.Postfixes...)

	urls := make([]string, 0, len(variants))
	for _, v := range variants {
		urls = append(urls, root+v)
	}
	return unique(urls)
}

// Seeds wraps StartURLs as seed requests.
func (d *Discoverer) Seeds(explicit []string, priority int) []*domain.Request {
	urls := d.StartURLs(explicit)
	out := make([]*domain.Request, 0, len(urls))
	for _, u := range urls {
		out = append(out, domain.NewRequest(u, priority, domain.SourceSeed))
	}
	return out
}

// Languages are the listing language filters the site accepts in ?fl=.
var Languages = []string{
	"Unspecified",
	"af", "id", "ms", "ca", "cs", "da", "de", "et", "en", "en-GB", "es",
	"es-419", "fil", "fr", "hr", "zu", "it", "lv", "lt", "hu", "nl", "no",
	"pl", "pt-BR", "pt-PT", "ro", "sk", "sl", "fi", "sv", "vi", "tr",
	"zh-TW", "zh-CN", "ja", "el", "bg", "ru", "sr", "uk", "he", "ar", "hi",
	"th", "ko",
}

// IsLanguage reports whether code is one of Languages. Codes are case sensitive.
func IsLanguage(code string) bool {
	return slices.Contains(Languages, code)
}

// Postfixes returns the URL variants to append to category and tag links.
// An explicit override wins; otherwise a language yields the language filter
// with and without member sorting.
func Postfixes(language string, override []string) []string {
	if len(override) > 0 {
		return override
	}
	if language == "" {
		return []string{"", "?sort=-member_count"}
	}
	return []string{"?fl=" + language, "?fl=" + language + "&sort=-member_count"}
}

func unique(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
