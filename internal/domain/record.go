package domain

import (
	"encoding/json"
	"strings"
)

// Tag is one (id, name) pair attached to a server listing.
type Tag struct {
	ID   string
	Name string
}

// ServerRecord is a single extracted server listing. GuildID is the upsert key.
type ServerRecord struct {
	ScrapeTime        float64 `json:"scrape_time"`
	PlatformLink      string  `json:"platform_link"`
	GuildID           string  `json:"guild_id"`
	ServerName        string  `json:"server_name"`
	ServerDescription string  `json:"server_description"`
	Tags              []Tag   `json:"tags"`
	Category          string  `json:"category"`
}

// GuildIDFromLink returns the last non-empty path segment of a platform link.
func GuildIDFromLink(link string) string {
	trimmed := strings.TrimRight(link, "/")
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = strings.TrimRight(trimmed[:i], "/")
	}
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// TagsJSON renders tags as an ordered list of single-entry objects,
// e.g. [{"39":"anime"},{"3":"gaming"}].
func (r ServerRecord) TagsJSON() (string, error) {
	out := make([]map[string]string, 0, len(r.Tags))
	for _, t := range r.Tags {
		out = append(out, map[string]string{t.ID: t.Name})
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Classification reports whether a guild ID was new to the current crawl generation.
type Classification string

const (
	ClassificationNew  Classification = "new"
	ClassificationSeen Classification = "seen"
)

// PageKind is the outcome of classifying a fetched page.
type PageKind string

const (
	PageListing    PageKind = "listing"
	PageDenial     PageKind = "denial"
	PageEmpty      PageKind = "empty"
	PageUnexpected PageKind = "unexpected"
)
