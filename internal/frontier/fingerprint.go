// Package frontier implements the shared crawl frontier: request fingerprints,
// the Redis-backed dedup filter, the priority queue, and the coordinated restart.
// Every URL passes through NormalizeURL before it is hashed so that spellings of
// the same listing page collapse onto one fingerprint.
package frontier

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/jonesrussell/guildcrawl/internal/domain"
)

var (
	errEmptyURL       = errors.New("normalize url: empty input")
	errIncompleteURL  = errors.New("normalize url: missing scheme or host")
	errNilRequest     = errors.New("fingerprint: nil request")
	fingerprintJoiner = []byte{'\n'}
)

// strippedParams are analytics parameters that never change the listing served.
var strippedParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"fbclid":       true,
	"gclid":        true,
	"gclsrc":       true,
	"dclid":        true,
	"msclkid":      true,
}

// NormalizeURL canonicalizes a URL for fingerprinting: scheme forced to https,
// host lowercased with default ports removed, dot segments resolved, trailing
// slash and fragment dropped, tracking parameters removed and query keys sorted.
// Values under one key keep their original order.
func NormalizeURL(rawURL string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", errEmptyURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("normalize url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errIncompleteURL
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && !isDefaultPort(scheme, port) {
		host += ":" + port
	}

	u.Scheme = "https"
	u.Host = host
	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = canonicalQuery(u.Query())
	u.Path = canonicalPath(u.Path)
	u.RawPath = ""

	return u.String(), nil
}

func isDefaultPort(scheme, port string) bool {
	return port == "443" || (scheme == "http" && port == "80")
}

func canonicalPath(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	return strings.TrimRight(path.Clean(p), "/")
}

func canonicalQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if !strippedParams[strings.ToLower(k)] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		for _, v := range values[k] {
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	return strings.Join(parts, "&")
}

// Fingerprint returns the 64-character hex SHA-256 of the request identity:
// upper-cased method, normalized URL and raw body. Priority, retry counters,
// DontFilter and Meta do not participate.
func Fingerprint(req *domain.Request) (string, error) {
	if req == nil {
		return "", errNilRequest
	}

	normalized, err := NormalizeURL(req.URL)
	if err != nil {
		return "", fmt.Errorf("fingerprint %q: %w", req.URL, err)
	}

	h := sha256.New()
	h.Write([]byte(req.HTTPMethod()))
	h.Write(fingerprintJoiner)
	h.Write([]byte(normalized))
	h.Write(fingerprintJoiner)
	h.Write(req.Body)

	return hex.EncodeToString(h.Sum(nil)), nil
}
