// Package domain holds the value types shared by the crawl components.
package domain

import "strings"

// Meta keys carried on a Request.
const (
	MetaOriginalURL        = "original_url"
	MetaRedirectedViaProxy = "redirected_via_proxy"
	MetaSource             = "source"
)

// Request sources recorded under MetaSource.
const (
	SourceSeed       = "seed"
	SourcePagination = "pagination"
	SourceCategory   = "category"
	SourceTag        = "tag"
	SourceRetry      = "retry"
	SourceDenial     = "denial"
)

// Request is a unit of crawl work. Identity is (Method, URL, Body); every other
// field may change between attempts without affecting deduplication.
type Request struct {
	URL         string            `json:"url"`
	Method      string            `json:"method,omitempty"`
	Body        []byte            `json:"body,omitempty"`
	Priority    int               `json:"priority"`
	RetryCount  int               `json:"retry_count,omitempty"`
	DenialCount int               `json:"denial_count,omitempty"`
	DontFilter  bool              `json:"dont_filter,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// NewRequest creates a GET request with the given priority and source tag.
func NewRequest(rawURL string, priority int, source string) *Request {
	return &Request{
		URL:      rawURL,
		Method:   "GET",
		Priority: priority,
		Meta:     map[string]string{MetaSource: source},
	}
}

// HTTPMethod returns the upper-cased method, defaulting to GET.
func (r *Request) HTTPMethod() string {
	if r.Method == "" {
		return "GET"
	}
	return strings.ToUpper(r.Method)
}

// Source returns the source tag from Meta, or "unknown".
func (r *Request) Source() string {
	if s, ok := r.Meta[MetaSource]; ok && s != "" {
		return s
	}
	return "unknown"
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	c := *r
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	c.Meta = make(map[string]string, len(r.Meta))
	for k, v := range r.Meta {
		c.Meta[k] = v
	}
	return &c
}
