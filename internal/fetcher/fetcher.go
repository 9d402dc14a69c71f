// Package fetcher performs the HTTP requests issued by workers.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/jonesrussell/guildcrawl/internal/logger"
)

const (
	ctxKeyResponse = "guildcrawl_response"
	ctxKeyError    = "guildcrawl_error"
)

// Request is one outbound HTTP call.
type Request struct {
	Method string
	URL    string
	Body   []byte
	Header http.Header
}

// Response is what came back. StatusCode is the HTTP status as served, which
// may be any code because error responses are returned rather than raised.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	FetchedAt  time.Time
}

// Doer executes a single HTTP request.
type Doer interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// CollyFetcher is a Doer backed by a synchronous colly collector shared by all
// workers of a process. The limit rule admits Parallelism requests at a time
// and each slot is held for DownloadDelay after its response, so with the
// default Parallelism of 1 the process issues at most one request per delay.
//
// The collector's context is fixed at construction, so the ctx given to Do
// cannot abort a request already on the wire. Do returns as soon as ctx ends;
// the abandoned request finishes in the background within RequestTimeout.
type CollyFetcher struct {
	collector *colly.Collector
	log       logger.Logger
	now       func() time.Time
}

// NewCollyFetcher creates a fetcher. Cancelling ctx aborts every in-flight
// request.
func NewCollyFetcher(ctx context.Context, cfg Config, log logger.Logger) (*CollyFetcher, error) {
	cfg = cfg.WithDefaults()

	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.IgnoreRobotsTxt(),
		colly.UserAgent(cfg.UserAgent),
		colly.MaxBodySize(cfg.MaxBodySize),
	)
	c.SetRequestTimeout(cfg.RequestTimeout)

	err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Delay:       cfg.DownloadDelay,
		RandomDelay: cfg.RandomDelay,
		Parallelism: cfg.Parallelism,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set rate limit: %w", err)
	}

	c.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxKeyResponse, r)
	})
	c.OnError(func(r *colly.Response, err error) {
		r.Ctx.Put(ctxKeyError, err)
	})

	log.Debug("Fetcher configured",
		logger.Duration("download_delay", cfg.DownloadDelay),
		logger.Duration("request_timeout", cfg.RequestTimeout),
		logger.Int("parallelism", cfg.Parallelism),
	)

	return &CollyFetcher{collector: c, log: log, now: time.Now}, nil
}

// Do runs req through the collector and waits for the result.
func (f *CollyFetcher) Do(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	type result struct {
		resp *Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := f.do(method, req)
		done <- result{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		f.log.Debug("Fetch abandoned", logger.URL(req.URL), logger.Error(ctx.Err()))
		return nil, ctx.Err()
	case r := <-done:
		return r.resp, r.err
	}
}

func (f *CollyFetcher) do(method string, req *Request) (*Response, error) {
	cctx := colly.NewContext()
	err := f.collector.Request(method, req.URL, bytes.NewReader(req.Body), cctx, req.Header)

	if r, ok := cctx.GetAny(ctxKeyResponse).(*colly.Response); ok && r != nil {
		return toResponse(r, f.now()), nil
	}
	if cbErr, ok := cctx.GetAny(ctxKeyError).(error); ok && cbErr != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, cbErr)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	return nil, fmt.Errorf("fetch %s: %w", req.URL, errNoResponse)
}

var errNoResponse = errors.New("no response received")

func toResponse(r *colly.Response, fetchedAt time.Time) *Response {
	headers := http.Header{}
	if r.Headers != nil {
		headers = r.Headers.Clone()
	}

	u := ""
	if r.Request != nil && r.Request.URL != nil {
		u = r.Request.URL.String()
	}

	return &Response{
		URL:        u,
		StatusCode: r.StatusCode,
		Headers:    headers,
		Body:       r.Body,
		FetchedAt:  fetchedAt,
	}
}
