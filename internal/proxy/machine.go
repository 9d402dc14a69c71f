// Package proxy routes fetches through an anti-bot bypass proxy and decides,
// per response, whether the request succeeded, should be retried, or is dead.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"slices"
	"strconv"

	"github.com/jonesrussell/guildcrawl/internal/domain"
	"github.com/jonesrussell/guildcrawl/internal/extract"
	"github.com/jonesrussell/guildcrawl/internal/fetcher"
	"github.com/jonesrussell/guildcrawl/internal/logger"
)

// State is the terminal state of one fetch attempt.
type State string

const (
	StateSuccess   State = "success"
	StateRetryable State = "retryable_failure"
	StateFatal     State = "fatal_failure"
)

// Outcome is the result of Machine.Fetch.
type Outcome struct {
	State State
	// Status is the effective status the decision was made on. Zero means
	// the transport failed before any status was received.
	Status int
	// Response is set on success.
	Response *fetcher.Response
	// Retry is set on a retryable failure.
	Retry *domain.Request
	// Proxied reports whether the attempt went through the proxy.
	Proxied bool
}

// Machine applies the retry policy to one endpoint: a proxy, or the target
// site directly when endpoint is empty.
type Machine struct {
	doer     fetcher.Doer
	endpoint string
	cfg      Config
	gate     *Gate
	codes    []int
	patterns map[int]*regexp.Regexp
	log      logger.Logger
}

// NewMachine creates a machine for endpoint.
func NewMachine(doer fetcher.Doer, endpoint string, cfg Config, gate *Gate, log logger.Logger) *Machine {
	codes := slices.Clone(cfg.RetryHTTPCodes)
	slices.Sort(codes)
	codes = slices.Compact(codes)

	patterns := make(map[int]*regexp.Regexp, len(codes))
	for _, code := range codes {
		patterns[code] = regexp.MustCompile(`\b` + strconv.Itoa(code) + `\b`)
	}

	return &Machine{
		doer:     doer,
		endpoint: endpoint,
		cfg:      cfg,
		gate:     gate,
		codes:    codes,
		patterns: patterns,
		log:      log.With(logger.String("proxy", endpointLabel(endpoint))),
	}
}

func endpointLabel(endpoint string) string {
	if endpoint == "" {
		return "direct"
	}
	return endpoint
}

// Endpoint returns the proxy URL, or "" in direct mode.
func (m *Machine) Endpoint() string {
	return m.endpoint
}

// Fetch performs one attempt for req. A fatal outcome is also returned as a
// *FatalError. Context cancellation is returned as-is.
func (m *Machine) Fetch(ctx context.Context, req *domain.Request) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if m.endpoint == "" {
		return m.fetchDirect(ctx, req)
	}
	return m.fetchProxied(ctx, req)
}

func (m *Machine) fetchDirect(ctx context.Context, req *domain.Request) (Outcome, error) {
	resp, err := m.doer.Do(ctx, &fetcher.Request{
		Method: req.HTTPMethod(),
		URL:    req.URL,
		Body:   req.Body,
	})
	if err != nil {
		return m.transportFailure(ctx, req, err, false)
	}

	status := m.sniffStatus(resp.StatusCode, resp.Body)
	return m.decide(req, status, resp, false, "")
}

func (m *Machine) fetchProxied(ctx context.Context, req *domain.Request) (Outcome, error) {
	wrapped, err := m.envelope(req)
	if err != nil {
		return m.fatal(req, 0, true, "encode proxy request", err)
	}

	release, err := m.gate.Acquire(ctx)
	if err != nil {
		return Outcome{}, err
	}
	resp, err := m.doer.Do(ctx, &fetcher.Request{
		Method: wrapped.Method,
		URL:    wrapped.URL,
		Body:   wrapped.Body,
		Header: http.Header{"Content-Type": []string{"application/json"}},
	})
	release()
	if err != nil {
		return m.transportFailure(ctx, req, err, true)
	}

	if resp.StatusCode != http.StatusOK {
		m.log.Warn("Non 200 proxy response",
			logger.Int("status", resp.StatusCode),
			logger.URL(req.URL),
		)
		return m.decide(req, resp.StatusCode, nil, true, "proxy status")
	}

	env, err := decodeEnvelope(resp.Body)
	if err != nil {
		return m.fatal(req, resp.StatusCode, true, "decode proxy payload", fmt.Errorf("%w: %w", ErrMalformedPayload, err))
	}

	if env.Status != "ok" {
		if slices.Contains(m.codes, env.Solution.Status) {
			return m.decide(req, env.Solution.Status, nil, true, "proxy reported "+env.Status)
		}
		reason := "proxy reported " + env.Status
		if env.Message != "" {
			reason += ": " + env.Message
		}
		return m.fatal(req, env.Solution.Status, true, reason, nil)
	}

	status := env.Solution.Status
	if status == 0 {
		status = http.StatusOK
	}
	body := []byte(env.Solution.Response)
	status = m.sniffStatus(status, body)

	headers := env.Solution.header()
	if len(headers) == 0 {
		headers = resp.Headers
	}

	pageURL := env.Solution.URL
	if pageURL == "" {
		pageURL = req.URL
	}

	unwrapped := &fetcher.Response{
		URL:        pageURL,
		StatusCode: status,
		Headers:    headers,
		Body:       body,
		FetchedAt:  resp.FetchedAt,
	}
	return m.decide(req, status, unwrapped, true, "")
}

// envelope rewrites req as the proxy command, keeping the original URL in Meta.
func (m *Machine) envelope(req *domain.Request) (*domain.Request, error) {
	body, err := json.Marshal(envelopeRequest{
		Cmd:        cmdRequestGet,
		URL:        req.URL,
		MaxTimeout: m.cfg.MaxTimeout.Milliseconds(),
	})
	if err != nil {
		return nil, err
	}

	wrapped := req.Clone()
	wrapped.URL = m.endpoint
	wrapped.Method = http.MethodPost
	wrapped.Body = body
	wrapped.DontFilter = true
	wrapped.Meta[domain.MetaOriginalURL] = req.URL
	wrapped.Meta[domain.MetaRedirectedViaProxy] = "true"
	return wrapped, nil
}

// sniffStatus replaces a 200 with a retryable code found in the page title.
// Bypass proxies and some CDNs serve error pages with a 200 status.
func (m *Machine) sniffStatus(status int, body []byte) int {
	if status != http.StatusOK || len(m.codes) == 0 {
		return status
	}
	title := extract.Title(body)
	if title == "" {
		return status
	}
	for _, code := range m.codes {
		if m.patterns[code].MatchString(title) {
			return code
		}
	}
	return status
}

func (m *Machine) decide(req *domain.Request, status int, resp *fetcher.Response, proxied bool, reason string) (Outcome, error) {
	if status == http.StatusOK && resp != nil {
		return Outcome{State: StateSuccess, Status: status, Response: resp, Proxied: proxied}, nil
	}

	if slices.Contains(m.codes, status) && req.RetryCount < m.cfg.RetryTimes {
		return m.retry(req, status, proxied), nil
	}

	if reason == "" {
		reason = "non-retryable status"
	}
	if slices.Contains(m.codes, status) {
		reason = "retry budget exhausted"
	}
	return m.fatal(req, status, proxied, reason, nil)
}

func (m *Machine) transportFailure(ctx context.Context, req *domain.Request, err error, proxied bool) (Outcome, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Outcome{}, ctxErr
	}
	if m.cfg.RetryOnTransportError && req.RetryCount < m.cfg.RetryTimes {
		m.log.Warn("Transport error, retrying",
			logger.URL(req.URL),
			logger.Error(err),
		)
		return m.retry(req, 0, proxied), nil
	}
	return m.fatal(req, 0, proxied, "transport error", err)
}

func (m *Machine) retry(req *domain.Request, status int, proxied bool) Outcome {
	next := req.Clone()
	next.RetryCount = req.RetryCount + 1
	next.Priority = req.Priority - m.cfg.RetryPenalty
	next.DontFilter = true
	next.Meta[domain.MetaSource] = domain.SourceRetry
	if _, ok := next.Meta[domain.MetaOriginalURL]; !ok {
		next.Meta[domain.MetaOriginalURL] = req.URL
	}

	m.log.Debug("Retrying request",
		logger.URL(req.URL),
		logger.Int("status", status),
		logger.Int("retry_count", next.RetryCount),
		logger.Int("priority", next.Priority),
	)

	return Outcome{State: StateRetryable, Status: status, Retry: next, Proxied: proxied}
}

func (m *Machine) fatal(req *domain.Request, status int, proxied bool, reason string, cause error) (Outcome, error) {
	fe := &FatalError{
		URL:        req.URL,
		Status:     status,
		RetryCount: req.RetryCount,
		Reason:     reason,
		Err:        cause,
	}
	return Outcome{State: StateFatal, Status: status, Proxied: proxied}, fe
}

// IsFatal reports whether err is a *FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
