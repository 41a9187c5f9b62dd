// Package solidhttp is the authenticated HTTP requestor: it executes
// requests against a Solid Pod, stamps session/trace headers on every
// call, and maps non-2xx responses to the typed error kinds the rest
// of SolidFS switches on.
package solidhttp

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// UserAgent is sent on every request, matching the original's
// "SolidFS/v0.0.1".
const UserAgent = "SolidFS/v0.0.1"

// TokenSource supplies a bearer token for Authorization headers. It
// mirrors internal/solidauth.Authenticator's narrow surface so this
// package never imports it directly (avoids an import cycle and keeps
// the requestor's transport concern separate from auth's).
type TokenSource interface {
	Token(ctx context.Context) (string, bool, error)
}

// Response is the normalized result of a request: status, headers,
// parsed Link relations, and the body, decoded lazily.
type Response struct {
	StatusCode int
	Header     http.Header
	Links      map[string]map[string]string
	content    []byte
}

// Content returns the raw response body.
func (r *Response) Content() []byte { return r.content }

// Text returns the response body decoded as a string.
func (r *Response) Text() string { return string(r.content) }

// Requestor executes authenticated HTTP requests with a single
// long-lived client (connection-pool reuse), retry/backoff for
// transient failures, and status-to-error-kind classification.
type Requestor struct {
	client            *http.Client
	pacer             *pacer
	sessionIdentifier string
	tokens            TokenSource
}

type traceHeadersKey struct{}

// TraceHeaders are the caller-supplied W3C/legacy trace propagation
// headers threaded through WithTraceHeaders. Callers that run under a
// tracer attach its span/trace IDs via WithTraceHeaders before
// calling Do.
type TraceHeaders struct {
	RequestID     string
	CorrelationID string
}

// WithTraceHeaders attaches trace propagation identifiers to a
// context so a subsequent Requestor.Do call includes them.
func WithTraceHeaders(ctx context.Context, h TraceHeaders) context.Context {
	return context.WithValue(ctx, traceHeadersKey{}, h)
}

func traceHeadersFrom(ctx context.Context) (TraceHeaders, bool) {
	h, ok := ctx.Value(traceHeadersKey{}).(TraceHeaders)
	return h, ok
}

// NewRequestor builds a Requestor with a pooled *http.Client. If
// SOLIDFS_CONTENT_CACHING=1 is set, responses are wrapped in a
// Cache-Control-aware cache.
func NewRequestor(sessionIdentifier string, tokens TokenSource) *Requestor {
	var transport http.RoundTripper = &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
	if os.Getenv("SOLIDFS_CONTENT_CACHING") == "1" {
		transport = newCachingTransport(transport)
	}
	return &Requestor{
		client:            &http.Client{Transport: transport},
		pacer:             newPacer(),
		sessionIdentifier: sessionIdentifier,
		tokens:            tokens,
	}
}

// Do executes method against targetURL, returning the normalized
// Response or a typed *HTTPError for status >= 300.
func (r *Requestor) Do(ctx context.Context, method, targetURL string, extraHeaders map[string]string, body []byte) (*Response, error) {
	var resp *Response
	err := r.pacer.call(func() (bool, error) {
		var callErr error
		var httpResp *http.Response
		httpResp, callErr = r.doOnce(ctx, method, targetURL, extraHeaders, body)
		if callErr != nil {
			return shouldRetryNetworkError(callErr), callErr
		}
		defer httpResp.Body.Close()

		content, readErr := io.ReadAll(httpResp.Body)
		if readErr != nil {
			return false, errors.Wrap(readErr, "read response body")
		}

		resp = &Response{
			StatusCode: httpResp.StatusCode,
			Header:     httpResp.Header,
			Links:      parseLinkHeader(httpResp.Header.Get("Link")),
			content:    content,
		}

		if shouldRetryStatus(httpResp.StatusCode) {
			return true, newHTTPError(httpResp.StatusCode, string(content))
		}
		return false, newHTTPError(httpResp.StatusCode, string(content))
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *Requestor) doOnce(ctx context.Context, method, targetURL string, extraHeaders map[string]string, body []byte) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, targetURL, bodyReader)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}

	headers := r.baseHeaders(ctx)
	for k, v := range extraHeaders {
		headers[k] = v
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	log.WithFields(log.Fields{
		"method":          method,
		"url":             targetURL,
		"headers_supplied": sortedKeys(headers),
	}).Debug("sending request")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"status_code":      resp.StatusCode,
		"headers_returned": sortedKeys(headerMapKeys(resp.Header)),
	}).Debug("response")

	return resp, nil
}

func (r *Requestor) baseHeaders(ctx context.Context) map[string]string {
	headers := map[string]string{
		"Session-Identifier": r.sessionIdentifier,
		"User-Agent":         UserAgent,
		"x-request-id":       r.sessionIdentifier,
	}
	if r.tokens != nil {
		if token, ok, err := r.tokens.Token(ctx); err == nil && ok {
			headers["Authorization"] = "Bearer " + token
		}
	}
	if th, ok := traceHeadersFrom(ctx); ok {
		if th.RequestID != "" {
			headers["X-Request-ID"] = th.RequestID
			headers["Request-ID"] = th.RequestID
		}
		if th.CorrelationID != "" {
			headers["X-Correlation-ID"] = th.CorrelationID
			headers["Correlation-ID"] = th.CorrelationID
		}
	}
	return headers
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func headerMapKeys(h http.Header) map[string]string {
	m := make(map[string]string, len(h))
	for k := range h {
		m[k] = ""
	}
	return m
}

// parseLinkHeader parses an RFC 8288 Link header into rel → params.
func parseLinkHeader(header string) map[string]map[string]string {
	links := map[string]map[string]string{}
	if header == "" {
		return links
	}
	for _, part := range splitLinkHeader(header) {
		target, params := parseLinkValue(part)
		rel, ok := params["rel"]
		if !ok {
			continue
		}
		params["url"] = target
		links[rel] = params
	}
	return links
}

func splitLinkHeader(header string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range header {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, header[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, header[start:])
	return parts
}

func parseLinkValue(part string) (string, map[string]string) {
	params := map[string]string{}
	part = trimSpace(part)
	lt := indexByte(part, '<')
	gt := indexByte(part, '>')
	target := ""
	rest := part
	if lt >= 0 && gt > lt {
		target = part[lt+1 : gt]
		rest = part[gt+1:]
	}
	for _, seg := range splitSemicolon(rest) {
		seg = trimSpace(seg)
		if seg == "" {
			continue
		}
		eq := indexByte(seg, '=')
		if eq < 0 {
			continue
		}
		key := trimSpace(seg[:eq])
		value := trimQuotes(trimSpace(seg[eq+1:]))
		params[key] = value
	}
	return target, params
}

func splitSemicolon(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ';' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func trimSpace(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	return s
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// ParseURL is a small helper used by callers that need to validate a
// URL before issuing a request (e.g. building a child resource URI).
func ParseURL(raw string) (*url.URL, error) {
	return url.Parse(raw)
}
