// Package http provides the JSON API around the dispatcher and the ledger.
//
// This file implements utilities for parsing and validating request data:
// message bodies, the owner id and ledger query filters.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"tally/internal/core"
	"tally/internal/intent"
)

const (
	// OwnerHeader carries the opaque owner id.
	OwnerHeader = "X-Owner-ID"
	// OwnerCookie is the fallback owner id source for browser clients.
	OwnerCookie = "device_id"

	maxOwnerIDLength  = 128
	maxMessageLength  = 1000
	maxRequestBodyLen = 64 << 10
)

var (
	errMissingOwner = errors.New("missing owner id (send the X-Owner-ID header or the device_id cookie)")
	errOwnerTooLong = fmt.Errorf("owner id too long (max %d characters)", maxOwnerIDLength)
)

// RequestBodyParser handles JSON and form-encoded request bodies.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads at most 64 KiB of body once and stores it for subsequent parsing.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}

	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyLen))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	// Try JSON first if content looks like JSON
	if p.body[0] == '{' || strings.HasPrefix(p.contentType, "application/json") {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	// Fall back to form parsing
	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a sanitized string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts an interface{} to string.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// MessageRequest is the body of POST /api/message.
type MessageRequest struct {
	Text     string
	Language string
}

// ParseMessageRequest reads and validates the message body.
func ParseMessageRequest(w http.ResponseWriter, r *http.Request) (MessageRequest, error) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		return MessageRequest{}, fmt.Errorf("invalid request body: %w", err)
	}

	req := MessageRequest{
		Text:     p.Get("text"),
		Language: p.Get("language"),
	}
	if req.Language == "" {
		req.Language = r.URL.Query().Get("language")
	}
	if req.Text == "" {
		return MessageRequest{}, errors.New("text is required")
	}
	if utf8.RuneCountInString(req.Text) > maxMessageLength {
		return MessageRequest{}, fmt.Errorf("text too long (max %d characters)", maxMessageLength)
	}
	return req, nil
}

// ParseEntityRequest reads the entity of POST /api/entities.
func ParseEntityRequest(w http.ResponseWriter, r *http.Request) (string, error) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		return "", fmt.Errorf("invalid request body: %w", err)
	}
	entity := p.Get("entity")
	if entity == "" {
		return "", errors.New("entity is required")
	}
	return entity, nil
}

// ParseBoolParam reads an optional boolean query parameter.
func ParseBoolParam(query url.Values, key string) (bool, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: must be true or false", key, v)
	}
	return b, nil
}

// ParseOwnerID reads the owner id from the X-Owner-ID header, falling back to
// the device_id cookie.
func ParseOwnerID(r *http.Request) (string, error) {
	owner := sanitizeInput(r.Header.Get(OwnerHeader))
	if owner == "" {
		if c, err := r.Cookie(OwnerCookie); err == nil {
			owner = sanitizeInput(c.Value)
		}
	}
	if owner == "" {
		return "", errMissingOwner
	}
	if utf8.RuneCountInString(owner) > maxOwnerIDLength {
		return "", errOwnerTooLong
	}
	return owner, nil
}

// TransactionQuery holds the parsed parameters of GET /api/transactions.
type TransactionQuery struct {
	Filter core.Filter
	Limit  int
}

// ParseTransactionQuery extracts entity, kind, since, until and limit.
// Entity names are resolved later against the configured set.
func ParseTransactionQuery(query url.Values) (TransactionQuery, error) {
	q := TransactionQuery{Limit: intent.DefaultLimit}
	q.Filter.Entity = sanitizeInput(query.Get("entity"))

	if v := strings.TrimSpace(query.Get("kind")); v != "" {
		kind, err := core.ParseKind(v)
		if err != nil {
			return q, err
		}
		q.Filter.Kind = kind
	}

	var err error
	if q.Filter.Since, q.Filter.Until, err = parseTimeRange(query); err != nil {
		return q, err
	}

	if v := strings.TrimSpace(query.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > intent.MaxLimit {
			return q, fmt.Errorf("invalid limit %q: must be between 1 and %d", v, intent.MaxLimit)
		}
		q.Limit = n
	}
	return q, nil
}

// ParseStatisticsQuery extracts the optional entity, since and until of
// GET /api/statistics.
func ParseStatisticsQuery(query url.Values) (core.Filter, error) {
	f := core.Filter{Entity: sanitizeInput(query.Get("entity"))}
	var err error
	f.Since, f.Until, err = parseTimeRange(query)
	return f, err
}

func parseTimeRange(query url.Values) (since, until time.Time, err error) {
	if since, err = parseTimeParam(query.Get("since"), false); err != nil {
		return since, until, fmt.Errorf("invalid since: %w", err)
	}
	if until, err = parseTimeParam(query.Get("until"), true); err != nil {
		return since, until, fmt.Errorf("invalid until: %w", err)
	}
	if !since.IsZero() && !until.IsZero() && until.Before(since) {
		return since, until, errors.New("until is before since")
	}
	return since, until, nil
}

// ParseMetric reads the comparison metric, defaulting to consumed.
func ParseMetric(query url.Values) (core.Metric, error) {
	v := strings.TrimSpace(query.Get("metric"))
	if v == "" {
		return core.MetricConsumed, nil
	}
	return core.ParseMetric(v)
}

// RequireMethod checks if the request method matches the expected method(s).
// Returns an error response builder if the method doesn't match.
func RequireMethod(r *http.Request, methods ...string) *JSONResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

// RequirePOST is a convenience function for POST-only handlers.
func RequirePOST(r *http.Request) *JSONResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}

// RequireGET is a convenience function for read-only handlers.
func RequireGET(r *http.Request) *JSONResponseBuilder {
	return RequireMethod(r, http.MethodGet)
}
