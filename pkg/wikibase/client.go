// Package wikibase is the client for the knowledge-graph service (Wikibase
// action API). The pipeline uses it two ways: entity search as the last
// tier of QID resolution, and entity creation for publishing.
package wikibase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://www.wikidata.org/w/api.php"

// Client defines the Wikibase operations used by the pipeline.
type Client interface {
	// SearchEntities runs wbsearchentities for a free-text label.
	SearchEntities(ctx context.Context, query, language string) ([]SearchHit, error)
	// CreateEntity creates a new item from the given payload and returns
	// its assigned identifier. A label/description conflict is reported as
	// a *ConflictError carrying the existing identifier.
	CreateEntity(ctx context.Context, payload EntityPayload) (string, error)
}

// SearchHit is one wbsearchentities match.
type SearchHit struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// EntityPayload is the wbeditentity JSON document for a new item.
type EntityPayload struct {
	Labels       map[string]LabelValue `json:"labels"`
	Descriptions map[string]LabelValue `json:"descriptions"`
	Claims       map[string][]any      `json:"claims,omitempty"`
}

// LabelValue is a language-tagged string.
type LabelValue struct {
	Language string `json:"language"`
	Value    string `json:"value"`
}

// APIError is a structured error from the action API.
type APIError struct {
	Code string
	Info string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wikibase: %s: %s", e.Code, e.Info)
}

// Retryable reports whether the API error code names a condition that
// clears on its own (rate limiting, replication lag, read-only windows).
func (e *APIError) Retryable() bool {
	switch e.Code {
	case "ratelimited", "maxlag", "readonly":
		return true
	default:
		return false
	}
}

// StatusError is returned when the service responds with a non-2xx HTTP
// status before the action API gets a say.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("wikibase: unexpected status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus exposes the status code for retry classification.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// ConflictError signals that an equivalent entity already exists. The
// orchestrator treats this as success and adopts the existing identifier.
type ConflictError struct {
	ExistingID string
	Info       string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("wikibase: entity already exists as %s: %s", e.ExistingID, e.Info)
}

// qidPattern extracts the conflicting item identifier out of the API's
// human-oriented conflict message.
var qidPattern = regexp.MustCompile(`Q\d+`)

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API endpoint.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a Wikibase action API client. The token is the bot/OAuth
// bearer token used for edits; search works without one.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		token:   token,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchResponse struct {
	Search []SearchHit `json:"search"`
	Error  *apiError   `json:"error"`
}

type editResponse struct {
	Entity *struct {
		ID string `json:"id"`
	} `json:"entity"`
	Success int       `json:"success"`
	Error   *apiError `json:"error"`
}

type apiError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

func (c *httpClient) SearchEntities(ctx context.Context, query, language string) ([]SearchHit, error) {
	if language == "" {
		language = "en"
	}

	params := url.Values{
		"action":   {"wbsearchentities"},
		"search":   {query},
		"language": {language},
		"type":     {"item"},
		"format":   {"json"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "wikibase: create search request")
	}

	var result searchResponse
	if err := c.do(req, &result); err != nil {
		return nil, eris.Wrap(err, "wikibase: search entities")
	}
	if result.Error != nil {
		return nil, &APIError{Code: result.Error.Code, Info: result.Error.Info}
	}

	return result.Search, nil
}

func (c *httpClient) CreateEntity(ctx context.Context, payload EntityPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", eris.Wrap(err, "wikibase: marshal entity payload")
	}

	form := url.Values{
		"action": {"wbeditentity"},
		"new":    {"item"},
		"data":   {string(data)},
		"format": {"json"},
		"token":  {c.token},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", eris.Wrap(err, "wikibase: create edit request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var result editResponse
	if err := c.do(req, &result); err != nil {
		return "", eris.Wrap(err, "wikibase: create entity")
	}

	if result.Error != nil {
		if isConflict(result.Error) {
			return "", &ConflictError{
				ExistingID: qidPattern.FindString(result.Error.Info),
				Info:       result.Error.Info,
			}
		}
		return "", &APIError{Code: result.Error.Code, Info: result.Error.Info}
	}
	if result.Entity == nil || result.Entity.ID == "" {
		return "", eris.New("wikibase: edit response missing entity id")
	}

	return result.Entity.ID, nil
}

// isConflict matches the API error codes raised when a new item collides
// with an existing label+description pair.
func isConflict(e *apiError) bool {
	switch e.Code {
	case "modification-failed", "failed-save":
		return strings.Contains(e.Info, "already has") ||
			strings.Contains(e.Info, "same label and description")
	default:
		return false
	}
}

func (c *httpClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "decode response")
	}

	return nil
}
