// Package source implements lifeline.Source over the timeline REST API and
// over a local Markdown export.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/starford/lifeline/internal/lifeline"
	"github.com/starford/lifeline/internal/models"
)

var _ lifeline.Source = (*HTTP)(nil)

// StatusError is returned when the collaborator answers with a non-2xx code.
type StatusError struct {
	Path       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.Path, e.StatusCode)
}

// HTTP reads timelines from the REST API. Base URL is the API root, for
// example http://localhost:5005/api.
type HTTP struct {
	baseURL        string
	token          string
	client         *http.Client
	collaborations bool
}

// HTTPOption configures an HTTP source.
type HTTPOption func(*HTTP)

// WithToken sends the bearer token on every request.
func WithToken(token string) HTTPOption {
	return func(h *HTTP) { h.token = token }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		if d > 0 {
			h.client.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) {
		if c != nil {
			h.client = c
		}
	}
}

// WithCollaborations also lists timelines shared with the user.
func WithCollaborations(on bool) HTTPOption {
	return func(h *HTTP) { h.collaborations = on }
}

// NewHTTP creates a REST source rooted at baseURL.
func NewHTTP(baseURL string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Timelines lists the user's timelines, followed by collaborations when
// enabled. A timeline present in both lists is kept once, in owner position.
func (h *HTTP) Timelines(ctx context.Context) ([]models.Timeline, error) {
	var owned []models.Timeline
	if err := h.get(ctx, "/timelines", &owned); err != nil {
		return nil, err
	}
	if !h.collaborations {
		return owned, nil
	}

	var shared []models.Timeline
	if err := h.get(ctx, "/timelines/collaborations", &shared); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(owned))
	for _, tl := range owned {
		seen[tl.Key()] = struct{}{}
	}
	out := owned
	for _, tl := range shared {
		if _, dup := seen[tl.Key()]; dup {
			continue
		}
		seen[tl.Key()] = struct{}{}
		out = append(out, tl)
	}
	return out, nil
}

// Items lists the items of one timeline.
func (h *HTTP) Items(ctx context.Context, timelineID string) ([]models.Item, error) {
	var items []models.Item
	if err := h.get(ctx, "/timelines/"+url.PathEscape(timelineID)+"/items", &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (h *HTTP) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("source: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("source: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("source: %w", &StatusError{Path: path, StatusCode: resp.StatusCode})
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("source: read %s: %w", path, err)
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("source: decode %s: %w", path, err)
	}
	return nil
}
