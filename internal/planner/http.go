package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/wayfinder/pkg/transit"
)

// planPath is the remote endpoint, relative to the base URL.
const planPath = "/api/transit/plan"

// maxErrorBody bounds how much of a failed response is quoted in errors.
const maxErrorBody = 512

// HTTP is a [Planner] backed by a remote planning service speaking the
// transit planning JSON API:
//
//	POST /api/transit/plan
//	{"from": "...", "to": "...", "time": "...", "preferences": {...}}
//	→ {"routes": [{"id": 1, "summary": "...", "duration": 35, ...}]}
//
// HTTP is safe for concurrent use.
type HTTP struct {
	baseURL    string
	httpClient *http.Client
	headers    http.Header
}

var _ Planner = (*HTTP)(nil)

// HTTPOption configures an [HTTP] planner.
type HTTPOption func(*HTTP)

// WithTimeout sets a per-request timeout on the underlying HTTP client.
// A zero or negative value means no timeout (the default).
func WithTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		if d > 0 {
			h.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client. Useful for tests and custom
// transports.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) { h.httpClient = c }
}

// WithHeader adds a header sent with every request, e.g. an API key.
func WithHeader(key, value string) HTTPOption {
	return func(h *HTTP) { h.headers.Add(key, value) }
}

// NewHTTP creates an [HTTP] planner for the service at baseURL. A trailing
// slash is stripped.
func NewHTTP(baseURL string, opts ...HTTPOption) (*HTTP, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("planner: http: base URL must not be empty")
	}
	h := &HTTP{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		headers:    make(http.Header),
	}
	for _, o := range opts {
		o(h)
	}
	return h, nil
}

type planResponse struct {
	Routes []wireJourney `json:"routes"`
}

type wireJourney struct {
	ID            flexibleID `json:"id"`
	Summary       string     `json:"summary"`
	Duration      int        `json:"duration"`
	Transfers     int        `json:"transfers"`
	Accessibility string     `json:"accessibility"`
	DepartureTime string     `json:"departureTime"`
	ArrivalTime   string     `json:"arrivalTime"`
	Steps         []wireStep `json:"steps"`
}

type wireStep struct {
	Mode     string `json:"mode"`
	Route    string `json:"route"`
	From     string `json:"from"`
	To       string `json:"to"`
	Duration int    `json:"duration"`
}

// flexibleID accepts both numeric and string route identifiers.
type flexibleID string

func (id *flexibleID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("route id: %w", err)
	}
	*id = flexibleID(n.String())
	return nil
}

func (w wireJourney) journey() transit.Journey {
	j := transit.Journey{
		ID:              string(w.ID),
		Summary:         w.Summary,
		DurationMinutes: max(w.Duration, 0),
		Transfers:       max(w.Transfers, 0),
		Accessibility:   w.Accessibility,
		DepartureTime:   w.DepartureTime,
		ArrivalTime:     w.ArrivalTime,
		Steps:           make([]transit.Step, len(w.Steps)),
	}
	for i, s := range w.Steps {
		j.Steps[i] = transit.Step{
			Mode:            s.Mode,
			Route:           s.Route,
			From:            s.From,
			To:              s.To,
			DurationMinutes: max(s.Duration, 0),
		}
	}
	return j
}

// PlanJourney implements [Planner].
func (h *HTTP) PlanJourney(ctx context.Context, req Request) ([]transit.Journey, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("planner: http: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+planPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("planner: http: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, vs := range h.headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := h.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("planner: http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("planner: http: unexpected status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var pr planResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("planner: http: decode response: %w", err)
	}
	if len(pr.Routes) == 0 {
		return nil, fmt.Errorf("planner: http %s to %s: %w", req.From, req.To, ErrNoRoutes)
	}

	out := make([]transit.Journey, len(pr.Routes))
	for i, w := range pr.Routes {
		out[i] = w.journey()
	}
	return out, nil
}
