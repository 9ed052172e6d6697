package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/user/name-indexer/internal/domain"
)

const (
	apiKeyHeader = "Api-Key"

	defaultTimeout = 15 * time.Second
	defaultRPS     = 10
	defaultBurst   = 5
)

// Config holds the upstream API connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RequestsPerSecond caps the outbound request rate; bursts up to Burst
	// are allowed. Zero values fall back to defaults.
	RequestsPerSecond float64
	Burst             int
}

// Client implements domain.UpstreamClient over the protocol's HTTP poll API.
// It is pure transport: no timers, no retry policy, no cursor state — the
// poller owns all scheduling.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
}

// NewClient creates an upstream API client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRPS
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Poll fetches the next batch of events after req.AfterID.
func (c *Client) Poll(ctx context.Context, req domain.PollRequest) (*domain.PollResponse, error) {
	query := url.Values{}
	query.Set("after", strconv.FormatInt(req.AfterID, 10))
	if req.Limit > 0 {
		query.Set("limit", strconv.Itoa(req.Limit))
	}
	for _, t := range req.EventTypes {
		query.Add("eventType", string(t))
	}
	if req.FinalizedOnly {
		query.Set("finalizedOnly", "true")
	}

	var resp domain.PollResponse
	if err := c.do(ctx, http.MethodGet, "/v1/poll?"+query.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Acknowledge marks events at or below lastID as consumed upstream.
func (c *Client) Acknowledge(ctx context.Context, lastID int64) error {
	body := map[string]int64{"lastId": lastID}
	return c.do(ctx, http.MethodPost, "/v1/poll/ack", body, nil)
}

// Reset rewinds the upstream delivery position to eventID.
func (c *Client) Reset(ctx context.Context, eventID int64) error {
	body := map[string]int64{"eventId": eventID}
	return c.do(ctx, http.MethodPost, "/v1/poll/reset", body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}
