package xapi

import (
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
)

const defaultBaseURL = "https://api.twitter.com"

const (
	tweetFields = "created_at,public_metrics,author_id,attachments"
	expansions  = "author_id,attachments.media_keys"
	userFields  = "name,username,profile_image_url,verified,public_metrics"
	mediaFields = "preview_image_url,url,type"
)

// Client calls the X API v2 recent-search endpoint.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient constructs a client with sane defaults: 60 requests per minute, bursts of 3.
func NewClient(bearerToken string, opts ...func(*Client)) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		token:      bearerToken,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 3),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithBaseURL overrides the API base URL (useful for tests).
func WithBaseURL(u string) func(*Client) {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient overrides the internal HTTP client.
func WithHTTPClient(hc *http.Client) func(*Client) {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRequestsPerMinute replaces the rate limiter; zero or negative disables limiting.
func WithRequestsPerMinute(rpm int) func(*Client) {
	return func(c *Client) {
		if rpm <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		burst := rpm / 20
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), burst)
	}
}

// SearchRecent runs a recent-search query. Non-2xx responses are returned as errors.
func (c *Client) SearchRecent(ctx context.Context, query string, maxResults int) (*SearchResponse, error) {
	if c.token == "" {
		return nil, fmt.Errorf("xapi: missing bearer token")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("xapi: rate limiter: %w", err)
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("max_results", strconv.Itoa(clampResults(maxResults)))
	params.Set("tweet.fields", tweetFields)
	params.Set("expansions", expansions)
	params.Set("user.fields", userFields)
	params.Set("media.fields", mediaFields)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/2/tweets/search/recent?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("xapi: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("xapi: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("xapi: api error %d: %s", resp.StatusCode, string(data))
	}

	var payload SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("xapi: decode response: %w", err)
	}
	return &payload, nil
}

// The endpoint accepts 10..100 results per page.
func clampResults(n int) int {
	if n < 10 {
		return 10
	}
	if n > 100 {
		return 100
	}
	return n
}
