// Package dnsdist provides a minimal client for the dnsdist REST API, used by
// the log processor to skip domains a downstream resolver already blocks.
package dnsdist

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	zonesPath      = "/api/v1/servers/localhost/zones"
	apiKeyHeader   = "X-API-Key"
	requestTimeout = 10 * time.Second
)

// Client queries the dnsdist API. The API key is optional; dnsdist instances
// without webserver auth accept unauthenticated reads.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a dnsdist API client for the given base URL. An empty
// apiKey disables the auth header.
func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

// IsDomainBlocked reports whether the domain already appears in the resolver's
// zone list. A non-success API status is treated as "not blocked" so the
// pipeline keeps working when dnsdist is unavailable; transport errors are
// returned for the caller to decide.
func (c *Client) IsDomainBlocked(ctx context.Context, domain string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+zonesPath, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build dnsdist request: %w", err)
	}

	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("dnsdist API request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("dnsdist API returned non-success status", "status", resp.StatusCode)

		return false, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read dnsdist response: %w", err)
	}

	// Substring check over the zone list; parsing the full zone structure
	// buys nothing for a containment test.
	return strings.Contains(string(body), domain), nil
}
