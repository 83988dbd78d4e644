// Package remote reads the authoritative verification balance over HTTP.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/creditgate/internal/version"
)

const (
	creditsPath    = "/credits"
	defaultTimeout = 10 * time.Second
	// maxErrorBody caps how much of an error response is kept for the message.
	maxErrorBody = 4 << 10
)

// ErrRemote signals a non-2xx response from the balance endpoint.
var ErrRemote = errors.New("remote balance endpoint error")

// Config holds the balance endpoint settings.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Logger  *zap.Logger
	// HTTPClient overrides the default client (tests, custom transports).
	HTTPClient *http.Client
}

// Client calls GET {base}/credits.
type Client struct {
	url    string
	token  string
	http   *http.Client
	logger *zap.Logger
}

// creditsResponse is the wire shape of GET /credits.
type creditsResponse struct {
	CreditsRemaining int  `json:"credits_remaining"`
	IsUnlimited      bool `json:"is_unlimited"`
}

// NewClient creates a balance client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("remote base url is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url:    strings.TrimRight(cfg.BaseURL, "/") + creditsPath,
		token:  cfg.Token,
		http:   hc,
		logger: logger,
	}, nil
}

// FetchCredits returns the remote balance and unlimited flag.
func (c *Client) FetchCredits(ctx context.Context) (int, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, http.NoBody)
	if err != nil {
		return 0, false, fmt.Errorf("build credits request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("credits request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return 0, false, fmt.Errorf("credits %d: %s: %w", resp.StatusCode, errorDetail(body), ErrRemote)
	}

	var out creditsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, false, fmt.Errorf("decode credits response: %w", err)
	}
	if out.CreditsRemaining < 0 {
		c.logger.Warn("Remote reported negative credits, clamping to zero",
			zap.Int("credits_remaining", out.CreditsRemaining))
		out.CreditsRemaining = 0
	}
	return out.CreditsRemaining, out.IsUnlimited, nil
}

// errorDetail extracts "error" or "message" from a JSON error body, else the raw text.
func errorDetail(body []byte) string {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		if parsed.Error != "" {
			return parsed.Error
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	return strings.TrimSpace(string(body))
}
