// Package erp talks to the external ERP and adapts its payloads to the
// canonical movement and purchase order types. Field aliases and shape
// differences between ERP versions are handled here and nowhere else.
package erp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/odyssey-erp/replenishment/internal/integration"
	"github.com/odyssey-erp/replenishment/internal/shared"
)

// maxBody bounds how much of a response is read.
const maxBody = 32 << 20

// Config describes the ERP endpoints and paging rules.
type Config struct {
	MovementPath      string
	PurchaseOrderPath string
	Timeout           time.Duration
	RateLimit         float64
	StatusKey         string
	StatusValue       string
	ExtraStatusKeys   []string
	Include           string
	PageSize          int
	MaxPages          int
	Location          *time.Location
}

// CredentialSource resolves the base URL and token for each run.
type CredentialSource interface {
	Resolve(ctx context.Context) (integration.Credentials, error)
}

// Client wraps interactions with the ERP API.
type Client struct {
	cfg        Config
	creds      CredentialSource
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient constructs a new client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg Config, creds CredentialSource, httpClient *http.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	return &Client{
		cfg:        cfg,
		creds:      creds,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// getJSON performs an authenticated GET and decodes the body into a generic value.
func (c *Client) getJSON(ctx context.Context, op string, creds integration.Credentials, path string, query url.Values) (any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, shared.NewUpstreamError(op, 0, nil, err)
	}
	endpoint := creds.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build %s request: %v", shared.ErrConfiguration, op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", creds.Token)
	req.Header.Set("Authorization", "Bearer "+creds.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, shared.NewUpstreamError(op, 0, nil, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, shared.NewUpstreamError(op, resp.StatusCode, nil, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, shared.NewUpstreamError(op, resp.StatusCode, body, nil)
	}
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, shared.NewUpstreamError(op, resp.StatusCode, body, fmt.Errorf("decode json: %w", err))
	}
	return payload, nil
}
