package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mbd888/starledger/internal/dialog"
)

// Config holds the configuration for connecting to the star ledger API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	APIKey string // Optional bearer token forwarded to the API
}

// StarsClient is a pure HTTP client for the /v1/stars API.
type StarsClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewStarsClient creates a new client for the star ledger API.
func NewStarsClient(cfg Config) *StarsClient {
	return &StarsClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"details"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *StarsClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			if len(apiErr.Details) > 0 {
				return nil, fmt.Errorf("API error (%d): %s: %s", resp.StatusCode, apiErr.Details[0].Field, apiErr.Details[0].Message)
			}
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

func ownerQuery(owner dialog.Sender) url.Values {
	q := url.Values{}
	if owner.UserID != 0 {
		q.Set("user_id", strconv.FormatInt(owner.UserID, 10))
	}
	if owner.ChatID != 0 {
		q.Set("chat_id", strconv.FormatInt(owner.ChatID, 10))
	}
	return q
}

// TopupOptions lists the star packs the account can buy.
func (c *StarsClient) TopupOptions(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/stars/topup-options", nil, nil)
}

// Transactions returns one page of the star history of owner.
func (c *StarsClient) Transactions(ctx context.Context, owner dialog.Sender, offset string, limit int, direction string) (json.RawMessage, error) {
	q := ownerQuery(owner)
	if offset != "" {
		q.Set("offset", offset)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if direction != "" {
		q.Set("direction", direction)
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/stars/transactions", q, nil)
}

// Refund returns the stars of a bot payment to the paying user.
func (c *StarsClient) Refund(ctx context.Context, userID int64, chargeID string) (json.RawMessage, error) {
	body := map[string]any{
		"user_id":   userID,
		"charge_id": chargeID,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/stars/refunds", nil, body)
}

// RevenueStats returns the revenue statistics of owner.
func (c *StarsClient) RevenueStats(ctx context.Context, owner dialog.Sender, dark bool) (json.RawMessage, error) {
	q := ownerQuery(owner)
	if dark {
		q.Set("dark", "true")
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/stars/revenue", q, nil)
}

// WithdrawalURL requests a withdrawal link for starCount stars of owner.
func (c *StarsClient) WithdrawalURL(ctx context.Context, owner dialog.Sender, starCount int64, password string) (json.RawMessage, error) {
	body := map[string]any{
		"star_count": starCount,
		"password":   password,
	}
	if owner.UserID != 0 {
		body["user_id"] = owner.UserID
	}
	if owner.ChatID != 0 {
		body["chat_id"] = owner.ChatID
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/stars/revenue/withdrawal-url", nil, body)
}

// AdsAccountURL returns the advertising account link of owner.
func (c *StarsClient) AdsAccountURL(ctx context.Context, owner dialog.Sender) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/stars/revenue/ads-account-url", ownerQuery(owner), nil)
}

// RevenueEvents lists the latest revenue balance changes of owner.
func (c *StarsClient) RevenueEvents(ctx context.Context, owner dialog.Sender, limit int) (json.RawMessage, error) {
	q := ownerQuery(owner)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/stars/revenue/events", q, nil)
}
