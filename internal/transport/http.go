// Package transport delivers encoded ledger requests over HTTP.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mbd888/starledger/internal/api"
	"github.com/mbd888/starledger/internal/apierror"
	"github.com/mbd888/starledger/internal/circuitbreaker"
	"github.com/mbd888/starledger/internal/logging"
	"github.com/mbd888/starledger/internal/metrics"
	"github.com/mbd888/starledger/internal/retry"
	"github.com/mbd888/starledger/internal/traces"
)

// maxResponseBytes bounds a single response body.
const maxResponseBytes = 8 << 20

// Config holds the connection settings of the ledger API.
type Config struct {
	BaseURL string // e.g. "https://ledger.example.com"
	Token   string
	Timeout time.Duration
	Retry   retry.Policy
	// Idempotent names the methods that may be re-sent after a network
	// failure or 5xx answer. Nil means ReadMethods.
	Idempotent map[string]bool
}

// ReadMethods are the ledger methods that change no server state.
var ReadMethods = map[string]bool{
	api.GetStarsTopupOptions{}.Method():         true,
	api.GetStarsTransactions{}.Method():         true,
	api.GetStarsRevenueStats{}.Method():         true,
	api.GetStarsRevenueAdsAccountURL{}.Method(): true,
	api.GetPassword{}.Method():                  true,
}

// HTTPTransport posts each payload to {BaseURL}/rpc/{method}. Network
// failures and 5xx answers are retried for idempotent methods only; a
// mutating request is sent at most once. Error answers are returned as
// *apierror.Error with the server's code and message.
type HTTPTransport struct {
	cfg        Config
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
}

// Option configures an HTTPTransport.
type Option func(*HTTPTransport)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *HTTPTransport) {
		t.httpClient = c
	}
}

// WithBreaker enables a per-method circuit breaker.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(t *HTTPTransport) {
		t.breaker = b
	}
}

// NewHTTP creates a transport for cfg.
func NewHTTP(cfg Config, opts ...Option) *HTTPTransport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Idempotent == nil {
		cfg.Idempotent = ReadMethods
	}
	t := &HTTPTransport{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Issue sends p and returns the raw response body.
func (t *HTTPTransport) Issue(ctx context.Context, p api.Payload) ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	var out []byte
	err = retry.Do(ctx, t.cfg.Retry, func(attempt int) error {
		if t.breaker != nil && !t.breaker.Allow(p.Method) {
			metrics.TransportAttemptsTotal.WithLabelValues(p.Method, "rejected").Inc()
			return retry.Permanent(apierror.Errorf(503, "%s: %v", p.Method, circuitbreaker.ErrOpen))
		}
		resp, err := t.attempt(ctx, p.Method, attempt, body)
		if t.breaker != nil {
			t.breaker.Record(p.Method, !isServerFailure(err))
		}
		if err != nil {
			var pe *retry.PermanentError
			if !t.cfg.Idempotent[p.Method] && !errors.As(err, &pe) {
				return retry.Permanent(err)
			}
			return err
		}
		out = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *HTTPTransport) attempt(ctx context.Context, method string, n int, body []byte) ([]byte, error) {
	ctx, span := traces.StartSpan(ctx, "transport.issue", traces.QueryName(method), traces.Attempt(n))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/rpc/"+method, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if t.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.cfg.Token)
	}
	if id := logging.RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		metrics.TransportAttemptsTotal.WithLabelValues(method, "network_error").Inc()
		traces.Fail(span, err)
		if ctx.Err() != nil {
			return nil, retry.Permanent(ctx.Err())
		}
		logging.L(ctx).Warn("ledger request failed", "attempt", n, "error", err)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.TransportAttemptsTotal.WithLabelValues(method, "network_error").Inc()
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 400 {
		metrics.TransportAttemptsTotal.WithLabelValues(method, "ok").Inc()
		return respBody, nil
	}

	apiErr := decodeError(resp.StatusCode, respBody)
	traces.Fail(span, apiErr)
	if resp.StatusCode >= 500 {
		metrics.TransportAttemptsTotal.WithLabelValues(method, "server_error").Inc()
		logging.L(ctx).Warn("ledger server error", "attempt", n, "code", apiErr.Code, "error", apiErr.Message)
		return nil, apiErr
	}
	metrics.TransportAttemptsTotal.WithLabelValues(method, "client_error").Inc()
	return nil, retry.Permanent(apiErr)
}

// decodeError reads an api.ErrorBody, falling back to the HTTP status.
func decodeError(status int, body []byte) *apierror.Error {
	var eb api.ErrorBody
	if json.Unmarshal(body, &eb) == nil && eb.Message != "" {
		if eb.Code == 0 {
			eb.Code = status
		}
		return apierror.New(eb.Code, eb.Message)
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return apierror.New(status, msg)
}

// isServerFailure reports whether err should count against the breaker.
func isServerFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return apierror.Code(err) >= 500
}
