// Package gateway implements the mobile money STK push client. It handles
// OAuth token management, charge requests, and status queries against the
// provider's REST API, with retries, rate limiting, and a circuit breaker.
package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kuccps-hub/course-match-hub/internal/domain/payment"
	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
	"github.com/kuccps-hub/course-match-hub/pkg/circuitbreaker"
	"github.com/kuccps-hub/course-match-hub/pkg/logger"
	"github.com/kuccps-hub/course-match-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the gateway client.
type ClientConfig struct {
	// BaseURL is the provider API base URL.
	BaseURL string

	// ConsumerKey and ConsumerSecret are the OAuth client credentials.
	ConsumerKey    string
	ConsumerSecret string

	// ShortCode is the business short code charged against.
	ShortCode string

	// Passkey signs the STK push password.
	Passkey string

	// CallbackURL receives the asynchronous charge outcome.
	CallbackURL string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// RequestsPerSecond caps outbound calls to the provider.
	RequestsPerSecond float64

	// Logger for structured logging.
	Logger *logger.Logger
}

// DefaultClientConfig returns sensible defaults for the sandbox environment.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:           baseURL,
		Timeout:           30 * time.Second,
		RequestsPerSecond: 5,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the STK push gateway client. Implements payment.Gateway.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	log        *logger.Logger
	limiter    *rate.Limiter
	breaker    *circuitbreaker.CircuitBreaker
	retrier    *retry.Retrier

	token   *tokenDTO
	tokenMu sync.RWMutex

	// now is swapped in tests to pin the password timestamp.
	now func() time.Time
}

// NewClient creates a new gateway client.
func NewClient(config ClientConfig) *Client {
	log := config.Logger
	if log == nil {
		log = logger.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 5
	}

	c := &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		log:     log.With(logger.Component("gateway")),
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
		retrier: retry.GatewayRetrier(),
		now:     time.Now,
	}
	c.breaker = circuitbreaker.New(
		"payment-gateway",
		circuitbreaker.WithFailureThreshold(3),
		circuitbreaker.WithSuccessThreshold(2),
		circuitbreaker.WithTimeout(time.Minute),
		// Only availability failures open the circuit. Rejections and
		// pending-status answers mean the provider is up.
		circuitbreaker.WithIsFailure(func(err error) bool {
			return errors.Is(err, shared.ErrGatewayUnavailable) ||
				errors.Is(err, shared.ErrGatewayTimeout)
		}),
		circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
			c.log.Warn("circuit breaker state change",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		}),
	)
	return c
}

var _ payment.Gateway = (*Client)(nil)

// ══════════════════════════════════════════════════════════════════════════════
// GATEWAY OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// RequestCharge submits an STK push for the given phone and amount.
// Acceptance only means the prompt reached the payer's handset queue; the
// outcome arrives later via webhook or QueryStatus.
func (c *Client) RequestCharge(ctx context.Context, req payment.ChargeRequest) (*payment.ChargeResponse, error) {
	timestamp := c.now().Format("20060102150405")

	body := stkPushRequestDTO{
		BusinessShortCode: c.config.ShortCode,
		Password:          c.password(timestamp),
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            strconv.Itoa(int(req.Amount)),
		PartyA:            req.Phone,
		PartyB:            c.config.ShortCode,
		PhoneNumber:       req.Phone,
		CallBackURL:       c.config.CallbackURL,
		AccountReference:  req.AccountReference,
		TransactionDesc:   req.Description,
	}

	var response stkPushResponseDTO
	if err := c.doRequest(ctx, "/mpesa/stkpush/v1/processrequest", body, &response); err != nil {
		return nil, err
	}

	if response.ResponseCode != "0" {
		c.log.Warn("charge request rejected",
			logger.String("response_code", response.ResponseCode),
			logger.String("description", response.ResponseDescription))
		return nil, shared.ErrGatewayRejected
	}

	c.log.Info("charge requested",
		logger.Reference(response.CheckoutRequestID))

	return &payment.ChargeResponse{
		MerchantRequestID: response.MerchantRequestID,
		CheckoutRequestID: response.CheckoutRequestID,
	}, nil
}

// QueryStatus fetches the outcome of an earlier charge request.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (*payment.ChargeOutcome, error) {
	timestamp := c.now().Format("20060102150405")

	body := stkQueryRequestDTO{
		BusinessShortCode: c.config.ShortCode,
		Password:          c.password(timestamp),
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	}

	var response stkQueryResponseDTO
	err := c.doRequest(ctx, "/mpesa/stkpushquery/v1/query", body, &response)
	if err != nil {
		// The provider answers a too-early query with a dedicated error
		// code rather than a pending result.
		var apiErr *errorDTO
		if errors.As(err, &apiErr) && apiErr.ErrorCode == errorCodePending {
			return &payment.ChargeOutcome{
				Reference: checkoutRequestID,
				Pending:   true,
			}, nil
		}
		return nil, err
	}

	outcome := &payment.ChargeOutcome{
		Reference: response.CheckoutRequestID,
		Succeeded: response.ResultCode == "0",
	}
	if !outcome.Succeeded {
		outcome.Reason = response.ResultDesc
	}
	return outcome, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION
// ══════════════════════════════════════════════════════════════════════════════

// accessToken returns a valid bearer token, fetching a fresh one when the
// cached token is absent or near expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.tokenMu.RLock()
	if !c.token.isExpired() {
		token := c.token.AccessToken
		c.tokenMu.RUnlock()
		return token, nil
	}
	c.tokenMu.RUnlock()

	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	// Another goroutine may have refreshed while we waited for the lock.
	if !c.token.isExpired() {
		return c.token.AccessToken, nil
	}

	token, err := retry.DoWithData(ctx, c.fetchToken,
		retry.WithMaxAttempts(4),
		retry.WithInitialDelay(200*time.Millisecond),
		retry.WithRetryIf(func(err error) bool {
			return !errors.Is(err, shared.ErrGatewayRejected)
		}))
	if err != nil {
		return "", err
	}

	c.token = token
	return token.AccessToken, nil
}

func (c *Client) fetchToken(ctx context.Context) (*tokenDTO, error) {
	url := c.config.BaseURL + "/oauth/v1/generate?grant_type=client_credentials"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}

	credentials := c.config.ConsumerKey + ":" + c.config.ConsumerSecret
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(credentials)))
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, shared.WrapError("gateway", "FetchToken", shared.ErrServiceUnavailable,
			"token request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, shared.ErrGatewayRejected
	}
	if resp.StatusCode != http.StatusOK {
		return nil, shared.WrapError("gateway", "FetchToken", shared.ErrServiceUnavailable,
			fmt.Sprintf("token endpoint returned status %d", resp.StatusCode), nil)
	}

	var token tokenDTO
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("parse token response: %w", err)
	}

	token.fetchedAt = c.now()
	token.lifetime = time.Hour
	if seconds, err := strconv.Atoi(token.ExpiresIn); err == nil && seconds > 0 {
		token.lifetime = time.Duration(seconds) * time.Second
	}

	return &token, nil
}

// password builds the base64(shortcode + passkey + timestamp) request password.
func (c *Client) password(timestamp string) string {
	raw := c.config.ShortCode + c.config.Passkey + timestamp
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// doRequest performs a POST with rate limiting, circuit breaking, and retries.
func (c *Client) doRequest(ctx context.Context, path string, body, result interface{}) error {
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Permanent(err)
			}
			return c.doSingleRequest(ctx, path, body, result)
		})
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) ||
		errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return shared.ErrGatewayUnavailable
	}
	return err
}

// doSingleRequest performs a single HTTP POST. Transient failures come back
// wrapped retry.Retryable so the retrier knows to try again.
func (c *Client) doSingleRequest(ctx context.Context, path string, body, result interface{}) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return retry.Permanent(err)
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return retry.Permanent(fmt.Errorf("marshal body: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return retry.Permanent(shared.ErrGatewayTimeout)
		}
		return retry.Retryable(shared.ErrGatewayUnavailable)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return retry.Retryable(fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		// The provider reports a still-in-flight charge as a 500 with a
		// dedicated error code. That is an answer, not an outage.
		var apiErr errorDTO
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.ErrorCode == errorCodePending {
			return retry.Permanent(&apiErr)
		}
		return retry.Retryable(shared.ErrGatewayUnavailable)

	case resp.StatusCode >= 400:
		var apiErr errorDTO
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.ErrorCode != "" {
			return retry.Permanent(&apiErr)
		}
		return retry.Permanent(shared.ErrGatewayRejected)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return retry.Permanent(fmt.Errorf("unmarshal response: %w", err))
		}
	}
	return nil
}

// IsHealthy checks whether the provider's token endpoint is reachable.
func (c *Client) IsHealthy(ctx context.Context) bool {
	_, err := c.accessToken(ctx)
	return err == nil
}
