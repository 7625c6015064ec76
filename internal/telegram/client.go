// Package telegram is a minimal Bot API client for sending messages.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultAPIURL is the public Bot API endpoint.
	DefaultAPIURL = "https://api.telegram.org"

	// Telegram allows about 30 messages per second per bot.
	defaultMinInterval = 50 * time.Millisecond
	defaultAttempts    = 3
	requestTimeout     = 10 * time.Second
)

// ErrNotConfigured is returned by a client without a bot token.
var ErrNotConfigured = errors.New("telegram bot token not configured")

// APIError is a non-retryable Bot API failure.
type APIError struct {
	Method      string
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.StatusCode, e.Description)
}

// Sender sends a text message to a chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// Client calls the Bot API with a global minimum interval between requests
// and retries on rate limiting and server errors. Retries take a limiter
// slot like any other request.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
	attempts   int
	wait       func(ctx context.Context, d time.Duration) error
}

var _ Sender = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMinInterval overrides the spacing between requests. Zero disables
// throttling.
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) { c.limiter = newLimiter(d) }
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// NewClient creates a client for the bot identified by token. apiURL may be
// empty to use DefaultAPIURL.
func NewClient(apiURL, token string, opts ...Option) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	c := &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     slog.Default(),
		limiter:    newLimiter(defaultMinInterval),
		attempts:   defaultAttempts,
		wait:       sleep,
	}
	if token != "" {
		c.baseURL = strings.TrimRight(apiURL, "/") + "/bot" + token
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// SendMessage sends a Markdown formatted message.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	return c.call(ctx, "sendMessage", sendMessageRequest{ChatID: chatID, Text: text, ParseMode: "Markdown"})
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (c *Client) call(ctx context.Context, method string, payload any) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		status, resp, err := c.do(ctx, method, body)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("Telegram request failed", "method", method, "attempt", attempt, "error", err)
			lastErr = err
			if err := c.wait(ctx, time.Duration(attempt)*time.Second); err != nil {
				return err
			}
			continue
		}

		switch {
		case status == http.StatusOK:
			return nil

		case status == http.StatusTooManyRequests:
			retryAfter := resp.Parameters.RetryAfter
			if retryAfter <= 0 {
				retryAfter = 1
			}
			c.logger.Warn("Rate limited by Telegram", "method", method, "retry_after", retryAfter)
			lastErr = &APIError{Method: method, StatusCode: status, Description: resp.Description}
			if err := c.wait(ctx, time.Duration(retryAfter)*time.Second+500*time.Millisecond); err != nil {
				return err
			}

		case status >= 400 && status < 500:
			c.logger.Error("Telegram API error", "method", method, "status", status, "description", resp.Description)
			return &APIError{Method: method, StatusCode: status, Description: resp.Description}

		default:
			c.logger.Warn("Telegram server error", "method", method, "status", status, "attempt", attempt)
			lastErr = &APIError{Method: method, StatusCode: status, Description: resp.Description}
			if err := c.wait(ctx, time.Second); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("telegram %s failed after %d attempts: %w", method, c.attempts, lastErr)
}

func (c *Client) do(ctx context.Context, method string, body []byte) (int, *apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()

	var resp apiResponse
	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return 0, nil, err
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		resp.Description = strings.TrimSpace(string(raw))
	}
	if resp.Parameters.RetryAfter == 0 {
		if s := res.Header.Get("Retry-After"); s != "" {
			resp.Parameters.RetryAfter, _ = strconv.Atoi(s)
		}
	}
	return res.StatusCode, &resp, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
