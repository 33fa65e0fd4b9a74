// Package telegram sends tutor alerts to a Telegram chat through the Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/starboard-tutoring/pointsledger/internal/application/eventhandler"
	"github.com/starboard-tutoring/pointsledger/pkg/logger"
	"github.com/starboard-tutoring/pointsledger/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the Telegram client.
type ClientConfig struct {
	// Token is the Bot API token.
	Token string

	// BaseURL defaults to https://api.telegram.org.
	BaseURL string

	Timeout time.Duration

	// RetryAttempts includes the first attempt.
	RetryAttempts int
	RetryDelay    time.Duration

	Logger *slog.Logger
}

// DefaultClientConfig returns the defaults for token.
func DefaultClientConfig(token string) ClientConfig {
	return ClientConfig{
		Token:         token,
		BaseURL:       "https://api.telegram.org",
		Timeout:       10 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
	}
}

// apiResponse is the Bot API envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

// APIError is an error reported by the Bot API.
type APIError struct {
	Code        int
	Description string
	RetryAfter  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is a minimal Bot API client: it can only send messages.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	retrier    *retry.Retrier
	logger     *slog.Logger
}

// NewClient creates a new Telegram client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.telegram.org"
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	log := config.Logger.With(logger.Component("telegram"))

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		retrier: retry.New(
			retry.WithMaxAttempts(config.RetryAttempts),
			retry.WithInitialDelay(config.RetryDelay),
			retry.WithRetryIf(isRetryable),
			retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
				log.Warn("telegram call failed, retrying",
					"attempt", attempt, "delay", delay.String(), logger.Err(err))
			}),
		),
		logger: log,
	}
}

// SendHTML sends an HTML formatted message to chatID.
func (c *Client) SendHTML(ctx context.Context, chatID int64, text string) error {
	body := map[string]interface{}{
		"chat_id":                  chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	if err := c.callAPI(ctx, "sendMessage", body); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (c *Client) callAPI(ctx context.Context, method string, body map[string]interface{}) error {
	return c.retrier.Do(ctx, func(ctx context.Context) error {
		err := c.doAPICall(ctx, method, body)

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(apiErr.RetryAfter) * time.Second):
			}
		}
		return err
	})
}

func (c *Client) doAPICall(ctx context.Context, method string, body map[string]interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.config.BaseURL, c.config.Token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return &APIError{Code: resp.StatusCode, Description: "unreadable response"}
	}
	if !apiResp.OK {
		apiErr := &APIError{Code: apiResp.ErrorCode, Description: apiResp.Description}
		if apiResp.Parameters != nil {
			apiErr.RetryAfter = apiResp.Parameters.RetryAfter
		}
		return apiErr
	}
	return nil
}

// isRetryable retries rate limits, server errors and transport failures.
func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	return true
}

// ══════════════════════════════════════════════════════════════════════════════
// ALERT NOTIFIER
// ══════════════════════════════════════════════════════════════════════════════

// AlertNotifier posts at-risk alerts to one tutor chat.
type AlertNotifier struct {
	client *Client
	chatID int64
}

// NewAlertNotifier creates an eventhandler.Notifier that writes to chatID.
func NewAlertNotifier(client *Client, chatID int64) *AlertNotifier {
	return &AlertNotifier{client: client, chatID: chatID}
}

// Notify implements eventhandler.Notifier.
func (n *AlertNotifier) Notify(ctx context.Context, alert eventhandler.Alert) error {
	return n.client.SendHTML(ctx, n.chatID, FormatAlert(alert))
}

var levelIcons = map[string]string{
	"low":    "🟢",
	"medium": "🟡",
	"high":   "🔴",
}

// FormatAlert renders an alert as a Telegram HTML message.
func FormatAlert(a eventhandler.Alert) string {
	var b strings.Builder

	icon := levelIcons[string(a.Level)]
	if icon == "" {
		icon = "⚠️"
	}
	fmt.Fprintf(&b, "%s <b>%s risk</b>: <code>%s</code> (score %d)\n",
		icon, html.EscapeString(strings.ToUpper(string(a.Level))), html.EscapeString(a.StudentID), a.Score)
	for _, r := range a.Reasons {
		fmt.Fprintf(&b, "• %s\n", html.EscapeString(r))
	}
	if !a.RaisedAt.IsZero() {
		fmt.Fprintf(&b, "<i>%s</i>", a.RaisedAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	return strings.TrimRight(b.String(), "\n")
}
