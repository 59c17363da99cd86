package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultBaseURL is the LINE Messaging API endpoint.
const DefaultBaseURL = "https://api.line.me"

// Loading indicator durations accepted by the platform.
const (
	MinLoadingSeconds = 1
	MaxLoadingSeconds = 60
)

// Client is a minimal LINE Messaging API client covering the reply and
// chat-loading endpoints.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

// NewClient creates a client authenticated with the channel access token.
func NewClient(accessToken string, requestTimeout time.Duration) *Client {
	return &Client{
		baseURL:     DefaultBaseURL,
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// WithBaseURL overrides the API endpoint, primarily for tests.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = baseURL
	return c
}

type replyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []textMessage `json:"messages"`
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ReplyMessage sends one text message using the event's one-time reply
// token. The token expires quickly, so callers should not retry.
func (c *Client) ReplyMessage(ctx context.Context, replyToken, text string) error {
	payload := replyRequest{
		ReplyToken: replyToken,
		Messages:   []textMessage{{Type: "text", Text: text}},
	}
	return c.post(ctx, "/v2/bot/message/reply", payload, http.StatusOK)
}

type loadingRequest struct {
	ChatID         string `json:"chatId"`
	LoadingSeconds int    `json:"loadingSeconds"`
}

// StartLoading shows the typing animation in the user's chat for the given
// duration. The API accepts 1..60 seconds; out-of-range values are clamped.
// Success is HTTP 202.
func (c *Client) StartLoading(ctx context.Context, chatID string, seconds int) error {
	if seconds < MinLoadingSeconds {
		seconds = MinLoadingSeconds
	}
	if seconds > MaxLoadingSeconds {
		seconds = MaxLoadingSeconds
	}

	payload := loadingRequest{ChatID: chatID, LoadingSeconds: seconds}
	return c.post(ctx, "/v2/bot/chat/loading/start", payload, http.StatusAccepted)
}

func (c *Client) post(ctx context.Context, path string, payload any, wantStatus int) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("line %s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("line %s returned %d: %s", path, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	io.Copy(io.Discard, resp.Body) // drain
	return nil
}
