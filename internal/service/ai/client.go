package ai

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/chiehyu-lin/line-ai-relay/internal/config"
)

// FallbackReply is sent (and stored) when a completion attempt fails.
const FallbackReply = "抱歉，我現在無法回應，請稍後再試。"

// UnavailableReply is sent when no model credential is configured.
const UnavailableReply = "AI服務暫時無法使用，請稍後再試。"

// Client runs composed prompts through the configured chat model with a
// bounded per-call deadline.
type Client struct {
	chain   compose.Runnable[map[string]any, *schema.Message]
	timeout time.Duration
}

// NewClient builds the chat model from the Ark configuration and compiles
// the completion chain once.
func NewClient(ctx context.Context, cfg config.AIConfig) (*Client, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}

	template := prompt.FromMessages(schema.FString, schema.UserMessage("{prompt}"))

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile completion chain: %w", err)
	}

	return &Client{chain: runnable, timeout: cfg.Timeout()}, nil
}

// Complete sends one prompt and returns the generated text. Single bounded
// attempt, no retry: a retried call would outlive the reply-token window.
func (c *Client) Complete(ctx context.Context, promptText string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	response, err := c.chain.Invoke(callCtx, map[string]any{"prompt": promptText})
	if err != nil {
		return "", fmt.Errorf("run completion chain: %w", err)
	}

	log.Printf("[ai] completion generated, length=%d", len(response.Content))
	return strings.TrimSpace(response.Content), nil
}
