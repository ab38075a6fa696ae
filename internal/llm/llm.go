// Package llm answers free-form questions the command rules do not cover.
package llm

import (
	"context"
	"errors"
	log "log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const defaultSystemPrompt = `You are Jarvis, a voice assistant on the user's desktop.
Your answers are read aloud by a speech synthesizer.
Reply in one to three short plain sentences. No markdown, no lists, no code.`

const FallbackReply = "Sorry, I can't reach my language model right now."

var ErrNoChoices = errors.New("no choices in response")

type Options struct {
	APIKey       string
	Model        string
	BaseURL      string
	SystemPrompt string
	HTTPClient   *http.Client
	Timeout      time.Duration
	MaxRetries   int
}

type Client struct {
	api openai.Client
	opt Options
}

func New(opt Options) *Client {
	if opt.Model == "" {
		opt.Model = string(openai.ChatModelGPT5Nano)
	}
	if opt.SystemPrompt == "" {
		opt.SystemPrompt = defaultSystemPrompt
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 30 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(opt.APIKey),
		option.WithMaxRetries(opt.MaxRetries),
	}
	if opt.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(opt.BaseURL))
	}
	if opt.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(opt.HTTPClient))
	}

	return &Client{api: openai.NewClient(opts...), opt: opt}
}

// Ask returns the model's answer to text.
func (c *Client) Ask(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opt.Timeout)
	defer cancel()

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(c.opt.SystemPrompt),
			openai.UserMessage(text),
		},
		Model: openai.ChatModel(c.opt.Model),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	log.Debug("Chat answered", "model", resp.Model, "tokens", resp.Usage.TotalTokens)
	return answer, nil
}

// Chat is Ask with failures turned into a spoken apology.
func (c *Client) Chat(ctx context.Context, text string) string {
	answer, err := c.Ask(ctx, text)
	if err != nil {
		log.Error("Chat completion failed", "err", err)
		return FallbackReply
	}
	if answer == "" {
		return FallbackReply
	}
	return answer
}

// Offline stands in when no API key is configured.
type Offline struct{}

func (Offline) Chat(context.Context, string) string {
	return "I can only follow commands right now; no language model is configured."
}
