package openrouter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/spigell/resume-autofill/internal/llm"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	providerName   = "openrouter"
)

// Options configure the router transport.
type Options struct {
	APIKey  string
	BaseURL string
	// Referer and Title identify the application on the router dashboard.
	Referer    string
	Title      string
	HTTPClient *http.Client
}

// Backend talks to the OpenAI-compatible chat-completions and completions endpoints of the router.
type Backend struct {
	client *openai.Client
}

func New(opts Options) (*Backend, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("openrouter: api key required")
	}

	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	// One attempt per candidate: the fallback client moves on to the next model instead.
	requestOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(strings.TrimRight(baseURL, "/") + "/"),
		option.WithMaxRetries(0),
	}
	if referer := strings.TrimSpace(opts.Referer); referer != "" {
		requestOpts = append(requestOpts, option.WithHeader("HTTP-Referer", referer))
	}
	if title := strings.TrimSpace(opts.Title); title != "" {
		requestOpts = append(requestOpts, option.WithHeader("X-Title", title))
	}
	if opts.HTTPClient != nil {
		requestOpts = append(requestOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	client := openai.NewClient(requestOpts...)

	return &Backend{client: &client}, nil
}

func (b *Backend) Name() string { return providerName }

func (b *Backend) Chat(ctx context.Context, model llm.ModelID, messages []llm.Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: buildMessages(messages),
	}

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: no choices: %w", llm.ErrEmptyResponse)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("chat completion: %w", llm.ErrEmptyResponse)
	}

	return text, nil
}

func (b *Backend) Complete(ctx context.Context, model llm.ModelID, prompt string, maxTokens int) (string, error) {
	params := openai.CompletionNewParams{
		Model:  openai.CompletionNewParamsModel(model),
		Prompt: openai.CompletionNewParamsPromptUnion{OfString: openai.String(prompt)},
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	resp, err := b.client.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion: no choices: %w", llm.ErrEmptyResponse)
	}

	text := strings.TrimSpace(resp.Choices[0].Text)
	if text == "" {
		return "", fmt.Errorf("completion: %w", llm.ErrEmptyResponse)
	}

	return text, nil
}

func buildMessages(messages []llm.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Text()))
		case llm.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Text()))
		default:
			if len(msg.Parts) == 0 {
				out = append(out, openai.UserMessage(msg.Content))
				continue
			}
			out = append(out, openai.UserMessage(buildParts(msg.Parts)))
		}
	}
	return out
}

func buildParts(parts []llm.Part) []openai.ChatCompletionContentPartUnionParam {
	out := make([]openai.ChatCompletionContentPartUnionParam, 0, len(parts))
	for _, p := range parts {
		if p.Image != nil {
			out = append(out, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: p.Image.DataURL(),
			}))
			continue
		}
		out = append(out, openai.TextContentPart(p.Text))
	}
	return out
}
