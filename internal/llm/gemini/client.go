package gemini

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"google.golang.org/genai"

	"github.com/spigell/resume-autofill/internal/llm"
)

const (
	providerName = "gemini"

	roleUser  = "user"
	roleModel = "model"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Backend sends chat and completion payloads to the Gemini API.
type Backend struct {
	models contentGenerator
}

// New creates a Backend configured for the Gemini API backend.
func New(ctx context.Context, apiKey string) (*Backend, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Backend{models: client.Models}, nil
}

func (b *Backend) Name() string { return providerName }

func (b *Backend) Chat(ctx context.Context, model llm.ModelID, messages []llm.Message) (string, error) {
	contents, system := buildContents(messages)
	if len(contents) == 0 {
		return "", errors.New("no user content to send")
	}

	var config *genai.GenerateContentConfig
	if system != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		}
	}

	return b.generate(ctx, model, contents, config)
}

func (b *Backend) Complete(ctx context.Context, model llm.ModelID, prompt string, maxTokens int) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("prompt must not be empty")
	}

	contents := []*genai.Content{{Role: roleUser, Parts: []*genai.Part{{Text: prompt}}}}

	var config *genai.GenerateContentConfig
	if maxTokens > 0 {
		config = &genai.GenerateContentConfig{MaxOutputTokens: int32(maxTokens)}
	}

	return b.generate(ctx, model, contents, config)
}

func (b *Backend) generate(ctx context.Context, model llm.ModelID, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	if b == nil || b.models == nil {
		return "", errors.New("gemini backend is not initialized")
	}

	resp, err := b.models.GenerateContent(ctx, model.String(), contents, config)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	output := responseText(resp)
	if output == "" {
		return "", fmt.Errorf("gemini: %w", llm.ErrEmptyResponse)
	}

	return output, nil
}

// buildContents maps chat turns to Gemini contents. System turns are lifted into a single instruction.
func buildContents(messages []llm.Message) ([]*genai.Content, string) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			if text := strings.TrimSpace(msg.Text()); text != "" {
				system = append(system, text)
			}
		case llm.RoleAssistant:
			contents = append(contents, &genai.Content{Role: roleModel, Parts: []*genai.Part{{Text: msg.Text()}}})
		default:
			contents = append(contents, &genai.Content{Role: roleUser, Parts: buildParts(msg)})
		}
	}

	return contents, strings.Join(system, "\n\n")
}

func buildParts(msg llm.Message) []*genai.Part {
	if len(msg.Parts) == 0 {
		return []*genai.Part{{Text: msg.Content}}
	}

	parts := make([]*genai.Part, 0, len(msg.Parts))
	for _, p := range msg.Parts {
		if p.Image == nil {
			parts = append(parts, &genai.Part{Text: p.Text})
			continue
		}
		parts = append(parts, imagePart(*p.Image))
	}
	return parts
}

func imagePart(img llm.Image) *genai.Part {
	mimeType := img.MIMEType
	if img.IsRemote() {
		if mimeType == "" {
			mimeType = mime.TypeByExtension(path.Ext(img.URL))
		}
		if mimeType == "" {
			mimeType = "image/png"
		}
		return &genai.Part{FileData: &genai.FileData{FileURI: img.URL, MIMEType: mimeType}}
	}

	if mimeType == "" {
		mimeType = "image/png"
	}
	return &genai.Part{InlineData: &genai.Blob{Data: img.Data, MIMEType: mimeType}}
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	return strings.TrimSpace(builder.String())
}
