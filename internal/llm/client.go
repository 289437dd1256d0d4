package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultTimeout bounds every single attempt.
const DefaultTimeout = 60 * time.Second

// Config describes one logical capability backed by an ordered list of models.
type Config struct {
	Capability Capability
	Models     []ModelID
	Limits     LimitsTable
	// Strict rejects identifiers missing from Limits.
	Strict  bool
	Timeout time.Duration
}

type Option func(*Client)

func WithObserver(o Observer) Option {
	return func(c *Client) {
		if o != nil {
			c.observer = o
		}
	}
}

// Client asks a prioritized list of models in order and returns the first answer.
// A Client is not safe for concurrent use; build one per capability.
type Client struct {
	capability Capability
	backend    Backend
	models     []ModelID
	limits     LimitsTable
	timeout    time.Duration
	observer   Observer

	active ModelID
}

// New validates cfg and builds a client. The active model starts as the first entry.
func New(cfg Config, backend Backend, opts ...Option) (*Client, error) {
	if backend == nil {
		return nil, &ConfigurationError{Reason: "backend is required"}
	}

	capability := cfg.Capability
	if capability == "" {
		capability = CapabilityChat
	}

	if len(cfg.Models) == 0 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("model list for %s is empty", capability)}
	}

	limits := cfg.Limits
	if limits == nil {
		limits = KnownLimits()
	}

	models := make([]ModelID, 0, len(cfg.Models))
	for idx, m := range cfg.Models {
		id := ModelID(strings.TrimSpace(string(m)))
		if id == "" {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("%s model #%d is blank", capability, idx+1)}
		}
		if cfg.Strict && !limits.Has(id) {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("unknown %s model %q", capability, id)}
		}
		models = append(models, id)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		capability: capability,
		backend:    backend,
		models:     models,
		limits:     limits,
		timeout:    timeout,
		observer:   nopObserver{},
		active:     models[0],
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *Client) Capability() Capability { return c.capability }

// Active returns the last model that answered, or the first configured one.
func (c *Client) Active() ModelID { return c.active }

func (c *Client) Models() []ModelID {
	out := make([]ModelID, len(c.models))
	copy(out, c.models)
	return out
}

// Metadata returns the declared limits of the active model.
func (c *Client) Metadata() Limits {
	return c.limits.Lookup(c.active)
}

// Ask tries every configured model in order and returns the first successful answer.
// Each model is attempted at most once per call.
func (c *Client) Ask(ctx context.Context, req Request) (Result, error) {
	if err := c.validate(req); err != nil {
		return Result{}, err
	}

	var last *AttemptError
	attempts := 0

	for idx, model := range c.models {
		if err := ctx.Err(); err != nil {
			last = &AttemptError{Model: model, Index: idx, Err: err}
			break
		}

		attempts++
		start := time.Now()
		text, err := c.attempt(ctx, model, req)
		if err == nil && strings.TrimSpace(text) == "" {
			err = ErrEmptyResponse
		}

		event := AttemptEvent{
			Capability: c.capability,
			Backend:    c.backend.Name(),
			Model:      model,
			Index:      idx,
			Total:      len(c.models),
			Duration:   time.Since(start),
		}

		if err != nil {
			last = &AttemptError{Model: model, Index: idx, Err: err}
			event.Err = last
			c.observer.AttemptFinished(event)
			continue
		}

		c.observer.AttemptFinished(event)
		c.active = model

		return Result{Text: strings.TrimSpace(text), Model: model}, nil
	}

	exhausted := &ExhaustedError{Capability: c.capability, Attempts: attempts, Last: last}
	c.observer.Exhausted(exhausted)

	return Result{}, exhausted
}

// Chat asks with role-tagged messages.
func (c *Client) Chat(ctx context.Context, messages ...Message) (string, error) {
	res, err := c.Ask(ctx, Request{Messages: messages})
	return res.Text, err
}

// Complete asks with a single prompt.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	res, err := c.Ask(ctx, Request{Prompt: prompt})
	return res.Text, err
}

// Vision asks with messages and images attached to the last user turn.
func (c *Client) Vision(ctx context.Context, messages []Message, images ...Image) (string, error) {
	res, err := c.Ask(ctx, Request{Messages: messages, Images: images})
	return res.Text, err
}

func (c *Client) validate(req Request) error {
	if len(req.Messages) == 0 && strings.TrimSpace(req.Prompt) == "" {
		return errors.New("request has neither messages nor prompt")
	}
	if c.capability != CapabilityVision && len(req.Images) > 0 {
		return fmt.Errorf("%s client does not accept images", c.capability)
	}
	return nil
}

func (c *Client) attempt(ctx context.Context, model ModelID, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	switch c.capability {
	case CapabilityCompletion:
		prompt := req.Prompt
		if strings.TrimSpace(prompt) == "" {
			prompt = flatten(req.Messages)
		}
		return c.backend.Complete(ctx, model, prompt, c.limits.Lookup(model).MaxOutputTokens)
	case CapabilityVision:
		return c.backend.Chat(ctx, model, attachImages(chatMessages(req), req.Images))
	default:
		return c.backend.Chat(ctx, model, chatMessages(req))
	}
}

func chatMessages(req Request) []Message {
	messages := make([]Message, 0, len(req.Messages)+1)
	messages = append(messages, req.Messages...)
	if prompt := strings.TrimSpace(req.Prompt); prompt != "" {
		messages = append(messages, UserMessage(prompt))
	}
	return messages
}

// attachImages interleaves images into the last user message. A user message
// is appended when the conversation has none.
func attachImages(messages []Message, images []Image) []Message {
	if len(images) == 0 {
		return messages
	}

	target := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			target = i
			break
		}
	}

	if target == -1 {
		messages = append(messages, Message{Role: RoleUser})
		target = len(messages) - 1
	}

	msg := messages[target]
	parts := make([]Part, 0, len(msg.Parts)+len(images)+1)
	if len(msg.Parts) > 0 {
		parts = append(parts, msg.Parts...)
	} else if msg.Content != "" {
		parts = append(parts, TextPart(msg.Content))
	}
	for _, img := range images {
		parts = append(parts, ImagePart(img))
	}

	msg.Parts = parts
	msg.Content = ""
	messages[target] = msg

	return messages
}

func flatten(messages []Message) string {
	chunks := make([]string, 0, len(messages))
	for _, m := range messages {
		if text := strings.TrimSpace(m.Text()); text != "" {
			chunks = append(chunks, text)
		}
	}
	return strings.Join(chunks, "\n\n")
}
