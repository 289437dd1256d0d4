package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

// ModelID names a remote model, e.g. "openai/gpt-4o".
type ModelID string

func (m ModelID) String() string { return string(m) }

// Capability selects the payload shape built for every candidate.
type Capability string

const (
	CapabilityChat       Capability = "chat"
	CapabilityCompletion Capability = "completion"
	CapabilityVision     Capability = "vision"
)

// ParseCapability validates a capability name coming from flags or config.
func ParseCapability(s string) (Capability, error) {
	switch c := Capability(strings.ToLower(strings.TrimSpace(s))); c {
	case CapabilityChat, CapabilityCompletion, CapabilityVision:
		return c, nil
	case "multimodal":
		return CapabilityVision, nil
	default:
		return "", fmt.Errorf("unknown capability %q", s)
	}
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Image references a picture either by remote URL or by embedded bytes.
type Image struct {
	URL      string
	Data     []byte
	MIMEType string
}

// DataURL returns the URL for remote images or a base64 data URL for embedded ones.
func (i Image) DataURL() string {
	if i.URL != "" {
		return i.URL
	}
	mime := i.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

func (i Image) IsRemote() bool { return i.URL != "" }

// Part is a single element of a multimodal message: text or an image.
type Part struct {
	Text  string
	Image *Image
}

func TextPart(text string) Part { return Part{Text: text} }

func ImagePart(img Image) Part { return Part{Image: &img} }

// Message is a role-tagged chat turn. Parts, when present, take precedence over Content.
type Message struct {
	Role    Role
	Content string
	Parts   []Part
}

func SystemMessage(text string) Message { return Message{Role: RoleSystem, Content: text} }

func UserMessage(text string) Message { return Message{Role: RoleUser, Content: text} }

func AssistantMessage(text string) Message { return Message{Role: RoleAssistant, Content: text} }

// Text flattens the textual content of the message.
func (m Message) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Image != nil || p.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

// Request is the input of a single Ask call.
// Chat and vision clients read Messages, completion clients read Prompt.
type Request struct {
	Messages []Message
	Prompt   string
	Images   []Image
}

// Result is the normalized output of a successful Ask call.
type Result struct {
	Text  string
	Model ModelID
}

// Backend is a transport able to talk to one remote API for any model identifier.
type Backend interface {
	Name() string
	Chat(ctx context.Context, model ModelID, messages []Message) (string, error)
	Complete(ctx context.Context, model ModelID, prompt string, maxTokens int) (string, error)
}
