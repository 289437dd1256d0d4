package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/spigell/resume-autofill/internal/llm"
)

type capturedRequest struct {
	path   string
	auth   string
	title  string
	body  map[string]any
}

type routerStub struct {
	mu       sync.Mutex
	requests []capturedRequest
	status   int
	response string
}

func (s *routerStub) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}

		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("decode body: %v", err)
		}

		s.mu.Lock()
		s.requests = append(s.requests, capturedRequest{
			path:  r.URL.Path,
			auth:  r.Header.Get("Authorization"),
			title: r.Header.Get("X-Title"),
			body:  body,
		})
		status, response := s.status, s.response
		s.mu.Unlock()

		if status == 0 {
			status = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}
}

func newTestBackend(t *testing.T, stub *routerStub) *Backend {
	t.Helper()

	server := httptest.NewServer(stub.handler(t))
	t.Cleanup(server.Close)

	backend, err := New(Options{APIKey: "secret", BaseURL: server.URL + "/api/v1", Title: "resume-autofill"})
	if err != nil {
		t.Fatal(err)
	}
	return backend
}

const chatResponse = `{
  "id": "gen-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "openai/gpt-4o",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": " full_name: Jane Doe "}}]
}`

const completionResponse = `{
  "id": "gen-2",
  "object": "text_completion",
  "created": 1700000000,
  "model": "openai/gpt-3.5-turbo-instruct",
  "choices": [{"index": 0, "finish_reason": "stop", "logprobs": null, "text": "Dear hiring manager"}]
}`

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestChatSendsMessages(t *testing.T) {
	stub := &routerStub{response: chatResponse}
	backend := newTestBackend(t, stub)

	text, err := backend.Chat(context.Background(), "openai/gpt-4o", []llm.Message{
		llm.SystemMessage("extract fields"),
		llm.UserMessage("resume text"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "full_name: Jane Doe" {
		t.Fatalf("unexpected text %q", text)
	}

	if len(stub.requests) != 1 {
		t.Fatalf("expected a single request, got %d", len(stub.requests))
	}

	req := stub.requests[0]
	if req.path != "/api/v1/chat/completions" {
		t.Fatalf("unexpected path %q", req.path)
	}
	if req.auth != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", req.auth)
	}
	if req.title != "resume-autofill" {
		t.Fatalf("unexpected title header %q", req.title)
	}
	if req.body["model"] != "openai/gpt-4o" {
		t.Fatalf("unexpected model %v", req.body["model"])
	}

	messages, _ := req.body["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %v", req.body["messages"])
	}
	first, _ := messages[0].(map[string]any)
	if first["role"] != "system" || first["content"] != "extract fields" {
		t.Fatalf("unexpected system message %v", first)
	}
}

func TestChatSendsImageParts(t *testing.T) {
	stub := &routerStub{response: chatResponse}
	backend := newTestBackend(t, stub)

	msg := llm.Message{Role: llm.RoleUser, Parts: []llm.Part{
		llm.TextPart("what is on the page?"),
		llm.ImagePart(llm.Image{URL: "https://example.com/page.png"}),
		llm.ImagePart(llm.Image{Data: []byte("png"), MIMEType: "image/png"}),
	}}

	if _, err := backend.Chat(context.Background(), "openai/gpt-4o", []llm.Message{msg}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	messages, _ := stub.requests[0].body["messages"].([]any)
	user, _ := messages[0].(map[string]any)
	content, _ := user["content"].([]any)
	if len(content) != 3 {
		t.Fatalf("expected 3 content parts, got %v", user["content"])
	}

	text, _ := content[0].(map[string]any)
	if text["type"] != "text" || text["text"] != "what is on the page?" {
		t.Fatalf("unexpected text part %v", text)
	}

	inline, _ := content[2].(map[string]any)
	imageURL, _ := inline["image_url"].(map[string]any)
	url, _ := imageURL["url"].(string)
	if inline["type"] != "image_url" || !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Fatalf("unexpected image part %v", inline)
	}
}

func TestCompleteSendsMaxTokens(t *testing.T) {
	stub := &routerStub{response: completionResponse}
	backend := newTestBackend(t, stub)

	text, err := backend.Complete(context.Background(), "openai/gpt-3.5-turbo-instruct", "Write a note", 512)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Dear hiring manager" {
		t.Fatalf("unexpected text %q", text)
	}

	req := stub.requests[0]
	if req.path != "/api/v1/completions" {
		t.Fatalf("unexpected path %q", req.path)
	}
	if req.body["prompt"] != "Write a note" {
		t.Fatalf("unexpected prompt %v", req.body["prompt"])
	}
	if req.body["max_tokens"] != float64(512) {
		t.Fatalf("unexpected max tokens %v", req.body["max_tokens"])
	}
}

func TestChatDoesNotRetryOnServerError(t *testing.T) {
	stub := &routerStub{status: http.StatusBadGateway, response: `{"error": {"message": "upstream down"}}`}
	backend := newTestBackend(t, stub)

	_, err := backend.Chat(context.Background(), "openai/gpt-4o", []llm.Message{llm.UserMessage("hi")})
	if err == nil {
		t.Fatal("expected error on 502")
	}
	if len(stub.requests) != 1 {
		t.Fatalf("expected exactly one request, got %d", len(stub.requests))
	}
}

func TestChatEmptyChoices(t *testing.T) {
	stub := &routerStub{response: `{"id": "x", "object": "chat.completion", "created": 1, "model": "m", "choices": []}`}
	backend := newTestBackend(t, stub)

	_, err := backend.Chat(context.Background(), "m", []llm.Message{llm.UserMessage("hi")})
	if !errors.Is(err, llm.ErrEmptyResponse) {
		t.Fatalf("expected empty response error, got %v", err)
	}
}

func TestFallbackOverRouter(t *testing.T) {
	var mu sync.Mutex
	seen := make([]string, 0)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		mu.Lock()
		seen = append(seen, body.Model)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if body.Model == "broken/model" {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error": {"message": "no capacity"}}`))
			return
		}
		_, _ = w.Write([]byte(chatResponse))
	}))
	defer server.Close()

	backend, err := New(Options{APIKey: "secret", BaseURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}

	client, err := llm.New(llm.Config{Models: []llm.ModelID{"broken/model", "openai/gpt-4o"}}, backend)
	if err != nil {
		t.Fatal(err)
	}

	res, err := client.Ask(context.Background(), llm.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Model != "openai/gpt-4o" || client.Active() != "openai/gpt-4o" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(seen) != 2 || seen[0] != "broken/model" {
		t.Fatalf("unexpected call order %v", seen)
	}
}
