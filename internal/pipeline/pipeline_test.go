package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/resume-autofill/internal/document"
	"github.com/spigell/resume-autofill/internal/llm"
	"github.com/spigell/resume-autofill/internal/prompt"
	"github.com/spigell/resume-autofill/internal/store"
)

type stubExtractor struct {
	text document.Text
	err  error
	path string
}

func (s *stubExtractor) Extract(_ context.Context, path string) (document.Text, error) {
	s.path = path
	return s.text, s.err
}

type stubBackend struct {
	answers map[llm.ModelID]string
	calls   []llm.ModelID
	last    []llm.Message
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) Chat(_ context.Context, model llm.ModelID, messages []llm.Message) (string, error) {
	b.calls = append(b.calls, model)
	b.last = messages
	if answer, ok := b.answers[model]; ok {
		return answer, nil
	}
	return "", errors.New("model unavailable")
}

func (b *stubBackend) Complete(context.Context, llm.ModelID, string, int) (string, error) {
	return "", errors.New("not used")
}

const yamlAnswer = "```yaml\nfull_name: Jane Doe\nemail: jane@example.com\nskills: [Go, SQL]\n```"

func newDeps(t *testing.T, backend *stubBackend, text string) (Deps, *observer.ObservedLogs, store.Store) {
	t.Helper()

	client, err := llm.New(llm.Config{Models: []llm.ModelID{"free/one", "free/two"}}, backend)
	if err != nil {
		t.Fatal(err)
	}

	results, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	core, logs := observer.New(zapcore.DebugLevel)

	return Deps{
		Logger:    zap.New(core),
		Extractor: &stubExtractor{text: document.Text{Content: text, Units: 3, Empty: []int{2}}},
		Client:    client,
		Store:     results,
	}, logs, results
}

func TestRunEndToEnd(t *testing.T) {
	backend := &stubBackend{answers: map[llm.ModelID]string{"free/two": yamlAnswer}}
	deps, logs, results := newDeps(t, backend, "a\n\nc")

	cfg := &Config{SourcePath: "/tmp/SampleResume.pdf", Name: "jane"}
	state, err := Run(context.Background(), cfg, deps, Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := strings.Join([]string{string(backend.calls[0]), string(backend.calls[1])}, ","); got != "free/one,free/two" {
		t.Fatalf("unexpected model order %s", got)
	}
	if backend.last[1].Content != prompt.Build("/tmp/SampleResume.pdf", "a\n\nc") {
		t.Fatal("expected the rendered prompt to be sent as the user turn")
	}

	if state.Answer.Model != "free/two" {
		t.Fatalf("expected answer from second model, got %s", state.Answer.Model)
	}
	if state.Profile == nil || state.Profile.FullName != "Jane Doe" {
		t.Fatalf("unexpected profile %+v", state.Profile)
	}
	if len(state.Fallbacks) != 2 {
		t.Fatalf("expected both url fallbacks, got %v", state.Fallbacks)
	}

	rec, err := results.Load(context.Background(), "jane")
	if err != nil {
		t.Fatalf("load persisted record: %v", err)
	}
	if rec.Model != "free/two" || rec.Source != "/tmp/SampleResume.pdf" || rec.Text != yamlAnswer {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Fields["linkedin_url"] != prompt.LinkedInFallback {
		t.Fatalf("expected fallback to be persisted, got %v", rec.Fields["linkedin_url"])
	}

	if got := logs.FilterMessage("pipeline step").Len(); got != 5 {
		t.Fatalf("expected 5 step logs, got %d", got)
	}
}

func TestRunKeepsRawAnswer(t *testing.T) {
	backend := &stubBackend{answers: map[llm.ModelID]string{"free/one": "Sorry, I cannot parse this resume."}}
	deps, logs, results := newDeps(t, backend, "text")

	state, err := Run(context.Background(), &Config{SourcePath: "cv.docx", Name: "raw"}, deps, Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Fields != nil {
		t.Fatalf("expected no fields, got %v", state.Fields)
	}
	if logs.FilterMessage("model answer is not a yaml mapping, keeping raw text").Len() != 1 {
		t.Fatal("expected a warning about the raw answer")
	}

	rec, err := results.Load(context.Background(), "raw")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Text != "Sorry, I cannot parse this resume." {
		t.Fatalf("unexpected text %q", rec.Text)
	}
}

func TestRunStrictProfile(t *testing.T) {
	backend := &stubBackend{answers: map[llm.ModelID]string{"free/one": "full_name: Jane Doe"}}
	deps, _, results := newDeps(t, backend, "text")

	_, err := Run(context.Background(), &Config{SourcePath: "cv.pdf", Name: "strict", StrictProfile: true}, deps, Default())
	if err == nil || !strings.HasPrefix(err.Error(), "parse:") {
		t.Fatalf("expected parse stage error, got %v", err)
	}

	if _, err := results.Load(context.Background(), "strict"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected nothing persisted, got %v", err)
	}
}

func TestRunExhaustedPersistsNothing(t *testing.T) {
	backend := &stubBackend{}
	deps, _, results := newDeps(t, backend, "text")

	_, err := Run(context.Background(), &Config{SourcePath: "cv.pdf", Name: "none"}, deps, Default())
	if !llm.IsExhausted(err) {
		t.Fatalf("expected exhaustion, got %v", err)
	}
	if names, _ := results.List(context.Background()); len(names) != 0 {
		t.Fatalf("expected empty store, got %v", names)
	}
}

func TestValidationRunsBeforeAnyStage(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		mutate  func(*Deps)
		wantErr string
	}{
		{name: "missing path", cfg: &Config{Name: "x"}, wantErr: "extract: resume path is required"},
		{name: "bad name", cfg: &Config{SourcePath: "cv.pdf", Name: "../x"}, wantErr: "persist:"},
		{name: "no client", cfg: &Config{SourcePath: "cv.pdf", Name: "x"}, mutate: func(d *Deps) { d.Client = nil }, wantErr: "ask: model client is not configured"},
		{name: "no store", cfg: &Config{SourcePath: "cv.pdf", Name: "x"}, mutate: func(d *Deps) { d.Store = nil }, wantErr: "persist: result store is not configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &stubBackend{answers: map[llm.ModelID]string{"free/one": yamlAnswer}}
			deps, _, _ := newDeps(t, backend, "text")
			if tt.mutate != nil {
				tt.mutate(&deps)
			}

			_, err := Run(context.Background(), tt.cfg, deps, Default())
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected %q, got %v", tt.wantErr, err)
			}
			if len(backend.calls) != 0 {
				t.Fatal("expected no model calls when validation fails")
			}
		})
	}
}

func TestDisabledStageIsSkipped(t *testing.T) {
	backend := &stubBackend{answers: map[llm.ModelID]string{"free/one": yamlAnswer}}
	deps, logs, results := newDeps(t, backend, "text")
	deps.Store = nil

	stages := Default()
	DisableByName(stages, "persist", "dry run")

	state, err := Run(context.Background(), &Config{SourcePath: "cv.pdf"}, deps, stages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Profile == nil {
		t.Fatal("expected profile to be parsed")
	}
	if logs.FilterMessage("stage disabled").Len() != 1 {
		t.Fatal("expected disabled stage to be logged")
	}
	if names, _ := results.List(context.Background()); len(names) != 0 {
		t.Fatalf("expected nothing persisted, got %v", names)
	}

	statuses := Describe(stages)
	last := statuses[len(statuses)-1]
	if last.Name != "persist" || last.Enabled || last.Reason != "dry run" {
		t.Fatalf("unexpected persist status %+v", last)
	}
}

func TestDescribeDefaults(t *testing.T) {
	statuses := Describe(Default())

	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, s.Name)
		if !s.Enabled {
			t.Fatalf("expected %s to be enabled", s.Name)
		}
	}

	if got := strings.Join(names, ","); got != "extract,assemble,ask,parse,persist" {
		t.Fatalf("unexpected stage order %s", got)
	}
}
