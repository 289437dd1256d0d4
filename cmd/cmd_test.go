package cmd

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resume-autofill/internal/llm"
	"github.com/spigell/resume-autofill/internal/metrics"
)

func TestDefaultName(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{path: "/tmp/SampleResume.pdf", want: "SampleResume"},
		{path: "Jane Doe CV (2025).docx", want: "Jane-Doe-CV--2025"},
		{path: "../..pdf", want: "resume"},
		{path: "a..b.pdf", want: "a.b"},
	}

	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			if got := defaultName(tc.path); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestConfigFromYAML(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")

	yaml := `
provider: gemini
strict-models: true
timeout: 15s
models:
  extraction: [gemini-2.5-flash, gemini-2.5-pro]
  limits:
    - id: anthropic/claude-3.5-sonnet
      context-window: 100000
      max-output-tokens: 2048
store:
  driver: sqlite
  path: /tmp/results.db
agent:
  command: [python, agent.py]
`
	if err := v.ReadConfig(strings.NewReader(yaml)); err != nil {
		t.Fatalf("read config: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if config.Provider != providerGemini || !config.StrictModels || config.Timeout.Seconds() != 15 {
		t.Fatalf("unexpected top level values: %+v", config)
	}
	if got := config.models(llm.CapabilityChat); len(got) != 2 || got[0] != "gemini-2.5-flash" {
		t.Fatalf("unexpected extraction models: %v", got)
	}
	if got := config.models(llm.CapabilityVision); len(got) != 4 {
		t.Fatalf("expected default vision models, got %v", got)
	}
	if config.Store.Driver != "sqlite" || config.Store.Path != "/tmp/results.db" {
		t.Fatalf("unexpected store config: %+v", config.Store)
	}
	if len(config.Agent.Command) != 2 || config.Agent.MaxSteps != 5 || !config.Agent.Headless {
		t.Fatalf("unexpected agent config: %+v", config.Agent)
	}

	table := config.limitsTable()
	if l := table.Lookup("anthropic/claude-3.5-sonnet"); l.ContextWindow != 100000 || l.MaxOutputTokens != 2048 {
		t.Fatalf("expected override to win, got %+v", l)
	}
	if !table.Has("gemini-2.5-pro") {
		t.Fatal("expected built-in entries to survive the merge")
	}
}

func TestResolveAPIKeyRequiresKey(t *testing.T) {
	t.Setenv(apiKeyEnv, "")

	_, err := resolveAPIKey(&Config{Provider: providerOpenRouter})
	var cfgErr *llm.ConfigurationError
	if err == nil || !errors.As(err, &cfgErr) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), apiKeyEnv) {
		t.Fatalf("expected the error to name %s, got %v", apiKeyEnv, err)
	}

	t.Setenv(apiKeyEnv, " sk-env ")
	key, err := resolveAPIKey(&Config{})
	if err != nil || key != "sk-env" {
		t.Fatalf("expected key from environment, got %q, %v", key, err)
	}
}

func TestNewBackendProviders(t *testing.T) {
	backend, err := newBackend(context.Background(), &Config{}, "sk-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if backend.Name() != providerOpenRouter {
		t.Fatalf("expected openrouter by default, got %s", backend.Name())
	}

	if _, err := newBackend(context.Background(), &Config{Provider: "bedrock"}, "sk-test"); err == nil {
		t.Fatal("expected unknown provider to fail")
	}

	var cfgErr *llm.ConfigurationError
	if _, err := newBackend(context.Background(), &Config{}, ""); !errors.As(err, &cfgErr) {
		t.Fatalf("expected configuration error for an empty key, got %v", err)
	}
}

func TestAgentEnvCarriesKey(t *testing.T) {
	config := &Config{Agent: AgentConfig{Env: []string{"BROWSER=chromium", "API_KEY=stale"}}}

	got := agentEnv(config, "sk-test")
	want := []string{"BROWSER=chromium", "API_KEY=stale", "API_KEY=sk-test"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if len(config.Agent.Env) != 2 {
		t.Fatalf("configured env must not be modified, got %v", config.Agent.Env)
	}
}

func TestEnvCloseRunsOnce(t *testing.T) {
	recorder, err := metrics.NewRecorder()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "metrics.prom")
	e := &env{logger: zap.NewNop(), config: &Config{MetricsFile: path}, recorder: recorder}

	e.close()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected metrics to be flushed on close: %v", err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	e.close()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected a second close to be a no-op, got %v", err)
	}
}

// TestCommandHelper runs the root command in a child process so fatal exits
// can be observed.
func TestCommandHelper(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(2)
	}
	os.Exit(0)
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	cmd := exec.Command(exe, append([]string{"-test.run=TestCommandHelper", "--"}, args...)...)
	cmd.Dir = t.TempDir()
	cmd.Env = append(os.Environ(),
		"GO_WANT_HELPER_PROCESS=1",
		apiKeyEnv+"=",
		envPrefix+"_API_KEY=",
		envPrefix+"_API_KEY_FILE=",
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func TestApplyFailsWithoutKey(t *testing.T) {
	out, err := runCommand(t, "apply", "https://example.com/jobs/1", "--profile", "jane", "--auto-approve")

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() == 0 {
		t.Fatalf("expected a non-zero exit, got %v\n%s", err, out)
	}
	if !strings.Contains(out, "resolving api key") {
		t.Fatalf("expected the missing key to be reported, got:\n%s", out)
	}
	if strings.Contains(out, "loading profile") {
		t.Fatalf("expected to stop before touching the store, got:\n%s", out)
	}
}

func TestLoadImages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.JPG")
	if err := os.WriteFile(path, []byte("jpeg"), 0o600); err != nil {
		t.Fatal(err)
	}

	images, err := loadImages([]string{path, " ", "https://example.com/a.png"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(images))
	}
	if images[0].MIMEType != "image/jpeg" || string(images[0].Data) != "jpeg" {
		t.Fatalf("unexpected local image: %+v", images[0])
	}
	if !images[1].IsRemote() {
		t.Fatal("expected remote image")
	}

	if _, err := loadImages([]string{filepath.Join(t.TempDir(), "missing.png")}); err == nil {
		t.Fatal("expected error for missing file")
	}
}
