package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resume-autofill/internal/llm"
	"github.com/spigell/resume-autofill/internal/llm/gemini"
	"github.com/spigell/resume-autofill/internal/llm/openrouter"
	"github.com/spigell/resume-autofill/internal/logger"
	"github.com/spigell/resume-autofill/internal/metrics"
	"github.com/spigell/resume-autofill/internal/secrets"
	"github.com/spigell/resume-autofill/internal/store"
)

const (
	providerOpenRouter = "openrouter"
	providerGemini     = "gemini"

	apiKeyEnv = "API_KEY"
)

// env holds what every command needs: logger, config and the lazily built
// model backend shared by all clients.
type env struct {
	logger   *zap.Logger
	config   *Config
	recorder *metrics.Recorder

	apiKey  string
	backend llm.Backend
	store   store.Store
	closed  bool
}

func newEnv() *env {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if config == nil {
		logger.Fatal("config is required")
	}

	logger.Info("starting the resume-autofill", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	redacted := *config
	if redacted.APIKey != "" {
		redacted.APIKey = "***"
	}
	pretty, _ := json.MarshalIndent(redacted, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	recorder, err := metrics.NewRecorder()
	if err != nil {
		logger.Fatal("creating metrics recorder", zap.Error(err))
	}

	return &env{logger: logger, config: config, recorder: recorder}
}

// close flushes metrics and releases the store. It is safe to call after
// failures and more than once.
func (e *env) close() {
	if e.closed {
		return
	}
	e.closed = true

	if err := e.recorder.WriteTextfile(e.config.MetricsFile); err != nil {
		e.logger.Warn("writing metrics", zap.Error(err))
	}
	if closer, ok := e.store.(store.Closer); ok {
		if err := closer.Close(); err != nil {
			e.logger.Warn("closing store", zap.Error(err))
		}
	}
	_ = e.logger.Sync()
}

// fatal releases resources before exiting, deferred calls do not run after Fatal.
func (e *env) fatal(msg string, fields ...zap.Field) {
	e.close()
	e.logger.Fatal(msg, fields...)
}

// requireAPIKey resolves the api key up front so a missing key stops the
// command before any work is done.
func (e *env) requireAPIKey() string {
	if e.apiKey != "" {
		return e.apiKey
	}
	key, err := resolveAPIKey(e.config)
	if err != nil {
		e.fatal("resolving api key", zap.Error(err), zap.String("env", apiKeyEnv))
	}
	e.apiKey = key
	return key
}

func resolveAPIKey(config *Config) (string, error) {
	key, err := secrets.Load(secrets.Source{
		Name:  "api key",
		Value: config.APIKey,
		Env:   apiKeyEnv,
		File:  config.APIKeyFile,
	})
	if err != nil {
		return "", &llm.ConfigurationError{Reason: err.Error()}
	}
	return key, nil
}

func (e *env) modelBackend(ctx context.Context) (llm.Backend, error) {
	if e.backend != nil {
		return e.backend, nil
	}

	backend, err := newBackend(ctx, e.config, e.requireAPIKey())
	if err != nil {
		return nil, err
	}
	e.backend = backend
	return backend, nil
}

func newBackend(ctx context.Context, config *Config, key string) (llm.Backend, error) {
	if strings.TrimSpace(key) == "" {
		return nil, &llm.ConfigurationError{Reason: "api key is empty"}
	}

	switch strings.ToLower(strings.TrimSpace(config.Provider)) {
	case "", providerOpenRouter:
		return openrouter.New(openrouter.Options{
			APIKey:  key,
			BaseURL: config.Router.BaseURL,
			Referer: config.Router.Referer,
			Title:   config.Router.Title,
		})
	case providerGemini:
		return gemini.New(ctx, key)
	default:
		return nil, &llm.ConfigurationError{Reason: fmt.Sprintf("unknown provider %q", config.Provider)}
	}
}

// client builds a fallback client for capability. A non-empty override
// replaces the configured model list.
func (e *env) client(ctx context.Context, capability llm.Capability, override []string) (*llm.Client, error) {
	backend, err := e.modelBackend(ctx)
	if err != nil {
		return nil, err
	}

	names := override
	if len(names) == 0 {
		names = e.config.models(capability)
	}

	models := make([]llm.ModelID, 0, len(names))
	for _, n := range names {
		models = append(models, llm.ModelID(n))
	}

	clientLogger := logger.WithCapability(e.logger, backend.Name(), string(capability))

	return llm.New(llm.Config{
		Capability: capability,
		Models:     models,
		Limits:     e.config.limitsTable(),
		Strict:     e.config.StrictModels,
		Timeout:    e.config.Timeout,
	}, backend, llm.WithObserver(llm.Observers{llm.NewLogObserver(clientLogger), e.recorder}))
}

// agentEnv is the agent's extra environment. The api key goes last so it
// overrides anything configured under agent.env.
func agentEnv(config *Config, key string) []string {
	out := make([]string, 0, len(config.Agent.Env)+1)
	out = append(out, config.Agent.Env...)
	return append(out, apiKeyEnv+"="+key)
}

func (e *env) results(ctx context.Context) (store.Store, error) {
	if e.store != nil {
		return e.store, nil
	}
	s, err := store.New(ctx, e.config.Store)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", e.config.Store.Driver, err)
	}
	e.store = s
	return s, nil
}
