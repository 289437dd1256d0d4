package cmd

import (
	"errors"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/resume-autofill/internal/agent"
	"github.com/spigell/resume-autofill/internal/llm"
	"github.com/spigell/resume-autofill/internal/store"
)

const (
	app       = "resume-autofill"
	envPrefix = "RESUME_AUTOFILL"
)

type Config struct {
	Provider     string        `mapstructure:"provider"`
	APIKey       string        `mapstructure:"api-key"`
	APIKeyFile   string        `mapstructure:"api-key-file"`
	Router       RouterConfig  `mapstructure:"router"`
	Models       ModelsConfig  `mapstructure:"models"`
	StrictModels bool          `mapstructure:"strict-models"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxLogLength int           `mapstructure:"max-log-length"`
	MetricsFile  string        `mapstructure:"metrics-file"`
	RunLogDir    string        `mapstructure:"run-log-dir"`
	Store        store.Config  `mapstructure:"store"`
	Agent        AgentConfig   `mapstructure:"agent"`
	Verify       VerifyConfig  `mapstructure:"verify"`
}

type RouterConfig struct {
	BaseURL string `mapstructure:"base-url"`
	Referer string `mapstructure:"referer"`
	Title   string `mapstructure:"title"`
}

// ModelsConfig holds the prioritized model lists. Limits are a list rather
// than a map because model identifiers contain dots.
type ModelsConfig struct {
	Extraction []string      `mapstructure:"extraction"`
	Text       []string      `mapstructure:"text"`
	Vision     []string      `mapstructure:"vision"`
	Limits     []ModelLimits `mapstructure:"limits"`
}

type ModelLimits struct {
	ID              string `mapstructure:"id"`
	ContextWindow   int    `mapstructure:"context-window"`
	MaxOutputTokens int    `mapstructure:"max-output-tokens"`
}

type AgentConfig struct {
	Command       []string `mapstructure:"command"`
	WorkDir       string   `mapstructure:"work-dir"`
	Env           []string `mapstructure:"env"`
	Objective     string   `mapstructure:"objective"`
	KnowledgeFile string   `mapstructure:"knowledge-file"`
	MaxSteps      int      `mapstructure:"max-steps"`
	Headless      bool     `mapstructure:"headless"`
	ScreenshotDir string   `mapstructure:"screenshot-dir"`
}

type VerifyConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	MinConfidence float64 `mapstructure:"min-confidence"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "resume-autofill extracts a profile from a resume and applies to job postings with it",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	setDefaults(viper.GetViper())

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is resume-autofill.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("provider", "", "model provider: openrouter or gemini")
	rootCmd.PersistentFlags().String("metrics-file", "", "write model attempt metrics to this textfile on exit")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("provider", rootCmd.PersistentFlags().Lookup("provider"))
	viper.BindPFlag("metrics-file", rootCmd.PersistentFlags().Lookup("metrics-file"))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", providerOpenRouter)
	v.SetDefault("api-key", "")
	v.SetDefault("api-key-file", "")
	v.SetDefault("timeout", llm.DefaultTimeout)
	v.SetDefault("max-log-length", 200)
	v.SetDefault("run-log-dir", "./data/runs")
	v.SetDefault("store.driver", store.DriverFile)

	v.SetDefault("models.extraction", []string{
		"z-ai/glm-4.5-air:free",
		"deepseek/deepseek-chat-v3.1:free",
		"deepseek/deepseek-r1:free",
		"deepseek/deepseek-r1-0528:free",
		"tngtech/deepseek-r1t2-chimera:free",
		"qwen/qwen3-14b:free",
		"qwen/qwen3-8b:free",
	})
	v.SetDefault("models.text", []string{
		"z-ai/glm-4.5-air:free",
		"meta-llama/llama-3.3-70b-instruct:free",
		"meta-llama/llama-3.3-8b-instruct:free",
		"mistralai/mistral-7b-instruct:free",
		"meta-llama/llama-3.2-3b-instruct:free",
		"meta-llama/llama-3.1-405b-instruct:free",
	})
	v.SetDefault("models.vision", []string{
		"meta-llama/llama-4-scout:free",
		"meta-llama/llama-4-maverick:free",
		"qwen/qwen2.5-vl-72b-instruct:free",
		"qwen/qwen2.5-vl-32b-instruct:free",
	})

	v.SetDefault("agent.max-steps", agent.DefaultMaxSteps)
	v.SetDefault("agent.headless", true)
	v.SetDefault("agent.screenshot-dir", "./data/screenshots")
	v.SetDefault("verify.enabled", true)
	v.SetDefault("verify.min-confidence", 0.5)
}

func initConfig() {
	// A missing .env is fine, the key may come from the environment or a file.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Defaults are enough to run without a config file, but an explicit one must parse.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}

// limitsTable merges configured limits over the built-in table.
func (c *Config) limitsTable() llm.LimitsTable {
	overrides := make(map[string]llm.Limits, len(c.Models.Limits))
	for _, l := range c.Models.Limits {
		overrides[l.ID] = llm.Limits{ContextWindow: l.ContextWindow, MaxOutputTokens: l.MaxOutputTokens}
	}
	return llm.KnownLimits().Merge(overrides)
}

// models returns the model list serving capability.
func (c *Config) models(capability llm.Capability) []string {
	switch capability {
	case llm.CapabilityVision:
		return c.Models.Vision
	case llm.CapabilityCompletion:
		return c.Models.Text
	default:
		return c.Models.Extraction
	}
}
