package llm

import "strings"

const (
	DefaultContextWindow   = 4096
	DefaultMaxOutputTokens = 1024
)

// Limits describes the declared capacity of a model.
// MaxOutputTokens == 0 means the model does not declare an output limit.
type Limits struct {
	ContextWindow   int `mapstructure:"context-window" json:"context_window"`
	MaxOutputTokens int `mapstructure:"max-output-tokens" json:"max_output_tokens"`
}

var DefaultLimits = Limits{ContextWindow: DefaultContextWindow, MaxOutputTokens: DefaultMaxOutputTokens}

// LimitsTable maps model identifiers to their declared limits.
type LimitsTable map[ModelID]Limits

// KnownLimits are the identifiers used by the shipped configuration.
// Entries without MaxOutputTokens do not publish an output limit.
func KnownLimits() LimitsTable {
	return LimitsTable{
		// Free router tiers used for resume extraction.
		"z-ai/glm-4.5-air:free":              {ContextWindow: 131072},
		"deepseek/deepseek-chat-v3.1:free":   {ContextWindow: 163840},
		"deepseek/deepseek-r1:free":          {ContextWindow: 163840},
		"deepseek/deepseek-r1-0528:free":     {ContextWindow: 163840},
		"tngtech/deepseek-r1t2-chimera:free": {ContextWindow: 163840},
		"qwen/qwen3-14b:free":                {ContextWindow: 40960},
		"qwen/qwen3-8b:free":                 {ContextWindow: 40960},

		// Free text tiers used by the form-filling agent.
		"meta-llama/llama-3.3-70b-instruct:free":  {ContextWindow: 65536},
		"meta-llama/llama-3.3-8b-instruct:free":   {ContextWindow: 128000, MaxOutputTokens: 4028},
		"mistralai/mistral-7b-instruct:free":      {ContextWindow: 32768, MaxOutputTokens: 16384},
		"meta-llama/llama-3.2-3b-instruct:free":   {ContextWindow: 131072},
		"meta-llama/llama-3.1-405b-instruct:free": {ContextWindow: 65536},

		// Free vision tiers.
		"meta-llama/llama-4-scout:free":     {ContextWindow: 128000, MaxOutputTokens: 4028},
		"meta-llama/llama-4-maverick:free":  {ContextWindow: 128000, MaxOutputTokens: 4028},
		"qwen/qwen2.5-vl-72b-instruct:free": {ContextWindow: 32768},
		"qwen/qwen2.5-vl-32b-instruct:free": {ContextWindow: 8192},

		// Paid router models.
		"openai/gpt-4o":                     {ContextWindow: 128000, MaxOutputTokens: 16384},
		"openai/gpt-4o-mini":                {ContextWindow: 128000, MaxOutputTokens: 16384},
		"openai/gpt-3.5-turbo-instruct":     {ContextWindow: 4095, MaxOutputTokens: 4096},
		"anthropic/claude-3.5-sonnet":       {ContextWindow: 200000, MaxOutputTokens: 8192},
		"anthropic/claude-3-haiku":          {ContextWindow: 200000, MaxOutputTokens: 4096},
		"google/gemini-2.0-flash-001":       {ContextWindow: 1048576, MaxOutputTokens: 8192},
		"google/gemini-flash-1.5":           {ContextWindow: 1000000, MaxOutputTokens: 8192},
		"meta-llama/llama-3.1-70b-instruct": {ContextWindow: 131072},
		"mistralai/mistral-large":           {ContextWindow: 128000},
		"qwen/qwen-2.5-72b-instruct":        {ContextWindow: 32768},

		// Direct Gemini API identifiers.
		"gemini-2.5-pro":   {ContextWindow: 1048576, MaxOutputTokens: 65536},
		"gemini-2.5-flash": {ContextWindow: 1048576, MaxOutputTokens: 65536},
	}
}

// Merge returns a new table with overrides applied on top of t.
func (t LimitsTable) Merge(overrides map[string]Limits) LimitsTable {
	merged := make(LimitsTable, len(t)+len(overrides))
	for id, l := range t {
		merged[id] = l
	}
	for id, l := range overrides {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		merged[ModelID(id)] = l
	}
	return merged
}

func (t LimitsTable) Has(id ModelID) bool {
	_, ok := t[id]
	return ok
}

// Lookup returns the limits of id, falling back to DefaultLimits for unknown
// models and to the default output budget when none is declared.
func (t LimitsTable) Lookup(id ModelID) Limits {
	l, ok := t[id]
	if !ok {
		return DefaultLimits
	}
	if l.ContextWindow <= 0 {
		l.ContextWindow = DefaultContextWindow
	}
	if l.MaxOutputTokens <= 0 {
		l.MaxOutputTokens = DefaultMaxOutputTokens
	}
	return l
}
