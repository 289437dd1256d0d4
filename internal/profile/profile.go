package profile

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/spigell/resume-autofill/internal/prompt"
)

// Fields is the loosely typed field map returned by the model.
type Fields map[string]any

// Profile is the typed view of the extracted fields consumed by the agent.
type Profile struct {
	FullName          string       `mapstructure:"full_name" json:"full_name"`
	Email             string       `mapstructure:"email" json:"email"`
	Phone             string       `mapstructure:"phone" json:"phone,omitempty"`
	Location          string       `mapstructure:"location" json:"location,omitempty"`
	LinkedInURL       string       `mapstructure:"linkedin_url" json:"linkedin_url,omitempty"`
	GitHubURL         string       `mapstructure:"github_url" json:"github_url,omitempty"`
	Website           string       `mapstructure:"website" json:"website,omitempty"`
	CurrentTitle      string       `mapstructure:"current_title" json:"current_title,omitempty"`
	YearsOfExperience string       `mapstructure:"years_of_experience" json:"years_of_experience,omitempty"`
	Summary           string       `mapstructure:"summary" json:"summary,omitempty"`
	Skills            []string     `mapstructure:"skills" json:"skills,omitempty"`
	WorkExperience    []Experience `mapstructure:"work_experience" json:"work_experience,omitempty"`
	Education         []Education  `mapstructure:"education" json:"education,omitempty"`
	Certifications    []string     `mapstructure:"certifications" json:"certifications,omitempty"`
	Languages         []string     `mapstructure:"languages" json:"languages,omitempty"`
	ResumePath        string       `mapstructure:"resume_path" json:"resume_path,omitempty"`
}

type Experience struct {
	Company     string   `mapstructure:"company" json:"company,omitempty"`
	Title       string   `mapstructure:"title" json:"title,omitempty"`
	Location    string   `mapstructure:"location" json:"location,omitempty"`
	Start       string   `mapstructure:"start" json:"start,omitempty"`
	End         string   `mapstructure:"end" json:"end,omitempty"`
	Description string   `mapstructure:"description" json:"description,omitempty"`
	Highlights  []string `mapstructure:"highlights" json:"highlights,omitempty"`
}

type Education struct {
	Institution string `mapstructure:"institution" json:"institution,omitempty"`
	Degree      string `mapstructure:"degree" json:"degree,omitempty"`
	Field       string `mapstructure:"field" json:"field,omitempty"`
	Start       string `mapstructure:"start" json:"start,omitempty"`
	End         string `mapstructure:"end" json:"end,omitempty"`
}

// Parse decodes the YAML answer of the model. Markdown fences around the
// document are stripped and keys are normalized to snake_case.
func Parse(raw string) (Fields, error) {
	cleaned := stripFences(raw)
	if cleaned == "" {
		return nil, errors.New("empty model answer")
	}

	var doc any
	if err := yaml.Unmarshal([]byte(cleaned), &doc); err != nil {
		return nil, fmt.Errorf("parse yaml answer: %w", err)
	}

	m, ok := normalize(doc).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("yaml answer is %T, expected a mapping", doc)
	}

	return Fields(m), nil
}

// Decode converts fields into a Profile, tolerating the shapes models tend to produce.
func Decode(fields Fields) (*Profile, error) {
	var p Profile

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &p,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(flattenStringSliceHook),
	})
	if err != nil {
		return nil, err
	}

	if err := dec.Decode(map[string]any(fields)); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}

	return &p, nil
}

// ApplyFallbacks fills missing profile URLs with the placeholders the prompt
// advertises and returns the keys it set.
func ApplyFallbacks(fields Fields) []string {
	defaults := []struct {
		key   string
		value string
	}{
		{key: "linkedin_url", value: prompt.LinkedInFallback},
		{key: "github_url", value: prompt.GitHubFallback},
	}

	var applied []string
	for _, d := range defaults {
		if s, ok := fields[d.key].(string); ok && strings.TrimSpace(s) != "" {
			continue
		}
		fields[d.key] = d.value
		applied = append(applied, d.key)
	}
	return applied
}

// String returns a scalar field as text, or "" when it is missing.
func (f Fields) String(key string) string {
	v, ok := f[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// Keys returns the field names in sorted order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		if idx := strings.Index(raw, "\n"); idx != -1 {
			raw = raw[idx+1:]
		} else {
			raw = strings.TrimPrefix(raw, "```")
		}
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	return strings.TrimSpace(raw)
}

// normalize turns decoded YAML into JSON-compatible values with snake_case
// keys. Integers become float64 so a stored record loads back unchanged.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[normalizeKey(k)] = normalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[normalizeKey(fmt.Sprint(k))] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case uint64:
		return float64(val)
	case uint:
		return float64(val)
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 {
			return val.Format(time.DateOnly)
		}
		return val.Format(time.RFC3339)
	default:
		return val
	}
}

func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(k)
}

// flattenStringSliceHook accepts "Go, SQL" and {backend: [Go], db: [SQL]} for []string targets.
func flattenStringSliceHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf([]string{}) {
		return data, nil
	}

	switch val := data.(type) {
	case string:
		parts := strings.Split(val, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	case map[string]any:
		keys := Fields(val).Keys()
		out := make([]string, 0, len(val))
		for _, k := range keys {
			out = append(out, flattenStrings(val[k])...)
		}
		return out, nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, flattenStrings(item)...)
		}
		return out, nil
	default:
		return data, nil
	}
}

func flattenStrings(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		var out []string
		for _, item := range val {
			out = append(out, flattenStrings(item)...)
		}
		return out
	case map[string]any:
		var out []string
		for _, k := range Fields(val).Keys() {
			out = append(out, flattenStrings(val[k])...)
		}
		return out
	default:
		s := strings.TrimSpace(fmt.Sprint(val))
		if s == "" {
			return nil
		}
		return []string{s}
	}
}
