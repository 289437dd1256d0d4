package prompt

import (
	"fmt"
	"sort"
	"strings"

	_ "embed"
)

//go:embed cover_letter.md
var coverLetterTemplate string

// CoverLetter renders a completion prompt asking for a cover letter built
// from extracted profile fields. Keys outside the extraction list are ignored.
func CoverLetter(values map[string]any, jobURL string) string {
	return strings.NewReplacer(
		"{{JOB_URL}}", strings.TrimSpace(jobURL),
		"{{PROFILE}}", renderProfile(values),
	).Replace(coverLetterTemplate)
}

func renderProfile(values map[string]any) string {
	var b strings.Builder
	for _, f := range fields {
		v, ok := values[f.Key]
		if !ok {
			continue
		}
		text := renderValue(v)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", f.Description, text)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := renderValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	case []string:
		return strings.Join(val, ", ")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if s := renderValue(val[k]); s != "" {
				parts = append(parts, k+" "+s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}
