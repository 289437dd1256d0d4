package prompt

import (
	"strings"

	_ "embed"

	"github.com/spigell/resume-autofill/internal/llm"
)

const (
	LinkedInFallback = "https://www.linkedin.com/sample-john-doe/"
	GitHubFallback   = "https://github.com/sample-johndoe"

	// SourcePathField carries the path of the resume the fields were extracted from.
	SourcePathField = "resume_path"

	SystemInstruction = "You are an expert resume parser."
)

// Field is one value the model is asked to extract.
type Field struct {
	Key         string
	Description string
}

//go:embed prompt.md
var promptTemplate string

var fields = []Field{
	{Key: "full_name", Description: "Full name"},
	{Key: "email", Description: "Email"},
	{Key: "phone", Description: "Phone number"},
	{Key: "location", Description: "Address, location"},
	{Key: "linkedin_url", Description: "LinkedIn profile URL"},
	{Key: "github_url", Description: "GitHub profile URL"},
	{Key: "website", Description: "Personal website"},
	{Key: "current_title", Description: "Current job title and company"},
	{Key: "years_of_experience", Description: "Total years of professional experience"},
	{Key: "summary", Description: "Short professional summary"},
	{Key: "skills", Description: "Skills"},
	{Key: "work_experience", Description: "Experience details from current and previous employers"},
	{Key: "education", Description: "Summary of education"},
	{Key: "certifications", Description: "Certifications"},
	{Key: "languages", Description: "Spoken languages"},
}

// Fields returns the fixed list of extraction targets.
func Fields() []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}

// Build renders the extraction instruction for a resume. The output depends
// only on its inputs.
func Build(sourcePath, resumeText string) string {
	replacer := strings.NewReplacer(
		"{{FIELDS}}", renderFields(),
		"{{LINKEDIN_FALLBACK}}", LinkedInFallback,
		"{{GITHUB_FALLBACK}}", GitHubFallback,
		"{{SOURCE_PATH}}", sourcePath,
		"{{RESUME_TEXT}}", resumeText,
	)

	return replacer.Replace(promptTemplate)
}

// Messages wraps the rendered prompt as a system and a user turn.
func Messages(sourcePath, resumeText string) []llm.Message {
	return []llm.Message{
		llm.SystemMessage(SystemInstruction),
		llm.UserMessage(Build(sourcePath, resumeText)),
	}
}

func renderFields() string {
	lines := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		lines = append(lines, "- "+f.Key+": "+f.Description)
	}
	lines = append(lines, "- "+SourcePathField+": Resume path")
	return strings.Join(lines, "\n")
}
