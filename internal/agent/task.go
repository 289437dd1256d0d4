package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

const (
	DefaultMaxSteps = 5

	DefaultObjective = "Apply to the job posting at the given URL. Fill every required field of the " +
		"application form using the provided user data, upload the resume when asked and submit the form."
)

// Task is the hand-off document read by the external form-filling agent.
type Task struct {
	RunID         string         `json:"run_id"`
	JobURL        string         `json:"job_url"`
	Objective     string         `json:"objective"`
	ProfileName   string         `json:"profile_name"`
	Profile       map[string]any `json:"profile"`
	ResumePath    string         `json:"resume_path,omitempty"`
	CoverLetter   string         `json:"cover_letter,omitempty"`
	KnowledgeBase string         `json:"knowledge_base,omitempty"`
	MaxSteps      int            `json:"max_steps"`
	Headless      bool           `json:"headless"`
	ScreenshotDir string         `json:"screenshot_dir,omitempty"`
	TextModels    []string       `json:"text_models,omitempty"`
	VisionModels  []string       `json:"vision_models,omitempty"`
}

// Normalize fills defaults and checks the fields the agent cannot work without.
func (t *Task) Normalize() error {
	t.JobURL = strings.TrimSpace(t.JobURL)
	if t.JobURL == "" {
		return errors.New("job url is required")
	}
	u, err := url.Parse(t.JobURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("job url %q must be an absolute http(s) url", t.JobURL)
	}

	if len(t.Profile) == 0 {
		return errors.New("profile fields are required")
	}
	if strings.TrimSpace(t.Objective) == "" {
		t.Objective = DefaultObjective
	}
	if t.MaxSteps <= 0 {
		t.MaxSteps = DefaultMaxSteps
	}
	return nil
}

// ToFile writes the task as indented JSON.
func (t Task) ToFile(path string) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write task file %q: %w", path, err)
	}
	return nil
}

// TaskFromFile reads a task written by ToFile.
func TaskFromFile(path string) (Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Task{}, fmt.Errorf("read task file %q: %w", path, err)
	}
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return Task{}, fmt.Errorf("unmarshal task file %q: %w", path, err)
	}
	return t, nil
}
