// Package history remembers which job postings a profile was already sent to.
package history

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/spigell/resume-autofill/internal/store"
)

const namePrefix = "application-"

// Application is the outcome of one agent run.
type Application struct {
	RunID     string    `mapstructure:"run_id"`
	JobURL    string    `mapstructure:"job_url"`
	Profile   string    `mapstructure:"profile"`
	Steps     int       `mapstructure:"steps"`
	Failures  int       `mapstructure:"failures"`
	Verified  bool      `mapstructure:"verified"`
	Submitted bool      `mapstructure:"submitted"`
	RunLog    string    `mapstructure:"run_log"`
	Error     string    `mapstructure:"error"`
	Time      time.Time `mapstructure:"-"`
}

// Save stores a as an application record keyed by its run id.
func Save(ctx context.Context, s store.Store, a Application) error {
	if strings.TrimSpace(a.RunID) == "" {
		return errors.New("run id is required")
	}

	fields := map[string]any{}
	if err := mapstructure.Decode(a, &fields); err != nil {
		return fmt.Errorf("encode application: %w", err)
	}

	return s.Save(ctx, store.Record{
		Name:      namePrefix + a.RunID,
		Kind:      store.KindApplication,
		CreatedAt: a.Time,
		Source:    a.JobURL,
		Text:      summary(a),
		Fields:    fields,
	})
}

// Find returns earlier applications of profile to jobURL, oldest first. An
// empty profile matches any profile.
func Find(ctx context.Context, s store.Store, jobURL, profile string) ([]Application, error) {
	names, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	want := Canonical(jobURL)
	var found []Application
	for _, name := range names {
		if !strings.HasPrefix(name, namePrefix) {
			continue
		}
		rec, err := s.Load(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("load %q: %w", name, err)
		}
		if rec.Kind != store.KindApplication || Canonical(rec.Source) != want {
			continue
		}

		var a Application
		if err := mapstructure.WeakDecode(rec.Fields, &a); err != nil {
			return nil, fmt.Errorf("decode %q: %w", name, err)
		}
		if profile != "" && a.Profile != profile {
			continue
		}
		a.Time = rec.CreatedAt
		found = append(found, a)
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].Time.Before(found[j].Time) })
	return found, nil
}

// Canonical normalizes a posting url for comparison: lower-case scheme and
// host, no fragment, no trailing slash.
func Canonical(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimRight(raw, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}

func summary(a Application) string {
	state := "not verified"
	switch {
	case a.Error != "":
		state = "failed: " + a.Error
	case a.Verified && a.Submitted:
		state = "submitted"
	case a.Verified:
		state = "not submitted"
	}
	return fmt.Sprintf("%s applied to %s in %d steps (%d failed), %s", a.Profile, a.JobURL, a.Steps, a.Failures, state)
}
