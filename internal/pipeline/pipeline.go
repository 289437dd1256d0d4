package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/resume-autofill/internal/document"
	"github.com/spigell/resume-autofill/internal/llm"
	"github.com/spigell/resume-autofill/internal/profile"
	"github.com/spigell/resume-autofill/internal/store"
)

// Stage is a single step of the extraction pipeline.
type Stage interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Validate(cfg *Config, deps Deps) error
	Apply(ctx context.Context, deps Deps, s *State) (Step, error)
}

type Extractor interface {
	Extract(ctx context.Context, path string) (document.Text, error)
}

type Asker interface {
	Ask(ctx context.Context, req llm.Request) (llm.Result, error)
}

// Deps aggregates collaborators shared across all stages.
type Deps struct {
	Logger    *zap.Logger
	Extractor Extractor
	Client    Asker
	Store     store.Store
}

// Config contains the settings of one pipeline run.
type Config struct {
	SourcePath string
	Name       string
	// StrictProfile fails the run when the answer cannot be parsed or validated.
	StrictProfile bool
}

// State carries the artifacts produced by earlier stages.
type State struct {
	Document  document.Text
	Messages  []llm.Message
	Answer    llm.Result
	Fields    profile.Fields
	Profile   *profile.Profile
	Fallbacks []string
	Record    store.Record
}

// Step describes the size of the input and output of a stage.
type Step struct {
	In  int
	Out int
}

// Status represents runtime information about a stage.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

type statusProvider interface {
	Status() Status
}

// Default returns the stages in execution order.
func Default() []Stage {
	return []Stage{
		NewExtract(),
		NewAssemble(),
		NewAsk(),
		NewParse(),
		NewPersist(),
	}
}

// DisableByName marks a stage as disabled while keeping it in the list.
func DisableByName(stages []Stage, name, reason string) {
	for _, stage := range stages {
		if stage.Name() == name {
			stage.Disable(reason)
		}
	}
}

// Run validates every enabled stage and then applies them in order.
func Run(ctx context.Context, cfg *Config, deps Deps, stages []Stage) (*State, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	for _, stage := range stages {
		if !stage.IsEnabled() {
			continue
		}
		if err := stage.Validate(cfg, deps); err != nil {
			return nil, fmt.Errorf("%s: %w", stage.Name(), err)
		}
	}

	state := &State{}
	for _, stage := range stages {
		if !stage.IsEnabled() {
			deps.Logger.Info("stage disabled", zap.String("name", stage.Name()))
			continue
		}

		info, err := stage.Apply(ctx, deps, state)
		if err != nil {
			return state, fmt.Errorf("%s: %w", stage.Name(), err)
		}

		deps.Logger.Info("pipeline step",
			zap.String("name", stage.Name()),
			zap.Int("in", info.In),
			zap.Int("out", info.Out),
		)
	}

	return state, nil
}

// Describe returns status entries for the provided stages.
func Describe(stages []Stage) []Status {
	statuses := make([]Status, 0, len(stages))
	for _, stage := range stages {
		if reporter, ok := stage.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    stage.Name(),
			Enabled: stage.IsEnabled(),
		})
	}
	return statuses
}

// toggle holds the disabled flag shared by all stages.
type toggle struct {
	disabled bool
	reason   string
}

func (t *toggle) Disable(reason string) {
	t.disabled = true
	t.reason = reason
}

func (t *toggle) IsEnabled() bool { return !t.disabled }
