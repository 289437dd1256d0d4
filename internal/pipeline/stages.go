package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/resume-autofill/internal/llm"
	"github.com/spigell/resume-autofill/internal/profile"
	"github.com/spigell/resume-autofill/internal/prompt"
	"github.com/spigell/resume-autofill/internal/store"
	"github.com/spigell/resume-autofill/internal/utils"
)

const previewLength = 200

type extractStage struct {
	toggle
	path string
}

// NewExtract creates the stage reading the resume document.
func NewExtract() Stage { return &extractStage{} }

func (s *extractStage) Name() string { return "extract" }

func (s *extractStage) Validate(cfg *Config, deps Deps) error {
	if cfg == nil || strings.TrimSpace(cfg.SourcePath) == "" {
		return errors.New("resume path is required")
	}
	if deps.Extractor == nil {
		return errors.New("document extractor is not configured")
	}
	s.path = cfg.SourcePath
	return nil
}

func (s *extractStage) Apply(ctx context.Context, deps Deps, st *State) (Step, error) {
	text, err := deps.Extractor.Extract(ctx, s.path)
	if err != nil {
		return Step{}, err
	}
	st.Document = text

	if len(text.Empty) > 0 {
		deps.Logger.Info("some document units had no text",
			zap.String("path", s.path),
			zap.Ints("empty_units", text.Empty),
		)
	}

	return Step{In: text.Units, Out: utf8.RuneCountInString(text.Content)}, nil
}

func (s *extractStage) Status() Status {
	return Status{Name: s.Name(), Enabled: s.IsEnabled(), Reason: s.reason, Details: detailsIf("path", s.path)}
}

type assembleStage struct {
	toggle
	path string
}

// NewAssemble creates the stage rendering the extraction prompt.
func NewAssemble() Stage { return &assembleStage{} }

func (s *assembleStage) Name() string { return "assemble" }

func (s *assembleStage) Validate(cfg *Config, _ Deps) error {
	if cfg != nil {
		s.path = cfg.SourcePath
	}
	return nil
}

func (s *assembleStage) Apply(_ context.Context, deps Deps, st *State) (Step, error) {
	if strings.TrimSpace(st.Document.Content) == "" {
		deps.Logger.Warn("resume text is empty, the model will only see the template", zap.String("path", s.path))
	}

	st.Messages = prompt.Messages(s.path, st.Document.Content)

	return Step{
		In:  utf8.RuneCountInString(st.Document.Content),
		Out: utf8.RuneCountInString(st.Messages[len(st.Messages)-1].Content),
	}, nil
}

func (s *assembleStage) Status() Status {
	return Status{Name: s.Name(), Enabled: s.IsEnabled(), Reason: s.reason, Details: map[string]string{
		"fields": strconv.Itoa(len(prompt.Fields())),
	}}
}

type askStage struct {
	toggle
}

// NewAsk creates the stage sending the prompt through the fallback client.
func NewAsk() Stage { return &askStage{} }

func (s *askStage) Name() string { return "ask" }

func (s *askStage) Validate(_ *Config, deps Deps) error {
	if deps.Client == nil {
		return errors.New("model client is not configured")
	}
	return nil
}

func (s *askStage) Apply(ctx context.Context, deps Deps, st *State) (Step, error) {
	if len(st.Messages) == 0 {
		return Step{}, errors.New("no prompt to send")
	}

	res, err := deps.Client.Ask(ctx, llm.Request{Messages: st.Messages})
	if err != nil {
		return Step{}, err
	}
	st.Answer = res

	deps.Logger.Debug("model answer",
		zap.String("ai_model", res.Model.String()),
		zap.Int("response_length", utf8.RuneCountInString(res.Text)),
		zap.String("response_preview", utils.TruncateForLog(res.Text, previewLength)),
	)

	in := 0
	for _, m := range st.Messages {
		in += utf8.RuneCountInString(m.Text())
	}
	return Step{In: in, Out: utf8.RuneCountInString(res.Text)}, nil
}

type parseStage struct {
	toggle
	strict bool
}

// NewParse creates the stage decoding the YAML answer into profile fields.
func NewParse() Stage { return &parseStage{} }

func (s *parseStage) Name() string { return "parse" }

func (s *parseStage) Validate(cfg *Config, _ Deps) error {
	s.strict = cfg != nil && cfg.StrictProfile
	return nil
}

// Apply never loses the raw answer: outside strict mode parse and schema
// problems are logged and the text is persisted as is.
func (s *parseStage) Apply(_ context.Context, deps Deps, st *State) (Step, error) {
	in := utils.CountLines(st.Answer.Text)

	fields, err := profile.Parse(st.Answer.Text)
	if err != nil {
		if s.strict {
			return Step{}, err
		}
		deps.Logger.Warn("model answer is not a yaml mapping, keeping raw text", zap.Error(err))
		return Step{In: in}, nil
	}

	st.Fallbacks = profile.ApplyFallbacks(fields)
	if len(st.Fallbacks) > 0 {
		deps.Logger.Info("fallback values applied", zap.Strings("fields", st.Fallbacks))
	}

	if err := profile.Validate(fields); err != nil {
		if s.strict {
			return Step{}, err
		}
		deps.Logger.Warn("extracted fields are incomplete", zap.Error(err))
	}

	p, err := profile.Decode(fields)
	if err != nil {
		if s.strict {
			return Step{}, err
		}
		deps.Logger.Warn("cannot decode typed profile", zap.Error(err))
	}

	st.Fields = fields
	st.Profile = p

	return Step{In: in, Out: len(fields)}, nil
}

func (s *parseStage) Status() Status {
	return Status{Name: s.Name(), Enabled: s.IsEnabled(), Reason: s.reason, Details: map[string]string{
		"strict": strconv.FormatBool(s.strict),
	}}
}

type persistStage struct {
	toggle
	name   string
	source string
}

// NewPersist creates the stage saving the result under the configured name.
func NewPersist() Stage { return &persistStage{} }

func (s *persistStage) Name() string { return "persist" }

func (s *persistStage) Validate(cfg *Config, deps Deps) error {
	if deps.Store == nil {
		return errors.New("result store is not configured")
	}
	if cfg == nil {
		return errors.New("config is required")
	}
	if err := store.ValidateName(cfg.Name); err != nil {
		return err
	}
	s.name = cfg.Name
	s.source = cfg.SourcePath
	return nil
}

func (s *persistStage) Apply(ctx context.Context, deps Deps, st *State) (Step, error) {
	rec := store.Record{
		Name:   s.name,
		Kind:   store.KindProfile,
		Source: s.source,
		Model:  st.Answer.Model.String(),
		Text:   st.Answer.Text,
		Fields: st.Fields,
	}

	if err := deps.Store.Save(ctx, rec); err != nil {
		return Step{}, fmt.Errorf("save %q: %w", s.name, err)
	}
	st.Record = rec

	deps.Logger.Info("result persisted", zap.String("name", s.name), zap.String("ai_model", rec.Model))

	return Step{In: len(st.Fields), Out: 1}, nil
}

func (s *persistStage) Status() Status {
	return Status{Name: s.Name(), Enabled: s.IsEnabled(), Reason: s.reason, Details: detailsIf("name", s.name)}
}

func detailsIf(key, value string) map[string]string {
	details := map[string]string{}
	if value != "" {
		details[key] = value
	}
	return details
}
