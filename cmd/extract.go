package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/resume-autofill/internal/document"
	"github.com/spigell/resume-autofill/internal/llm"
	"github.com/spigell/resume-autofill/internal/pipeline"
)

var extractCmd = &cobra.Command{
	Use:   "extract <resume.pdf|resume.docx>",
	Short: "Extract profile fields from a resume and persist them under a name",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		extract(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("name", "n", "", "name of the stored result (default is the resume file name)")
	extractCmd.Flags().StringSlice("models", nil, "override the extraction model list, in priority order")
	extractCmd.Flags().Bool("strict-profile", false, "fail when the answer is not a valid profile")
	extractCmd.Flags().Bool("dry-run", false, "print the answer without persisting it")
}

func extract(cmd *cobra.Command, path string) {
	ctx := context.Background()
	e := newEnv()
	defer e.close()
	e.requireAPIKey()

	name, _ := cmd.Flags().GetString("name")
	if strings.TrimSpace(name) == "" {
		name = defaultName(path)
	}
	override, _ := cmd.Flags().GetStringSlice("models")
	strict, _ := cmd.Flags().GetBool("strict-profile")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	client, err := e.client(ctx, llm.CapabilityChat, override)
	if err != nil {
		e.fatal("creating extraction client", zap.Error(err))
	}

	deps := pipeline.Deps{
		Logger:    e.logger,
		Extractor: document.New(e.logger),
		Client:    client,
	}

	stages := pipeline.Default()
	if dryRun {
		pipeline.DisableByName(stages, "persist", "dry run")
	} else {
		results, err := e.results(ctx)
		if err != nil {
			e.fatal("opening result store", zap.Error(err))
		}
		deps.Store = results
	}

	state, err := pipeline.Run(ctx, &pipeline.Config{SourcePath: path, Name: name, StrictProfile: strict}, deps, stages)
	if err != nil {
		e.fatal("extraction failed", zap.Error(err), zap.Bool("models_exhausted", llm.IsExhausted(err)))
	}

	for _, s := range pipeline.Describe(stages) {
		e.logger.Debug("stage status", zap.String("name", s.Name), zap.Bool("enabled", s.Enabled), zap.Any("details", s.Details))
	}

	e.logger.Info("extraction finished",
		zap.String("name", name),
		zap.String("ai_model", state.Answer.Model.String()),
		zap.Int("fields", len(state.Fields)),
		zap.Strings("fallbacks", state.Fallbacks),
	)

	fmt.Fprintln(cmd.OutOrStdout(), state.Answer.Text)
}

// defaultName derives a record name from the resume file name.
func defaultName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}

	name := b.String()
	for strings.Contains(name, "..") {
		name = strings.ReplaceAll(name, "..", ".")
	}
	name = strings.Trim(name, ".-_")
	if len(name) > 128 {
		name = name[:128]
	}
	if name == "" {
		return "resume"
	}
	return name
}
