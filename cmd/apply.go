package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/resume-autofill/internal/agent"
	"github.com/spigell/resume-autofill/internal/history"
	"github.com/spigell/resume-autofill/internal/llm"
	"github.com/spigell/resume-autofill/internal/logger"
	"github.com/spigell/resume-autofill/internal/prompt"
	"github.com/spigell/resume-autofill/internal/runlog"
	"github.com/spigell/resume-autofill/internal/store"
	"github.com/spigell/resume-autofill/internal/utils"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"

	forceFlagSetMsg = "force flag is set"
)

var errDeclined = errors.New("declined by user")

var confirm = promptui.Select{
	Label: "Proceed?",
	Items: []string{PromptYes, PromptNo},
}

var applyCmd = &cobra.Command{
	Use:   "apply <job-url>",
	Short: "Hand a stored profile to the form-filling agent for a job posting",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		apply(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(applyCmd)

	applyCmd.Flags().StringP("profile", "p", "", "name of the stored profile to apply with")
	applyCmd.Flags().StringP("resume", "r", "", "resume file to upload (default is the profile source)")
	applyCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation")
	applyCmd.Flags().Bool("cover-letter", false, "generate a cover letter with the text models")
	applyCmd.Flags().Bool("no-verify", false, "skip the screenshot verification")
	applyCmd.Flags().BoolP("force", "f", false, "apply even if this profile was already sent to the posting")

	applyCmd.MarkFlagRequired("profile")
}

func apply(cmd *cobra.Command, jobURL string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := newEnv()
	defer e.close()

	key := e.requireAPIKey()

	profileName, _ := cmd.Flags().GetString("profile")
	resumePath, _ := cmd.Flags().GetString("resume")
	autoApprove, _ := cmd.Flags().GetBool("auto-approve")
	withLetter, _ := cmd.Flags().GetBool("cover-letter")
	noVerify, _ := cmd.Flags().GetBool("no-verify")
	force, _ := cmd.Flags().GetBool("force")

	results, err := e.results(ctx)
	if err != nil {
		e.fatal("opening result store", zap.Error(err))
	}

	rec, err := results.Load(ctx, profileName)
	if err != nil {
		e.fatal("loading profile", zap.String("name", profileName), zap.Error(err))
	}
	if rec.Kind != store.KindProfile || len(rec.Fields) == 0 {
		e.fatal("record has no structured profile fields",
			zap.String("name", profileName),
			zap.String("kind", string(rec.Kind)),
			zap.String("hint", "run extract again, the stored answer was not a yaml mapping"),
		)
	}
	if resumePath == "" {
		resumePath = rec.Source
	}

	task := agent.Task{
		RunID:         uuid.NewString(),
		JobURL:        jobURL,
		Objective:     e.config.Agent.Objective,
		ProfileName:   profileName,
		Profile:       rec.Fields,
		ResumePath:    resumePath,
		MaxSteps:      e.config.Agent.MaxSteps,
		Headless:      e.config.Agent.Headless,
		ScreenshotDir: e.config.Agent.ScreenshotDir,
		TextModels:    e.config.Models.Text,
		VisionModels:  e.config.Models.Vision,
	}
	if err := task.Normalize(); err != nil {
		e.fatal("invalid task", zap.Error(err))
	}

	if path := strings.TrimSpace(e.config.Agent.KnowledgeFile); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			e.fatal("reading knowledge file", zap.String("path", path), zap.Error(err))
		}
		task.KnowledgeBase = string(data)
	}

	log := logger.WithFields(e.logger, zap.String(logger.FieldRunID, task.RunID))
	log.Info("applying",
		zap.String("job_url", task.JobURL),
		zap.String("profile", profileName),
		zap.String("resume", resumePath),
		zap.Int("max_steps", task.MaxSteps),
	)

	previous, err := history.Find(ctx, results, task.JobURL, profileName)
	if err != nil {
		e.close()
		log.Fatal("reading application history", zap.Error(err))
	}
	if len(previous) > 0 {
		last := previous[len(previous)-1]
		fields := []zap.Field{
			zap.Int("previous_runs", len(previous)),
			zap.String("last_run_id", last.RunID),
			zap.Time("last_run", last.Time),
			zap.Bool("last_submitted", last.Submitted),
		}
		if !force {
			log.Info("exiting", append(fields, zap.String("reason", "already applied, use --force to apply again"))...)
			return
		}
		log.Warn("applying again", append(fields, zap.String("reason", forceFlagSetMsg))...)
	}

	if !autoApprove {
		if err := askConfirmation(); err != nil {
			log.Info("exiting", zap.String("reason", err.Error()))
			return
		}
	}

	runLog := runlog.New(task.RunID)
	runLogPath := filepath.Join(e.config.RunLogDir, task.RunID+".xlsx")

	if withLetter {
		letter, err := coverLetter(ctx, e, task, results)
		if err != nil {
			log.Warn("cover letter skipped", zap.Error(err))
			runLog.Add(runlog.Entry{Action: "cover letter", Status: runlog.StatusFailed, Detail: err.Error()})
		} else {
			task.CoverLetter = letter
			runLog.Add(runlog.Entry{Action: "cover letter", Status: runlog.StatusOK, Detail: utils.TruncateForLog(letter, e.config.MaxLogLength)})
		}
	}

	runner := &agent.CommandRunner{
		Command: e.config.Agent.Command,
		WorkDir: e.config.Agent.WorkDir,
		Env:     agentEnv(e.config, key),
		Logger:  e.logger,
	}

	outcome, runErr := runner.Run(ctx, task, runLog)
	if runErr != nil {
		runLog.Add(runlog.Entry{Action: "agent", Status: runlog.StatusFailed, Detail: runErr.Error()})
	}

	application := history.Application{
		RunID:    task.RunID,
		JobURL:   task.JobURL,
		Profile:  profileName,
		Steps:    outcome.Steps,
		Failures: outcome.Failures,
		RunLog:   runLogPath,
	}
	if runErr != nil {
		application.Error = runErr.Error()
	}

	if !noVerify && e.config.Verify.Enabled && outcome.LastScreenshot != "" {
		if verdict := verify(ctx, e, log, task, outcome, runLog); verdict != nil {
			application.Verified = true
			application.Submitted = verdict.Submitted
		}
	}

	// History is written with a fresh context so an interrupted run is still recorded.
	if err := history.Save(context.Background(), results, application); err != nil {
		log.Error("saving application history", zap.Error(err))
	}

	// The run log is written on failures too, partial progress is the point.
	if err := runLog.WriteXLSX(runLogPath); err != nil {
		log.Error("writing run log", zap.String("path", runLogPath), zap.Error(err))
	} else {
		log.Info("run log written", zap.String("path", runLogPath), zap.Int("entries", len(runLog.Entries())))
	}

	if runErr != nil {
		e.close()
		log.Fatal("agent run failed", zap.Error(runErr), zap.Int("steps", outcome.Steps))
	}

	log.Info("agent run finished",
		zap.Int("steps", outcome.Steps),
		zap.Int("failed_steps", outcome.Failures),
		zap.Bool("any_failed", runLog.Failed()),
	)
}

func askConfirmation() error {
	_, action, err := confirm.Run()
	if err != nil {
		return err
	}
	if action != PromptYes {
		return errDeclined
	}
	return nil
}

func coverLetter(ctx context.Context, e *env, task agent.Task, results store.Store) (string, error) {
	client, err := e.client(ctx, llm.CapabilityCompletion, nil)
	if err != nil {
		return "", err
	}

	letter, err := client.Complete(ctx, prompt.CoverLetter(task.Profile, task.JobURL))
	if err != nil {
		return "", err
	}
	letter = strings.TrimSpace(letter)

	rec := store.Record{
		Name:   task.ProfileName + "-cover-" + task.RunID[:8],
		Kind:   store.KindCoverLetter,
		Source: task.JobURL,
		Model:  client.Active().String(),
		Text:   letter,
	}
	if err := results.Save(ctx, rec); err != nil {
		return "", fmt.Errorf("save cover letter: %w", err)
	}

	e.logger.Info("cover letter generated", zap.String("name", rec.Name), zap.String(logger.FieldModel, rec.Model))
	return letter, nil
}

func verify(ctx context.Context, e *env, log *zap.Logger, task agent.Task, outcome agent.Outcome, runLog *runlog.Log) *agent.Verdict {
	client, err := e.client(ctx, llm.CapabilityVision, nil)
	if err != nil {
		log.Warn("verification skipped", zap.Error(err))
		return nil
	}

	lastStep := ""
	if entries := runLog.Entries(); len(entries) > 0 {
		last := entries[len(entries)-1]
		lastStep = strings.TrimSpace(last.Action + " " + last.Detail)
	}

	verifier := agent.NewVerifier(client, log, e.config.Verify.MinConfidence, e.config.MaxLogLength)
	verdict, err := verifier.Verify(ctx, outcome.LastScreenshot, task.JobURL, lastStep)
	if err != nil {
		log.Warn("verification failed", zap.Error(err))
		runLog.Add(runlog.Entry{Action: "verify", Status: runlog.StatusFailed, Detail: err.Error(), Screenshot: outcome.LastScreenshot})
		return nil
	}

	status := runlog.StatusOK
	if !verdict.Submitted {
		status = runlog.StatusFailed
	}
	runLog.Add(runlog.Entry{
		Action:     "verify",
		Status:     status,
		Detail:     fmt.Sprintf("submitted=%t confidence=%.2f %s", verdict.Submitted, verdict.Confidence, verdict.Reason),
		Screenshot: outcome.LastScreenshot,
	})

	log.Info("submission verified",
		zap.Bool("submitted", verdict.Submitted),
		zap.Float64("confidence", verdict.Confidence),
		zap.String("reason", verdict.Reason),
		zap.String(logger.FieldModel, client.Active().String()),
	)

	return verdict
}
