package agent

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/resume-autofill/internal/logger"
	"github.com/spigell/resume-autofill/internal/runlog"
	"github.com/spigell/resume-autofill/internal/utils"
)

const (
	// EnvTask names the variable holding the task file path.
	EnvTask  = "RESUME_AUTOFILL_TASK"
	EnvRunID = "RESUME_AUTOFILL_RUN_ID"

	maxLineSize   = 1 << 20
	stderrTailLen = 2000
)

// Outcome summarizes what the agent reported.
type Outcome struct {
	Steps          int
	Failures       int
	LastScreenshot string
}

// Runner drives one form-filling run.
type Runner interface {
	Run(ctx context.Context, task Task, sink Sink) (Outcome, error)
}

// RunError is returned when the agent process exits unsuccessfully.
type RunError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *RunError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("agent exited with code %d: %v", e.ExitCode, e.Err)
	}
	return fmt.Sprintf("agent exited with code %d: %v: %s", e.ExitCode, e.Err, e.Stderr)
}

func (e *RunError) Unwrap() error { return e.Err }

// CommandRunner runs an external agent process. The task is written to a
// JSON file whose path is passed in EnvTask; every stdout line is a step event.
type CommandRunner struct {
	Command []string
	WorkDir string
	Env     []string
	Logger  *zap.Logger
}

func (r *CommandRunner) Run(ctx context.Context, task Task, sink Sink) (Outcome, error) {
	if len(r.Command) == 0 || strings.TrimSpace(r.Command[0]) == "" {
		return Outcome{}, errors.New("agent command is not configured")
	}
	if err := task.Normalize(); err != nil {
		return Outcome{}, fmt.Errorf("invalid task: %w", err)
	}

	log := logger.WithFields(r.Logger, zap.String(logger.FieldRunID, task.RunID))

	taskFile, err := os.CreateTemp(r.WorkDir, "task-*.json")
	if err != nil {
		return Outcome{}, fmt.Errorf("create task file: %w", err)
	}
	taskPath := taskFile.Name()
	taskFile.Close()
	defer os.Remove(taskPath)

	if err := task.ToFile(taskPath); err != nil {
		return Outcome{}, err
	}
	if abs, err := filepath.Abs(taskPath); err == nil {
		taskPath = abs
	}

	cmd := exec.CommandContext(ctx, r.Command[0], r.Command[1:]...)
	cmd.Dir = r.WorkDir
	cmd.Env = append(append(os.Environ(), r.Env...),
		EnvTask+"="+taskPath,
		EnvRunID+"="+task.RunID,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Outcome{}, fmt.Errorf("agent stdout: %w", err)
	}

	log.Info("starting agent", zap.Strings("command", r.Command), zap.String("job_url", task.JobURL), zap.Int("max_steps", task.MaxSteps))

	if err := cmd.Start(); err != nil {
		return Outcome{}, fmt.Errorf("start agent: %w", err)
	}

	var outcome Outcome
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		entry, ok := ParseEvent(scanner.Text())
		if !ok {
			continue
		}

		if entry.Status != runlog.StatusNote {
			outcome.Steps++
		}
		if entry.Status == runlog.StatusFailed {
			outcome.Failures++
		}
		if entry.Screenshot != "" {
			outcome.LastScreenshot = resolve(r.WorkDir, entry.Screenshot)
			entry.Screenshot = outcome.LastScreenshot
		}

		sink.Add(entry)
		log.Debug("agent event",
			zap.Int("agent_step", entry.Step),
			zap.String("action", entry.Action),
			zap.String("status", entry.Status),
		)
	}
	scanErr := scanner.Err()
	if scanErr != nil {
		_, _ = io.Copy(io.Discard, stdout)
	}

	waitErr := cmd.Wait()
	if waitErr != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			waitErr = fmt.Errorf("%w: %w", ctxErr, waitErr)
		}
		return outcome, &RunError{
			ExitCode: code,
			Stderr:   utils.TruncateForLog(tail(stderr.String(), stderrTailLen), stderrTailLen),
			Err:      waitErr,
		}
	}
	if scanErr != nil {
		return outcome, fmt.Errorf("read agent output: %w", scanErr)
	}

	log.Info("agent finished", zap.Int("steps", outcome.Steps), zap.Int("failures", outcome.Failures))

	return outcome, nil
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}
