package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/gammadia/hqalloc/autoalloc"
	"github.com/samber/lo"
	"golang.org/x/time/rate"
)

// Command is one invocation of an external scheduler program.
type Command struct {
	// Operation is the backend operation issuing the command: submit, query or delete
	Operation string
	Program   string
	Args      []string
	Dir       string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Program}, c.Args...), " ")
}

// Output is what an external command produced.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner runs external commands. Implementations must be safe for concurrent use.
type Runner interface {
	Run(ctx context.Context, command Command) (Output, error)
}

// CommandError is returned by a Runner when a command ran but exited with a non-zero code.
type CommandError struct {
	Program string
	Output  Output
}

func (e *CommandError) Error() string {
	return e.SubmissionError().Error()
}

// InterruptedError is returned by a Runner when a command was killed because its context
// ended. It keeps whatever the command printed before.
type InterruptedError struct {
	Program string
	Output  Output
	Err     error
}

func (e *InterruptedError) Error() string {
	message := fmt.Sprintf("%s: %s", e.Program, e.Err)
	if stderr := strings.TrimSpace(e.Output.Stderr); stderr != "" {
		message += "\nStderr: " + stderr
	}
	if stdout := strings.TrimSpace(e.Output.Stdout); stdout != "" {
		message += "\nStdout: " + stdout
	}
	return message
}

func (e *InterruptedError) Unwrap() error {
	return e.Err
}

// SubmissionError converts the failure into the error reported for failed submissions.
func (e *CommandError) SubmissionError() *autoalloc.SubmissionError {
	return &autoalloc.SubmissionError{
		Program:  e.Program,
		ExitCode: e.Output.ExitCode,
		Stderr:   e.Output.Stderr,
		Stdout:   e.Output.Stdout,
	}
}

// AsSubmissionError returns the submission error carried by err, or err itself when the
// command could not even run.
func AsSubmissionError(err error) error {
	var commandErr *CommandError
	if errors.As(err, &commandErr) {
		return commandErr.SubmissionError()
	}
	return err
}

type ExecRunnerConfig struct {
	Logger *slog.Logger
	// Name of the backend, used in logs and metrics
	Backend string
	// Maximum number of commands started per second
	Rate float64
	// Maximum number of commands started at once
	Burst int
}

// ExecRunner runs commands on the local host, throttled by a token bucket.
type ExecRunner struct {
	config  ExecRunnerConfig
	log     *slog.Logger
	limiter *rate.Limiter
}

// ExecRunner implements Runner
var _ Runner = (*ExecRunner)(nil)

func NewExecRunner(config ExecRunnerConfig) *ExecRunner {
	limit := rate.Inf
	if config.Rate > 0 {
		limit = rate.Limit(config.Rate)
	}

	return &ExecRunner{
		config:  config,
		log:     config.Logger.With("component", "backend", "backend", config.Backend),
		limiter: rate.NewLimiter(limit, max(1, config.Burst)),
	}
}

func (r *ExecRunner) Run(ctx context.Context, command Command) (Output, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Output{}, fmt.Errorf("%s: throttled: %w", command.Program, err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command.Program, command.Args...)
	cmd.Dir = command.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children of a killed command may keep its output open
	cmd.WaitDelay = time.Second

	r.log.Debug("Running command", "operation", command.Operation, "command", command.String())
	start := time.Now()
	err := cmd.Run()
	commandDuration.WithLabelValues(r.config.Backend, command.Operation).Observe(time.Since(start).Seconds())

	output := Output{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return output, nil
	case ctx.Err() != nil:
		return output, &InterruptedError{Program: command.Program, Output: output, Err: ctx.Err()}
	case errors.As(err, &exitErr):
		return output, &CommandError{Program: command.Program, Output: output}
	default:
		return output, fmt.Errorf("failed to run %s: %w", command.Program, err)
	}
}

// OnlyMatchingLines reports whether output has at least one non-blank line and every
// non-blank line matches pattern.
func OnlyMatchingLines(output string, pattern *regexp.Regexp) bool {
	lines := lo.Filter(strings.Split(output, "\n"), func(line string, _ int) bool {
		return strings.TrimSpace(line) != ""
	})
	return len(lines) > 0 && lo.EveryBy(lines, pattern.MatchString)
}
