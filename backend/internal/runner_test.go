package internal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gammadia/hqalloc/autoalloc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner() *ExecRunner {
	return NewExecRunner(ExecRunnerConfig{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Backend: "test",
	})
}

func shell(script string) Command {
	return Command{Operation: "test", Program: "sh", Args: []string{"-c", script}}
}

func TestExecRunnerCapturesOutput(t *testing.T) {
	output, err := newTestRunner().Run(context.Background(), shell("echo 123.job; echo warning >&2"))
	require.NoError(t, err)
	assert.Equal(t, Output{Stdout: "123.job\n", Stderr: "warning\n", ExitCode: 0}, output)
}

func TestExecRunnerReportsExitCode(t *testing.T) {
	output, err := newTestRunner().Run(context.Background(), shell("echo failure >&2; exit 3"))

	var commandErr *CommandError
	require.ErrorAs(t, err, &commandErr)
	assert.Equal(t, 3, output.ExitCode)
	assert.Equal(t, "sh execution failed\nCaused by:\nExit code: 3\nStderr: failure\nStdout:", err.Error())

	var submissionErr *autoalloc.SubmissionError
	require.ErrorAs(t, AsSubmissionError(err), &submissionErr)
	assert.Equal(t, 3, submissionErr.ExitCode)
	assert.Equal(t, "failure\n", submissionErr.Stderr)
}

func TestExecRunnerMissingProgram(t *testing.T) {
	_, err := newTestRunner().Run(context.Background(), Command{Program: "surely-not-a-real-qsub"})
	require.Error(t, err)

	var commandErr *CommandError
	assert.False(t, errors.As(err, &commandErr))
	assert.Equal(t, err, AsSubmissionError(err))
}

func TestExecRunnerHonoursDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := newTestRunner().Run(ctx, shell("exec sleep 10"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecRunnerKeepsOutputOnDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	output, err := newTestRunner().Run(ctx, shell("echo 12.server; echo waiting for server >&2; exec sleep 10"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var interruptedErr *InterruptedError
	require.ErrorAs(t, err, &interruptedErr)
	assert.Equal(t, "12.server\n", output.Stdout)
	assert.Equal(t, "sh: context deadline exceeded\nStderr: waiting for server\nStdout: 12.server", err.Error())
	assert.Equal(t, err, AsSubmissionError(err))
}

func TestExecRunnerThrottles(t *testing.T) {
	runner := NewExecRunner(ExecRunnerConfig{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Backend: "test",
		Rate:    0.001,
		Burst:   1,
	})

	_, err := runner.Run(context.Background(), shell("true"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = runner.Run(ctx, shell("true"))
	assert.ErrorContains(t, err, "throttled")
}
