package slurm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/gammadia/hqalloc/autoalloc"
	"github.com/gammadia/hqalloc/backend/internal"
	"github.com/gammadia/hqalloc/timelimit"
)

// Name is the backend kind under which queues select this backend.
const Name = "slurm"

type Backend struct {
	config Config
	log    *slog.Logger
	runner internal.Runner
}

// Backend implements autoalloc.Backend
var _ autoalloc.Backend = (*Backend)(nil)

func New(config Config, runner internal.Runner) *Backend {
	return &Backend{
		config: config,
		log:    config.Logger.With("component", "backend", "backend", Name),
		runner: runner,
	}
}

// NewLocal creates a backend running the Slurm commands on the local host.
func NewLocal(config Config) *Backend {
	return New(config, internal.NewExecRunner(internal.ExecRunnerConfig{
		Logger:  config.Logger,
		Backend: Name,
		Rate:    config.CommandRate,
		Burst:   config.CommandBurst,
	}))
}

func (b *Backend) Submit(ctx context.Context, request autoalloc.SubmitRequest) (string, error) {
	queue := request.Queue

	script, err := internal.RenderScript(scriptTemplate, request.WorkDir, internal.ScriptData{
		Workers:        queue.WorkersPerAlloc,
		JobName:        queue.JobName(),
		WorkDir:        request.WorkDir,
		TimeLimit:      timelimit.Format(queue.TimeLimit),
		AdditionalArgs: strings.Join(queue.AdditionalArgs, " "),
		WorkerCommand:  internal.WorkerCommand(b.config.WorkerCommand),
	})
	if err != nil {
		return "", err
	}

	output, err := b.runner.Run(ctx, internal.Command{
		Operation: "submit",
		Program:   "sbatch",
		Args:      []string{"--parsable", script},
		Dir:       request.WorkDir,
	})
	if err != nil {
		return "", internal.AsSubmissionError(err)
	}

	// --parsable prints "<job id>[;<cluster>]"
	jobID, _, _ := strings.Cut(strings.TrimSpace(output.Stdout), ";")
	if jobID == "" {
		return "", fmt.Errorf("sbatch did not report a job id")
	}
	b.log.Debug("Job submitted", "queue", queue.ID, "allocation", request.Index, "job", jobID)
	return jobID, nil
}

var invalidJobID = regexp.MustCompile(`(?i)invalid job id`)

// Query asks sacct about every job at once. Jobs slurm does not know about are left out.
func (b *Backend) Query(ctx context.Context, jobIDs []string) (map[string]autoalloc.JobState, error) {
	output, err := b.runner.Run(ctx, internal.Command{
		Operation: "query",
		Program:   "sacct",
		Args: []string{
			"--jobs=" + strings.Join(jobIDs, ","),
			"--allocations",
			"--noheader",
			"--parsable2",
			"--format=" + sacctFormat,
		},
	})
	if err != nil {
		return nil, err
	}

	states, err := parseSacct(output.Stdout)
	if err != nil {
		return nil, err
	}
	for jobID := range states {
		if !slices.Contains(jobIDs, jobID) {
			delete(states, jobID)
		}
	}
	return states, nil
}

// Delete cancels the given jobs with scancel. Jobs that are already gone are not an error.
func (b *Backend) Delete(ctx context.Context, jobIDs []string) error {
	if len(jobIDs) == 0 {
		return nil
	}

	output, err := b.runner.Run(ctx, internal.Command{
		Operation: "delete",
		Program:   "scancel",
		Args:      jobIDs,
	})

	var commandErr *internal.CommandError
	if errors.As(err, &commandErr) && internal.OnlyMatchingLines(output.Stderr, invalidJobID) {
		b.log.Debug("Some jobs were already gone", "jobs", jobIDs)
		return nil
	}
	return err
}
