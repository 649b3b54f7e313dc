package pbs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/gammadia/hqalloc/autoalloc"
	"github.com/gammadia/hqalloc/backend/internal"
	"github.com/gammadia/hqalloc/timelimit"
	"github.com/samber/lo"
)

// Name is the backend kind under which queues select this backend.
const Name = "pbs"

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

// NewLocal creates a backend running the PBS commands on the local host.
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
		Program:   "qsub",
		Args:      []string{script},
		Dir:       request.WorkDir,
	})
	if err != nil {
		return "", internal.AsSubmissionError(err)
	}

	jobID := strings.TrimSpace(output.Stdout)
	if jobID == "" {
		return "", fmt.Errorf("qsub did not report a job id")
	}
	b.log.Debug("Job submitted", "queue", queue.ID, "allocation", request.Index, "job", jobID)
	return jobID, nil
}

// Query asks qstat for the given jobs, including finished ones.
// qstat exits with an error as soon as one id is unknown but still reports the others.
func (b *Backend) Query(ctx context.Context, jobIDs []string) (map[string]autoalloc.JobState, error) {
	output, err := b.runner.Run(ctx, internal.Command{
		Operation: "query",
		Program:   "qstat",
		Args:      append([]string{"-f", "-F", "json", "-x"}, jobIDs...),
	})

	var commandErr *internal.CommandError
	if err != nil && !errors.As(err, &commandErr) {
		return nil, err
	}

	states, parseErr := parseQstat([]byte(output.Stdout))
	if parseErr != nil {
		if err != nil {
			return nil, err
		}
		return nil, parseErr
	}
	if err != nil {
		b.log.Debug("qstat reported errors", "stderr", strings.TrimSpace(output.Stderr))
	}

	return lo.PickByKeys(states, jobIDs), nil
}

var benignQdelError = regexp.MustCompile(`(?i)unknown job id|job has finished|request invalid for state of job`)

// Delete cancels the given jobs with qdel. Jobs that are already gone are not an error.
func (b *Backend) Delete(ctx context.Context, jobIDs []string) error {
	if len(jobIDs) == 0 {
		return nil
	}

	output, err := b.runner.Run(ctx, internal.Command{
		Operation: "delete",
		Program:   "qdel",
		Args:      jobIDs,
	})

	var commandErr *internal.CommandError
	if errors.As(err, &commandErr) && internal.OnlyMatchingLines(output.Stderr, benignQdelError) {
		b.log.Debug("Some jobs were already gone", "jobs", jobIDs, "stderr", strings.TrimSpace(output.Stderr))
		return nil
	}
	return err
}
