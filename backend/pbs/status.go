package pbs

import (
	"encoding/json"
	"fmt"

	"github.com/gammadia/hqalloc/autoalloc"
	"github.com/samber/lo"
)

// qstatOutput is the subset of `qstat -f -F json` we rely on.
type qstatOutput struct {
	Jobs map[string]qstatJob `json:"Jobs"`
}

type qstatJob struct {
	State      string `json:"job_state"`
	QueueTime  string `json:"qtime"`
	StartTime  string `json:"stime"`
	ModifyTime string `json:"mtime"`
	ExitStatus *int   `json:"Exit_status"`
}

func parseStatus(code string) (autoalloc.JobStatus, bool) {
	switch code {
	case "Q", "H", "W", "T", "S", "U":
		return autoalloc.JobStatusQueued, true
	case "R", "E", "B":
		return autoalloc.JobStatusRunning, true
	case "F", "X":
		return autoalloc.JobStatusExited, true
	default:
		return "", false
	}
}

// parseQstat translates the jobs reported by qstat. Jobs with an unknown state are left out.
func parseQstat(data []byte) (map[string]autoalloc.JobState, error) {
	var output qstatOutput
	if err := json.Unmarshal(data, &output); err != nil {
		return nil, fmt.Errorf("failed to parse qstat output: %w", err)
	}

	states := make(map[string]autoalloc.JobState, len(output.Jobs))
	for jobID, job := range output.Jobs {
		status, ok := parseStatus(job.State)
		if !ok {
			continue
		}

		state := autoalloc.JobState{
			Status:     status,
			RawStatus:  job.State,
			QueueTime:  job.QueueTime,
			StartTime:  job.StartTime,
			ModifyTime: job.ModifyTime,
		}
		if status == autoalloc.JobStatusExited && job.ExitStatus != nil {
			state.ExitCode = lo.ToPtr(*job.ExitStatus)
		}
		states[jobID] = state
	}
	return states, nil
}
