package slurm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gammadia/hqalloc/autoalloc"
	"github.com/samber/lo"
)

// sacctFormat lists the columns requested from sacct, in the order parseSacct reads them.
const sacctFormat = "JobID,State,ExitCode,Submit,Start,End"

func parseStatus(state string) (autoalloc.JobStatus, bool) {
	switch state {
	case "PENDING", "CONFIGURING", "REQUEUED", "REQUEUE_FED", "REQUEUE_HOLD", "RESV_DEL_HOLD", "SUSPENDED":
		return autoalloc.JobStatusQueued, true
	// A stopped job keeps its nodes
	case "RUNNING", "COMPLETING", "STAGE_OUT", "SIGNALING", "RESIZING", "STOPPED":
		return autoalloc.JobStatusRunning, true
	case "COMPLETED", "FAILED", "CANCELLED", "TIMEOUT", "NODE_FAIL", "PREEMPTED", "BOOT_FAIL",
		"DEADLINE", "OUT_OF_MEMORY", "SPECIAL_EXIT", "REVOKED":
		return autoalloc.JobStatusExited, true
	default:
		return "", false
	}
}

// parseSacct translates the output of `sacct --noheader --parsable2 --format=<sacctFormat>`.
// Jobs with an unknown state are left out.
func parseSacct(output string) (map[string]autoalloc.JobState, error) {
	states := make(map[string]autoalloc.JobState)

	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) != 6 {
			return nil, fmt.Errorf("unexpected sacct line '%s'", line)
		}
		jobID := fields[0]

		// "CANCELLED by 1000"
		rawState, _, _ := strings.Cut(fields[1], " ")
		status, ok := parseStatus(rawState)
		if !ok {
			continue
		}

		state := autoalloc.JobState{
			Status:     status,
			RawStatus:  rawState,
			QueueTime:  timestamp(fields[3]),
			StartTime:  timestamp(fields[4]),
			ModifyTime: timestamp(fields[5]),
		}
		if status != autoalloc.JobStatusExited {
			state.ModifyTime = ""
			states[jobID] = state
			continue
		}

		code, _, _ := strings.Cut(fields[2], ":")
		exitCode, err := strconv.Atoi(code)
		if err != nil {
			exitCode = 1
		}
		// Cancelled or timed out jobs may exit cleanly but are failures all the same
		if rawState != "COMPLETED" && exitCode == 0 {
			exitCode = 1
		}
		state.ExitCode = lo.ToPtr(exitCode)
		states[jobID] = state
	}

	return states, nil
}

func timestamp(value string) string {
	if value == "Unknown" || value == "None" {
		return ""
	}
	return value
}
