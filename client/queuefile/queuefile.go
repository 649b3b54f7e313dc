package queuefile

import (
	"fmt"
	"regexp"

	"github.com/gammadia/hqalloc/timelimit"
)

const QueuefileVersion = "1"

// Queuefile is an allocation queue declared in YAML.
type Queuefile struct {
	Version         string   `yaml:"version"`
	Backend         string   `yaml:"backend"`
	Name            string   `yaml:"name"`
	Backlog         *uint32  `yaml:"backlog"`
	WorkersPerAlloc *uint32  `yaml:"workers-per-alloc"`
	TimeLimit       string   `yaml:"time-limit"`
	AdditionalArgs  []string `yaml:"additional-args"`
}

var nameRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]*$`)

func (queuefile Queuefile) Validate() error {
	if queuefile.Version != "" && queuefile.Version != QueuefileVersion {
		return fmt.Errorf("unsupported version '%s'", queuefile.Version)
	}

	if queuefile.Backend != "" && queuefile.Backend != "pbs" && queuefile.Backend != "slurm" {
		return fmt.Errorf("backend must be one of 'pbs', 'slurm'")
	}

	if !nameRegex.MatchString(queuefile.Name) {
		return fmt.Errorf("name must only contain letters, digits, '_', '.' and '-'")
	}

	if queuefile.Backlog != nil && *queuefile.Backlog < 1 {
		return fmt.Errorf("backlog must be greater than 0")
	}

	if queuefile.WorkersPerAlloc != nil && *queuefile.WorkersPerAlloc < 1 {
		return fmt.Errorf("workers-per-alloc must be greater than 0")
	}

	if queuefile.TimeLimit != "" {
		if _, err := timelimit.Parse(queuefile.TimeLimit); err != nil {
			return fmt.Errorf("time-limit: %w", err)
		}
	}

	return nil
}

