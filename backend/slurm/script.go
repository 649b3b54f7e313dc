package slurm

import "github.com/gammadia/hqalloc/backend/internal"

var scriptTemplate = internal.NewScriptTemplate("slurm", `#!/bin/bash
#SBATCH --nodes={{ .Workers }}
#SBATCH --job-name={{ .JobName }}
#SBATCH --output={{ .WorkDir }}/stdout
#SBATCH --error={{ .WorkDir }}/stderr
#SBATCH --time={{ .TimeLimit }}
{{- with .AdditionalArgs }}
#SBATCH {{ . }}
{{- end }}

{{ if gt .Workers 1 }}srun --overlap {{ end }}{{ .WorkerCommand }}
`)
