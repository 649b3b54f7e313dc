package pbs

import "github.com/gammadia/hqalloc/backend/internal"

// Directive order matters to PBS wrappers parsing these scripts
var scriptTemplate = internal.NewScriptTemplate("pbs", `#!/bin/bash
#PBS -l select={{ .Workers }}
#PBS -N {{ .JobName }}
#PBS -o {{ .WorkDir }}/stdout
#PBS -e {{ .WorkDir }}/stderr
#PBS -l walltime={{ .TimeLimit }}
{{- with .AdditionalArgs }}
#PBS {{ . }}
{{- end }}

{{ if gt .Workers 1 -}}
pbsdsh -- bash -l -c {{ shellquote .WorkerCommand }}
{{- else -}}
{{ .WorkerCommand }}
{{- end }}
`)
