package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/alessio/shellescape"
	sprig "github.com/go-task/slim-sprig/v3"
)

// ScriptName is the name of the submission script written in each allocation directory.
const ScriptName = "hq-submit.sh"

// ScriptData is what submission script templates are rendered with.
type ScriptData struct {
	Workers   int
	JobName   string
	WorkDir   string
	TimeLimit string
	// Additional arguments, joined with spaces and kept verbatim
	AdditionalArgs string
	WorkerCommand  string
}

// NewScriptTemplate parses a submission script template. On top of the sprig functions,
// `shellquote` quotes a single word and `shelljoin` quotes and joins a list of words.
func NewScriptTemplate(name, text string) *template.Template {
	return template.Must(template.New(name).
		Funcs(sprig.TxtFuncMap()).
		Funcs(template.FuncMap{
			"shellquote": shellescape.Quote,
			"shelljoin":  func(words []string) string { return shellescape.QuoteCommand(words) },
		}).
		Parse(text))
}

// RenderScript renders the template and writes the resulting script in dir.
// It returns the path of the script.
func RenderScript(tmpl *template.Template, dir string, data ScriptData) (string, error) {
	var script strings.Builder
	if err := tmpl.Execute(&script, data); err != nil {
		return "", fmt.Errorf("failed to render submission script: %w", err)
	}

	path := filepath.Join(dir, ScriptName)
	if err := os.WriteFile(path, []byte(script.String()), 0o755); err != nil {
		return "", fmt.Errorf("failed to write submission script: %w", err)
	}
	return path, nil
}

// WorkerCommand returns the command line started on each worker of an allocation.
func WorkerCommand(command []string) string {
	return shellescape.QuoteCommand(command)
}
