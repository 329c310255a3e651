package report

import (
	"fmt"
	"io"
	"text/template"

	"github.com/nicholas-fedor/tagwatch/pkg/types"
)

// textTemplate renders the line-oriented report.
const textTemplate = `Checking container image tags at {{ Timestamp .Started }}
{{ if .Events -}}
Changes detected:
{{ range .Events -}}
{{ "  " }}{{ Describe . }}
{{ end -}}
{{ else -}}
No changes detected.
{{ end -}}
{{ with .Summary.RepositoriesFailed -}}
{{ . }} {{ if eq . 1 }}repository{{ else }}repositories{{ end }} could not be checked and kept previous state.
{{ end -}}
{{ if .StateErr -}}
WARNING: state was not persisted ({{ .StateErr }}); these changes will be reported again on the next run.
{{ end -}}
`

// TextSink writes the human-readable report.
type TextSink struct {
	w   io.Writer
	tpl *template.Template
}

// NewTextSink creates a text sink writing to w.
func NewTextSink(w io.Writer) *TextSink {
	return &TextSink{
		w:   w,
		tpl: template.Must(template.New("report").Funcs(Funcs).Parse(textTemplate)),
	}
}

// Write renders the report.
func (s *TextSink) Write(report types.RunReport) error {
	if err := s.tpl.Execute(s.w, report); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	return nil
}
