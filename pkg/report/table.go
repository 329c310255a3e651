package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/nicholas-fedor/tagwatch/pkg/types"
)

// TableSink writes change events as a table.
type TableSink struct {
	w io.Writer
}

// NewTableSink creates a table sink writing to w.
func NewTableSink(w io.Writer) *TableSink {
	return &TableSink{w: w}
}

// Write renders the report.
func (s *TableSink) Write(report types.RunReport) error {
	if len(report.Events) == 0 {
		if _, err := fmt.Fprintf(s.w, "No changes detected. Status: %s\n", StatusTitle(report.Status())); err != nil {
			return fmt.Errorf("failed to render report: %w", err)
		}

		return nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(table.Row{"Kind", "Repository", "Tag", "Digest", "Previous Digest"})

	for _, event := range report.Events {
		t.AppendRow(table.Row{event.Kind, event.Repository, event.Tag, event.Digest, event.PreviousDigest})
	}

	t.AppendFooter(table.Row{
		"", "", "",
		fmt.Sprintf("%d new, %d updated", report.Summary.New, report.Summary.Updated),
		StatusTitle(report.Status()),
	})

	if _, err := fmt.Fprintln(s.w, t.Render()); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	return nil
}
