// Package report renders the outcome of a tagwatch run.
// It provides report sinks for human-readable text, tables and machine-readable JSON.
//
// Key components:
//   - New: Creates the sink for a format name.
//   - TextSink: Line-oriented change report rendered from a text/template.
//   - TableSink: go-pretty table of change events.
//   - JSONSink: JSON document with events, summary and persistence status.
//
// Usage example:
//
//	sink, err := report.New(report.FormatText, os.Stdout)
//	if err != nil {
//	    return err
//	}
//	_ = sink.Write(result.Report())
package report
