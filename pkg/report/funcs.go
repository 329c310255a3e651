package report

import (
	"strings"
	"text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Funcs defines the functions available to report templates.
var Funcs = template.FuncMap{
	"Describe":  Describe,
	"Timestamp": timestamp,
	"Title":     cases.Title(language.AmericanEnglish).String,
	"Status":    StatusTitle,
}

// timestamp formats a time in UTC as RFC 3339.
func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// StatusTitle turns a machine-readable status such as "completed_with_errors" into
// "Completed With Errors".
func StatusTitle(status string) string {
	return cases.Title(language.AmericanEnglish).String(strings.ReplaceAll(status, "_", " "))
}
