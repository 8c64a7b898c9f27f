package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// OutputFormat selects how command results are printed.
type OutputFormat string

const (
	// FormatText prints aligned columns.
	FormatText OutputFormat = "text"
	// FormatJSON prints indented JSON.
	FormatJSON OutputFormat = "json"
	// FormatCSV prints comma-separated rows with a header line.
	FormatCSV OutputFormat = "csv"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatCSV:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown output format %q: use text, json or csv", s)
	}
}

// Table is tabular command output. Raw, when set, is what the JSON
// formatter encodes instead of the rows.
type Table struct {
	Headers []string
	Rows    [][]string
	Raw     any
}

// Formatter writes a table.
type Formatter interface {
	FormatTo(w io.Writer, t Table) error
}

// TextFormatter prints a table as aligned columns.
type TextFormatter struct{}

// FormatTo implements Formatter.
func (TextFormatter) FormatTo(w io.Writer, t Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if len(t.Headers) > 0 {
		fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// JSONFormatter prints Raw, or the rows keyed by header when Raw is nil.
type JSONFormatter struct {
	Indent bool
}

// FormatTo implements Formatter.
func (f JSONFormatter) FormatTo(w io.Writer, t Table) error {
	enc := json.NewEncoder(w)
	if f.Indent {
		enc.SetIndent("", "  ")
	}
	if t.Raw != nil {
		return enc.Encode(t.Raw)
	}

	out := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		m := make(map[string]string, len(t.Headers))
		for i, h := range t.Headers {
			if i < len(row) {
				m[strings.ToLower(h)] = row[i]
			}
		}
		out = append(out, m)
	}
	return enc.Encode(out)
}

// CSVFormatter prints the header line and rows.
type CSVFormatter struct{}

// FormatTo implements Formatter.
func (CSVFormatter) FormatTo(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if len(t.Headers) > 0 {
		if err := cw.Write(t.Headers); err != nil {
			return err
		}
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// NewFormatter returns the formatter for format, text by default.
func NewFormatter(format OutputFormat) Formatter {
	switch format {
	case FormatJSON:
		return JSONFormatter{Indent: true}
	case FormatCSV:
		return CSVFormatter{}
	default:
		return TextFormatter{}
	}
}
