package output

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	json "github.com/json-iterator/go"
)

// Format represents the output format type
type Format string

const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatText  Format = "text"
)

// ParseFormat validates a --output value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatTable, FormatText:
		return Format(s), nil
	case "":
		return FormatText, nil
	}
	return "", fmt.Errorf("invalid output format %q (want text, json or table)", s)
}

// Field is one row of a record.
type Field struct {
	Key   string
	Value string
}

// Printer writes command results in one format.
type Printer struct {
	w      io.Writer
	format Format
}

func New(w io.Writer, format Format) *Printer {
	if format == "" {
		format = FormatText
	}
	return &Printer{w: w, format: format}
}

// Format returns the printer's output format.
func (p *Printer) Format() Format {
	return p.format
}

// Success prints a success message
func (p *Printer) Success(msg string, args ...interface{}) {
	color.New(color.FgGreen).Fprintf(p.w, msg+"\n", args...)
}

// Error prints an error message
func (p *Printer) Error(msg string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(p.w, "Error: "+msg+"\n", args...)
}

// Info prints an info message
func (p *Printer) Info(msg string, args ...interface{}) {
	color.New(color.FgCyan).Fprintf(p.w, msg+"\n", args...)
}

// Warning prints a warning message
func (p *Printer) Warning(msg string, args ...interface{}) {
	color.New(color.FgYellow).Fprintf(p.w, "Warning: "+msg+"\n", args...)
}

// JSON writes v as indented JSON regardless of the format.
func (p *Printer) JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(p.w, string(data))
	return err
}

// Record prints a single object. In json format raw is encoded instead of
// fields, so scripts get the full payload.
func (p *Printer) Record(title string, fields []Field, raw interface{}) error {
	switch p.format {
	case FormatJSON:
		return p.JSON(raw)
	case FormatTable:
		rows := make([][]string, 0, len(fields))
		for _, f := range fields {
			rows = append(rows, []string{f.Key, f.Value})
		}
		p.Table([]string{"Field", "Value"}, rows)
		return nil
	}

	if title != "" {
		fmt.Fprintf(p.w, "%s:\n", title)
	}
	bold := color.New(color.Bold)
	for _, f := range fields {
		bold.Fprint(p.w, f.Key+": ")
		fmt.Fprintln(p.w, f.Value)
	}
	return nil
}

// List prints rows under headers, or raw as JSON in json format.
func (p *Printer) List(headers []string, rows [][]string, raw interface{}) error {
	if p.format == FormatJSON {
		return p.JSON(raw)
	}
	p.Table(headers, rows)
	return nil
}

// Table prints an aligned table with bold headers.
func (p *Printer) Table(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	bold := color.New(color.Bold)

	for i, h := range headers {
		bold.Fprint(w, h)
		if i < len(headers)-1 {
			fmt.Fprint(w, "\t")
		}
	}
	fmt.Fprintln(w)

	for _, row := range rows {
		for i, cell := range row {
			fmt.Fprint(w, cell)
			if i < len(row)-1 {
				fmt.Fprint(w, "\t")
			}
		}
		fmt.Fprintln(w)
	}

	w.Flush()
}
