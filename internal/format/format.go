// Package format renders CLI output as tables, JSON or YAML.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

const (
	Table = "table"
	JSON  = "json"
	YAML  = "yaml"
)

// Tabular is data with a table rendering. JSON and YAML output marshal the
// Data value instead.
type Tabular struct {
	Header []string
	Rows   [][]string
	Data   any
}

type Printer struct {
	out    io.Writer
	errOut io.Writer
	format string
	colors bool
}

// NewPrinter writes results to out and status lines to errOut. Colors are
// used only for table output and only when colors is true.
func NewPrinter(out, errOut io.Writer, format string, colors bool) (*Printer, error) {
	switch format {
	case Table, JSON, YAML:
	case "":
		format = Table
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	return &Printer{out: out, errOut: errOut, format: format, colors: colors && format == Table}, nil
}

func (p *Printer) Format() string { return p.format }

// Print renders t in the configured format.
func (p *Printer) Print(t Tabular) error {
	switch p.format {
	case JSON:
		return p.json(t.Data)
	case YAML:
		return p.yaml(t.Data)
	}

	if len(t.Rows) == 0 {
		fmt.Fprintln(p.out, "No data to display")
		return nil
	}

	table := tablewriter.NewWriter(p.out)
	table.SetHeader(t.Header)
	p.configureTable(table)
	table.AppendBulk(t.Rows)
	table.Render()
	return nil
}

// Properties renders key/value pairs as a two-column table.
func (p *Printer) Properties(data any, pairs ...[2]string) error {
	rows := make([][]string, 0, len(pairs))
	for _, kv := range pairs {
		rows = append(rows, []string{kv[0], kv[1]})
	}
	return p.Print(Tabular{Header: []string{"Property", "Value"}, Rows: rows, Data: data})
}

func (p *Printer) configureTable(table *tablewriter.Table) {
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
}

func (p *Printer) json(data any) error {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(p.out, string(out))
	return err
}

// yaml goes through JSON first so field names and custom marshalers match
// the JSON output.
func (p *Printer) yaml(data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	var plain any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	out, err := yaml.Marshal(plain)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	_, err = p.out.Write(out)
	return err
}

// Success, Warning, Info and Error write a status line to errOut.
func (p *Printer) Success(format string, args ...any) { p.status(color.FgGreen, "", format, args...) }
func (p *Printer) Warning(format string, args ...any) {
	p.status(color.FgYellow, "Warning: ", format, args...)
}
func (p *Printer) Info(format string, args ...any)  { p.status(color.FgCyan, "", format, args...) }
func (p *Printer) Error(format string, args ...any) { p.status(color.FgRed, "Error: ", format, args...) }

func (p *Printer) status(attr color.Attribute, prefix, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if p.colors {
		msg = color.New(attr).Sprint(msg)
	} else {
		msg = prefix + msg
	}
	fmt.Fprintln(p.errOut, msg)
}

// Status colours a log status for table output.
func (p *Printer) Status(status string) string {
	if !p.colors {
		return status
	}
	switch status {
	case "success":
		return color.GreenString(status)
	case "blocked", "error":
		return color.RedString(status)
	case "warning":
		return color.YellowString(status)
	case "info":
		return color.CyanString(status)
	}
	return status
}

// Bool renders a flag as on/off, coloured for tables.
func (p *Printer) Bool(v bool) string {
	s := "off"
	if v {
		s = "on"
	}
	if !p.colors {
		return s
	}
	if v {
		return color.GreenString(s)
	}
	return color.RedString(s)
}

// Int64 is strconv.FormatInt in base 10.
func Int64(v int64) string { return strconv.FormatInt(v, 10) }

// Multiline flattens text to one table cell.
func Multiline(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
