package cmd

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

// Values shown in state columns.
const (
	stateClaimed   = "claimed"
	stateAvailable = "available"
	notFound       = "not found"
)

var stateColors = map[string]text.Colors{
	stateClaimed:   {text.FgYellow},
	stateAvailable: {text.FgGreen},
	notFound:       {text.Faint},
}

// column describes one table column. State columns hold waybill states or
// "not found" and are coloured on a terminal.
type column struct {
	header string
	align  text.Align
	state  bool
}

// tableSpec is a table to print. Short rows are padded with empty cells.
type tableSpec struct {
	columns []column
	rows    [][]string
	footer  []string
	color   bool
}

func renderTable(spec tableSpec) string {
	n := len(spec.columns)
	if n == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	tw.AppendHeader(padRow(headers(spec.columns), n))
	for _, row := range spec.rows {
		tw.AppendRow(padRow(row, n))
	}
	if len(spec.footer) > 0 {
		tw.AppendFooter(padRow(spec.footer, n))
	}

	configs := make([]table.ColumnConfig, 0, n)
	for i, col := range spec.columns {
		cfg := table.ColumnConfig{
			Number:      i + 1,
			Align:       col.align,
			AlignHeader: text.AlignLeft,
		}
		if col.state && spec.color {
			cfg.Transformer = colorState
		}
		configs = append(configs, cfg)
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func headers(columns []column) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.header
	}
	return out
}

func padRow(cells []string, n int) table.Row {
	r := make(table.Row, n)
	for i := range r {
		if i < len(cells) {
			r[i] = cells[i]
		} else {
			r[i] = ""
		}
	}
	return r
}

func colorState(val interface{}) string {
	s, _ := val.(string)
	if c, ok := stateColors[s]; ok {
		return c.Sprint(s)
	}
	return s
}

// stdoutColor reports whether tables on stdout should be coloured.
func stdoutColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
