package dashboard

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"staypermit/internal/records"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type Format string

const (
	FormatTable    Format = "table"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatCSV      Format = "csv"
)

var Formats = []Format{FormatTable, FormatMarkdown, FormatHTML, FormatCSV}

func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == strings.ToLower(s) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown format %q (expected one of %v)", s, Formats)
}

const (
	ColumnAge     = "Lama Proses (Hari Kerja)"
	ColumnOverdue = "Lewat Batas"
	overdueMark   = "ya"
)

var overdueColors = text.Colors{text.BgHiRed, text.FgBlack}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

func render(t table.Writer, format Format) {
	switch format {
	case FormatMarkdown:
		t.RenderMarkdown()
	case FormatHTML:
		t.RenderHTML()
	case FormatCSV:
		t.RenderCSV()
	default:
		t.Render()
	}
}

// Render writes every row of the view with its age, overdue rows are painted
// in the terminal format and marked in a column for the others.
func Render(w io.Writer, v View, format Format) {
	t := newTable(w)

	header := table.Row{}
	for _, name := range records.Header() {
		header = append(header, name)
	}
	header = append(header, ColumnAge, ColumnOverdue)
	t.AppendHeader(header)

	overdueCol := len(header) - 1
	for _, r := range v.Rows {
		row := make(table.Row, 0, len(header))
		for _, value := range r.Values {
			row = append(row, value)
		}
		mark := ""
		if r.Overdue {
			mark = overdueMark
		}
		row = append(row, strconv.Itoa(r.Age), mark)
		t.AppendRow(row)
	}

	if format == FormatTable {
		t.SetRowPainter(func(row table.Row) text.Colors {
			if len(row) > overdueCol && row[overdueCol] == overdueMark {
				return overdueColors
			}
			return nil
		})
		t.SetCaption(
			"%d applications from %s to %s, %d past %d business days",
			len(v.Rows),
			v.From.Format("2006-01-02"),
			v.To.Format("2006-01-02"),
			v.OverdueCount(),
			v.Threshold,
		)
	}
	render(t, format)
}

// RenderSummary writes the per status counts of the view.
func RenderSummary(w io.Writer, v View, format Format) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Status Permohonan", "Jumlah", ColumnOverdue, "Terlama (Hari Kerja)"})
	total, overdue := 0, 0
	for _, s := range v.Summary() {
		t.AppendRow(table.Row{s.Status, s.Total, s.Overdue, s.OldestAge})
		total += s.Total
		overdue += s.Overdue
	}
	t.AppendFooter(table.Row{"Total", total, overdue, ""})
	render(t, format)
}
