package formatting

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// TableFormatter provides rich table output formatting
type TableFormatter struct {
	options Options
}

// FormatClusters writes one row per cluster and a registered count in the footer.
func (f *TableFormatter) FormatClusters(out io.Writer, report ClusterReport) error {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		f.header("ZONE"),
		f.header("CLUSTER"),
		f.header("STATUS"),
		f.header("VERSION"),
		f.header("METRICS"),
		f.header("JOB RUNTIME"),
	})

	for _, row := range report.Clusters {
		status := f.color(text.FgGreen, "registered")
		version := row.Version
		switch {
		case !row.Registered:
			status = f.color(text.FgRed, "skipped")
			version = "-"
		case version == "":
			version = f.color(text.FgYellow, "unreachable")
		}
		t.AppendRow(table.Row{row.Zone, row.Cluster, status, version, yesNo(row.Metrics), yesNo(row.JobRuntime)})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d/%d registered", report.Registered, report.Total)})

	_, err := fmt.Fprintln(out, t.Render())
	return err
}

func (f *TableFormatter) header(s string) string {
	return f.color(text.FgHiCyan, s)
}

func (f *TableFormatter) color(c text.Color, s string) string {
	if !f.options.Color {
		return s
	}
	return c.Sprint(s)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
