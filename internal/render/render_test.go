package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/sshmon/internal/report"
)

// sampleReport returns a report with one healthy and one failing host.
func sampleReport() report.RunReport {
	return report.RunReport{
		ID:        "run-1",
		Timestamp: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		Meta:      map[string]any{"title": "Prod <fleet>"},
		Servers: []report.SummaryRecord{
			{
				Name:   "web1",
				Driver: "ssh",
				Meta:   map[string]any{"role": "frontend"},
				Checks: []report.CheckSummary{
					{
						Name: "Root disk",
						Type: "disk",
						Metrics: []report.Metric{
							{Name: "free_bytes", Value: uint64(2 * 1024 * 1024 * 1024)},
							{Name: "percent_used", Value: 42.5},
						},
						Alarms: []report.AlarmState{
							{Name: "Disk full", Expression: "percent_used > 90"},
						},
					},
				},
				Errors: []string{},
			},
			{
				Name:   "db1",
				Driver: "ssh",
				Checks: []report.CheckSummary{
					{Name: "Memory", Type: "memory", Error: "read /proc/meminfo: permission denied"},
				},
				Errors: []string{"Memory: read /proc/meminfo: permission denied"},
			},
		},
	}
}

func TestRender_Markdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleReport(), "md"))
	out := buf.String()

	assert.Contains(t, out, "# Prod <fleet>")
	assert.Contains(t, out, "Generated: Wed Mar  4 05:06:07 2026")
	assert.Contains(t, out, "| web1 | ssh | 1 | 0 | 0 |")
	assert.Contains(t, out, "| db1 | ssh | 1 | 0 | 1 |")
	assert.Contains(t, out, "## web1")
	assert.Contains(t, out, "- **role**: frontend")
	assert.Contains(t, out, "- free_bytes: 2.0 GiB")
	assert.Contains(t, out, "- percent_used: 42.5")
	assert.Contains(t, out, "ok: Disk full `percent_used > 90`")
	assert.Contains(t, out, "#### Errors")
	assert.Contains(t, out, "- Memory: read /proc/meminfo: permission denied")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("## web1")), bytes.Index(buf.Bytes(), []byte("## db1")))
}

func TestRender_MarkdownTableEscapesPipes(t *testing.T) {
	r := sampleReport()
	r.Servers[0].Name = "web|1"
	r.Servers[1].Name = "db\n1"
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, r, "md"))
	out := buf.String()

	assert.Contains(t, out, `| web\|1 | ssh | 1 | 0 | 0 |`)
	assert.Contains(t, out, "| db 1 | ssh | 1 | 0 | 1 |")
}

func TestTableCell(t *testing.T) {
	assert.Equal(t, "plain", tableCell("plain"))
	assert.Equal(t, `a\|b\|c`, tableCell("a|b|c"))
	assert.Equal(t, "two lines", tableCell("two\r\nlines"))
}

func TestRender_DefaultFormatIsMarkdown(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, Render(&a, sampleReport(), ""))
	require.NoError(t, Render(&b, sampleReport(), "markdown"))
	assert.Equal(t, a.String(), b.String())
}

func TestRender_HTMLEscapes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleReport(), "HTML"))
	out := buf.String()

	assert.Contains(t, out, "<title>Prod &lt;fleet&gt;</title>")
	assert.Contains(t, out, `<h2 id="web1">web1</h2>`)
	assert.Contains(t, out, "2.0 GiB")
	assert.Contains(t, out, "permission denied")
}

func TestRender_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleReport(), "json"))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded["id"])
	servers := decoded["servers"].([]any)
	require.Len(t, servers, 2)
	assert.Equal(t, "web1", servers[0].(map[string]any)["name"])
	assert.Equal(t, []any{}, servers[0].(map[string]any)["errors"])
}

func TestRender_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, sampleReport(), "pdf")
	require.ErrorIs(t, err, ErrUnknownFormat)
	assert.Contains(t, err.Error(), "pdf")
	assert.Zero(t, buf.Len(), "nothing is written on failure")
}

func TestRender_DefaultTitle(t *testing.T) {
	r := sampleReport()
	r.Meta = map[string]any{}
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, r, "md"))
	assert.Contains(t, buf.String(), "# Server Summary")
}

func TestFormatMetric(t *testing.T) {
	tests := []struct {
		metric report.Metric
		want   string
	}{
		{report.Metric{Name: "total_bytes", Value: uint64(1536)}, "1.5 KiB"},
		{report.Metric{Name: "total_bytes", Value: int64(-1)}, "-1"},
		{report.Metric{Name: "load1", Value: 0.25}, "0.25"},
		{report.Metric{Name: "exit_code", Value: 3}, "3"},
		{report.Metric{Name: "stdout", Value: "  active\n"}, "active"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatMetric(tt.metric), tt.metric.Name)
	}
}

func TestFormats(t *testing.T) {
	assert.Equal(t, []string{"html", "json", "markdown", "md", "mermaid"}, Formats())
}

func TestRender_Mermaid(t *testing.T) {
	r := sampleReport()
	r.Servers[0].Checks[0].Alarms[0].Fired = true

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, r, "mermaid"))

	want := `graph TD
  classDef fired fill:#f8d7da,stroke:#c00
  classDef failed fill:#fff3cd,stroke:#b80
  subgraph S0["web1"]
    C1["Root disk (disk)"]
    C1 --> A2{{"Disk full"}}
  end
  subgraph S3["db1"]
    C4["Memory (memory)"]
  end
  class A2 fired
  class C4 failed
`
	assert.Equal(t, want, buf.String())
}

func TestMermaidLabel(t *testing.T) {
	assert.Equal(t, "say #quot;hi#quot;", label(`say "hi"`))
	assert.Equal(t, 40, len([]rune(label(strings.Repeat("x", 50)))))
}
