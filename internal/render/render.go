// Package render turns a RunReport into an output document.
package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dusk-indust/sshmon/internal/report"
)

// ErrUnknownFormat is returned for a format name with no renderer.
var ErrUnknownFormat = errors.New("render: unknown format")

// DefaultFormat is used when no format is requested.
const DefaultFormat = "md"

type renderFunc func(w io.Writer, r report.RunReport) error

var formats = map[string]renderFunc{
	"md":       markdown,
	"markdown": markdown,
	"html":     html,
	"json":     jsonDoc,
	"mermaid":  mermaid,
}

// Formats lists the accepted format names, sorted.
func Formats() []string {
	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render writes r to w in the named format. Output is produced into a
// buffer first, so nothing reaches w when rendering fails.
func Render(w io.Writer, r report.RunReport, format string) error {
	if format == "" {
		format = DefaultFormat
	}
	fn, ok := formats[strings.ToLower(format)]
	if !ok {
		return fmt.Errorf("%w %q (want one of %s)", ErrUnknownFormat, format, strings.Join(Formats(), ", "))
	}

	var buf bytes.Buffer
	if err := fn(&buf, r); err != nil {
		return fmt.Errorf("render %s: %w", format, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

func jsonDoc(w io.Writer, r report.RunReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func markdown(w io.Writer, r report.RunReport) error {
	return markdownTemplate.Execute(w, r)
}

func html(w io.Writer, r report.RunReport) error {
	return htmlTemplate.Execute(w, r)
}

var funcs = map[string]any{
	"value": formatMetric,
	"cell":  tableCell,
	"ctime": func(t time.Time) string { return t.Format(time.ANSIC) },
	"title": func(r report.RunReport) string {
		if t, ok := r.Meta["title"].(string); ok && t != "" {
			return t
		}
		return "Server Summary"
	},
}

// tableCell keeps s inside a single markdown table cell.
func tableCell(s string) string {
	return strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ").Replace(s)
}

// formatMetric renders byte counts in IEC units and trims float noise.
func formatMetric(m report.Metric) string {
	if strings.HasSuffix(m.Name, "_bytes") {
		switch v := m.Value.(type) {
		case uint64:
			return humanize.IBytes(v)
		case int64:
			if v >= 0 {
				return humanize.IBytes(uint64(v))
			}
		case int:
			if v >= 0 {
				return humanize.IBytes(uint64(v))
			}
		case float64:
			if v >= 0 {
				return humanize.IBytes(uint64(v))
			}
		}
	}
	switch v := m.Value.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return strings.TrimSpace(v)
	default:
		return fmt.Sprint(v)
	}
}

var markdownTemplate = template.Must(template.New("md").Funcs(funcs).Parse(`# {{title .}}

Generated: {{ctime .Timestamp}}

| Server | Driver | Checks | Alarms fired | Errors |
|---|---|---|---|---|
{{range .Servers}}| {{cell .Name}} | {{cell .Driver}} | {{len .Checks}} | {{.Fired}} | {{len .Errors}} |
{{end}}{{range .Servers}}
## {{.Name}}
{{if .Meta}}
{{range $k, $v := .Meta}}- **{{$k}}**: {{$v}}
{{end}}{{end}}{{range .Checks}}
### {{.Name}} ({{.Type}})
{{if .Error}}
**Error:** {{.Error}}
{{end}}
{{range .Metrics}}- {{.Name}}: {{value .}}
{{end}}{{range .Alarms}}- {{if .Fired}}**FIRED**{{else}}ok{{end}}: {{.Name}} ` + "`{{.Expression}}`" + `
{{end}}{{end}}{{if .Errors}}
#### Errors

{{range .Errors}}- {{.}}
{{end}}{{end}}{{end}}`))

var htmlTemplate = htmltemplate.Must(htmltemplate.New("html").Funcs(htmltemplate.FuncMap(funcs)).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>{{title .}}</title>
<style>
body { font-family: Arial, sans-serif; margin: 40px; }
table { border-collapse: collapse; margin: 10px 0 20px; }
th, td { border: 1px solid #ddd; padding: 6px 10px; text-align: left; }
th { background-color: #f2f2f2; }
.fired { color: #b00020; font-weight: bold; }
.error { color: #b00020; }
</style>
</head>
<body>
<h1>{{title .}}</h1>
<p>Generated: {{ctime .Timestamp}}</p>

<table>
<tr><th>Server</th><th>Driver</th><th>Checks</th><th>Alarms fired</th><th>Errors</th></tr>
{{range .Servers}}<tr><td><a href="#{{.Name}}">{{.Name}}</a></td><td>{{.Driver}}</td><td>{{len .Checks}}</td><td>{{.Fired}}</td><td>{{len .Errors}}</td></tr>
{{end}}</table>

{{range .Servers}}
<h2 id="{{.Name}}">{{.Name}}</h2>
{{range .Checks}}
<h3>{{.Name}} ({{.Type}})</h3>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<table>
{{range .Metrics}}<tr><td>{{.Name}}</td><td>{{value .}}</td></tr>
{{end}}</table>
{{if .Alarms}}<ul>
{{range .Alarms}}<li class="{{if .Fired}}fired{{end}}">{{.Name}}: <code>{{.Expression}}</code>{{if .Fired}} (fired){{end}}</li>
{{end}}</ul>{{end}}
{{end}}
{{if .Errors}}<h4>Errors</h4>
<ul>
{{range .Errors}}<li class="error">{{.}}</li>
{{end}}</ul>{{end}}
{{end}}
</body>
</html>
`))
