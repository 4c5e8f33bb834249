package report

import (
	"html/template"
	"io"

	"github.com/Masterminds/sprig/v3"
	"github.com/pkg/errors"
)

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>watson: {{ .Identifier }}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
td, th { padding: 4px 10px; border-bottom: 1px solid #ddd; text-align: left; }
.found { color: #1a7f37; } .not_found { color: #999; } .unknown { color: #cf222e; }
</style>
</head>
<body>
<h1>Results for {{ .Identifier }}</h1>
<p>Run {{ .RunID | trunc 8 }} via {{ .Transport }}, {{ .Started.Format "2006-01-02 15:04:05" }},
{{ .Counts.Found }} found / {{ .Counts.NotFound }} not found / {{ .Counts.Unknown }} unknown.</p>
<table>
<tr><th>Site</th><th>Status</th><th>URL</th><th>Details</th></tr>
{{- range .Results }}
<tr class="{{ .Status }}">
<td>{{ .Site }}</td>
<td>{{ .Status.String | replace "_" " " | title }}</td>
<td>{{ if eq .Status.String "found" }}<a href="{{ .URL }}">{{ .URL }}</a>{{ else }}{{ .URL }}{{ end }}</td>
<td>{{ if .Failure }}{{ .Failure }}: {{ .Detail | abbrev 120 }}{{ else if .HTTPStatus }}HTTP {{ .HTTPStatus }}{{ end }}</td>
</tr>
{{- end }}
</table>
{{- with .EmailSites }}
<h2>Emails</h2>
<ul>
{{- range . }}
<li>{{ . }}: {{ index $.Emails . | join ", " }}</li>
{{- end }}
</ul>
{{- end }}
</body>
</html>
`

// HTMLWriter renders a standalone HTML page.
type HTMLWriter struct {
	tmpl *template.Template
}

func NewHTMLWriter() (*HTMLWriter, error) {
	tmpl, err := template.New("report").Funcs(sprig.FuncMap()).Parse(htmlTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "parse html template")
	}
	return &HTMLWriter{tmpl: tmpl}, nil
}

func (h *HTMLWriter) Write(w io.Writer, r Report) error {
	return h.tmpl.Execute(w, r)
}
