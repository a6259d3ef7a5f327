package listeners

import (
	"bytes"
	"html/template"
)

const layout = `<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
<div style="max-width: 600px; margin: 0 auto; padding: 20px;">
<h2>{{.Heading}}</h2>
<p>Hi {{if .Name}}{{.Name}}{{else}}there{{end}},</p>
{{range .Lines}}<p>{{.}}</p>
{{end}}{{if .Rows}}<table style="width: 100%; border-collapse: collapse;">
{{range .Rows}}<tr><td style="font-weight: bold; color: #667eea; padding: 6px 0;">{{.Label}}</td><td>{{.Value}}</td></tr>
{{end}}</table>{{end}}
<p style="color: #888; font-size: 12px;">Cadence</p>
</div></body></html>`

var mailTemplate = template.Must(template.New("mail").Parse(layout))

type row struct {
	Label string
	Value string
}

type mailView struct {
	Heading string
	Name    string
	Lines   []string
	Rows    []row
}

func render(v mailView) (string, error) {
	var buf bytes.Buffer
	if err := mailTemplate.Execute(&buf, v); err != nil {
		return "", err
	}
	return buf.String(), nil
}
