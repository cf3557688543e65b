package mail

import (
	"bytes"
	htmltemplate "html/template"
	"io"
	texttemplate "text/template"
)

var (
	resetText = texttemplate.Must(texttemplate.New("reset").Parse(`Hello {{.Name}},

A password reset was requested for your account. Follow this link to choose a new password:

{{.URL}}

The link expires in {{.Expires}}. If you did not ask for this, ignore this message.
`))

	resetHTML = htmltemplate.Must(htmltemplate.New("reset").Parse(`<p>Hello {{.Name}},</p>
<p>A password reset was requested for your account.</p>
<p><a href="{{.URL}}">Choose a new password</a></p>
<p>The link expires in {{.Expires}}. If you did not ask for this, ignore this message.</p>
`))

	exportText = texttemplate.Must(texttemplate.New("export").Parse(`Hello {{.Name}},

Your export is ready. The files are attached{{if .Links}} and can also be downloaded here:
{{range .Links}}
- {{.Name}}: {{.URL}}{{end}}{{else}}.{{end}}
`))
)

type resetData struct {
	Name    string
	URL     string
	Expires string
}

type exportLink struct {
	Name string
	URL  string
}

type exportData struct {
	Name  string
	Links []exportLink
}

type executor interface {
	Execute(w io.Writer, data interface{}) error
}

func render(t executor, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
