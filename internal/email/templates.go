package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var baseTemplate = template.Must(template.New("base.html").ParseFS(templateFS, "templates/base.html"))

type messageEmailData struct {
	Subject    string
	Greeting   string
	Paragraphs []string
	FromName   string
}

// renderHTML wraps a plain text body in the base layout. Blank lines split
// paragraphs; the text is escaped by html/template.
func renderHTML(subject, name, body, fromName string) (string, error) {
	data := messageEmailData{
		Subject:  subject,
		FromName: fromName,
	}
	if name = strings.TrimSpace(name); name != "" {
		data.Greeting = "Hi " + name + ","
	}
	for _, p := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			data.Paragraphs = append(data.Paragraphs, p)
		}
	}

	var buf bytes.Buffer
	if err := baseTemplate.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template: %w", err)
	}
	return buf.String(), nil
}
