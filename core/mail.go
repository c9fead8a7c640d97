package core

import (
	"bytes"
	"fmt"
	"net/mail"
	"path/filepath"
	"strings"
	"sync"
	texttmpl "text/template"
)

var (
	templates map[string]*texttmpl.Template
	tmplInit  sync.Once
)

type (
	EmailMessage struct {
		To      []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
	}

	// ContextData is passed to every email template.
	ContextData struct {
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails.
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

// Render resolves the message's final text content, executing the named
// template from assets/templates/email when one is set.
func (m *EmailMessage) Render(conf *Config) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
		return nil
	}
	if m.TemplateName == "" {
		return nil
	}
	tmplInit.Do(parseTemplates)

	tmpl, ok := templates[m.TemplateName]
	if !ok {
		return fmt.Errorf("core.EmailMessage: unknown template %q", m.TemplateName)
	}
	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, ContextData{FrontendBaseURL: conf.FrontendBaseURL, Data: m.TemplateData}); err != nil {
		return err
	}
	m.TextContent = buff.String()
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return m.TextContent != "" }

func parseTemplates() {
	templates = make(map[string]*texttmpl.Template)

	rp := filepath.Join(Getwd(), "assets", "templates", "email")
	fps, _ := filepath.Glob(filepath.Join(rp, "*.txt"))
	for _, fp := range fps {
		fname := filepath.Base(fp)
		if strings.HasPrefix(fname, "_") {
			continue
		}
		name := strings.TrimSuffix(fname, ".txt")
		tmpl, err := texttmpl.ParseFiles(fp)
		if err != nil {
			continue
		}
		templates[name] = tmpl
	}
}
