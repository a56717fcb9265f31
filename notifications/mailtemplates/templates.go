package mailtemplates

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"path"
	"strings"
	texttemplate "text/template"

	"github.com/mailclean/saas-backend/notifications"
)

// AvailableTemplates stores the parsed HTML email templates by file key.
var AvailableTemplates map[TemplateFile]*htmltemplate.Template

// TemplateFile represents an email template key. Every email template should
// have a key that identifies it, which is the filename without the extension.
type TemplateFile string

// MailTemplate struct represents an email template. It includes the file key
// and the notification placeholder to be sent. The placeholder includes the
// subject and the plain body used as a fallback for email clients that do not
// support HTML. Both are text templates too.
type MailTemplate struct {
	File        TemplateFile
	Placeholder notifications.Notification
	WebAppURI   string
}

// Load parses every ".html" file under dir in the filesystem provided and
// makes them available to the mail templates.
func Load(fsys fs.FS, dir string) error {
	htmlFiles := make(map[TemplateFile]*htmltemplate.Template)
	if err := fs.WalkDir(fsys, dir, func(fPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".html") {
			return nil
		}
		tmpl, err := htmltemplate.ParseFS(fsys, fPath)
		if err != nil {
			return fmt.Errorf("could not parse template %s: %w", fPath, err)
		}
		htmlFiles[TemplateFile(strings.TrimSuffix(path.Base(fPath), ".html"))] = tmpl
		return nil
	}); err != nil {
		return err
	}
	AvailableTemplates = htmlFiles
	return nil
}

// ExecTemplate executes the HTML template of the file key and the text
// templates of the placeholder with the data provided. It returns an error if
// the templates were not loaded or the file key is unknown.
func (mt MailTemplate) ExecTemplate(data any) (*notifications.Notification, error) {
	tmpl, ok := AvailableTemplates[mt.File]
	if !ok {
		return nil, fmt.Errorf("template %s not found", mt.File)
	}
	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, data); err != nil {
		return nil, err
	}
	n := &notifications.Notification{Body: buf.String()}
	var err error
	if n.Subject, err = execText(mt.Placeholder.Subject, data); err != nil {
		return nil, err
	}
	if n.PlainBody, err = execText(mt.Placeholder.PlainBody, data); err != nil {
		return nil, err
	}
	return n, nil
}

func execText(text string, data any) (string, error) {
	if text == "" {
		return "", nil
	}
	tmpl, err := texttemplate.New("plain").Parse(text)
	if err != nil {
		return "", err
	}
	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
