package notify

import (
	"bytes"
	"fmt"
	"text/template"
)

var (
	registrationTmpl = template.Must(template.New("registration").Parse(`Hi {{.StudentName}},

You are registered for **{{.WebinarTitle}}**, hosted by {{.HostName}}, on {{.Date}} at {{.Time}}.

Open the webinar page a few minutes early. Watch time is tracked while the page is visible, and a
certificate unlocks once you have watched long enough.

See you there!
`))

	certificateTmpl = template.Must(template.New("certificate").Parse(`Congratulations {{.StudentName}}!

You completed **{{.CourseTitle}}** with {{.HostName}}.

Your certificate ID is **{{.CertificateID}}**, issued on {{.IssuedOn}}.
{{if .VerifyURL}}
Anyone can verify it at [{{.VerifyURL}}]({{.VerifyURL}}).
{{end}}`))
)

// RegistrationData fills the registration confirmation email.
type RegistrationData struct {
	StudentName  string
	WebinarTitle string
	HostName     string
	Date         string
	Time         string
}

// CertificateData fills the certificate email.
type CertificateData struct {
	StudentName   string
	CourseTitle   string
	HostName      string
	CertificateID string
	IssuedOn      string
	VerifyURL     string
}

// RegistrationEmail returns the subject and markdown body of a registration confirmation.
func RegistrationEmail(d RegistrationData) (subject, body string, err error) {
	body, err = execute(registrationTmpl, d)
	return fmt.Sprintf("You're registered: %s", d.WebinarTitle), body, err
}

// CertificateEmail returns the subject and markdown body carrying a certificate id.
func CertificateEmail(d CertificateData) (subject, body string, err error) {
	body, err = execute(certificateTmpl, d)
	return fmt.Sprintf("Your certificate for %s", d.CourseTitle), body, err
}

func execute(t *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute %s template: %w", t.Name(), err)
	}
	return buf.String(), nil
}
