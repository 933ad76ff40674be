package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCertificateEmail(t *testing.T) {
	subject, body, err := CertificateEmail(CertificateData{
		StudentName:   "Ada",
		CourseTitle:   "Intro to Go",
		HostName:      "Grace",
		CertificateID: "NS-123456",
		IssuedOn:      "March 10, 2026",
		VerifyURL:     "https://nexstream.dev/verify/NS-123456",
	})
	require.NoError(t, err)
	assert.Equal(t, "Your certificate for Intro to Go", subject)
	assert.Contains(t, body, "**NS-123456**")
	assert.Contains(t, body, "https://nexstream.dev/verify/NS-123456")

	html, err := RenderHTML(body)
	require.NoError(t, err)
	assert.Contains(t, html, "<strong>NS-123456</strong>")
	assert.Contains(t, html, `<a href="https://nexstream.dev/verify/NS-123456">`)
}

func TestRegistrationEmail(t *testing.T) {
	subject, body, err := RegistrationEmail(RegistrationData{StudentName: "Ada", WebinarTitle: "Intro to Go", HostName: "Grace", Date: "2026-03-11", Time: "10:00"})
	require.NoError(t, err)
	assert.Equal(t, "You're registered: Intro to Go", subject)
	assert.Contains(t, body, "2026-03-11 at 10:00")
}

func TestRenderHTMLEscapesRawHTML(t *testing.T) {
	html, err := RenderHTML("hello <script>alert(1)</script>")
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
}

func TestLogDispatcher(t *testing.T) {
	res, err := NewLogDispatcher(nil).Send(context.Background(), Message{To: "a@b.co", Subject: "hi", Markdown: "body"})
	require.NoError(t, err)
	assert.Equal(t, "log", res.ProviderID)
	assert.False(t, res.SentAt.IsZero())
}
