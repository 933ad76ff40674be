// Package notify sends platform email and records every attempt.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"
	"go.uber.org/zap"
)

// Message is one outgoing email. The body is markdown and is rendered to HTML on send.
type Message struct {
	To       string
	Subject  string
	Markdown string
}

// Result describes an accepted email.
type Result struct {
	ProviderID string
	SentAt     time.Time
}

// Dispatcher delivers email.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) (Result, error)
}

// md escapes raw HTML in bodies; only markdown formatting is rendered.
var md = goldmark.New(goldmark.WithRendererOptions(goldmarkHTML.WithHardWraps()))

// RenderHTML converts a markdown body to HTML.
func RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// ResendDispatcher sends email through the Resend API.
type ResendDispatcher struct {
	client *resend.Client
	from   string
	logger *zap.Logger
}

// NewResendDispatcher creates a Resend-backed dispatcher. from is "Name <address>" or an address.
func NewResendDispatcher(apiKey, from string, logger *zap.Logger) *ResendDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResendDispatcher{client: resend.NewClient(apiKey), from: from, logger: logger}
}

// Send renders and sends msg.
func (d *ResendDispatcher) Send(ctx context.Context, msg Message) (Result, error) {
	html, err := RenderHTML(msg.Markdown)
	if err != nil {
		return Result{}, err
	}
	sent, err := d.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    d.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    html,
		Text:    msg.Markdown,
	})
	if err != nil {
		d.logger.Error("resend send failed", zap.String("to", msg.To), zap.String("subject", msg.Subject), zap.Error(err))
		return Result{}, fmt.Errorf("resend send failed: %w", err)
	}
	d.logger.Info("email sent", zap.String("provider_id", sent.Id), zap.String("subject", msg.Subject))
	return Result{ProviderID: sent.Id, SentAt: time.Now()}, nil
}

// LogDispatcher only logs messages. Used when no provider key is configured.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher creates a dispatcher that writes emails to the log.
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDispatcher{logger: logger}
}

// Send logs msg and reports success.
func (d *LogDispatcher) Send(_ context.Context, msg Message) (Result, error) {
	d.logger.Info("email (not sent, no provider configured)",
		zap.String("to", msg.To), zap.String("subject", msg.Subject), zap.Int("body_bytes", len(msg.Markdown)))
	return Result{ProviderID: "log", SentAt: time.Now()}, nil
}
