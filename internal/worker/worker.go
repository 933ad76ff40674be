// Package worker runs queued side effects of registration and certificate issuance.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nexstream/backend/internal/models"
	"github.com/nexstream/backend/internal/notify"
	"github.com/nexstream/backend/pkg/queue"
)

// Jobs is the queue the processor consumes.
type Jobs interface {
	Dequeue(ctx context.Context, queues ...string) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Certificates renders and stores certificate images.
type Certificates interface {
	Find(ctx context.Context, id string) (*models.IssuedCertificate, error)
	StoreImage(ctx context.Context, cert *models.IssuedCertificate) error
	VerifyURL(certID string) string
}

// EmailLog records delivery attempts.
type EmailLog interface {
	Create(ctx context.Context, el *models.EmailLog) error
	HasSent(ctx context.Context, registrationID uuid.UUID, emailType string) (bool, error)
}

// Processor handles certificate and email jobs.
type Processor struct {
	jobs   Jobs
	certs  Certificates
	mail   notify.Dispatcher
	log    EmailLog
	logger *zap.Logger
}

// NewProcessor creates a job processor.
func NewProcessor(jobs Jobs, certs Certificates, mail notify.Dispatcher, log EmailLog, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{jobs: jobs, certs: certs, mail: mail, log: log, logger: logger}
}

// Process executes one job. A returned error sends the job back for retry.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeCertificate:
		var payload queue.CertificatePayload
		if err := job.Decode(&payload); err != nil {
			return err
		}
		return p.processCertificate(ctx, payload)
	case queue.JobTypeEmail:
		var payload queue.EmailPayload
		if err := job.Decode(&payload); err != nil {
			return err
		}
		return p.deliver(ctx, payload)
	}
	return fmt.Errorf("unknown job type: %s", job.Type)
}

// processCertificate stores the image, then emails the id. Each step is skipped when already done.
func (p *Processor) processCertificate(ctx context.Context, payload queue.CertificatePayload) error {
	cert, err := p.certs.Find(ctx, payload.CertificateID)
	if err != nil {
		return fmt.Errorf("load certificate %s: %w", payload.CertificateID, err)
	}
	if err := p.certs.StoreImage(ctx, cert); err != nil {
		return fmt.Errorf("store certificate image: %w", err)
	}
	if cert.StudentEmail == "" {
		return nil
	}
	subject, body, err := notify.CertificateEmail(notify.CertificateData{
		StudentName:   cert.StudentName,
		CourseTitle:   cert.CourseTitle,
		HostName:      cert.HostName,
		CertificateID: cert.ID,
		IssuedOn:      cert.IssuedOn,
		VerifyURL:     p.certs.VerifyURL(cert.ID),
	})
	if err != nil {
		return err
	}
	return p.deliver(ctx, queue.EmailPayload{
		EmailType:      models.EmailTypeCertificate,
		WebinarID:      cert.WebinarID,
		RegistrationID: cert.RegistrationID,
		RecipientEmail: cert.StudentEmail,
		Subject:        subject,
		BodyMarkdown:   body,
	})
}

func (p *Processor) deliver(ctx context.Context, payload queue.EmailPayload) error {
	sent, err := p.log.HasSent(ctx, payload.RegistrationID, payload.EmailType)
	if err != nil {
		return err
	}
	if sent {
		p.logger.Debug("email already sent", zap.String("registration_id", payload.RegistrationID.String()), zap.String("type", payload.EmailType))
		return nil
	}

	webinarID, registrationID := payload.WebinarID, payload.RegistrationID
	entry := &models.EmailLog{
		WebinarID:      &webinarID,
		RegistrationID: &registrationID,
		EmailType:      payload.EmailType,
		RecipientEmail: payload.RecipientEmail,
		Subject:        payload.Subject,
	}
	res, sendErr := p.mail.Send(ctx, notify.Message{To: payload.RecipientEmail, Subject: payload.Subject, Markdown: payload.BodyMarkdown})
	if sendErr != nil {
		entry.Status = models.EmailLogStatusFailed
		entry.ErrorMessage = sendErr.Error()
	} else {
		entry.Status = models.EmailLogStatusSent
		entry.ProviderID = res.ProviderID
		entry.SentAt = &res.SentAt
	}
	if err := p.log.Create(ctx, entry); err != nil {
		p.logger.Error("email log write failed", zap.String("registration_id", registrationID.String()), zap.Error(err))
	}
	return sendErr
}

// Run dequeues and processes jobs until ctx is cancelled. Failed jobs are retried, then dead-lettered.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopping")
			return
		default:
		}

		job, _, err := p.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.pause(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.jobs.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.pause(ctx)
		}
	}
}

func (p *Processor) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(queue.RetryBackoff):
	}
}
