package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueCertificates is the Redis list key for certificate render/upload/email jobs.
	QueueCertificates = "worker:certificates"
	// QueueEmails is the Redis list key for email jobs.
	QueueEmails = "worker:emails"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeCertificate JobType = "certificate"
	JobTypeEmail       JobType = "email"
)

// queueFor maps a job type to the list it is consumed from.
var queueFor = map[JobType]string{
	JobTypeCertificate: QueueCertificates,
	JobTypeEmail:       QueueEmails,
}

// CertificatePayload is the payload for certificate jobs.
type CertificatePayload struct {
	CertificateID  string    `json:"certificate_id"`
	RegistrationID uuid.UUID `json:"registration_id"`
	WebinarID      uuid.UUID `json:"webinar_id"`
}

// EmailPayload is the payload for email jobs.
type EmailPayload struct {
	EmailType      string    `json:"email_type"`
	WebinarID      uuid.UUID `json:"webinar_id"`
	RegistrationID uuid.UUID `json:"registration_id"`
	RecipientEmail string    `json:"recipient_email"`
	Subject        string    `json:"subject"`
	BodyMarkdown   string    `json:"body_markdown"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis lists.
type Queue struct {
	client redis.Cmdable
	prefix string
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue. prefix namespaces the list keys.
func NewQueue(client redis.Cmdable, prefix string, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, prefix: prefix, logger: logger}
}

func (q *Queue) key(name string) string { return q.prefix + name }

// EnqueueCertificate enqueues a certificate render/upload/email job.
func (q *Queue) EnqueueCertificate(ctx context.Context, payload CertificatePayload) error {
	job, err := q.enqueue(ctx, JobTypeCertificate, payload)
	if err != nil {
		return err
	}
	q.logger.Debug("enqueued certificate job", zap.String("job_id", job.ID), zap.String("certificate_id", payload.CertificateID))
	return nil
}

// EnqueueEmail enqueues an email job.
func (q *Queue) EnqueueEmail(ctx context.Context, payload EmailPayload) error {
	job, err := q.enqueue(ctx, JobTypeEmail, payload)
	if err != nil {
		return err
	}
	q.logger.Debug("enqueued email job", zap.String("job_id", job.ID), zap.String("email_type", payload.EmailType))
	return nil
}

func (q *Queue) enqueue(ctx context.Context, typ JobType, payload interface{}) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	job := &Job{
		ID:        uuid.New().String(),
		Type:      typ,
		Payload:   body,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, q.key(queueFor[typ]), raw).Err(); err != nil {
		return nil, fmt.Errorf("rpush: %w", err)
	}
	return job, nil
}

// Dequeue blocks until a job is available on any of the given queues (all queues when none
// are given) or ctx is done. Returns job and key (queue name).
func (q *Queue) Dequeue(ctx context.Context, queues ...string) (*Job, string, error) {
	if len(queues) == 0 {
		queues = []string{QueueCertificates, QueueEmails}
	}
	keys := make([]string, len(queues))
	for i, name := range queues {
		keys[i] = q.key(name)
	}
	result, err := q.client.BLPop(ctx, 5*time.Second, keys...).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, "", nil
		}
		return nil, "", err
	}
	if len(result) < 2 {
		return nil, "", nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, "", nil
	}
	return &job, result[0], nil
}

// Retry re-enqueues a job on its own queue with incremented attempt. If attempt >= MaxRetries,
// pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	target, ok := queueFor[job.Type]
	if !ok || job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, q.key(QueueDLQ), raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.client.RPush(ctx, q.key(target), raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v interface{}) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", j.Type, err)
	}
	return nil
}
