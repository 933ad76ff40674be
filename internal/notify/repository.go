package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexstream/backend/internal/models"
	"github.com/nexstream/backend/pkg/database"
)

// Repository handles email_logs persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an email logs repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create records one send attempt.
func (r *Repository) Create(ctx context.Context, el *models.EmailLog) error {
	const q = `INSERT INTO email_logs (webinar_id, registration_id, email_type, recipient_email, subject, status, provider_id, sent_at, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, q, el.WebinarID, el.RegistrationID, el.EmailType, el.RecipientEmail, el.Subject,
		el.Status, el.ProviderID, el.SentAt, el.ErrorMessage).Scan(&el.ID, &el.CreatedAt)
	return database.Translate(err, "create email log")
}

// HasSent reports whether an email of emailType was already delivered for the registration.
func (r *Repository) HasSent(ctx context.Context, registrationID uuid.UUID, emailType string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM email_logs WHERE registration_id = $1 AND email_type = $2 AND status = 'sent')`,
		registrationID, emailType).Scan(&exists)
	return exists, database.Translate(err, "check email log")
}

// ListByWebinar returns email logs for a webinar, newest first.
func (r *Repository) ListByWebinar(ctx context.Context, webinarID uuid.UUID) ([]models.EmailLog, error) {
	const q = `SELECT id, webinar_id, registration_id, email_type, recipient_email, subject, status, provider_id, sent_at, error_message, created_at
		FROM email_logs
		WHERE webinar_id = $1
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, webinarID)
	if err != nil {
		return nil, database.Translate(err, "list email logs")
	}
	defer rows.Close()
	list := []models.EmailLog{}
	for rows.Next() {
		var el models.EmailLog
		if err := rows.Scan(&el.ID, &el.WebinarID, &el.RegistrationID, &el.EmailType, &el.RecipientEmail, &el.Subject,
			&el.Status, &el.ProviderID, &el.SentAt, &el.ErrorMessage, &el.CreatedAt); err != nil {
			return nil, database.Translate(err, "list email logs")
		}
		list = append(list, el)
	}
	return list, database.Translate(rows.Err(), "list email logs")
}
