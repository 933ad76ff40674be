package certificates

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexstream/backend/internal/apperr"
	"github.com/nexstream/backend/internal/models"
	"github.com/nexstream/backend/internal/registrations"
	"github.com/nexstream/backend/pkg/database"
)

// MaxIDAttempts bounds the retries when a generated id is already taken.
const MaxIDAttempts = 5

// Repository handles certificate persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a certificate repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const certificateColumns = `id, registration_id, webinar_id, student_id, student_name, student_email, course_title,
	host_name, issued_on, image_key, created_at`

func scanCertificate(row pgx.Row) (*models.IssuedCertificate, error) {
	var c models.IssuedCertificate
	if err := row.Scan(&c.ID, &c.RegistrationID, &c.WebinarID, &c.StudentID, &c.StudentName, &c.StudentEmail,
		&c.CourseTitle, &c.HostName, &c.IssuedOn, &c.ImageKey, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByID returns a certificate by its public code.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.IssuedCertificate, error) {
	c, err := scanCertificate(r.pool.QueryRow(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE id = $1`, id))
	if err != nil {
		return nil, database.Translate(err, "get certificate")
	}
	return c, nil
}

// SetImageKey records the storage key of the rendered image.
func (r *Repository) SetImageKey(ctx context.Context, id, key string) error {
	_, err := r.pool.Exec(ctx, `UPDATE certificates SET image_key = $2 WHERE id = $1`, id, key)
	return database.Translate(err, "set certificate image")
}

// Issue creates the certificate and completes the registration in one transaction.
// The registration row is locked, so concurrent calls for the same registration serialize
// and the loser sees alreadyIssued.
func (r *Repository) Issue(ctx context.Context, p IssueParams) (*models.IssuedCertificate, bool, error) {
	var (
		out     *models.IssuedCertificate
		already bool
	)
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		reg, err := registrations.Scan(tx.QueryRow(ctx,
			`SELECT `+registrations.Columns+` FROM registrations WHERE id = $1 FOR UPDATE`, p.RegistrationID))
		if err != nil {
			return database.Translate(err, "lock registration")
		}
		if reg.Status == models.RegistrationCompleted && reg.CertificateID != nil {
			out, err = scanCertificate(tx.QueryRow(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE id = $1`, *reg.CertificateID))
			if err != nil {
				return database.Translate(err, "get certificate")
			}
			already = true
			return nil
		}
		if reg.MinutesWatched < p.RequiredMinutes {
			return apperr.InvalidState("watched %.1f of %.1f required minutes", reg.MinutesWatched, p.RequiredMinutes)
		}
		var hostName string
		if err := tx.QueryRow(ctx, `SELECT host_name FROM webinars WHERE id = $1`, reg.WebinarID).Scan(&hostName); err != nil {
			return database.Translate(err, "get webinar host")
		}

		cert := &models.IssuedCertificate{
			RegistrationID: reg.ID,
			WebinarID:      reg.WebinarID,
			StudentID:      reg.StudentID,
			StudentName:    reg.StudentName,
			StudentEmail:   reg.StudentEmail,
			CourseTitle:    reg.WebinarTitle,
			HostName:       hostName,
			IssuedOn:       p.IssuedOn,
		}
		if err := insertWithFreshID(ctx, tx, cert, p.NewID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE registrations SET status = 'completed', certificate_id = $2, completed_at = $3, updated_at = NOW() WHERE id = $1`,
			reg.ID, cert.ID, p.At); err != nil {
			return database.Translate(err, "complete registration")
		}
		out = cert
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, already, nil
}

// insertWithFreshID draws ids until one is free. ON CONFLICT on the id only, so a second
// certificate for the same registration still fails loudly.
func insertWithFreshID(ctx context.Context, tx pgx.Tx, cert *models.IssuedCertificate, newID func() (string, error)) error {
	const q = `INSERT INTO certificates (id, registration_id, webinar_id, student_id, student_name, student_email,
		course_title, host_name, issued_on)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at`
	for attempt := 0; attempt < MaxIDAttempts; attempt++ {
		id, err := newID()
		if err != nil {
			return apperr.Remote(err, "generate certificate id")
		}
		var createdAt time.Time
		err = tx.QueryRow(ctx, q, id, cert.RegistrationID, cert.WebinarID, cert.StudentID, cert.StudentName,
			cert.StudentEmail, cert.CourseTitle, cert.HostName, cert.IssuedOn).Scan(&createdAt)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return database.Translate(err, "insert certificate")
		}
		cert.ID = id
		cert.CreatedAt = createdAt
		return nil
	}
	return apperr.Remote(errors.New("certificate id space exhausted"), "insert certificate")
}
