package registrations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexstream/backend/internal/models"
	"github.com/nexstream/backend/pkg/database"
)

// Repository handles registration persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a registrations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Columns is the select list understood by Scan. Exported for packages that read
// registrations inside their own transactions.
const Columns = `id, webinar_id, webinar_title, student_id, student_name, student_email, student_phone,
	minutes_watched, status, certificate_id, registered_at, last_watched_at, completed_at, updated_at`

// Scan reads one registration row selected with Columns.
func Scan(row pgx.Row) (*models.Registration, error) {
	var reg models.Registration
	err := row.Scan(&reg.ID, &reg.WebinarID, &reg.WebinarTitle, &reg.StudentID, &reg.StudentName, &reg.StudentEmail,
		&reg.StudentPhone, &reg.MinutesWatched, &reg.Status, &reg.CertificateID, &reg.RegisteredAt, &reg.LastWatchedAt,
		&reg.CompletedAt, &reg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// Create inserts a registration. The (student_id, webinar_id) unique key turns a concurrent
// duplicate into a Duplicate error.
func (r *Repository) Create(ctx context.Context, reg *models.Registration) error {
	const q = `INSERT INTO registrations (webinar_id, webinar_title, student_id, student_name, student_email, student_phone)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + Columns
	out, err := Scan(r.pool.QueryRow(ctx, q, reg.WebinarID, reg.WebinarTitle, reg.StudentID, reg.StudentName, reg.StudentEmail, reg.StudentPhone))
	if err != nil {
		return database.Translate(err, "create registration")
	}
	*reg = *out
	return nil
}

// GetByID returns a registration by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	reg, err := Scan(r.pool.QueryRow(ctx, `SELECT `+Columns+` FROM registrations WHERE id = $1`, id))
	if err != nil {
		return nil, database.Translate(err, "get registration")
	}
	return reg, nil
}

// GetByStudentAndWebinar returns the registration for the pair.
func (r *Repository) GetByStudentAndWebinar(ctx context.Context, studentID, webinarID uuid.UUID) (*models.Registration, error) {
	reg, err := Scan(r.pool.QueryRow(ctx,
		`SELECT `+Columns+` FROM registrations WHERE student_id = $1 AND webinar_id = $2`, studentID, webinarID))
	if err != nil {
		return nil, database.Translate(err, "get registration")
	}
	return reg, nil
}

func (r *Repository) list(ctx context.Context, q string, args ...interface{}) ([]models.Registration, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, database.Translate(err, "list registrations")
	}
	defer rows.Close()
	list := []models.Registration{}
	for rows.Next() {
		reg, err := Scan(rows)
		if err != nil {
			return nil, database.Translate(err, "list registrations")
		}
		list = append(list, *reg)
	}
	return list, database.Translate(rows.Err(), "list registrations")
}

// ListByStudent returns a student's registrations, newest first.
func (r *Repository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]models.Registration, error) {
	return r.list(ctx, `SELECT `+Columns+` FROM registrations WHERE student_id = $1 ORDER BY registered_at DESC`, studentID)
}

// ListByWebinar returns all registrations for a webinar.
func (r *Repository) ListByWebinar(ctx context.Context, webinarID uuid.UUID) ([]models.Registration, error) {
	return r.list(ctx, `SELECT `+Columns+` FROM registrations WHERE webinar_id = $1 ORDER BY registered_at ASC`, webinarID)
}

// StatsByWebinar returns totals for the host dashboard.
func (r *Repository) StatsByWebinar(ctx context.Context, webinarID uuid.UUID) (models.RegistrationStats, error) {
	const q = `SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'completed'), COALESCE(AVG(minutes_watched), 0)
		FROM registrations WHERE webinar_id = $1`
	var s models.RegistrationStats
	err := r.pool.QueryRow(ctx, q, webinarID).Scan(&s.Total, &s.Completed, &s.AvgMinutesWatched)
	return s, database.Translate(err, "registration stats")
}

// ListPastWebinars returns webinars the student registered for that were scheduled before `before`.
func (r *Repository) ListPastWebinars(ctx context.Context, studentID uuid.UUID, before time.Time) ([]models.Webinar, error) {
	const q = `SELECT w.id, w.title, w.category, w.date, w.time, w.scheduled_at, w.type, w.youtube_url, w.host_id, w.host_name, w.status
		FROM registrations r JOIN webinars w ON w.id = r.webinar_id
		WHERE r.student_id = $1 AND w.scheduled_at < $2
		ORDER BY w.scheduled_at DESC`
	rows, err := r.pool.Query(ctx, q, studentID, before)
	if err != nil {
		return nil, database.Translate(err, "list past webinars")
	}
	defer rows.Close()
	list := []models.Webinar{}
	for rows.Next() {
		var w models.Webinar
		if err := rows.Scan(&w.ID, &w.Title, &w.Category, &w.Date, &w.Time, &w.ScheduledAt, &w.Type, &w.YouTubeURL,
			&w.HostID, &w.HostName, &w.Status); err != nil {
			return nil, database.Translate(err, "list past webinars")
		}
		list = append(list, w)
	}
	return list, database.Translate(rows.Err(), "list past webinars")
}
