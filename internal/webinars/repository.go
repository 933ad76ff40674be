package webinars

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexstream/backend/internal/models"
	"github.com/nexstream/backend/pkg/database"
)

// Repository handles webinar persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a webinar repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const webinarColumns = `id, title, category, description, syllabus, date, time, scheduled_at, price_cents, type,
	youtube_url, meeting_id, host_id, host_name, host_email, status, reviewed_by, reviewed_at, live_at, created_at, updated_at`

func scanWebinar(row pgx.Row) (*models.Webinar, error) {
	var w models.Webinar
	err := row.Scan(&w.ID, &w.Title, &w.Category, &w.Description, &w.Syllabus, &w.Date, &w.Time, &w.ScheduledAt,
		&w.PriceCents, &w.Type, &w.YouTubeURL, &w.MeetingID, &w.HostID, &w.HostName, &w.HostEmail, &w.Status,
		&w.ReviewedBy, &w.ReviewedAt, &w.LiveAt, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Create inserts a new webinar and fills its generated fields.
func (r *Repository) Create(ctx context.Context, w *models.Webinar) error {
	const q = `INSERT INTO webinars (title, category, description, syllabus, date, time, scheduled_at, price_cents, type,
		youtube_url, host_id, host_name, host_email, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, w.Title, w.Category, w.Description, w.Syllabus, w.Date, w.Time, w.ScheduledAt,
		w.PriceCents, string(w.Type), w.YouTubeURL, w.HostID, w.HostName, w.HostEmail, string(w.Status)).
		Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
	return database.Translate(err, "create webinar")
}

// GetByID returns a webinar by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Webinar, error) {
	w, err := scanWebinar(r.pool.QueryRow(ctx, `SELECT `+webinarColumns+` FROM webinars WHERE id = $1`, id))
	if err != nil {
		return nil, database.Translate(err, "get webinar")
	}
	return w, nil
}

// List returns webinars matching f, soonest first.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]models.Webinar, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		conds = append(conds, "status = ANY("+arg(statuses)+")")
	}
	if f.HostID != nil {
		conds = append(conds, "host_id = "+arg(*f.HostID))
	}
	if f.Category != "" {
		conds = append(conds, "category = "+arg(f.Category))
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		conds = append(conds, "(title ILIKE "+p+" OR host_name ILIKE "+p+")")
	}
	q := `SELECT ` + webinarColumns + ` FROM webinars`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY scheduled_at ASC, created_at ASC"

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, database.Translate(err, "list webinars")
	}
	defer rows.Close()

	list := []models.Webinar{}
	for rows.Next() {
		w, err := scanWebinar(rows)
		if err != nil {
			return nil, database.Translate(err, "list webinars")
		}
		list = append(list, *w)
	}
	return list, database.Translate(rows.Err(), "list webinars")
}

// Transition moves the webinar to `to` only if its current status is one of from.
// Returns ok=false when no row matched.
func (r *Repository) Transition(ctx context.Context, id uuid.UUID, from []models.WebinarStatus, to models.WebinarStatus, reviewer *uuid.UUID) (*models.Webinar, bool, error) {
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}
	const q = `UPDATE webinars
		SET status = $3,
			reviewed_by = COALESCE($4, reviewed_by),
			reviewed_at = CASE WHEN $4::uuid IS NULL THEN reviewed_at ELSE NOW() END,
			updated_at = NOW()
		WHERE id = $1 AND status = ANY($2)
		RETURNING ` + webinarColumns
	w, err := scanWebinar(r.pool.QueryRow(ctx, q, id, statuses, string(to), reviewer))
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, database.Translate(err, "transition webinar")
	}
	return w, true, nil
}

// GoLive marks the webinar live in native mode. The stored meeting id wins over meetingID,
// so a resumed session keeps its room.
func (r *Repository) GoLive(ctx context.Context, id uuid.UUID, meetingID string) (*models.Webinar, bool, error) {
	const q = `UPDATE webinars
		SET status = 'live',
			type = 'native',
			meeting_id = COALESCE(NULLIF(meeting_id, ''), $2),
			live_at = COALESCE(live_at, NOW()),
			updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'approved', 'live')
		RETURNING ` + webinarColumns
	w, err := scanWebinar(r.pool.QueryRow(ctx, q, id, meetingID))
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, database.Translate(err, "go live")
	}
	return w, true, nil
}

// UpdateContent applies host edits. Status fields are never touched here.
func (r *Repository) UpdateContent(ctx context.Context, w *models.Webinar) (*models.Webinar, error) {
	const q = `UPDATE webinars
		SET title = $2, category = $3, description = $4, syllabus = $5, date = $6, time = $7,
			scheduled_at = $8, price_cents = $9, youtube_url = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + webinarColumns
	out, err := scanWebinar(r.pool.QueryRow(ctx, q, w.ID, w.Title, w.Category, w.Description, w.Syllabus, w.Date, w.Time,
		w.ScheduledAt, w.PriceCents, w.YouTubeURL))
	if err != nil {
		return nil, database.Translate(err, "update webinar")
	}
	return out, nil
}

// Delete removes a webinar by ID.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM webinars WHERE id = $1`, id)
	if err != nil {
		return database.Translate(err, "delete webinar")
	}
	if tag.RowsAffected() == 0 {
		return database.Translate(pgx.ErrNoRows, "delete webinar")
	}
	return nil
}

// HasRegistrations reports whether any student registered for the webinar.
func (r *Repository) HasRegistrations(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM registrations WHERE webinar_id = $1)`, id).Scan(&exists)
	return exists, database.Translate(err, "count registrations")
}
