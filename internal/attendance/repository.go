package attendance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexstream/backend/internal/models"
	"github.com/nexstream/backend/pkg/database"
)

// Repository handles watch-time increments and viewing_sessions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an attendance repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AddMinutes atomically increments minutes_watched. delta must be positive, so the
// column never decreases.
func (r *Repository) AddMinutes(ctx context.Context, registrationID uuid.UUID, delta float64, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE registrations SET minutes_watched = minutes_watched + $2, last_watched_at = $3, updated_at = NOW() WHERE id = $1`,
		registrationID, delta, at)
	if err != nil {
		return database.Translate(err, "accrue minutes")
	}
	if tag.RowsAffected() == 0 {
		return database.Translate(pgx.ErrNoRows, "accrue minutes")
	}
	return nil
}

// OpenSession inserts a row when a registered student opens the viewing page.
func (r *Repository) OpenSession(ctx context.Context, s *models.ViewingSessionLog) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO viewing_sessions (webinar_id, registration_id, user_id, joined_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		s.WebinarID, s.RegistrationID, s.UserID, s.JoinedAt).Scan(&s.ID)
	return database.Translate(err, "open viewing session")
}

// CloseSession stamps the leave time and the visible watch time of a session.
func (r *Repository) CloseSession(ctx context.Context, id uuid.UUID, leftAt time.Time, watchSeconds int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE viewing_sessions SET left_at = $2, watch_seconds = $3 WHERE id = $1 AND left_at IS NULL`,
		id, leftAt, watchSeconds)
	return database.Translate(err, "close viewing session")
}

// ListSessions returns viewing sessions of a webinar, most recent first.
func (r *Repository) ListSessions(ctx context.Context, webinarID uuid.UUID) ([]models.ViewingSessionLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, webinar_id, registration_id, user_id, joined_at, left_at, watch_seconds
		 FROM viewing_sessions WHERE webinar_id = $1 ORDER BY joined_at DESC`, webinarID)
	if err != nil {
		return nil, database.Translate(err, "list viewing sessions")
	}
	defer rows.Close()
	list := []models.ViewingSessionLog{}
	for rows.Next() {
		var s models.ViewingSessionLog
		if err := rows.Scan(&s.ID, &s.WebinarID, &s.RegistrationID, &s.UserID, &s.JoinedAt, &s.LeftAt, &s.WatchSeconds); err != nil {
			return nil, database.Translate(err, "list viewing sessions")
		}
		list = append(list, s)
	}
	return list, database.Translate(rows.Err(), "list viewing sessions")
}
