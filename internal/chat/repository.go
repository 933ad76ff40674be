package chat

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexstream/backend/internal/models"
	"github.com/nexstream/backend/pkg/database"
)

// Repository handles chat_messages and pinned_messages.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a chat repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append stores a message and fills its id, sequence and timestamp.
func (r *Repository) Append(ctx context.Context, m *models.ChatMessage) error {
	const q = `INSERT INTO chat_messages (webinar_id, author_id, author_name, author_role, text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, seq`
	err := r.pool.QueryRow(ctx, q, m.WebinarID, m.AuthorID, m.AuthorName, string(m.AuthorRole), m.Text, m.CreatedAt).
		Scan(&m.ID, &m.Seq)
	return database.Translate(err, "append chat message")
}

// List returns a webinar's messages by timestamp, ties broken by insertion order.
func (r *Repository) List(ctx context.Context, webinarID uuid.UUID) ([]models.ChatMessage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, webinar_id, seq, author_id, author_name, author_role, text, created_at
		 FROM chat_messages WHERE webinar_id = $1 ORDER BY created_at ASC, seq ASC`, webinarID)
	if err != nil {
		return nil, database.Translate(err, "list chat messages")
	}
	defer rows.Close()
	list := []models.ChatMessage{}
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.WebinarID, &m.Seq, &m.AuthorID, &m.AuthorName, &m.AuthorRole, &m.Text, &m.CreatedAt); err != nil {
			return nil, database.Translate(err, "list chat messages")
		}
		list = append(list, m)
	}
	return list, database.Translate(rows.Err(), "list chat messages")
}

// Delete hard-removes one message of the webinar.
func (r *Repository) Delete(ctx context.Context, webinarID, messageID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM chat_messages WHERE id = $1 AND webinar_id = $2`, messageID, webinarID)
	if err != nil {
		return database.Translate(err, "delete chat message")
	}
	if tag.RowsAffected() == 0 {
		return database.Translate(pgx.ErrNoRows, "delete chat message")
	}
	return nil
}

// Pin overwrites the webinar's pinned slot.
func (r *Repository) Pin(ctx context.Context, p *models.PinnedMessage) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO pinned_messages (webinar_id, text, pinned_by, pinned_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (webinar_id) DO UPDATE SET text = EXCLUDED.text, pinned_by = EXCLUDED.pinned_by, pinned_at = EXCLUDED.pinned_at`,
		p.WebinarID, p.Text, p.PinnedBy, p.PinnedAt)
	return database.Translate(err, "pin message")
}

// Unpin clears the slot. Clearing an empty slot is not an error.
func (r *Repository) Unpin(ctx context.Context, webinarID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM pinned_messages WHERE webinar_id = $1`, webinarID)
	return database.Translate(err, "unpin message")
}

// Pinned returns the pinned message, or nil when the slot is empty.
func (r *Repository) Pinned(ctx context.Context, webinarID uuid.UUID) (*models.PinnedMessage, error) {
	var p models.PinnedMessage
	err := r.pool.QueryRow(ctx,
		`SELECT webinar_id, text, pinned_by, pinned_at FROM pinned_messages WHERE webinar_id = $1`, webinarID).
		Scan(&p.WebinarID, &p.Text, &p.PinnedBy, &p.PinnedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, database.Translate(err, "get pinned message")
	}
	return &p, nil
}
