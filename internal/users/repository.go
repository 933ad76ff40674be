package users

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexstream/backend/internal/models"
	"github.com/nexstream/backend/pkg/database"
)

// Repository handles user persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a user repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, password_hash, name, role, college, phone, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.Password, &u.Name, &u.Role, &u.College, &u.Phone, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, database.Translate(err, "get user")
	}
	return u, nil
}

// GetByEmail returns a user by (normalized) email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, database.Translate(err, "get user")
	}
	return u, nil
}

// CreateParams holds the fields captured at sign-up.
type CreateParams struct {
	Email        string
	PasswordHash string
	Name         string
	Role         models.Role
	College      string
	Phone        string
}

// Create inserts a new user. A taken email surfaces as a Duplicate error.
func (r *Repository) Create(ctx context.Context, p CreateParams) (*models.User, error) {
	const q = `INSERT INTO users (email, password_hash, name, role, college, phone)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + userColumns
	u, err := scanUser(r.pool.QueryRow(ctx, q, p.Email, p.PasswordHash, p.Name, string(p.Role), p.College, p.Phone))
	if err != nil {
		return nil, database.Translate(err, "create user")
	}
	return u, nil
}

// UpdateProfile changes the editable profile fields.
func (r *Repository) UpdateProfile(ctx context.Context, id uuid.UUID, name, college, phone string) (*models.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`UPDATE users SET name = $2, college = $3, phone = $4, updated_at = NOW() WHERE id = $1 RETURNING `+userColumns,
		id, name, college, phone))
	if err != nil {
		return nil, database.Translate(err, "update profile")
	}
	return u, nil
}

// SetRole changes a user's role by email. Used only by the operator CLI.
func (r *Repository) SetRole(ctx context.Context, email string, role models.Role) (*models.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`UPDATE users SET role = $2, updated_at = NOW() WHERE email = $1 RETURNING `+userColumns,
		email, string(role)))
	if err != nil {
		return nil, database.Translate(err, "set user role")
	}
	return u, nil
}

// List returns all users for admin listings.
func (r *Repository) List(ctx context.Context) ([]models.UserPublic, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY name, email`)
	if err != nil {
		return nil, database.Translate(err, "list users")
	}
	defer rows.Close()
	var list []models.UserPublic
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, database.Translate(err, "list users")
		}
		list = append(list, u.ToPublic())
	}
	return list, database.Translate(rows.Err(), "list users")
}
