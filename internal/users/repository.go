package users

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-access/internal/platform/db"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

const userColumns = `id, email, first_name, last_name, tel, home_structure_id, blocked, created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

// Insert creates a user row.
func (r *Repository) Insert(ctx context.Context, u User) (User, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO users (email, first_name, last_name, tel, home_structure_id)
VALUES ($1, $2, $3, $4, $5) RETURNING `+userColumns, u.Email, u.FirstName, u.LastName, u.Tel, u.HomeStructureID)
	out, err := scanUser(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return User{}, fmt.Errorf("users: email %s: %w", u.Email, shared.ErrDuplicateCode)
		}
		return User{}, err
	}
	return out, nil
}

// Get fetches a user by id.
func (r *Repository) Get(ctx context.Context, id int64) (User, error) {
	out, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return User{}, fmt.Errorf("users: %d: %w", id, shared.ErrNotFound)
		}
		return User{}, err
	}
	return out, nil
}

// List returns all users.
func (r *Repository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SetBlocked updates the blocked flag.
func (r *Repository) SetBlocked(ctx context.Context, id int64, blocked bool) (User, error) {
	out, err := scanUser(r.pool.QueryRow(ctx, `UPDATE users SET blocked = $2, updated_at = NOW() WHERE id = $1 RETURNING `+userColumns, id, blocked))
	if err != nil {
		if db.IsNoRows(err) {
			return User{}, fmt.Errorf("users: %d: %w", id, shared.ErrNotFound)
		}
		return User{}, err
	}
	return out, nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Tel, &u.HomeStructureID, &u.Blocked, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}
