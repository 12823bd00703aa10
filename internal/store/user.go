package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"appointment-booking-api/internal/model"
)

const userColumns = `id, username, email, password_hash, full_name, role, is_active, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName, &u.Role, &u.IsActive, &u.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash, full_name, role, is_active)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 RETURNING id, created_at`,
		u.Username, u.Email, u.PasswordHash, u.FullName, u.Role, u.IsActive,
	).Scan(&u.ID, &u.CreatedAt)
	return mapErr(err)
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username).Scan(&ok)
	return ok, mapErr(err)
}

func (s *Store) EmailExists(ctx context.Context, email string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE lower(email) = lower($1))`, email).Scan(&ok)
	return ok, mapErr(err)
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, mapErr(err)
}
