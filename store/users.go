package store

import (
	"context"
	"strings"

	"acro-shop/model"
)

const userColumns = `id, email, password_hash, first_name, last_name, phone, role, is_active, created_at`

// CreateUser inserts u; a taken email yields ErrConflict.
func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(u.Email)
	err := s.DB.QueryRowxContext(ctx,
		`INSERT INTO users (email, password_hash, first_name, last_name, phone, role, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`,
		u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Phone, u.Role, u.IsActive,
	).Scan(&u.ID, &u.CreatedAt)
	return translate(err)
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (model.User, error) {
	var u model.User
	err := s.DB.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return u, translate(err)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	var u model.User
	err := s.DB.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email))
	return u, translate(err)
}
