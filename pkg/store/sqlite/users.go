package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nstogner/glow/pkg/domain"
)

// --- UserStore ---

const userColumns = `email, name, skin_type, concerns, budget, gender, age, is_admin, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	u := &domain.User{}
	var concerns string
	if err := row.Scan(&u.Email, &u.Name, &u.SkinType, &concerns, &u.Budget, &u.Gender, &u.Age,
		&u.IsAdmin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if u.Concerns, err = decodeStrings(concerns); err != nil {
		return nil, fmt.Errorf("decoding concerns of user %s: %w", u.Email, err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *Store) GetUser(ctx context.Context, email string) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user", email)
	}
	return u, err
}

func (s *Store) UpsertUser(ctx context.Context, u *domain.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET
			name = excluded.name, skin_type = excluded.skin_type, concerns = excluded.concerns,
			budget = excluded.budget, gender = excluded.gender, age = excluded.age,
			is_admin = users.is_admin OR excluded.is_admin, updated_at = excluded.updated_at`,
		u.Email, u.Name, u.SkinType, stringList(u.Concerns), u.Budget, u.Gender, u.Age,
		u.IsAdmin, u.CreatedAt, u.UpdatedAt,
	)
	return err
}
