package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sliceit/internal/dbx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var QueryTimeoutDuration = time.Second * 5

type Store struct {
	q dbx.Querier
}

func NewStore(q dbx.Querier) *Store { return &Store{q: q} }

func (s *Store) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (uid, first_name, last_name, email, password, vpa)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	err := s.q.QueryRow(
		ctx, query, user.UID, user.FirstName, user.LastName, user.Email, user.Password.hash, user.VPA,
	).Scan(&user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) GetByUID(ctx context.Context, uid string) (*User, error) {
	query := `
		SELECT uid, first_name, last_name, email, password, vpa, created_at, updated_at
		FROM users WHERE uid = $1
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var u User
	err := s.q.QueryRow(ctx, query, uid).Scan(
		&u.UID, &u.FirstName, &u.LastName, &u.Email, &u.Password.hash, &u.VPA, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user %s: %w", uid, err)
	}
	return &u, nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT uid, first_name, last_name, email, password, vpa, created_at, updated_at
		FROM users WHERE email = $1
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var u User
	err := s.q.QueryRow(ctx, query, email).Scan(
		&u.UID, &u.FirstName, &u.LastName, &u.Email, &u.Password.hash, &u.VPA, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

// SetVPA links (or replaces) the user's payment address. In-flight
// transactions keep the address they snapshotted at creation.
func (s *Store) SetVPA(ctx context.Context, uid, vpa string) error {
	query := `UPDATE users SET vpa = $1, updated_at = now() WHERE uid = $2`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	cmd, err := s.q.Exec(ctx, query, vpa, uid)
	if err != nil {
		return fmt.Errorf("set vpa: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
