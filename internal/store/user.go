package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/messagely/apiserver/types"
)

// UserRepository handles persistence and credential checks for users.
// It is the only component that reads password hashes.
type UserRepository struct {
	db     Querier
	hasher PasswordHasher
}

func NewUserRepository(db Querier, hasher PasswordHasher) *UserRepository {
	return &UserRepository{db: db, hasher: hasher}
}

// Register hashes the password and inserts the user in a single statement.
// A duplicate username yields ErrConflict.
func (r *UserRepository) Register(ctx context.Context, in types.NewUser) (types.User, error) {
	hashed, err := r.hasher.Hash(in.Password)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	const query = `
		INSERT INTO users (username, password, first_name, last_name, phone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING username, password, first_name, last_name, phone, join_at, last_login_at`
	var (
		user      types.User
		lastLogin sql.NullTime
	)
	err = r.db.QueryRowContext(
		ctx,
		query,
		in.Username,
		hashed,
		in.FirstName,
		in.LastName,
		in.Phone,
	).Scan(
		&user.Username,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Phone,
		&user.JoinAt,
		&lastLogin,
	)
	if err != nil {
		return types.User{}, classify(err)
	}
	user.LastLoginAt = nullTime(lastLogin)
	return user, nil
}

// Authenticate reports whether password matches the stored hash for username.
// An unknown username and a wrong password both return false with a nil error.
func (r *UserRepository) Authenticate(ctx context.Context, username, password string) (bool, error) {
	const query = `
		SELECT password
		FROM users
		WHERE username = $1`
	var hash string
	err := r.db.QueryRowContext(ctx, query, username).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, classify(err)
	}
	return r.hasher.Verify(password, hash), nil
}

// UpdateLoginTimestamp sets last_login_at to now and returns the stored value.
func (r *UserRepository) UpdateLoginTimestamp(ctx context.Context, username string) (types.LoginStamp, error) {
	const query = `
		UPDATE users
		SET last_login_at = current_timestamp
		WHERE username = $1
		RETURNING username, last_login_at`
	var stamp types.LoginStamp
	err := r.db.QueryRowContext(ctx, query, username).Scan(&stamp.Username, &stamp.LastLoginAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.LoginStamp{}, fmt.Errorf("user %q: %w", username, ErrNotFound)
		}
		return types.LoginStamp{}, classify(err)
	}
	return stamp, nil
}

// All returns a summary of every user ordered by username.
func (r *UserRepository) All(ctx context.Context) ([]types.UserSummary, error) {
	const query = `
		SELECT username, first_name, last_name
		FROM users
		ORDER BY username`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	users := make([]types.UserSummary, 0)
	for rows.Next() {
		var user types.UserSummary
		if err := rows.Scan(&user.Username, &user.FirstName, &user.LastName); err != nil {
			return nil, classify(err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return users, nil
}

// Get returns the public record of a single user. The hash is not loaded.
func (r *UserRepository) Get(ctx context.Context, username string) (types.User, error) {
	const query = `
		SELECT username, first_name, last_name, phone, join_at, last_login_at
		FROM users
		WHERE username = $1`
	var (
		user      types.User
		lastLogin sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.Phone,
		&user.JoinAt,
		&lastLogin,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, fmt.Errorf("user %q: %w", username, ErrNotFound)
		}
		return types.User{}, classify(err)
	}
	user.LastLoginAt = nullTime(lastLogin)
	return user, nil
}
