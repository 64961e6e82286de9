package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/messagely/apiserver/internal/auth"
	"github.com/messagely/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeHasher struct {
	err error
}

func (f fakeHasher) Hash(plaintext string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "hashed:" + plaintext, nil
}

func (f fakeHasher) Verify(plaintext, hash string) bool {
	return strings.TrimPrefix(hash, "hashed:") == plaintext && strings.HasPrefix(hash, "hashed:")
}

func newUserRepoWithMock(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewUserRepository(db, fakeHasher{}), mock
}

var registerColumns = []string{"username", "password", "first_name", "last_name", "phone", "join_at", "last_login_at"}

func TestRegister_Success(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)
	joined := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`(?s)^\s*INSERT\s+INTO\s+users\s*\(username,\s*password,\s*first_name,\s*last_name,\s*phone\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5\)\s*RETURNING`).
		WithArgs("alice", "hashed:secret", "Alice", "Liddell", "555-0100").
		WillReturnRows(sqlmock.NewRows(registerColumns).
			AddRow("alice", "hashed:secret", "Alice", "Liddell", "555-0100", joined, nil))

	user, err := repo.Register(context.Background(), types.NewUser{
		Username:  "alice",
		Password:  "secret",
		FirstName: "Alice",
		LastName:  "Liddell",
		Phone:     "555-0100",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "hashed:secret", user.PasswordHash)
	assert.Equal(t, "Alice", user.FirstName)
	assert.Equal(t, "Liddell", user.LastName)
	assert.Equal(t, "555-0100", user.Phone)
	assert.Equal(t, joined, user.JoinAt)
	assert.Nil(t, user.LastLoginAt)
}

func TestRegister_Duplicate(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_pkey"})

	_, err := repo.Register(context.Background(), types.NewUser{Username: "alice", Password: "secret"})
	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestRegister_RejectedValueIsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		err  *pq.Error
	}{
		{name: "character not in repertoire", err: &pq.Error{Code: "22021", Message: "invalid byte sequence for encoding \"UTF8\": 0x00"}},
		{name: "value too long", err: &pq.Error{Code: "22001", Message: "value too long for type character varying(20)"}},
		{name: "not null violation", err: &pq.Error{Code: "23502", Message: "null value in column \"phone\" violates not-null constraint"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newUserRepoWithMock(t)
			mock.ExpectQuery(`INSERT\s+INTO\s+users`).WillReturnError(tt.err)

			_, err := repo.Register(context.Background(), types.NewUser{Username: "alice", Password: "secret"})
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.NotErrorIs(t, err, ErrUnavailable)
			assert.NotErrorIs(t, err, ErrConflict)
		})
	}
}

func TestRegister_ConnectionFailureStaysUnavailable(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).
		WillReturnError(&pq.Error{Code: "57P01", Message: "terminating connection due to administrator command"})

	_, err := repo.Register(context.Background(), types.NewUser{Username: "alice", Password: "secret"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrInvalidInput)
}

func TestRegister_PasswordTooLongSkipsInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUserRepository(db, auth.NewBcryptHasher(bcrypt.MinCost))
	_, err = repo.Register(context.Background(), types.NewUser{
		Username: "alice",
		Password: strings.Repeat("p", auth.MaxPasswordBytes+1),
	})
	assert.ErrorIs(t, err, auth.ErrPasswordTooLong)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegister_DBError(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.Register(context.Background(), types.NewUser{Username: "alice", Password: "secret"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestRegister_HashErrorSkipsInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUserRepository(db, fakeHasher{err: errors.New("boom")})
	_, err = repo.Register(context.Background(), types.NewUser{Username: "alice", Password: "secret"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash password")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthenticate(t *testing.T) {
	const q = `(?s)^\s*SELECT\s+password\s+FROM\s+users\s+WHERE\s+username\s*=\s*\$1\s*$`

	tests := []struct {
		name     string
		username string
		password string
		setup    func(mock sqlmock.Sqlmock)
		want     bool
		wantErr  error
	}{
		{
			name:     "correct password",
			username: "alice",
			password: "secret",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(q).WithArgs("alice").
					WillReturnRows(sqlmock.NewRows([]string{"password"}).AddRow("hashed:secret"))
			},
			want: true,
		},
		{
			name:     "wrong password",
			username: "alice",
			password: "guess",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(q).WithArgs("alice").
					WillReturnRows(sqlmock.NewRows([]string{"password"}).AddRow("hashed:secret"))
			},
			want: false,
		},
		{
			name:     "unknown user",
			username: "ghost",
			password: "anything",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(q).WithArgs("ghost").WillReturnError(sql.ErrNoRows)
			},
			want: false,
		},
		{
			name:     "store failure",
			username: "alice",
			password: "secret",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(q).WithArgs("alice").WillReturnError(context.DeadlineExceeded)
			},
			wantErr: ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newUserRepoWithMock(t)
			tt.setup(mock)

			ok, err := repo.Authenticate(context.Background(), tt.username, tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.False(t, ok)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestUpdateLoginTimestamp_Success(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	mock.ExpectQuery(`(?s)^\s*UPDATE\s+users\s+SET\s+last_login_at\s*=\s*current_timestamp\s+WHERE\s+username\s*=\s*\$1\s+RETURNING\s+username,\s*last_login_at\s*$`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"username", "last_login_at"}).AddRow("alice", now))

	stamp, err := repo.UpdateLoginTimestamp(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, types.LoginStamp{Username: "alice", LastLoginAt: now}, stamp)
}

func TestUpdateLoginTimestamp_NotFound(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectQuery(`UPDATE\s+users`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"username", "last_login_at"}))

	_, err := repo.UpdateLoginTimestamp(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateLoginTimestamp_DBErrorIsNotNotFound(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectQuery(`UPDATE\s+users`).
		WithArgs("alice").
		WillReturnError(sql.ErrConnDone)

	_, err := repo.UpdateLoginTimestamp(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestAll(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectQuery(`(?s)^\s*SELECT\s+username,\s*first_name,\s*last_name\s+FROM\s+users\s+ORDER\s+BY\s+username\s*$`).
		WillReturnRows(sqlmock.NewRows([]string{"username", "first_name", "last_name"}).
			AddRow("alice", "Alice", "Liddell").
			AddRow("bob", "Bob", "Builder"))

	users, err := repo.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.UserSummary{
		{Username: "alice", FirstName: "Alice", LastName: "Liddell"},
		{Username: "bob", FirstName: "Bob", LastName: "Builder"},
	}, users)
}

func TestAll_Empty(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectQuery(`FROM\s+users`).
		WillReturnRows(sqlmock.NewRows([]string{"username", "first_name", "last_name"}))

	users, err := repo.All(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)
}

func TestAll_RowError(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectQuery(`FROM\s+users`).
		WillReturnRows(sqlmock.NewRows([]string{"username", "first_name", "last_name"}).
			AddRow("alice", "Alice", "Liddell").
			RowError(0, errors.New("broken pipe")))

	_, err := repo.All(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGet_Found(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)
	joined := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	lastLogin := joined.Add(time.Hour)

	mock.ExpectQuery(`(?s)^\s*SELECT\s+username,\s*first_name,\s*last_name,\s*phone,\s*join_at,\s*last_login_at\s+FROM\s+users\s+WHERE\s+username\s*=\s*\$1\s*$`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"username", "first_name", "last_name", "phone", "join_at", "last_login_at"}).
			AddRow("alice", "Alice", "Liddell", "555-0100", joined, lastLogin))

	user, err := repo.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "555-0100", user.Phone)
	assert.Equal(t, joined, user.JoinAt)
	require.NotNil(t, user.LastLoginAt)
	assert.Equal(t, lastLogin, *user.LastLoginAt)
	assert.Empty(t, user.PasswordHash)
}

func TestGet_NotFound(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectQuery(`FROM\s+users`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}
