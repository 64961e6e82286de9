package types

import "time"

// User represents an account in the system.
// It contains identity, contact details and login metadata.
type User struct {
	// Username is the unique, immutable login name chosen by the user.
	Username string `json:"username" db:"username"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password"`

	// FirstName is the user's given name.
	FirstName string `json:"first_name" db:"first_name"`

	// LastName is the user's family name.
	LastName string `json:"last_name" db:"last_name"`

	// Phone is the user's contact number.
	Phone string `json:"phone" db:"phone"`

	// JoinAt is the timestamp when the account was registered.
	JoinAt time.Time `json:"join_at" db:"join_at"`

	// LastLoginAt is the timestamp of the most recent successful login,
	// nil if the user never logged in.
	LastLoginAt *time.Time `json:"last_login_at" db:"last_login_at"`
}

// NewUser carries the fields accepted at registration.
// Password is plaintext and is hashed before it reaches the database.
type NewUser struct {
	Username  string `json:"username"`
	Password  string `json:"-"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// UserSummary is the list projection of a user.
type UserSummary struct {
	Username  string `json:"username" db:"username"`
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`
}

// LoginStamp is the result of recording a successful login.
type LoginStamp struct {
	Username    string    `json:"username" db:"username"`
	LastLoginAt time.Time `json:"last_login_at" db:"last_login_at"`
}
