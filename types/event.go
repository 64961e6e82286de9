package types

import "time"

// AccountEventType names what happened to an account.
type AccountEventType string

const (
	AccountRegistered AccountEventType = "account.registered"
	AccountLoggedIn   AccountEventType = "account.logged_in"
)

// AccountEvent is published to the message broker after account changes.
type AccountEvent struct {
	Type       AccountEventType `json:"type"`
	Username   string           `json:"username"`
	OccurredAt time.Time        `json:"occurred_at"`
}
