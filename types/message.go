package types

import "time"

// Contact is the public projection of the user on the other end of a message.
type Contact struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// SentMessage is a message as seen by its sender.
type SentMessage struct {
	ID     int        `json:"id"`
	ToUser Contact    `json:"to_user"`
	Body   string     `json:"body"`
	SentAt time.Time  `json:"sent_at"`
	ReadAt *time.Time `json:"read_at"`
}

// ReceivedMessage is a message as seen by its recipient.
type ReceivedMessage struct {
	ID       int        `json:"id"`
	FromUser Contact    `json:"from_user"`
	Body     string     `json:"body"`
	SentAt   time.Time  `json:"sent_at"`
	ReadAt   *time.Time `json:"read_at"`
}
