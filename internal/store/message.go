package store

import (
	"context"
	"database/sql"

	"github.com/messagely/apiserver/types"
)

// MessageRepository provides read-only projections over messages.
// Messages whose counterpart user no longer exists are excluded by the inner join.
type MessageRepository struct {
	db Querier
}

func NewMessageRepository(db Querier) *MessageRepository {
	return &MessageRepository{db: db}
}

// From returns the messages sent by username with the recipient attached,
// oldest first. An unknown username yields an empty slice.
func (r *MessageRepository) From(ctx context.Context, username string) ([]types.SentMessage, error) {
	const query = `
		SELECT m.id,
			t.username,
			t.first_name,
			t.last_name,
			t.phone,
			m.body,
			m.sent_at,
			m.read_at
		FROM messages AS m
		JOIN users AS t ON m.to_username = t.username
		WHERE m.from_username = $1
		ORDER BY m.sent_at, m.id`
	rows, err := r.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	messages := make([]types.SentMessage, 0)
	for rows.Next() {
		var (
			msg    types.SentMessage
			readAt sql.NullTime
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.ToUser.Username,
			&msg.ToUser.FirstName,
			&msg.ToUser.LastName,
			&msg.ToUser.Phone,
			&msg.Body,
			&msg.SentAt,
			&readAt,
		); err != nil {
			return nil, classify(err)
		}
		msg.ReadAt = nullTime(readAt)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return messages, nil
}

// To returns the messages addressed to username with the sender attached,
// oldest first. An unknown username yields an empty slice.
func (r *MessageRepository) To(ctx context.Context, username string) ([]types.ReceivedMessage, error) {
	const query = `
		SELECT m.id,
			f.username,
			f.first_name,
			f.last_name,
			f.phone,
			m.body,
			m.sent_at,
			m.read_at
		FROM messages AS m
		JOIN users AS f ON m.from_username = f.username
		WHERE m.to_username = $1
		ORDER BY m.sent_at, m.id`
	rows, err := r.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	messages := make([]types.ReceivedMessage, 0)
	for rows.Next() {
		var (
			msg    types.ReceivedMessage
			readAt sql.NullTime
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.FromUser.Username,
			&msg.FromUser.FirstName,
			&msg.FromUser.LastName,
			&msg.FromUser.Phone,
			&msg.Body,
			&msg.SentAt,
			&readAt,
		); err != nil {
			return nil, classify(err)
		}
		msg.ReadAt = nullTime(readAt)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return messages, nil
}
