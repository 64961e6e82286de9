package services

import (
	"context"

	"github.com/messagely/apiserver/types"
)

// MessageRepository defines read operations for messages.
type MessageRepository interface {
	From(ctx context.Context, username string) ([]types.SentMessage, error)
	To(ctx context.Context, username string) ([]types.ReceivedMessage, error)
}

// MessageService exposes the message directory.
type MessageService struct {
	repo MessageRepository
}

func NewMessageService(repo MessageRepository) *MessageService {
	return &MessageService{repo: repo}
}

func (s *MessageService) From(ctx context.Context, username string) ([]types.SentMessage, error) {
	return s.repo.From(ctx, username)
}

func (s *MessageService) To(ctx context.Context, username string) ([]types.ReceivedMessage, error) {
	return s.repo.To(ctx, username)
}
