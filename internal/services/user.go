package services

import (
	"context"
	"io"
	"time"

	"github.com/messagely/apiserver/internal/store"
	"github.com/messagely/apiserver/types"
	"github.com/sirupsen/logrus"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Register(ctx context.Context, user types.NewUser) (types.User, error)
	Authenticate(ctx context.Context, username, password string) (bool, error)
	UpdateLoginTimestamp(ctx context.Context, username string) (types.LoginStamp, error)
	All(ctx context.Context) ([]types.UserSummary, error)
	Get(ctx context.Context, username string) (types.User, error)
}

// EventPublisher receives account events. It may be nil.
type EventPublisher interface {
	PublishAccountEvent(ctx context.Context, event types.AccountEvent) error
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo   UserRepository
	events EventPublisher
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewUserService(repo UserRepository, events EventPublisher, log logrus.FieldLogger) *UserService {
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}
	return &UserService{repo: repo, events: events, log: log, now: time.Now}
}

// Register creates the account and announces it.
func (s *UserService) Register(ctx context.Context, user types.NewUser) (types.User, error) {
	created, err := s.repo.Register(ctx, user)
	if err != nil {
		return types.User{}, err
	}
	s.publish(ctx, types.AccountRegistered, created.Username)
	return created, nil
}

// Authenticate checks credentials without recording a login.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (bool, error) {
	return s.repo.Authenticate(ctx, username, password)
}

// Login checks credentials and, only when they match, records the login.
// Unknown users and wrong passwords both yield store.ErrInvalidCredentials.
func (s *UserService) Login(ctx context.Context, username, password string) (types.LoginStamp, error) {
	ok, err := s.repo.Authenticate(ctx, username, password)
	if err != nil {
		return types.LoginStamp{}, err
	}
	if !ok {
		return types.LoginStamp{}, store.ErrInvalidCredentials
	}
	stamp, err := s.repo.UpdateLoginTimestamp(ctx, username)
	if err != nil {
		return types.LoginStamp{}, err
	}
	s.publish(ctx, types.AccountLoggedIn, stamp.Username)
	return stamp, nil
}

func (s *UserService) UpdateLoginTimestamp(ctx context.Context, username string) (types.LoginStamp, error) {
	return s.repo.UpdateLoginTimestamp(ctx, username)
}

func (s *UserService) All(ctx context.Context) ([]types.UserSummary, error) {
	return s.repo.All(ctx)
}

func (s *UserService) Get(ctx context.Context, username string) (types.User, error) {
	return s.repo.Get(ctx, username)
}

// publish is best effort: the account change is already committed.
func (s *UserService) publish(ctx context.Context, kind types.AccountEventType, username string) {
	if s.events == nil {
		return
	}
	event := types.AccountEvent{Type: kind, Username: username, OccurredAt: s.now().UTC()}
	if err := s.events.PublishAccountEvent(ctx, event); err != nil {
		s.log.WithFields(logrus.Fields{
			"event":    kind,
			"username": username,
			"error":    err.Error(),
		}).Warn("account event not published")
	}
}
