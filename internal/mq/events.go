package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/messagely/apiserver/types"
)

// EventPublisher publishes account events as JSON onto a single channel.
// Events of one user share an ordering key.
type EventPublisher struct {
	mq      *MQ
	channel string
}

// NewEventPublisher constructs a publisher writing to channel.
func NewEventPublisher(mq *MQ, channel string) *EventPublisher {
	return &EventPublisher{mq: mq, channel: channel}
}

// PublishAccountEvent encodes and publishes event.
func (p *EventPublisher) PublishAccountEvent(ctx context.Context, event types.AccountEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode account event: %w", err)
	}
	_, err = p.mq.Publish(ctx, p.channel, data, map[string]string{
		AttrContentType: "application/json",
		AttrEventType:   string(event.Type),
		AttrOrderingKey: event.Username,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// SubscribeAccountEvents decodes every message on channel and passes it to fn.
// Messages that cannot be decoded are acknowledged and dropped.
func SubscribeAccountEvents(ctx context.Context, m *MQ, channel string, fn func(context.Context, types.AccountEvent) error, onInvalid func(Message, error)) error {
	return m.Subscribe(ctx, channel, func(ctx context.Context, msg Message) error {
		event, err := DecodeAccountEvent(msg)
		if err != nil {
			if onInvalid != nil {
				onInvalid(msg, err)
			}
			return nil
		}
		return fn(ctx, event)
	})
}

// DecodeAccountEvent parses a message published by EventPublisher.
func DecodeAccountEvent(msg Message) (types.AccountEvent, error) {
	var event types.AccountEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return types.AccountEvent{}, fmt.Errorf("decode account event: %w", err)
	}
	if event.Type == "" || event.Username == "" {
		return types.AccountEvent{}, errors.New("decode account event: missing type or username")
	}
	return event, nil
}
