package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

const memoryQueueSize = 256

// ErrQueueFull is returned by Memory.Publish when a channel's buffer holds
// memoryQueueSize undelivered messages.
var ErrQueueFull = errors.New("memory queue full")

// Memory is an in-process backend. Each channel is a buffered queue shared by
// every subscriber of that channel, so each message is delivered once.
type Memory struct {
	mu     sync.Mutex
	queues map[string]chan Message
	done   chan struct{}
	closed bool
}

// NewMemory constructs an empty in-process backend.
func NewMemory() *Memory {
	return &Memory{
		queues: make(map[string]chan Message),
		done:   make(chan struct{}),
	}
}

// Publish enqueues a message on the named channel. It never waits for a
// subscriber: a full queue drops the message and returns ErrQueueFull.
func (m *Memory) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("memory channel is required")
	}
	queue, err := m.queue(channel)
	if err != nil {
		return "", err
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	msg := Message{ID: newMessageID(), Data: data, Attributes: attrs}
	select {
	case <-m.done:
		return "", errors.New("memory backend closed")
	default:
	}
	select {
	case queue <- msg:
		return msg.ID, nil
	default:
		return "", fmt.Errorf("channel %q: %w", channel, ErrQueueFull)
	}
}

// Subscribe delivers messages from the named channel until ctx is done or the
// backend is closed. A handler error puts the message back on the queue once.
func (m *Memory) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("memory channel is required")
	}
	queue, err := m.queue(channel)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.done:
			return errors.New("memory backend closed")
		case msg := <-queue:
			if settle(handler(ctx, msg), msg.Redelivered) == outcomeRequeue {
				msg.Redelivered = true
				select {
				case queue <- msg:
				default:
				}
			}
		}
	}
}

// Close stops all subscribers and rejects further publishes.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

func (m *Memory) queue(name string) (chan Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("memory backend closed")
	}
	queue, ok := m.queues[name]
	if !ok {
		queue = make(chan Message, memoryQueueSize)
		m.queues[name] = queue
	}
	return queue, nil
}
