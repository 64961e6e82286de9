package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/messagely/apiserver/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

const appID = "messagely"

// RabbitMQClient wraps a RabbitMQ connection/channel pair. Channels map to
// queues on the default exchange.
type RabbitMQClient struct {
	conn            *amqp.Connection
	channel         *amqp.Channel
	queueDurable    bool
	queueAutoDelete bool
	prefetchCount   int
}

// NewRabbitMQClient constructs a RabbitMQ client from config.
func NewRabbitMQClient(cfg config.RabbitMQConfig) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if cfg.PrefetchCount > 0 {
		if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, err
		}
	}

	return &RabbitMQClient{
		conn:            conn,
		channel:         ch,
		queueDurable:    cfg.QueueDurable,
		queueAutoDelete: cfg.QueueAutoDelete,
		prefetchCount:   cfg.PrefetchCount,
	}, nil
}

// Publish sends a message to the named queue.
func (r *RabbitMQClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("rabbitmq channel is required")
	}

	if _, err := r.declareQueue(channel); err != nil {
		return "", err
	}

	publishing := newPublishing(data, attrs, r.queueDurable)
	if err := r.channel.PublishWithContext(ctx, "", channel, false, false, publishing); err != nil {
		return "", err
	}
	return publishing.MessageId, nil
}

// Subscribe consumes messages from the named queue. A delivery that fails
// after it was already redelivered is rejected without requeue, which sends
// it to the queue's dead-letter exchange when one is configured.
func (r *RabbitMQClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("rabbitmq channel is required")
	}

	if _, err := r.declareQueue(channel); err != nil {
		return err
	}

	tag := consumerTag(channel)
	deliveries, err := r.channel.Consume(channel, tag, false, false, false, false, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = r.channel.Cancel(tag, false)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			if err := settleDelivery(delivery, handler(ctx, deliveryToMessage(delivery))); err != nil {
				return fmt.Errorf("settle delivery %s: %w", delivery.MessageId, err)
			}
		}
	}
}

// Close closes the underlying channel and connection.
func (r *RabbitMQClient) Close() error {
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func (r *RabbitMQClient) declareQueue(name string) (amqp.Queue, error) {
	return r.channel.QueueDeclare(
		name,
		r.queueDurable,
		r.queueAutoDelete,
		false,
		false,
		nil,
	)
}

// newPublishing maps attributes onto AMQP properties. Content type and event
// type travel as properties, everything else as headers.
func newPublishing(data []byte, attrs map[string]string, durable bool) amqp.Publishing {
	headers := amqp.Table{}
	for key, value := range attrs {
		if key == AttrContentType || key == AttrEventType {
			continue
		}
		headers[key] = value
	}
	return amqp.Publishing{
		ContentType:  contentType(attrs),
		DeliveryMode: deliveryMode(durable),
		MessageId:    newMessageID(),
		Type:         attrs[AttrEventType],
		Timestamp:    time.Now().UTC(),
		AppId:        appID,
		Headers:      headers,
		Body:         data,
	}
}

// deliveryToMessage is the inverse of newPublishing.
func deliveryToMessage(d amqp.Delivery) Message {
	attrs := headersToAttributes(d.Headers)
	if attrs == nil {
		attrs = make(map[string]string, 2)
	}
	if d.ContentType != "" {
		attrs[AttrContentType] = d.ContentType
	}
	if d.Type != "" {
		attrs[AttrEventType] = d.Type
	}
	return Message{
		ID:          d.MessageId,
		Data:        d.Body,
		Attributes:  attrs,
		Redelivered: d.Redelivered,
	}
}

func settleDelivery(d amqp.Delivery, handlerErr error) error {
	switch settle(handlerErr, d.Redelivered) {
	case outcomeAck:
		return d.Ack(false)
	case outcomeRequeue:
		return d.Nack(false, true)
	default:
		return d.Reject(false)
	}
}

func consumerTag(channel string) string {
	return fmt.Sprintf("%s-%s-%s", appID, channel, newMessageID())
}

func headersToAttributes(headers amqp.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for key, value := range headers {
		switch typed := value.(type) {
		case string:
			attrs[key] = typed
		case []byte:
			attrs[key] = string(typed)
		default:
			attrs[key] = fmt.Sprint(value)
		}
	}
	return attrs
}

func deliveryMode(durable bool) uint8 {
	if durable {
		return amqp.Persistent
	}
	return amqp.Transient
}

func contentType(attrs map[string]string) string {
	if value, ok := attrs[AttrContentType]; ok && value != "" {
		return value
	}
	return "application/octet-stream"
}

func newMessageID() string {
	return uuid.NewString()
}
