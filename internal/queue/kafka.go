// Package queue moves work items through Kafka.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/segmentio/kafka-go"

	"productimages/internal/logger"
)

// Publisher is the send side used by request handlers.
type Publisher interface {
	Publish(ctx context.Context, key string, v any) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	w messageWriter
}

func NewProducer(broker, topic string) *Producer {
	return &Producer{w: kafka.NewWriter(kafka.WriterConfig{
		Brokers: []string{broker},
		Topic:   topic,
	})}
}

// Publish sends v as a JSON message keyed by key.
func (p *Producer) Publish(ctx context.Context, key string, v any) error {
	const op = "queue.Publish"

	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s: encode: %w", op, err)
	}
	if err := p.w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: body}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.w.Close()
}

// Reader is the receive side of a topic.
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

func NewReader(broker, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{broker},
		Topic:   topic,
		GroupID: group,
	})
}

type Handler func(ctx context.Context, msg kafka.Message) error

// Consume feeds every message to h until ctx is done or the reader is
// closed. Handler errors are logged and the message is not retried.
func Consume(ctx context.Context, r Reader, h Handler, log *logger.Logger) error {
	log = log.With("component", "queue.Consume")
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			log.Error("error reading message", "error", err)
			continue
		}
		if err := h(ctx, msg); err != nil {
			log.Error("error handling message", "key", string(msg.Key), "offset", msg.Offset, "error", err)
		}
	}
}

// Decode unmarshals a JSON message body into v.
func Decode(msg kafka.Message, v any) error {
	if err := json.Unmarshal(msg.Value, v); err != nil {
		return fmt.Errorf("queue.Decode: %w", err)
	}
	return nil
}
