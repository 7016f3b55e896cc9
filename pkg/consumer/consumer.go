// Package consumer reads JSON messages of one type from a Kafka topic.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/andrej220/fanout/pkg/lg"
	"github.com/segmentio/kafka-go"
)

type Config struct {
	Brokers []string
	GroupID string
	Topic   string
}

// ErrDecode marks a message that could not be decoded. Such messages are
// committed so that they are not redelivered.
var ErrDecode = errors.New("undecodable message")

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer[T any] struct {
	reader messageReader
}

func NewConsumer[T any](cfg Config) *Consumer[T] {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		GroupID: cfg.GroupID,
		Topic:   cfg.Topic,
	})
	return &Consumer[T]{reader: r}
}

// Run hands every message to handle and commits it once handle returns,
// whatever handle reports. It stops when ctx ends or the reader fails.
func (c *Consumer[T]) Run(ctx context.Context, handle func(context.Context, T) error) error {
	logger := lg.FromContext(ctx)
	for {
		msg, payload, err := c.fetch(ctx)
		if errors.Is(err, ErrDecode) {
			logger.Warn("Skipping message", lg.Err(err))
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := handle(ctx, payload); err != nil {
			logger.Error("Message handler failed",
				lg.String("topic", msg.Topic),
				lg.Int("partition", msg.Partition),
				lg.Any("offset", msg.Offset),
				lg.Err(err))
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

func (c *Consumer[T]) fetch(ctx context.Context) (kafka.Message, T, error) {
	var payload T
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return msg, payload, err
	}
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		if cerr := c.reader.CommitMessages(ctx, msg); cerr != nil {
			return msg, payload, cerr
		}
		return msg, payload, fmt.Errorf("%w at offset %d: %v", ErrDecode, msg.Offset, err)
	}
	return msg, payload, nil
}

func (c *Consumer[T]) Close() error {
	return c.reader.Close()
}
