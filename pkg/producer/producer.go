// Package producer publishes dispatch payloads to Kafka.
package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/andrej220/fanout/pkg/lg"
	"github.com/andrej220/fanout/pkg/result"
	"github.com/segmentio/kafka-go"
)

type Config struct {
	Brokers []string
	Topic   string
}

type messageWriter interface {
	WriteMessages(context.Context, ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer messageWriter
	topic  string
}

func New(cfg Config) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.LeastBytes{},
			Async:                  false,
			AllowAutoTopicCreation: true,
		},
		topic: cfg.Topic,
	}
}

// Publish writes v as JSON under key.
func (p *Producer) Publish(ctx context.Context, key []byte, v any, headers ...kafka.Header) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     key,
		Value:   value,
		Headers: headers,
		Time:    time.Now(),
	})
	if err != nil {
		if errors.Is(err, kafka.UnknownTopicOrPartition) {
			lg.FromContext(ctx).Error("Kafka topic does not exist",
				lg.String("topic", p.topic),
				lg.String("action", "Create the topic manually or enable auto-creation"))
		}
		return fmt.Errorf("failed to publish to %s: %w", p.topic, err)
	}
	return nil
}

// Store publishes the payload keyed by its execution id.
func (p *Producer) Store(ctx context.Context, pl *result.Payload) error {
	if pl == nil {
		return errors.New("nil payload")
	}
	id := pl.ID
	return p.Publish(ctx, id[:], pl,
		kafka.Header{Key: "backend", Value: []byte(pl.Backend)},
		kafka.Header{Key: "outcome", Value: []byte(pl.Outcome)},
	)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
