package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a single topic keyed by user.
type KafkaPublisher struct {
	logger *slog.Logger
	writer MessageWriter
	topic  string
}

// NewKafkaPublisher creates an async writer for the given brokers.
func NewKafkaPublisher(logger *slog.Logger, brokers []string, topic string) *KafkaPublisher {
	l := logger.WithGroup("kafka").With("topic", topic)
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		Async:                  true,
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           10 * time.Second,
		Logger:                 &infoLogger{l: l},
		ErrorLogger:            &errorLogger{l: l},
		AllowAutoTopicCreation: true,
	}
	return NewPublisherWithWriter(l, w, topic)
}

// NewPublisherWithWriter wraps an existing writer.
func NewPublisherWithWriter(logger *slog.Logger, w MessageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{logger: logger, writer: w, topic: topic}
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", evt.Type, err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(evt.Key),
		Value: body,
		Time:  evt.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(evt.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("events: write %s: %w", evt.Type, err)
	}
	return nil
}

// Close flushes pending messages.
func (p *KafkaPublisher) Close() {
	if err := p.writer.Close(); err != nil {
		p.logger.Error("close kafka writer", slog.Any("error", err))
	}
}

type infoLogger struct {
	l *slog.Logger
}

func (l *infoLogger) Printf(format string, v ...any) {
	l.l.Debug(fmt.Sprintf(format, v...))
}

type errorLogger struct {
	l *slog.Logger
}

func (l *errorLogger) Printf(format string, v ...any) {
	l.l.Error(fmt.Sprintf(format, v...))
}
