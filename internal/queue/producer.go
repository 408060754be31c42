package queue

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
	"go.uber.org/zap"

	"ballouchi/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes account lifecycle events keyed by email, so every
// event of one account lands on the same partition.
type Producer struct {
	writer messageWriter
	log    *zap.Logger
}

func NewProducer(brokers []string, topic, username, password string, log *zap.Logger) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: 10 * time.Second,
	}
	if username != "" {
		w.Transport = &kafka.Transport{
			SASL: plain.Mechanism{Username: username, Password: password},
			TLS:  &tls.Config{MinVersion: tls.VersionTLS12},
		}
	}
	return &Producer{writer: w, log: log}
}

// PublishMessage writes one raw message. A nil producer skips silently so a
// missing broker never fails the request that emitted the event.
func (p *Producer) PublishMessage(ctx context.Context, key, value []byte) error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
		Time:  time.Now(),
	})
}

func (p *Producer) Publish(ctx context.Context, ev models.UserEvent) error {
	if p == nil || p.writer == nil {
		return nil
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.Type, err)
	}
	if err := p.PublishMessage(ctx, []byte(ev.Email), body); err != nil {
		return fmt.Errorf("kafka publish %s: %w", ev.Type, err)
	}
	if p.log != nil {
		p.log.Debug("event published", zap.String("type", string(ev.Type)))
	}
	return nil
}

func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
