package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/calendarsync/libs/kafkax"
	"github.com/md-rashed-zaman/calendarsync/services/sync-service/internal/model"
)

const EventTypeAppointmentSynced = "calendar.appointment.synced.v1"

type PublisherConfig struct {
	Brokers string
	Topic   string
}

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher emits one event per upserted appointment. With no brokers
// configured it is a no-op.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

type AppointmentSynced struct {
	PassID      string            `json:"pass_id"`
	BusinessKey string            `json:"business_key"`
	Appointment model.Appointment `json:"appointment"`
}

func NewPublisher(logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.Topic == "" {
		cfg.Topic = EventTypeAppointmentSynced
	}
	p := &Publisher{topic: cfg.Topic, logger: logger}

	brokers := kafkax.SplitBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		logger.Warn("appointment events disabled (no kafka brokers configured)")
		return p
	}
	p.writer = kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	})
	return p
}

func (p *Publisher) Enabled() bool {
	return p != nil && p.writer != nil
}

func (p *Publisher) AppointmentSynced(ctx context.Context, passID string, a model.Appointment) error {
	if !p.Enabled() {
		return nil
	}
	key := a.Key().String()
	payload, err := json.Marshal(AppointmentSynced{
		PassID:      passID,
		BusinessKey: key,
		Appointment: a,
	})
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:     []byte(key),
		Value:   payload,
		Headers: kafkax.EventHeaders(uuid.NewString(), EventTypeAppointmentSynced),
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Publisher) Close() error {
	if !p.Enabled() {
		return nil
	}
	return p.writer.Close()
}
