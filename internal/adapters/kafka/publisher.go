package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"

	"casa_booking/internal/adapters/observability"
	"casa_booking/internal/domain"
)

const bookingTopic = "booking.events.v1"

// Publisher writes booking lifecycle events keyed by booking id, so every event
// for one booking lands on the same partition in order.
type Publisher struct {
	sync  sarama.SyncProducer
	topic string
}

var _ domain.EventPublisher = (*Publisher)(nil)

func NewPublisher(brokers []string, topicPrefix string, cfg *sarama.Config) (*Publisher, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Version = sarama.V2_1_0_0
	cfg.ClientID = "casa-booking"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Return.Successes = true
	cfg.Net.MaxOpenRequests = 1
	sync, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return WithProducer(sync, topicPrefix), nil
}

// WithProducer wraps an existing producer.
func WithProducer(p sarama.SyncProducer, topicPrefix string) *Publisher {
	return &Publisher{sync: p, topic: topicPrefix + bookingTopic}
}

func (p *Publisher) Topic() string { return p.topic }

func (p *Publisher) Publish(ctx context.Context, evt domain.BookingEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(evt.BookingID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(evt.Type)},
		},
	}
	_, _, err = p.sync.SendMessage(msg)
	observability.ObserveEvent(string(evt.Type), err)
	return err
}

func (p *Publisher) Close() error {
	if p.sync == nil {
		return nil
	}
	return p.sync.Close()
}
