// Package kafka hands booking and channel events to the notification
// subsystem through a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"

	"aparthotel/internal/adapters/observability"
	"aparthotel/internal/domain"
)

type Publisher struct {
	sync  sarama.SyncProducer
	topic string
}

// Config returns the producer settings used in production: acks from all
// replicas and idempotent delivery.
func Config() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = "aparthotel"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Return.Successes = true
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

func Dial(brokers []string, topic string) (*Publisher, error) {
	sync, err := sarama.NewSyncProducer(brokers, Config())
	if err != nil {
		return nil, err
	}
	return NewPublisher(sync, topic), nil
}

func NewPublisher(sync sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{sync: sync, topic: topic}
}

var _ domain.EventPublisher = (*Publisher)(nil)

// Message is the wire form of domain.Event.
type Message struct {
	Type          string `json:"type"`
	ApartmentType string `json:"apartment_type"`
	BookingID     int64  `json:"booking_id,omitempty"`
	Reference     string `json:"reference,omitempty"`
	CheckIn       string `json:"check_in"`
	CheckOut      string `json:"check_out"`
	IntegrationID int64  `json:"integration_id,omitempty"`
	ExternalID    string `json:"external_id,omitempty"`
	At            string `json:"at"`
}

func toMessage(e domain.Event) Message {
	return Message{
		Type:          string(e.Type),
		ApartmentType: e.ApartmentType,
		BookingID:     e.BookingID,
		Reference:     e.Reference,
		CheckIn:       e.Range.Start.Format(domain.DateLayout),
		CheckOut:      e.Range.End.Format(domain.DateLayout),
		IntegrationID: e.IntegrationID,
		ExternalID:    e.ExternalID,
		At:            e.At.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (p *Publisher) Publish(ctx context.Context, e domain.Event) error {
	payload, err := json.Marshal(toMessage(e))
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(e.Key()),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(e.Type)},
		},
	}
	_, _, err = p.sync.SendMessage(msg)
	observability.ObservePublish(string(e.Type), err)
	return err
}

func (p *Publisher) Close() error {
	if p.sync == nil {
		return nil
	}
	return p.sync.Close()
}
