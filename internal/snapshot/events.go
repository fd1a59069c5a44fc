package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"tally/pkg/domain"
)

// PublishedEvent announces a newly published dataset.
type PublishedEvent struct {
	RunID   uuid.UUID            `json:"run_id"`
	Version int                  `json:"version"`
	Digest  string               `json:"digest"`
	BuiltAt time.Time            `json:"built_at"`
	Counts  map[domain.Level]int `json:"counts"`
}

// NewPublishedEvent describes ds.
func NewPublishedEvent(ds *Dataset) PublishedEvent {
	return PublishedEvent{
		RunID:   ds.RunID,
		Version: ds.Version,
		Digest:  ds.Digest,
		BuiltAt: ds.BuiltAt,
		Counts:  ds.Counts(),
	}
}

// producer is the subset of *kgo.Client the publisher uses.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaPublisher writes PublishedEvents to a topic, keyed by run id.
type KafkaPublisher struct {
	client producer
	topic  string
}

// NewKafkaPublisher returns a publisher writing to topic.
func NewKafkaPublisher(client producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{client: client, topic: topic}
}

func (p *KafkaPublisher) Published(ctx context.Context, ev PublishedEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(ev.RunID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "version", Value: []byte(fmt.Sprint(ev.Version))},
		},
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", p.topic, err)
	}
	return nil
}

// NopPublisher drops events. It is used when Kafka is not configured.
type NopPublisher struct{}

func (NopPublisher) Published(context.Context, PublishedEvent) error { return nil }
