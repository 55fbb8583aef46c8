// Package eventstream forwards domain events from the in-process bus to Kafka.
package eventstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/events"
	"leadflow_backend/platform/logger"

	"github.com/segmentio/kafka-go"
)

// Forwarded lists the event names published to the stream.
var Forwarded = []string{
	events.LeadQualified{}.EventName(),
	events.TaskRouted{}.EventName(),
	events.LeadAssigned{}.EventName(),
	events.SequenceMaterialized{}.EventName(),
	events.FollowUpSent{}.EventName(),
	events.FollowUpFailed{}.EventName(),
	events.FollowUpCancelled{}.EventName(),
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Envelope is the message value written for every event.
type Envelope struct {
	Name       string          `json:"name"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// Forwarder writes bus events to a Kafka topic keyed by lead.
type Forwarder struct {
	writer messageWriter
	log    *logger.Logger
}

// NewForwarder creates a Forwarder. It returns nil when the stream is not configured.
func NewForwarder(cfg config.EventStreamConfig, log *logger.Logger) *Forwarder {
	if !cfg.IsEventStreamEnabled() {
		return nil
	}
	return newForwarder(&kafka.Writer{
		Addr:                   kafka.TCP(cfg.GetKafkaBrokers()...),
		Topic:                  cfg.GetKafkaTopic(),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}, log)
}

func newForwarder(w messageWriter, log *logger.Logger) *Forwarder {
	if log == nil {
		log = logger.Discard()
	}
	return &Forwarder{writer: w, log: log}
}

// Subscribe registers the forwarder for every forwarded event.
func (f *Forwarder) Subscribe(bus events.Bus) {
	if f == nil {
		return
	}
	for _, name := range Forwarded {
		bus.Subscribe(name, f)
	}
}

// Handle implements events.Handler.
func (f *Forwarder) Handle(ctx context.Context, event events.Event) error {
	msg, err := encode(event)
	if err != nil {
		return err
	}
	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		f.log.Warn("failed to forward event", "event", event.EventName(), "error", err)
		return fmt.Errorf("write %s: %w", event.EventName(), err)
	}
	return nil
}

// Close flushes pending writes.
func (f *Forwarder) Close() error {
	if f == nil {
		return nil
	}
	return f.writer.Close()
}

func encode(event events.Event) (kafka.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s: %w", event.EventName(), err)
	}
	value, err := json.Marshal(Envelope{
		Name:       event.EventName(),
		OccurredAt: event.OccurredAt().UTC(),
		Payload:    payload,
	})
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:     []byte(partitionKey(event)),
		Value:   value,
		Headers: []kafka.Header{{Key: "event", Value: []byte(event.EventName())}},
	}, nil
}

// partitionKey keeps every event of one lead on the same partition.
func partitionKey(event events.Event) string {
	switch e := event.(type) {
	case events.LeadQualified:
		return e.LeadID.String()
	case events.TaskRouted:
		if e.LeadID != nil {
			return e.LeadID.String()
		}
		return e.TaskID.String()
	case events.LeadAssigned:
		return e.LeadID.String()
	case events.SequenceMaterialized:
		return e.LeadID.String()
	case events.FollowUpSent:
		return e.LeadID.String()
	case events.FollowUpFailed:
		return e.LeadID.String()
	case events.FollowUpCancelled:
		return e.LeadID.String()
	default:
		return event.EventName()
	}
}
