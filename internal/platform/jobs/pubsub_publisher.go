package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
)

// TicketEventKind identifies the lifecycle moment a message describes.
type TicketEventKind string

const (
	// EventTicketGenerated fires when a generation run commits its results.
	EventTicketGenerated TicketEventKind = "ticket.generated"
	// EventTicketRemixed fires when a remix run commits new artwork.
	EventTicketRemixed TicketEventKind = "ticket.remixed"
	// EventTicketUnlocked fires when a payment is verified and the ticket is marked paid.
	EventTicketUnlocked TicketEventKind = "ticket.unlocked"
)

// TicketEvent is the payload published for downstream consumers such as the
// print render worker.
type TicketEvent struct {
	Kind       TicketEventKind `json:"kind"`
	TicketID   string          `json:"ticketId"`
	RunID      string          `json:"runId,omitempty"`
	SessionID  string          `json:"sessionId,omitempty"`
	ImageURL   string          `json:"imageUrl,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// EventPublisher publishes ticket lifecycle events.
type EventPublisher interface {
	PublishTicketEvent(ctx context.Context, event TicketEvent) (string, error)
}

// PubSubEventPublisher publishes ticket events to a Pub/Sub topic.
type PubSubEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubEventPublisher constructs a Pub/Sub backed ticket event publisher.
func NewPubSubEventPublisher(topic *pubsub.Topic) (*PubSubEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub event publisher: topic is required")
	}
	return &PubSubEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishTicketEvent enqueues a ticket event message on the configured topic.
func (p *PubSubEventPublisher) PublishTicketEvent(ctx context.Context, event TicketEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub event publisher: not initialised")
	}
	if strings.TrimSpace(event.TicketID) == "" {
		return "", errors.New("pubsub event publisher: ticket id is required")
	}
	if event.Kind == "" {
		return "", errors.New("pubsub event publisher: event kind is required")
	}

	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal ticket event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "kind", string(event.Kind))
	setAttr(attrs, "ticketId", event.TicketID)
	setAttr(attrs, "runId", event.RunID)
	setAttr(attrs, "sessionId", event.SessionID)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish ticket event: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
