package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func TestPubSubEventPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "ticket-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}

	event := TicketEvent{
		Kind:       EventTicketGenerated,
		TicketID:   "tkt_01ABC",
		RunID:      "run_02DEF",
		SessionID:  "sess-1",
		ImageURL:   "https://storage.example.com/tickets/tkt_01ABC/ticket.png",
		OccurredAt: time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC),
	}

	if _, err := publisher.PublishTicketEvent(ctx, event); err != nil {
		t.Fatalf("PublishTicketEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload TicketEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.TicketID != event.TicketID || payload.Kind != event.Kind {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["ticketId"]; attr != "tkt_01ABC" {
		t.Fatalf("expected ticketId attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["kind"]; attr != string(EventTicketGenerated) {
		t.Fatalf("expected kind attribute, got %q", attr)
	}
}

func TestPubSubEventPublisherValidates(t *testing.T) {
	publisher := &PubSubEventPublisher{topic: &pubsub.Topic{}, marshal: json.Marshal}

	if _, err := publisher.PublishTicketEvent(context.Background(), TicketEvent{Kind: EventTicketGenerated}); err == nil {
		t.Fatal("expected error for missing ticket id")
	}
	if _, err := publisher.PublishTicketEvent(context.Background(), TicketEvent{TicketID: "tkt_01"}); err == nil {
		t.Fatal("expected error for missing event kind")
	}
}
