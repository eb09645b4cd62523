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

	"github.com/recophone/api/internal/services"
)

func TestPubSubEventPublisherPublishesEnvelope(t *testing.T) {
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
	defer client.Close()

	topic, err := client.CreateTopic(ctx, "recophone-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	publisher, err := NewPubSubEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}
	defer publisher.Stop()

	occurred := time.Date(2025, 5, 10, 9, 30, 0, 0, time.UTC)
	if _, err := publisher.PublishEvent(ctx, services.EventMessage{
		Type:       "quote.finalized",
		Key:        "RP_00042",
		OccurredAt: occurred,
		Data:       map[string]any{"total": 129.9},
	}); err != nil {
		t.Fatalf("PublishEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	msg := messages[0]
	if msg.Attributes["type"] != "quote.finalized" || msg.Attributes["key"] != "RP_00042" {
		t.Fatalf("unexpected attributes %v", msg.Attributes)
	}
	var body envelope
	if err := json.Unmarshal(msg.Data, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Type != "quote.finalized" || !body.OccurredAt.Equal(occurred) || body.Data["total"] != 129.9 {
		t.Fatalf("unexpected envelope %+v", body)
	}
}

func TestPubSubEventPublisherRequiresType(t *testing.T) {
	publisher := &PubSubEventPublisher{topic: &pubsub.Topic{}}
	if _, err := publisher.PublishEvent(context.Background(), services.EventMessage{}); err == nil {
		t.Fatal("expected missing type to fail")
	}
	if _, err := NewPubSubEventPublisher(nil); err == nil {
		t.Fatal("expected nil topic to fail")
	}
}
