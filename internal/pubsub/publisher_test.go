package pubsub

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"shardz/internal/config"

	ps "cloud.google.com/go/pubsub"
)

type capturePublisher struct {
	topic   string
	payload []byte
}

func (c *capturePublisher) Publish(_ context.Context, topic string, payload []byte) (string, error) {
	c.topic = topic
	c.payload = payload
	return "msg-1", nil
}

func TestNewPublisherInvalidProject(t *testing.T) {
	cfg := &config.Config{GCPProjectID: ""}
	if _, err := NewPublisher(context.Background(), cfg); err == nil {
		t.Fatal("expected error when project ID is empty")
	}
}

func TestPublishBillingEventStampsTime(t *testing.T) {
	cap := &capturePublisher{}
	ev := BillingEvent{Action: "subscription_suspended", SubFor: "db_abc123"}

	id, err := PublishBillingEvent(context.Background(), cap, "billing-events", ev)
	if err != nil {
		t.Fatalf("PublishBillingEvent returned error: %v", err)
	}
	if id != "msg-1" {
		t.Fatalf("expected message ID msg-1, got %q", id)
	}
	if cap.topic != "billing-events" {
		t.Fatalf("expected topic billing-events, got %q", cap.topic)
	}

	var got BillingEvent
	if err := json.Unmarshal(cap.payload, &got); err != nil {
		t.Fatalf("payload is not a billing event: %v", err)
	}
	if got.Action != "subscription_suspended" || got.SubFor != "db_abc123" {
		t.Fatalf("unexpected event round trip: %+v", got)
	}
	if got.OccurredAt.IsZero() {
		t.Fatal("expected OccurredAt to be stamped")
	}
}

func TestPublishWithEmulator(t *testing.T) {
	emulator := os.Getenv("PUBSUB_EMULATOR_HOST")
	if emulator == "" {
		t.Skip("PUBSUB_EMULATOR_HOST is not set, skip emulator integration test")
	}

	ctx := context.Background()
	cfg := &config.Config{GCPProjectID: "test-project"}
	// Create publisher
	pub, err := NewPublisher(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to create PubSubPublisher: %v", err)
	}

	// Use underlying client to create topic and subscription
	topicName := "test-topic"
	topic, err := pub.client.CreateTopic(ctx, topicName)
	if err != nil {
		t.Fatalf("failed to create topic: %v", err)
	}
	subName := "test-sub"
	sub, err := pub.client.CreateSubscription(ctx, subName, ps.SubscriptionConfig{Topic: topic})
	if err != nil {
		t.Fatalf("failed to create subscription: %v", err)
	}

	// Publish a message
	msgID, err := pub.Publish(ctx, topicName, []byte("hello-emulator"))
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if msgID == "" {
		t.Fatal("expected non-empty message ID")
	}

	// Pull the message
	recvCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	c := make(chan []byte, 1)
	go func() {
		sub.Receive(recvCtx, func(ctx context.Context, m *ps.Message) {
			c <- m.Data
			m.Ack()
			cancel()
		})
	}()

	select {
	case data := <-c:
		if string(data) != "hello-emulator" {
			t.Fatalf("expected message data 'hello-emulator', got '%s'", string(data))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message from emulator subscription")
	}
}
