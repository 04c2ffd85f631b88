package events

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
)

// PubSubEventBus wraps the in-memory EventBus and additionally publishes
// every event to a Google Cloud Pub/Sub topic. The embedded EventBus still
// serves the live SSE stream consumed by the admin UI and the in-process PDF
// pipeline (C10); nothing in this module subscribes to the topic, so an
// event the in-memory bus does not deliver is not redelivered from Pub/Sub.
//
// Usage:
//
//	bus, err := events.NewPubSubEventBus("my-project", "fieldtime-events")
//	bus.Emit(events.InvoiceCreatedType, "/invoices", invoiceID, data)
//	defer bus.Close()
type PubSubEventBus struct {
	*EventBus // embedded — SSE Subscribe/Unsubscribe still work unchanged

	client *pubsub.Client
	topic  *pubsub.Topic
	logger *log.Logger
}

// NewPubSubEventBus creates a Pub/Sub-backed event bus, creating the topic
// if it does not already exist.
func NewPubSubEventBus(projectID, topicID string) (*PubSubEventBus, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}

	topic := client.Topic(topicID)

	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("topic.Exists: %w", err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("CreateTopic: %w", err)
		}
		slog.Info("created pubsub topic", "topic_id", topicID)
	}

	// Ordering key is companyId, so per-tenant event order is preserved
	// even though delivery across tenants can interleave.
	topic.EnableMessageOrdering = true

	bus := &PubSubEventBus{
		EventBus: NewEventBus(),
		client:   client,
		topic:    topic,
		logger:   log.New(log.Writer(), "[pubsub] ", log.LstdFlags),
	}

	bus.logger.Printf("connected to pubsub topic projects/%s/topics/%s", projectID, topicID)
	return bus, nil
}

// Emit creates a CloudEvent, publishes it to Pub/Sub, and fans out to the
// in-memory bus for SSE subscribers. C9 calls this after committing an
// invoice.
func (pb *PubSubEventBus) Emit(eventType, source, subject string, data map[string]interface{}) {
	event := NewCloudEvent(eventType, source, subject, data)
	pb.publishToPubSub(event)
	pb.EventBus.Publish(event)
}

// publishToPubSub serializes the CloudEvent and publishes it as a Pub/Sub
// message, with CloudEvents metadata mirrored into message attributes for
// server-side filtering.
func (pb *PubSubEventBus) publishToPubSub(event *CloudEvent) {
	payload, err := event.JSON()
	if err != nil {
		pb.logger.Printf("failed to marshal event %s: %v", event.ID, err)
		return
	}

	companyID := event.CompanyID
	if companyID == "" {
		if cid, ok := event.Data["companyId"].(string); ok {
			companyID = cid
		}
	}

	msg := &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"ce-specversion": event.SpecVersion,
			"ce-type":        event.Type,
			"ce-source":      event.Source,
			"ce-id":          event.ID,
			"ce-time":        event.Time.Format(time.RFC3339Nano),
			"ce-companyid":   companyID,
		},
		OrderingKey: companyID,
	}

	result := pb.topic.Publish(context.Background(), msg)

	// Non-blocking: resolve the publish result off the hot path.
	go func() {
		serverID, err := result.Get(context.Background())
		if err != nil {
			pb.logger.Printf("publish failed: %s -> %v", event.ID, err)
			return
		}
		pb.logger.Printf("published %s -> msgID=%s (type=%s)", event.ID, serverID, event.Type)
	}()
}

// PublishRaw publishes a pre-built CloudEvent unchanged to Pub/Sub and to
// the in-memory bus.
func (pb *PubSubEventBus) PublishRaw(event *CloudEvent) {
	pb.publishToPubSub(event)
	pb.EventBus.Publish(event)
}

// Close shuts down the Pub/Sub client, flushing any buffered messages first.
func (pb *PubSubEventBus) Close() error {
	pb.topic.Stop()
	if err := pb.client.Close(); err != nil {
		return fmt.Errorf("pubsub client close: %w", err)
	}
	return nil
}

// TopicPath returns the fully-qualified Pub/Sub topic path.
func (pb *PubSubEventBus) TopicPath() string {
	return pb.topic.String()
}

// HealthCheck verifies the Pub/Sub topic is reachable.
func (pb *PubSubEventBus) HealthCheck(ctx context.Context) error {
	exists, err := pb.topic.Exists(ctx)
	if err != nil {
		return fmt.Errorf("topic health check: %w", err)
	}
	if !exists {
		return fmt.Errorf("topic does not exist")
	}
	return nil
}

// MarshalStats returns basic telemetry about the bus.
func (pb *PubSubEventBus) MarshalStats() map[string]interface{} {
	return map[string]interface{}{
		"backend":         "gcp-pubsub",
		"topic":           pb.topic.String(),
		"sse_subscribers": pb.EventBus.SubscriberCount(),
	}
}

var _ EventEmitter = (*PubSubEventBus)(nil)
