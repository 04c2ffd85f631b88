// Package events implements the event bus that carries InvoiceCreated from
// the invoice builder (C9) to the PDF pipeline (C10), wrapped in a
// CloudEvents 1.0 envelope.
package events

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventEmitter is satisfied by both the in-memory EventBus and the
// Pub/Sub-backed bus, so callers never need to know which is wired in.
type EventEmitter interface {
	Emit(eventType, source, subject string, data map[string]interface{})
}

// CloudEvent is the CloudEvents 1.0 envelope used for every event this
// service emits.
type CloudEvent struct {
	SpecVersion string                 `json:"specversion"`
	Type        string                 `json:"type"`
	Source      string                 `json:"source"`
	ID          string                 `json:"id"`
	Time        time.Time              `json:"time"`
	Subject     string                 `json:"subject,omitempty"`
	CompanyID   string                 `json:"companyid,omitempty"`
	Data        map[string]interface{} `json:"data"`
}

// InvoiceCreatedType is the wire event type emitted by C9 and consumed by C10.
const InvoiceCreatedType = "InvoiceCreated"

// NewCloudEvent builds a CloudEvents 1.0 compliant event.
func NewCloudEvent(eventType, source, subject string, data map[string]interface{}) *CloudEvent {
	companyID := ""
	if cid, ok := data["companyId"].(string); ok {
		companyID = cid
	}
	return &CloudEvent{
		SpecVersion: "1.0",
		Type:        eventType,
		Source:      source,
		ID:          uuid.NewString(),
		Time:        time.Now().UTC(),
		Subject:     subject,
		CompanyID:   companyID,
		Data:        data,
	}
}

// JSON serializes the event.
func (ce *CloudEvent) JSON() ([]byte, error) {
	return json.Marshal(ce)
}

// SSEFormat returns the event formatted for a Server-Sent Events stream.
func (ce *CloudEvent) SSEFormat() ([]byte, error) {
	data, err := json.Marshal(ce)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\nid: %s\n\n", ce.Type, data, ce.ID)), nil
}

// EventBus is an in-process pub/sub bus. Subscribers receive CloudEvents in
// real time; used directly when Pub/Sub is disabled, and as the SSE fan-out
// side of PubSubEventBus when it is enabled.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan *CloudEvent
	allSubs     []chan *CloudEvent
	logger      *log.Logger
	bufferSize  int
}

// NewEventBus creates an empty in-memory event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]chan *CloudEvent),
		allSubs:     make([]chan *CloudEvent, 0),
		logger:      log.New(log.Writer(), "[EVENTS] ", log.LstdFlags),
		bufferSize:  100,
	}
}

// Subscribe creates a channel that receives events of the given types. Pass
// no eventTypes to receive everything (used by the SSE stream handler).
func (eb *EventBus) Subscribe(eventTypes ...string) chan *CloudEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan *CloudEvent, eb.bufferSize)

	if len(eventTypes) == 0 {
		eb.allSubs = append(eb.allSubs, ch)
	} else {
		for _, et := range eventTypes {
			eb.subscribers[et] = append(eb.subscribers[et], ch)
		}
	}

	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (eb *EventBus) Unsubscribe(ch chan *CloudEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for et, subs := range eb.subscribers {
		filtered := make([]chan *CloudEvent, 0, len(subs))
		for _, s := range subs {
			if s != ch {
				filtered = append(filtered, s)
			}
		}
		eb.subscribers[et] = filtered
	}

	filtered := make([]chan *CloudEvent, 0, len(eb.allSubs))
	for _, s := range eb.allSubs {
		if s != ch {
			filtered = append(filtered, s)
		}
	}
	eb.allSubs = filtered

	close(ch)
}

// Publish delivers event to every matching subscriber, dropping it for any
// subscriber whose buffer is full rather than blocking the publisher.
func (eb *EventBus) Publish(event *CloudEvent) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, ch := range eb.subscribers[event.Type] {
		select {
		case ch <- event:
		default:
		}
	}
	for _, ch := range eb.allSubs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Emit builds and publishes a CloudEvent in one call.
func (eb *EventBus) Emit(eventType, source, subject string, data map[string]interface{}) {
	event := NewCloudEvent(eventType, source, subject, data)
	eb.Publish(event)
}

// SubscriberCount returns the number of active subscriber channels.
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	count := len(eb.allSubs)
	for _, subs := range eb.subscribers {
		count += len(subs)
	}
	return count
}

var _ EventEmitter = (*EventBus)(nil)
