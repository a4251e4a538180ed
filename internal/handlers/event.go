package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gitshopapp/paypal-webhooks/internal/logging"
)

// Event is the envelope shared by every PayPal webhook event. Resource is
// left raw for the sink to decode by event type.
type Event struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	ResourceType string          `json:"resource_type"`
	CreateTime   string          `json:"create_time"`
	Summary      string          `json:"summary"`
	Resource     json.RawMessage `json:"resource"`
}

func decodeEvent(body []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	event.ID = strings.TrimSpace(event.ID)
	event.EventType = strings.TrimSpace(event.EventType)
	return &event, nil
}

// EventSink receives verified, deduplicated events. A returned error makes
// the receiver answer 500 so PayPal redelivers.
type EventSink interface {
	Handle(ctx context.Context, receiver string, event *Event) error
}

// LoggingSink acknowledges every event with a log line.
type LoggingSink struct {
	logger *slog.Logger
}

func NewLoggingSink(logger *slog.Logger) *LoggingSink {
	return &LoggingSink{logger: logging.Ensure(logger)}
}

func (s *LoggingSink) Handle(ctx context.Context, receiver string, event *Event) error {
	if event == nil {
		return fmt.Errorf("missing paypal event")
	}
	logging.FromContext(ctx, s.logger).Info("paypal webhook event received",
		"receiver", receiver,
		"event_id", event.ID,
		"event_type", event.EventType,
		"resource_type", event.ResourceType,
		"summary", event.Summary,
	)
	return nil
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, receiver string, event *Event) error

func (f EventSinkFunc) Handle(ctx context.Context, receiver string, event *Event) error {
	return f(ctx, receiver, event)
}
