// Package pubsub fans pipeline run events out to any number of listeners.
package pubsub

import (
	"context"
	"time"
)

// EventType is the lifecycle stage an event reports.
type EventType string

const (
	StartedEvent   EventType = "started"
	CompletedEvent EventType = "completed"
	SkippedEvent   EventType = "skipped"
	FailedEvent    EventType = "failed"
)

// Event is a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
