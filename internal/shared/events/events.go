package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the notification subsystem
const (
	NotificationSent       = "notification.sent"
	NotificationDropped    = "notification.dropped"
	NotificationControlled = "notification.control"
	PreferencesUpdated     = "notification.preferences_updated"
)

// Event represents a domain event
type Event struct {
	ID            string            `json:"id"`
	AggregateID   string            `json:"aggregateId"`
	AggregateType string            `json:"aggregateType"`
	EventType     string            `json:"eventType"`
	EventVersion  int               `json:"eventVersion"`
	Timestamp     time.Time         `json:"timestamp"`
	UserID        string            `json:"userId,omitempty"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Payload       json.RawMessage   `json:"payload"`
}

// NewEvent creates a new event
func NewEvent(aggregateID, aggregateType, eventType string, payload interface{}) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		EventVersion:  1,
		Timestamp:     time.Now().UTC(),
		Metadata:      make(map[string]string),
		Payload:       payloadBytes,
	}, nil
}

// ControlPayload describes a lifecycle operation performed by a user
type ControlPayload struct {
	Operation string `json:"operation"`
	ID        string `json:"id,omitempty"`
}

// DroppedPayload records a notification suppressed before delivery
type DroppedPayload struct {
	Reason       string      `json:"reason"`
	Notification interface{} `json:"notification"`
}
