package events

import (
	"encoding/json"
	"time"
)

// Envelope wraps every event written to the order stream.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// OrderEventPayload is the payload of order.created, order.status_changed, order.cancelled and
// order.repriced events.
type OrderEventPayload struct {
	OrderID        string `json:"order_id"`
	UserID         string `json:"user_id"`
	PreviousStatus string `json:"previous_status,omitempty"`
	CurrentStatus  string `json:"current_status"`
	ActorID        string `json:"actor_id,omitempty"`
	FinalPrice     string `json:"final_price,omitempty"`
}

// PartitionKey keeps all events of one order on the same partition so consumers see them in order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
