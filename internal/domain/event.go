package domain

// EventType names the envelope types fanned out to WebSocket subscribers.
type EventType string

const (
	EventPoolUpdate EventType = "pool_update"
	EventArbAlert   EventType = "arb_alert"
)

// Event is the broadcast envelope. Payload is marshaled as-is, so it must be
// JSON-serializable (a []Pool chunk or []Opportunity).
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"data"`
}
