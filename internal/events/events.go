package events

import "os"

// Lifecycle actions published after a takeoff mutation commits.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

type TakeoffChangedEvent struct {
	Action    string `json:"action"`     // "created" | "updated" | "deleted"
	TakeoffID string `json:"takeoff_id"` // Database ID of the takeoff
	UserID    string `json:"user_id"`    // Who performed the mutation
	TraceID   string `json:"trace_id"`   // For correlating across services
}

type EventConfig struct {
	TakeoffChanged string
}

func NewEventConfig() *EventConfig {
	return &EventConfig{
		TakeoffChanged: os.Getenv("EVENT_TAKEOFF_CHANGED"),
	}
}
