package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

type EventHandler struct {
	bus    Bus
	config *EventConfig
	logger *slog.Logger
}

func NewEventHandler(bus Bus, config *EventConfig, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		bus:    bus,
		config: config,
		logger: logger,
	}
}

// RaiseTakeoffChangedEvent publishes a lifecycle event after a successful
// mutation. The message id makes duplicate publishes idempotent downstream.
func (h *EventHandler) RaiseTakeoffChangedEvent(evt TakeoffChangedEvent) error {
	h.logger.Info("Raising takeoff changed event",
		"action", evt.Action,
		"takeoff_id", evt.TakeoffID,
		"user_id", evt.UserID,
	)

	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("Failed to marshal TakeoffChangedEvent", "error", err)
		return err
	}

	msgId := fmt.Sprintf("takeoff.%s.%s", evt.Action, evt.TakeoffID)
	return h.bus.Publish(h.config.TakeoffChanged, data, msgId)
}
