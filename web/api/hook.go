package api

import (
	"context"

	"github.com/sahaidachny/saha/internal/hooks"
)

// BroadcastHook bridges loop events onto the websocket hub.
type BroadcastHook struct {
	hub *Hub
}

func NewBroadcastHook(hub *Hub) *BroadcastHook {
	return &BroadcastHook{hub: hub}
}

func (h *BroadcastHook) Name() string { return "websocket" }

// Events returns nil: the stream carries every loop event.
func (h *BroadcastHook) Events() []hooks.Event { return nil }

func (h *BroadcastHook) Fire(ctx context.Context, event hooks.Event, payload hooks.Payload) error {
	data := map[string]any{}
	if payload.State != nil {
		data["task"] = taskToResponse(payload.State)
	}
	if payload.Phase != "" {
		data["phase"] = string(payload.Phase)
	}
	if payload.Error != "" {
		data["error"] = payload.Error
	}
	h.hub.Broadcast(Event{Type: string(event), Data: data})
	return nil
}
