package api

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sahaidachny/saha/internal/hooks"
	"github.com/sahaidachny/saha/internal/state"
)

func TestBroadcastHookReachesWebsocketClient(t *testing.T) {
	server := testServer(map[string]*state.ExecutionState{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.hub.Run(ctx)

	ts := httptest.NewServer(server.wsHandler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	reg := hooks.NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	reg.Register(NewBroadcastHook(server.Hub()))

	st := state.NewExecutionState("auth-fix", "docs/tasks/auth-fix", 10)
	st.Phase = state.PhaseQA

	received := make(chan Event, 1)
	go func() {
		var ev Event
		if err := conn.ReadJSON(&ev); err == nil {
			received <- ev
		}
	}()

	// The dial returns before the hub has processed the client
	// registration, so refire until the event comes through.
	deadline := time.After(5 * time.Second)
	fire := time.NewTicker(20 * time.Millisecond)
	defer fire.Stop()
	for {
		select {
		case ev := <-received:
			if ev.Type != string(hooks.EventPhaseStart) {
				t.Fatalf("Type = %q, want phase_start", ev.Type)
			}
			data, ok := ev.Data.(map[string]any)
			if !ok {
				t.Fatalf("Data = %T", ev.Data)
			}
			if data["phase"] != "qa" {
				t.Errorf("phase = %v", data["phase"])
			}
			task, ok := data["task"].(map[string]any)
			if !ok || task["task_id"] != "auth-fix" {
				t.Errorf("task = %v", data["task"])
			}
			return
		case <-deadline:
			t.Fatal("no event reached the websocket client")
		case <-fire.C:
			reg.Fire(context.Background(), hooks.EventPhaseStart, hooks.Payload{State: st, Phase: state.PhaseQA})
		}
	}
}

func TestBroadcastHookListensToAllEvents(t *testing.T) {
	h := NewBroadcastHook(NewHub(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if h.Name() != "websocket" {
		t.Errorf("Name = %q", h.Name())
	}
	if len(h.Events()) != 0 {
		t.Errorf("Events = %v, want all", h.Events())
	}
}
