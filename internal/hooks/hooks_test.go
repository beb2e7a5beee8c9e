package hooks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sahaidachny/saha/internal/state"
)

type recordingHook struct {
	name  string
	only  []Event
	fired []Event
	fail  bool
}

func (h *recordingHook) Name() string    { return h.name }
func (h *recordingHook) Events() []Event { return h.only }
func (h *recordingHook) Fire(ctx context.Context, event Event, payload Payload) error {
	h.fired = append(h.fired, event)
	if h.fail {
		return errors.New("boom")
	}
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistryFiresInterestedHooks(t *testing.T) {
	reg := NewRegistry(quietLogger())
	all := &recordingHook{name: "all"}
	terminal := &recordingHook{name: "terminal", only: []Event{EventLoopComplete}}
	reg.Register(all)
	reg.Register(terminal)

	reg.Fire(context.Background(), EventIterationStart, Payload{})
	reg.Fire(context.Background(), EventLoopComplete, Payload{})

	if len(all.fired) != 2 {
		t.Errorf("all-events hook fired %d times", len(all.fired))
	}
	if len(terminal.fired) != 1 || terminal.fired[0] != EventLoopComplete {
		t.Errorf("filtered hook fired %v", terminal.fired)
	}
}

func TestRegistrySwallowsHookErrors(t *testing.T) {
	reg := NewRegistry(quietLogger())
	bad := &recordingHook{name: "bad", fail: true}
	after := &recordingHook{name: "after"}
	reg.Register(bad)
	reg.Register(after)

	reg.Fire(context.Background(), EventQAFailed, Payload{Error: "dod not achieved"})

	if len(after.fired) != 1 {
		t.Error("a failing hook must not block later hooks")
	}
}

func TestRegistryUnregister(t *testing.T) {
	reg := NewRegistry(quietLogger())
	reg.Register(&recordingHook{name: "a"})
	reg.Register(&recordingHook{name: "b"})

	if !reg.Unregister("a") {
		t.Error("expected removal")
	}
	if reg.Unregister("a") {
		t.Error("second removal must report false")
	}
	names := reg.List()
	if len(names) != 1 || names[0] != "b" {
		t.Errorf("names = %v", names)
	}
}

func TestNtfyHookPublishes(t *testing.T) {
	var gotTitle, gotPriority, gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("Title")
		gotPriority = r.Header.Get("Priority")
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	hook := NewNtfyHook("saha-runs", WithNtfyServer(srv.URL), WithNtfyToken("tk_secret"))

	st := state.NewExecutionState("auth-fix", "tasks/auth-fix.md", 10)
	st.BeginIteration()
	if err := hook.Fire(context.Background(), EventLoopFailed, Payload{State: st}); err != nil {
		t.Fatal(err)
	}

	if gotTitle != "Task Failed: auth-fix" {
		t.Errorf("Title = %q", gotTitle)
	}
	if gotPriority != "high" {
		t.Errorf("Priority = %q", gotPriority)
	}
	if gotAuth != "Bearer tk_secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if len(gotBody) == 0 {
		t.Error("empty body")
	}
}

func TestNtfyHookOnlyTerminalEvents(t *testing.T) {
	hook := NewNtfyHook("t")
	for _, e := range hook.Events() {
		switch e {
		case EventLoopComplete, EventLoopFailed, EventLoopError, EventLoopStopped:
		default:
			t.Errorf("unexpected event %q", e)
		}
	}
}
