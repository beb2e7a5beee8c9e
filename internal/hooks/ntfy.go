package hooks

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// NtfyHook pushes a notification through an ntfy server when a run reaches
// a terminal event. Auth is either a bearer token or basic credentials.
type NtfyHook struct {
	topic    string
	server   string
	token    string
	user     string
	password string
	client   *http.Client
}

type NtfyOption func(*NtfyHook)

func WithNtfyServer(server string) NtfyOption {
	return func(h *NtfyHook) { h.server = strings.TrimRight(server, "/") }
}

func WithNtfyToken(token string) NtfyOption {
	return func(h *NtfyHook) { h.token = token }
}

func WithNtfyBasicAuth(user, password string) NtfyOption {
	return func(h *NtfyHook) {
		h.user = user
		h.password = password
	}
}

func NewNtfyHook(topic string, opts ...NtfyOption) *NtfyHook {
	h := &NtfyHook{
		topic:  topic,
		server: "https://ntfy.sh",
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *NtfyHook) Name() string { return "ntfy" }

func (h *NtfyHook) Events() []Event {
	return []Event{EventLoopComplete, EventLoopFailed, EventLoopError, EventLoopStopped}
}

func (h *NtfyHook) Fire(ctx context.Context, event Event, payload Payload) error {
	title, message, priority, tags := h.buildNotification(event, payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		h.server+"/"+h.topic, strings.NewReader(message))
	if err != nil {
		return err
	}
	req.Header.Set("Title", title)
	req.Header.Set("Priority", priority)
	req.Header.Set("Tags", tags)
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	} else if h.user != "" {
		req.SetBasicAuth(h.user, h.password)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("ntfy publish: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("ntfy publish: status %d", resp.StatusCode)
	}
	return nil
}

func (h *NtfyHook) buildNotification(event Event, payload Payload) (title, message, priority, tags string) {
	taskID := "unknown"
	iterations := 0
	tokens := 0
	if payload.State != nil {
		taskID = payload.State.TaskID
		iterations = payload.State.CurrentIteration
		tokens = payload.State.TotalTokens()
	}
	summary := fmt.Sprintf("%d iteration(s), %d tokens", iterations, tokens)

	switch event {
	case EventLoopComplete:
		return fmt.Sprintf("Task Completed: %s", taskID), summary, "default", "white_check_mark"
	case EventLoopFailed:
		msg := summary
		if payload.State != nil && payload.State.FailureReason != "" {
			msg = payload.State.FailureReason + "\n" + summary
		}
		return fmt.Sprintf("Task Failed: %s", taskID), msg, "high", "x"
	case EventLoopStopped:
		return fmt.Sprintf("Task Stopped: %s", taskID), summary, "default", "pause_button"
	default:
		msg := summary
		if payload.Error != "" {
			msg = payload.Error + "\n" + summary
		}
		return fmt.Sprintf("Task Error: %s", taskID), msg, "urgent", "rotating_light"
	}
}
