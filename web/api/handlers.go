package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sahaidachny/saha/internal/history"
	"github.com/sahaidachny/saha/internal/state"
)

// TaskResponse is the API shape for a task's execution state.
type TaskResponse struct {
	TaskID        string  `json:"task_id"`
	TaskFile      string  `json:"task_file,omitempty"`
	Phase         string  `json:"phase"`
	Iteration     int     `json:"iteration"`
	MaxIterations int     `json:"max_iterations"`
	TokensTotal   int     `json:"tokens_total"`
	FixInfo       string  `json:"fix_info,omitempty"`
	FailureReason string  `json:"failure_reason,omitempty"`
	StartedAt     string  `json:"started_at"`
	UpdatedAt     string  `json:"updated_at"`
	CompletedAt   *string `json:"completed_at,omitempty"`
}

// IterationResponse summarizes one iteration of a task detail.
type IterationResponse struct {
	Iteration int    `json:"iteration"`
	FixInfo   string `json:"fix_info,omitempty"`
	Tokens    int    `json:"tokens"`
	Phases    []exec `json:"phases"`
}

type exec struct {
	Phase   string `json:"phase"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// TaskDetailResponse is the full task view.
type TaskDetailResponse struct {
	TaskResponse
	Iterations []IterationResponse `json:"iterations"`
}

// InvocationResponse is the API shape for one recorded runner invocation.
type InvocationResponse struct {
	Iteration   int    `json:"iteration"`
	Phase       string `json:"phase"`
	Runner      string `json:"runner"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	TokensTotal int    `json:"tokens_total"`
	DurationMS  int64  `json:"duration_ms"`
	CreatedAt   string `json:"created_at"`
}

func taskToResponse(st *state.ExecutionState) TaskResponse {
	resp := TaskResponse{
		TaskID:        st.TaskID,
		TaskFile:      st.TaskFile,
		Phase:         string(st.Phase),
		Iteration:     st.CurrentIteration,
		MaxIterations: st.MaxIterations,
		TokensTotal:   st.TotalTokens(),
		FixInfo:       st.FixInfo,
		FailureReason: st.FailureReason,
		StartedAt:     st.StartedAt.Format(time.RFC3339),
		UpdatedAt:     st.UpdatedAt.Format(time.RFC3339),
	}
	if st.CompletedAt != nil {
		t := st.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &t
	}
	return resp
}

func iterationToResponse(rec *state.IterationRecord) IterationResponse {
	resp := IterationResponse{
		Iteration: rec.Iteration,
		FixInfo:   rec.FixInfo,
		Tokens:    rec.TokensUsed(),
	}
	for _, phase := range []state.Phase{
		state.PhaseImplementation,
		state.PhaseQA,
		state.PhaseCodeQuality,
		state.PhaseManager,
		state.PhaseCompletionCheck,
	} {
		res := rec.ResultFor(phase)
		if res == nil {
			continue
		}
		resp.Phases = append(resp.Phases, exec{
			Phase:   string(phase),
			Success: res.Success,
			Error:   res.Error,
		})
	}
	return resp
}

func invocationToResponse(inv *history.Invocation) InvocationResponse {
	return InvocationResponse{
		Iteration:   inv.Iteration,
		Phase:       string(inv.Phase),
		Runner:      inv.Runner,
		Success:     inv.Success,
		Error:       inv.Error,
		TokensTotal: inv.TokensTotal,
		DurationMS:  inv.Duration.Milliseconds(),
		CreatedAt:   inv.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) listTasksHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		ids, err := s.states.ListTasks()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		responses := make([]TaskResponse, 0, len(ids))
		for _, id := range ids {
			st, err := s.states.Load(id)
			if err != nil {
				s.logger.Warn("skipping unreadable state", "task_id", id, "error", err)
				continue
			}
			responses = append(responses, taskToResponse(st))
		}

		writeJSON(w, responses)
	}
}

func (s *Server) getTaskHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		taskID := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
		if taskID == "" {
			writeError(w, http.StatusBadRequest, "task ID required")
			return
		}

		st, err := s.states.Load(taskID)
		if errors.Is(err, state.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		detail := TaskDetailResponse{TaskResponse: taskToResponse(st)}
		for i := range st.Iterations {
			detail.Iterations = append(detail.Iterations, iterationToResponse(st.Iterations[i]))
		}

		writeJSON(w, detail)
	}
}

func (s *Server) historyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		if s.history == nil {
			writeError(w, http.StatusServiceUnavailable, "history recording is disabled")
			return
		}

		taskID := strings.TrimPrefix(r.URL.Path, "/api/history/")
		if taskID == "" {
			writeError(w, http.StatusBadRequest, "task ID required")
			return
		}

		invocations, err := s.history.ForTask(taskID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		responses := make([]InvocationResponse, len(invocations))
		for i, inv := range invocations {
			responses[i] = invocationToResponse(inv)
		}

		writeJSON(w, responses)
	}
}
