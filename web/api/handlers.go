package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/opsdeck/cos/internal/domain"
	"github.com/opsdeck/cos/internal/executor"
	"github.com/opsdeck/cos/internal/taskstore"
)

// StatusResponse summarizes queue and agent state.
type StatusResponse struct {
	Pending    int    `json:"pending"`
	InProgress int    `json:"inProgress"`
	Completed  int    `json:"completed"`
	Blocked    int    `json:"blocked"`
	Agents     int    `json:"agents"`
	Autonomy   string `json:"autonomy"`
}

// TaskResponse is the wire form of a task.
type TaskResponse struct {
	ID          string              `json:"id"`
	Queue       string              `json:"queue"`
	Description string              `json:"description"`
	Context     string              `json:"context,omitempty"`
	Status      string              `json:"status"`
	Priority    string              `json:"priority"`
	Order       int                 `json:"order"`
	Metadata    domain.TaskMetadata `json:"metadata"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

func taskToResponse(t *domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		Queue:       string(t.Queue),
		Description: t.Description,
		Context:     t.Context,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		Order:       t.Order,
		Metadata:    t.Metadata,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// RunResponse is the wire form of an agent run.
type RunResponse struct {
	ID          string            `json:"id"`
	TaskID      string            `json:"taskId"`
	Queue       string            `json:"queue"`
	PID         int               `json:"pid,omitempty"`
	Status      string            `json:"status"`
	StartedAt   time.Time         `json:"startedAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
	Result      *domain.RunResult `json:"result,omitempty"`
	Output      []string          `json:"output,omitempty"`
}

func runToResponse(r *domain.AgentRun, includeOutput bool) RunResponse {
	resp := RunResponse{
		ID:          r.ID,
		TaskID:      r.TaskID,
		Queue:       string(r.Queue),
		PID:         r.PID,
		Status:      string(r.Status),
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Result:      r.Result,
	}
	if includeOutput {
		resp.Output = r.Output
	}
	return resp
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		tasks, err := s.store.ListTasks(taskstore.ListOptions{})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		var status StatusResponse
		for _, t := range tasks {
			switch t.Status {
			case domain.StatusPending:
				status.Pending++
			case domain.StatusInProgress:
				status.InProgress++
			case domain.StatusCompleted:
				status.Completed++
			case domain.StatusBlocked:
				status.Blocked++
			}
		}
		if s.agents != nil {
			status.Agents = s.agents.ActiveCount()
		}
		status.Autonomy = s.policy.Level()

		writeJSON(w, status)
	}
}

// CreateTaskRequest is the body for POST /api/tasks.
type CreateTaskRequest struct {
	Queue       string              `json:"queue"`
	Description string              `json:"description"`
	Context     string              `json:"context"`
	Priority    string              `json:"priority"`
	Position    string              `json:"position"`
	Metadata    domain.TaskMetadata `json:"metadata"`
}

func (s *Server) tasksHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			opts := taskstore.ListOptions{
				Queue:  domain.Queue(r.URL.Query().Get("queue")),
				Status: domain.TaskStatus(r.URL.Query().Get("status")),
			}
			tasks, err := s.store.ListTasks(opts)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			responses := make([]TaskResponse, len(tasks))
			for i, t := range tasks {
				responses[i] = taskToResponse(t)
			}
			writeJSON(w, responses)

		case http.MethodPost:
			var req CreateTaskRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			task := &domain.Task{
				Queue:       domain.Queue(req.Queue),
				Description: req.Description,
				Context:     req.Context,
				Priority:    domain.Priority(req.Priority),
				Metadata:    req.Metadata,
			}
			pos := taskstore.PositionBottom
			if req.Position == string(taskstore.PositionTop) {
				pos = taskstore.PositionTop
			}
			if err := s.store.AddTask(task, pos); err != nil {
				writeStoreError(w, err)
				return
			}
			s.Broadcast(SSEEvent{Type: "task.created", Data: taskToResponse(task)})
			writeJSON(w, taskToResponse(task))

		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

// ReorderRequest is the body for POST /api/tasks/reorder.
type ReorderRequest struct {
	Queue      string   `json:"queue"`
	OrderedIDs []string `json:"orderedIds"`
}

func (s *Server) reorderHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req ReorderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.store.Reorder(domain.Queue(req.Queue), req.OrderedIDs); err != nil {
			writeStoreError(w, err)
			return
		}
		s.Broadcast(SSEEvent{Type: "queue.reordered", Data: req})
		w.WriteHeader(http.StatusNoContent)
	}
}

// UpdateTaskRequest is the body for PATCH /api/tasks/{id}.
type UpdateTaskRequest struct {
	Description *string              `json:"description"`
	Context     *string              `json:"context"`
	Status      *string              `json:"status"`
	Priority    *string              `json:"priority"`
	Metadata    *domain.TaskMetadata `json:"metadata"`
}

func (s *Server) taskHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
		id, action, _ := strings.Cut(rest, "/")
		if id == "" {
			writeError(w, http.StatusBadRequest, "task id required")
			return
		}

		if action == "approve" {
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			if err := s.gate.Approve(id); err != nil {
				writeStoreError(w, err)
				return
			}
			s.Broadcast(SSEEvent{Type: "task.approved", Data: map[string]string{"id": id}})
			w.WriteHeader(http.StatusNoContent)
			return
		}

		switch r.Method {
		case http.MethodGet:
			task, err := s.store.GetTask(id)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, taskToResponse(task))

		case http.MethodPatch:
			var req UpdateTaskRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			patch := domain.TaskPatch{
				Description: req.Description,
				Context:     req.Context,
				Metadata:    req.Metadata,
			}
			if req.Status != nil {
				st := domain.TaskStatus(*req.Status)
				patch.Status = &st
			}
			if req.Priority != nil {
				p := domain.Priority(*req.Priority)
				patch.Priority = &p
			}
			task, err := s.store.UpdateTask(id, patch)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			s.Broadcast(SSEEvent{Type: "task.updated", Data: taskToResponse(task)})
			writeJSON(w, taskToResponse(task))

		case http.MethodDelete:
			queue := domain.Queue(r.URL.Query().Get("queue"))
			if queue == "" {
				queue = domain.QueueUser
			}
			if err := s.store.DeleteTask(id, queue); err != nil {
				writeStoreError(w, err)
				return
			}
			s.Broadcast(SSEEvent{Type: "task.deleted", Data: map[string]string{"id": id}})
			w.WriteHeader(http.StatusNoContent)

		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

func (s *Server) listAgentsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var runs []*domain.AgentRun
		var err error
		if r.URL.Query().Get("active") == "true" {
			runs, err = s.store.ListActiveRuns()
		} else {
			runs, err = s.store.ListRecentRuns(50)
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		resp := make([]RunResponse, 0, len(runs))
		for _, run := range runs {
			resp = append(resp, runToResponse(run, false))
		}
		writeJSON(w, resp)
	}
}

func (s *Server) clearAgentsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		n, err := s.store.ClearTerminalRuns()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, map[string]int{"cleared": n})
	}
}

// ResumeRequest is the body for POST /api/agents/{id}/resume.
type ResumeRequest struct {
	OutputLines int `json:"outputLines"`
}

func (s *Server) agentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/agents/")
		id, action, _ := strings.Cut(rest, "/")
		if id == "" {
			writeError(w, http.StatusBadRequest, "run id required")
			return
		}

		switch action {
		case "terminate", "kill":
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			var err error
			if action == "kill" {
				err = s.agents.Kill(id)
			} else {
				err = s.agents.Terminate(id)
			}
			if err != nil {
				writeStoreError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		case "resume":
			s.resumeAgent(w, r, id)

		case "ws":
			s.streamAgent(w, r, id)

		case "":
			switch r.Method {
			case http.MethodGet:
				run, err := s.store.GetRun(id)
				if err != nil {
					writeStoreError(w, err)
					return
				}
				// Live agents hold fresher output than the store.
				if a := s.agents.Get(id); a != nil {
					run.Output = a.Output()
				}
				writeJSON(w, runToResponse(run, true))
			case http.MethodDelete:
				if err := s.store.DeleteRun(id); err != nil {
					writeStoreError(w, err)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			default:
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			}

		default:
			writeError(w, http.StatusNotFound, "unknown action "+action)
		}
	}
}

// resumeAgent queues a follow-up task carrying the run's continuation
// context.
func (s *Server) resumeAgent(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ResumeRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.OutputLines <= 0 {
		req.OutputLines = 20
	}

	run, err := s.store.GetRun(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	task, err := s.store.GetTask(run.TaskID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	rc, err := executor.BuildResumeContext(run, task, req.OutputLines)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	followUp := rc.FollowUpTask(task)
	if err := s.store.AddTask(followUp, taskstore.PositionBottom); err != nil {
		writeStoreError(w, err)
		return
	}
	s.Broadcast(SSEEvent{Type: "task.created", Data: taskToResponse(followUp)})
	writeJSON(w, taskToResponse(followUp))
}

func (s *Server) estimateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		description := r.URL.Query().Get("description")
		if description == "" {
			writeError(w, http.StatusBadRequest, "description required")
			return
		}
		est, err := s.learning.Estimate(description)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if est == nil {
			writeError(w, http.StatusNotFound, "no completion history yet")
			return
		}
		writeJSON(w, est)
	}
}

func (s *Server) statsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		stats, err := s.learning.Stats()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, stats)
	}
}

// AutonomyResponse pairs the level name with its parameter bundle.
type AutonomyResponse struct {
	Level  string                `json:"level"`
	Config domain.AutonomyConfig `json:"config"`
}

// AutonomyRequest sets either a canonical level or a custom bundle.
type AutonomyRequest struct {
	Level  string                 `json:"level"`
	Config *domain.AutonomyConfig `json:"config"`
}

func (s *Server) autonomyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, AutonomyResponse{Level: s.policy.Level(), Config: s.policy.Get()})

		case http.MethodPut:
			var req AutonomyRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			if req.Config != nil {
				s.policy.Set(*req.Config)
			} else if err := s.policy.SetLevel(req.Level); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			s.Broadcast(SSEEvent{Type: "autonomy.changed", Data: s.policy.Level()})
			writeJSON(w, AutonomyResponse{Level: s.policy.Level(), Config: s.policy.Get()})

		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}
