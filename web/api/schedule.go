package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/opsdeck/cos/internal/domain"
)

// ScheduleResponse is the wire form of a task type config plus its app
// overrides.
type ScheduleResponse struct {
	TaskType      string                `json:"taskType"`
	Category      string                `json:"category"`
	Enabled       bool                  `json:"enabled"`
	IntervalType  string                `json:"intervalType"`
	IntervalMs    int64                 `json:"intervalMs"`
	CronExpr      string                `json:"cronExpr,omitempty"`
	ScheduledTime string                `json:"scheduledTime,omitempty"`
	ProviderID    string                `json:"providerId,omitempty"`
	Model         string                `json:"model,omitempty"`
	Prompt        string                `json:"prompt,omitempty"`
	LastRun       *time.Time            `json:"lastRun,omitempty"`
	RunCount      int                   `json:"runCount"`
	Overrides     []AppOverrideResponse `json:"overrides,omitempty"`
}

// AppOverrideResponse is the wire form of a per-app override.
type AppOverrideResponse struct {
	AppID      string `json:"appId"`
	Enabled    *bool  `json:"enabled,omitempty"`
	IntervalMs *int64 `json:"intervalMs,omitempty"`
}

func configToResponse(cfg *domain.TaskTypeConfig, overrides []*domain.AppOverride) ScheduleResponse {
	resp := ScheduleResponse{
		TaskType:      cfg.TaskType,
		Category:      string(cfg.Category),
		Enabled:       cfg.Enabled,
		IntervalType:  string(cfg.IntervalType),
		IntervalMs:    cfg.IntervalMs,
		CronExpr:      cfg.CronExpr,
		ScheduledTime: cfg.ScheduledTime,
		ProviderID:    cfg.ProviderID,
		Model:         cfg.Model,
		Prompt:        cfg.Prompt,
		LastRun:       cfg.LastRun,
		RunCount:      cfg.RunCount,
	}
	for _, ov := range overrides {
		resp.Overrides = append(resp.Overrides, AppOverrideResponse{
			AppID:      ov.AppID,
			Enabled:    ov.Enabled,
			IntervalMs: ov.IntervalMs,
		})
	}
	return resp
}

func (s *Server) listScheduleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		configs, err := s.registry.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp := make([]ScheduleResponse, 0, len(configs))
		for _, cfg := range configs {
			overrides, err := s.registry.ListOverrides(cfg.TaskType)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			resp = append(resp, configToResponse(cfg, overrides))
		}
		writeJSON(w, resp)
	}
}

// UpdateScheduleRequest is the body for PUT /api/schedule/{taskType}.
type UpdateScheduleRequest struct {
	Category      string `json:"category"`
	Enabled       bool   `json:"enabled"`
	IntervalType  string `json:"intervalType"`
	IntervalMs    int64  `json:"intervalMs"`
	CronExpr      string `json:"cronExpr"`
	ScheduledTime string `json:"scheduledTime"`
	ProviderID    string `json:"providerId"`
	Model         string `json:"model"`
	Prompt        string `json:"prompt"`
}

// TriggerRequest is the body for POST /api/schedule/{taskType}/trigger.
type TriggerRequest struct {
	AppID string `json:"appId"`
}

func (s *Server) scheduleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/schedule/")
		taskType, action, _ := strings.Cut(rest, "/")
		if taskType == "" {
			writeError(w, http.StatusBadRequest, "task type required")
			return
		}

		switch {
		case action == "":
			s.scheduleConfig(w, r, taskType)
		case action == "trigger":
			s.scheduleTrigger(w, r, taskType)
		case action == "reset":
			s.scheduleReset(w, r, taskType)
		case strings.HasPrefix(action, "override"):
			_, appID, _ := strings.Cut(action, "/")
			s.scheduleOverride(w, r, taskType, appID)
		default:
			writeError(w, http.StatusNotFound, "unknown action "+action)
		}
	}
}

func (s *Server) scheduleConfig(w http.ResponseWriter, r *http.Request, taskType string) {
	switch r.Method {
	case http.MethodGet:
		cfg, err := s.registry.Get(taskType)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		overrides, err := s.registry.ListOverrides(taskType)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, configToResponse(cfg, overrides))

	case http.MethodPut:
		var req UpdateScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		cfg := &domain.TaskTypeConfig{
			TaskType:      taskType,
			Category:      domain.Category(req.Category),
			Enabled:       req.Enabled,
			IntervalType:  domain.IntervalType(req.IntervalType),
			IntervalMs:    req.IntervalMs,
			CronExpr:      req.CronExpr,
			ScheduledTime: req.ScheduledTime,
			ProviderID:    req.ProviderID,
			Model:         req.Model,
			Prompt:        req.Prompt,
		}
		if err := s.registry.Update(cfg); err != nil {
			writeStoreError(w, err)
			return
		}
		s.Broadcast(SSEEvent{Type: "schedule.updated", Data: map[string]string{"taskType": taskType}})
		writeJSON(w, configToResponse(cfg, nil))

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) scheduleTrigger(w http.ResponseWriter, r *http.Request, taskType string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req TriggerRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if err := s.registry.Trigger(taskType, req.AppID); err != nil {
		writeStoreError(w, err)
		return
	}
	s.Broadcast(SSEEvent{Type: "schedule.triggered",
		Data: map[string]string{"taskType": taskType, "appId": req.AppID}})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) scheduleReset(w http.ResponseWriter, r *http.Request, taskType string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.registry.Reset(taskType); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) scheduleOverride(w http.ResponseWriter, r *http.Request, taskType, appID string) {
	if appID == "" {
		writeError(w, http.StatusBadRequest, "app id required")
		return
	}

	switch r.Method {
	case http.MethodPut:
		var req AppOverrideResponse
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		ov := &domain.AppOverride{
			TaskType:   taskType,
			AppID:      appID,
			Enabled:    req.Enabled,
			IntervalMs: req.IntervalMs,
		}
		if err := s.registry.SetOverride(ov); err != nil {
			writeStoreError(w, err)
			return
		}
		s.Broadcast(SSEEvent{Type: "schedule.updated", Data: map[string]string{"taskType": taskType}})
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		if err := s.registry.ClearOverride(taskType, appID); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
