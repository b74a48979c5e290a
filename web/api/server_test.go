package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opsdeck/cos/internal/autonomy"
	"github.com/opsdeck/cos/internal/domain"
	"github.com/opsdeck/cos/internal/executor"
	"github.com/opsdeck/cos/internal/gate"
	"github.com/opsdeck/cos/internal/learning"
	"github.com/opsdeck/cos/internal/schedule"
	"github.com/opsdeck/cos/internal/taskstore"
)

func newTestServer(t *testing.T) (*Server, *taskstore.Store) {
	t.Helper()
	store, err := taskstore.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	policy, err := autonomy.NewController(domain.LevelStandby)
	if err != nil {
		t.Fatal(err)
	}
	manager := executor.NewManager(store, "true", t.TempDir(), nil)
	srv := NewServer(store, schedule.NewRegistry(store), gate.New(store), manager,
		learning.NewEngine(store), policy, "127.0.0.1:0")
	return srv, store
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestServer_TaskCRUD(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	w := doJSON(t, h, http.MethodPost, "/api/tasks", CreateTaskRequest{
		Queue:       "user",
		Description: "Fix the login flow",
		Priority:    "HIGH",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	var created TaskResponse
	json.NewDecoder(w.Body).Decode(&created)
	if created.ID == "" {
		t.Fatal("no id assigned")
	}

	w = doJSON(t, h, http.MethodGet, "/api/tasks?queue=user", nil)
	var tasks []TaskResponse
	json.NewDecoder(w.Body).Decode(&tasks)
	if len(tasks) != 1 || tasks[0].Description != "Fix the login flow" {
		t.Errorf("tasks = %+v", tasks)
	}

	w = doJSON(t, h, http.MethodGet, "/api/tasks/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("get status = %d", w.Code)
	}

	w = doJSON(t, h, http.MethodDelete, "/api/tasks/"+created.ID+"?queue=user", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", w.Code)
	}

	w = doJSON(t, h, http.MethodGet, "/api/tasks/"+created.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestServer_ApproveTask(t *testing.T) {
	srv, store := newTestServer(t)
	h := srv.Handler()

	task := &domain.Task{Queue: domain.QueueUser, Description: "risky"}
	store.AddTask(task, taskstore.PositionBottom)

	w := doJSON(t, h, http.MethodPost, "/api/tasks/"+task.ID+"/approve", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("approve status = %d: %s", w.Code, w.Body.String())
	}

	got, _ := store.GetTask(task.ID)
	if !got.Metadata.Approved {
		t.Error("task not approved")
	}
}

func TestServer_ReorderValidation(t *testing.T) {
	srv, store := newTestServer(t)
	h := srv.Handler()

	a := &domain.Task{Queue: domain.QueueUser, Description: "a"}
	b := &domain.Task{Queue: domain.QueueUser, Description: "b"}
	store.AddTask(a, taskstore.PositionBottom)
	store.AddTask(b, taskstore.PositionBottom)

	w := doJSON(t, h, http.MethodPost, "/api/tasks/reorder", ReorderRequest{
		Queue:      "user",
		OrderedIDs: []string{b.ID, a.ID},
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("reorder status = %d: %s", w.Code, w.Body.String())
	}

	// Incomplete permutation is a 400.
	w = doJSON(t, h, http.MethodPost, "/api/tasks/reorder", ReorderRequest{
		Queue:      "user",
		OrderedIDs: []string{a.ID},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("partial reorder status = %d, want 400", w.Code)
	}
}

func TestServer_Status(t *testing.T) {
	srv, store := newTestServer(t)
	h := srv.Handler()

	store.AddTask(&domain.Task{Queue: domain.QueueUser, Description: "one"}, taskstore.PositionBottom)
	store.AddTask(&domain.Task{Queue: domain.QueueSystem, Description: "two"}, taskstore.PositionBottom)

	w := doJSON(t, h, http.MethodGet, "/api/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var status StatusResponse
	json.NewDecoder(w.Body).Decode(&status)
	if status.Pending != 2 {
		t.Errorf("Pending = %d, want 2", status.Pending)
	}
	if status.Autonomy != domain.LevelStandby {
		t.Errorf("Autonomy = %q", status.Autonomy)
	}
}

func TestServer_Autonomy(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	w := doJSON(t, h, http.MethodGet, "/api/autonomy", nil)
	var resp AutonomyResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Level != domain.LevelStandby {
		t.Errorf("Level = %q, want standby", resp.Level)
	}

	w = doJSON(t, h, http.MethodPut, "/api/autonomy", AutonomyRequest{Level: "manager"})
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d: %s", w.Code, w.Body.String())
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Level != domain.LevelManager {
		t.Errorf("Level = %q, want manager", resp.Level)
	}
	if resp.Config.MaxConcurrentAgents != 2 {
		t.Errorf("MaxConcurrentAgents = %d, want 2", resp.Config.MaxConcurrentAgents)
	}

	w = doJSON(t, h, http.MethodPut, "/api/autonomy", AutonomyRequest{Level: "turbo"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown level status = %d, want 400", w.Code)
	}
}

func TestServer_Schedule(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	w := doJSON(t, h, http.MethodPut, "/api/schedule/app-review", UpdateScheduleRequest{
		Category:     "appImprovement",
		Enabled:      true,
		IntervalType: "daily",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("put config status = %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, h, http.MethodGet, "/api/schedule", nil)
	var configs []ScheduleResponse
	json.NewDecoder(w.Body).Decode(&configs)
	if len(configs) != 1 || configs[0].TaskType != "app-review" {
		t.Errorf("configs = %+v", configs)
	}

	// Overrides round-trip through the API.
	off := false
	w = doJSON(t, h, http.MethodPut, "/api/schedule/app-review/override/webshop",
		AppOverrideResponse{Enabled: &off})
	if w.Code != http.StatusNoContent {
		t.Fatalf("put override status = %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, h, http.MethodGet, "/api/schedule/app-review", nil)
	var cfg ScheduleResponse
	json.NewDecoder(w.Body).Decode(&cfg)
	if len(cfg.Overrides) != 1 || cfg.Overrides[0].AppID != "webshop" {
		t.Errorf("overrides = %+v", cfg.Overrides)
	}

	// Triggering a periodic type is rejected.
	w = doJSON(t, h, http.MethodPost, "/api/schedule/app-review/trigger", TriggerRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("trigger periodic status = %d, want 400", w.Code)
	}

	// Unknown interval type is rejected.
	w = doJSON(t, h, http.MethodPut, "/api/schedule/bad", UpdateScheduleRequest{
		Category:     "appImprovement",
		IntervalType: "fortnightly",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad interval status = %d, want 400", w.Code)
	}
}

func TestServer_ScheduleTriggerOnDemand(t *testing.T) {
	srv, store := newTestServer(t)
	h := srv.Handler()

	doJSON(t, h, http.MethodPut, "/api/schedule/deploy", UpdateScheduleRequest{
		Category:     "appImprovement",
		Enabled:      true,
		IntervalType: "on-demand",
	})

	w := doJSON(t, h, http.MethodPost, "/api/schedule/deploy/trigger", TriggerRequest{AppID: "webshop"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("trigger status = %d: %s", w.Code, w.Body.String())
	}

	has, _ := store.HasOnDemandRequest("deploy", "webshop")
	if !has {
		t.Error("trigger not recorded")
	}
}

func TestServer_EstimateWithoutHistory(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	w := doJSON(t, h, http.MethodGet, "/api/estimate?description=fix+the+bug", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("estimate status = %d, want 404", w.Code)
	}

	w = doJSON(t, h, http.MethodGet, "/api/estimate", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing description status = %d, want 400", w.Code)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	w := doJSON(t, h, http.MethodDelete, "/api/status", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}
