package taskstore

import (
	"errors"
	"testing"
	"time"

	"github.com/opsdeck/cos/internal/domain"
)

func TestStore_UpsertPreservesRunHistory(t *testing.T) {
	store := newTestStore(t)

	cfg := &domain.TaskTypeConfig{
		TaskType:     "app-review",
		Category:     domain.CategoryAppImprovement,
		Enabled:      true,
		IntervalType: domain.IntervalDaily,
	}
	if err := store.UpsertTaskTypeConfig(cfg); err != nil {
		t.Fatal(err)
	}

	at := time.Now().UTC().Truncate(time.Second)
	if err := store.MarkTaskTypeRun("app-review", at); err != nil {
		t.Fatal(err)
	}

	// Re-upserting the config must not wipe last_run/run_count.
	cfg.IntervalMs = 3_600_000
	if err := store.UpsertTaskTypeConfig(cfg); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetTaskTypeConfig("app-review")
	if err != nil {
		t.Fatal(err)
	}
	if got.IntervalMs != 3_600_000 {
		t.Errorf("IntervalMs = %d, want 3600000", got.IntervalMs)
	}
	if got.RunCount != 1 {
		t.Errorf("RunCount = %d, want 1", got.RunCount)
	}
	if got.LastRun == nil || !got.LastRun.Equal(at) {
		t.Errorf("LastRun = %v, want %v", got.LastRun, at)
	}
}

func TestStore_ResetTaskType(t *testing.T) {
	store := newTestStore(t)

	store.UpsertTaskTypeConfig(&domain.TaskTypeConfig{
		TaskType:     "backup",
		Category:     domain.CategorySelfImprovement,
		Enabled:      true,
		IntervalType: domain.IntervalOnce,
	})
	store.MarkTaskTypeRun("backup", time.Now().UTC())

	if err := store.ResetTaskType("backup"); err != nil {
		t.Fatal(err)
	}
	got, _ := store.GetTaskTypeConfig("backup")
	if got.RunCount != 0 || got.LastRun != nil {
		t.Errorf("after reset: RunCount = %d, LastRun = %v", got.RunCount, got.LastRun)
	}

	if err := store.ResetTaskType("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("resetting unknown type: err = %v, want ErrNotFound", err)
	}
}

func TestStore_AppOverrides(t *testing.T) {
	store := newTestStore(t)

	enabled := false
	interval := int64(10_000)
	ov := &domain.AppOverride{
		TaskType: "app-review",
		AppID:    "webshop",
		Enabled:  &enabled,
	}
	if err := store.SetAppOverride(ov); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetAppOverride("app-review", "webshop")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Enabled == nil || *got.Enabled {
		t.Errorf("override = %+v, want Enabled=false", got)
	}
	if got.IntervalMs != nil {
		t.Errorf("IntervalMs should be unset, got %v", *got.IntervalMs)
	}

	// Replacing the override.
	ov.Enabled = nil
	ov.IntervalMs = &interval
	if err := store.SetAppOverride(ov); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetAppOverride("app-review", "webshop")
	if got.Enabled != nil {
		t.Error("Enabled should now be unset")
	}
	if got.IntervalMs == nil || *got.IntervalMs != 10_000 {
		t.Errorf("IntervalMs = %v, want 10000", got.IntervalMs)
	}

	// Absent override is nil, not an error.
	got, err = store.GetAppOverride("app-review", "other")
	if err != nil || got != nil {
		t.Errorf("absent override: got %+v, err %v", got, err)
	}

	if err := store.DeleteAppOverride("app-review", "webshop"); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetAppOverride("app-review", "webshop")
	if got != nil {
		t.Error("override still present after delete")
	}
}

func TestStore_OnDemandRequests(t *testing.T) {
	store := newTestStore(t)

	if err := store.AddOnDemandRequest("deploy", "webshop"); err != nil {
		t.Fatal(err)
	}

	// App-specific request matches only that app.
	has, _ := store.HasOnDemandRequest("deploy", "webshop")
	if !has {
		t.Error("webshop request should match")
	}
	has, _ = store.HasOnDemandRequest("deploy", "blog")
	if has {
		t.Error("blog should not match a webshop-only request")
	}

	// A global request matches any app.
	store.AddOnDemandRequest("deploy", "")
	has, _ = store.HasOnDemandRequest("deploy", "blog")
	if !has {
		t.Error("global request should match blog")
	}
}

func TestStore_ConsumeOnDemandRequest_PrefersExactApp(t *testing.T) {
	store := newTestStore(t)

	store.AddOnDemandRequest("deploy", "webshop")
	store.AddOnDemandRequest("deploy", "")

	// Consuming for webshop removes the app-specific row, leaving the
	// global one for other apps.
	if err := store.ConsumeOnDemandRequest("deploy", "webshop"); err != nil {
		t.Fatal(err)
	}
	has, _ := store.HasOnDemandRequest("deploy", "blog")
	if !has {
		t.Error("global request should survive consuming the webshop one")
	}

	// Consuming again for webshop now eats the global request.
	if err := store.ConsumeOnDemandRequest("deploy", "webshop"); err != nil {
		t.Fatal(err)
	}
	has, _ = store.HasOnDemandRequest("deploy", "blog")
	if has {
		t.Error("all requests should be consumed")
	}
}
