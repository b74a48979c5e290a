package taskstore

import (
	"testing"
)

func TestStore_RecordSampleAndStats(t *testing.T) {
	store := newTestStore(t)

	durations := []int64{60_000, 120_000, 180_000, 240_000, 300_000}
	for _, d := range durations {
		if err := store.RecordSample("bug-fix", d, true); err != nil {
			t.Fatal(err)
		}
	}
	store.RecordSample("bug-fix", 600_000, false)

	stat, err := store.GetStat("bug-fix")
	if err != nil {
		t.Fatal(err)
	}
	if stat == nil {
		t.Fatal("stat is nil")
	}
	if stat.Completed != 6 {
		t.Errorf("Completed = %d, want 6", stat.Completed)
	}
	// Nearest-rank p80 over 6 sorted samples is the 5th value.
	if stat.P80DurationMs != 300_000 {
		t.Errorf("P80DurationMs = %d, want 300000", stat.P80DurationMs)
	}
	wantRate := 5.0 / 6.0
	if diff := stat.SuccessRate - wantRate; diff > 0.001 || diff < -0.001 {
		t.Errorf("SuccessRate = %f, want %f", stat.SuccessRate, wantRate)
	}
	wantAvg := 25.0 / 6.0 // (1+2+3+4+5+10) minutes over 6 samples
	if diff := stat.AvgDurationMin - wantAvg; diff > 0.001 || diff < -0.001 {
		t.Errorf("AvgDurationMin = %f, want %f", stat.AvgDurationMin, wantAvg)
	}
}

func TestStore_RecordSample_SingleSample(t *testing.T) {
	store := newTestStore(t)

	if err := store.RecordSample("docs", 90_000, true); err != nil {
		t.Fatal(err)
	}
	stat, err := store.GetStat("docs")
	if err != nil {
		t.Fatal(err)
	}
	if stat.Completed != 1 {
		t.Errorf("Completed = %d, want 1", stat.Completed)
	}
	if stat.P80DurationMs != 90_000 {
		t.Errorf("P80DurationMs = %d, want the lone sample", stat.P80DurationMs)
	}
	if stat.SuccessRate != 1.0 {
		t.Errorf("SuccessRate = %f, want 1.0", stat.SuccessRate)
	}
}

func TestStore_GetStat_EmptyBucket(t *testing.T) {
	store := newTestStore(t)

	stat, err := store.GetStat("nothing-here")
	if err != nil {
		t.Fatal(err)
	}
	if stat != nil {
		t.Errorf("empty bucket should yield nil, got %+v", stat)
	}
}

func TestStore_ListStats(t *testing.T) {
	store := newTestStore(t)

	store.RecordSample("bug-fix", 60_000, true)
	store.RecordSample("feature", 120_000, true)

	stats, err := store.ListStats()
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 2 {
		t.Fatalf("len(stats) = %d, want 2", len(stats))
	}
	// Ordered by bucket name.
	if stats[0].Bucket != "bug-fix" || stats[1].Bucket != "feature" {
		t.Errorf("order = %q, %q", stats[0].Bucket, stats[1].Bucket)
	}
}
