package health

import (
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/opsdeck/cos/internal/notify"
)

type fakeProcesses struct {
	pids map[string]int
}

func (f fakeProcesses) ActivePIDs() map[string]int { return f.pids }

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Send(n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func newTestMonitor(ceiling uint64, procs ProcessLister, notifier notify.Notifier, rss map[int]uint64) *Monitor {
	m := NewMonitor(time.Minute, ceiling, procs, notifier, nil)
	m.readRSS = func(pid int) (uint64, error) {
		v, ok := rss[pid]
		if !ok {
			return 0, fmt.Errorf("pid %d gone", pid)
		}
		return v, nil
	}
	return m
}

func TestMonitor_AlertsOverCeiling(t *testing.T) {
	rec := &recordingNotifier{}
	rss := map[int]uint64{
		os.Getpid(): 100 << 20,
		4242:        3 << 30,
	}
	m := newTestMonitor(1<<30, fakeProcesses{map[string]int{"r1": 4242}}, rec, rss)

	m.Check()
	if rec.count() != 1 {
		t.Fatalf("sent %d notifications, want 1", rec.count())
	}
	if rec.sent[0].Type != notify.NotifyWarning {
		t.Errorf("Type = %v, want warning", rec.sent[0].Type)
	}
}

func TestMonitor_AlertsOncePerBreach(t *testing.T) {
	rec := &recordingNotifier{}
	rss := map[int]uint64{
		os.Getpid(): 100 << 20,
		4242:        3 << 30,
	}
	m := newTestMonitor(1<<30, fakeProcesses{map[string]int{"r1": 4242}}, rec, rss)

	m.Check()
	m.Check()
	m.Check()
	if rec.count() != 1 {
		t.Errorf("sent %d notifications for a sustained breach, want 1", rec.count())
	}

	// Dropping under the ceiling re-arms the alert.
	rss[4242] = 100 << 20
	m.Check()
	rss[4242] = 3 << 30
	m.Check()
	if rec.count() != 2 {
		t.Errorf("sent %d notifications after re-breach, want 2", rec.count())
	}
}

func TestMonitor_ZeroCeilingDisablesChecks(t *testing.T) {
	rec := &recordingNotifier{}
	rss := map[int]uint64{os.Getpid(): 10 << 30}
	m := newTestMonitor(0, nil, rec, rss)

	m.Check()
	if rec.count() != 0 {
		t.Errorf("zero ceiling should disable checks, sent %d", rec.count())
	}
}

func TestReadProcRSS_Self(t *testing.T) {
	rss, err := readProcRSS(os.Getpid())
	if err != nil {
		t.Skipf("/proc not readable: %v", err)
	}
	if rss == 0 {
		t.Error("own RSS should be nonzero")
	}
}
