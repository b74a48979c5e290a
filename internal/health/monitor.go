// Package health periodically checks resource thresholds for the daemon
// and its worker processes. It runs on its own cadence and shares no
// lock with the evaluator.
package health

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/opsdeck/cos/internal/notify"
)

// ProcessLister reports the worker processes to check. Satisfied by
// executor.Manager.
type ProcessLister interface {
	ActivePIDs() map[string]int
}

// Monitor checks memory ceilings and raises notifications when exceeded.
type Monitor struct {
	interval    time.Duration
	memCeiling  uint64 // bytes; 0 disables the check
	processes   ProcessLister
	notifier    notify.Notifier
	logger      *log.Logger
	alerted     map[string]bool // run id (or "self") -> alert already sent
	readRSS     func(pid int) (uint64, error)
}

// NewMonitor creates a Monitor checking every interval against the given
// per-process memory ceiling in bytes.
func NewMonitor(interval time.Duration, memCeiling uint64, processes ProcessLister, notifier notify.Notifier, logger *log.Logger) *Monitor {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[health] ", log.LstdFlags)
	}
	return &Monitor{
		interval:   interval,
		memCeiling: memCeiling,
		processes:  processes,
		notifier:   notifier,
		logger:     logger,
		alerted:    make(map[string]bool),
		readRSS:    readProcRSS,
	}
}

// Run executes checks until ctx is cancelled. Check failures are logged,
// never propagated.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Check()
		}
	}
}

// Check performs one pass over the daemon and worker processes.
func (m *Monitor) Check() {
	if m.memCeiling == 0 {
		return
	}

	m.checkProcess("self", os.Getpid())
	if m.processes != nil {
		for runID, pid := range m.processes.ActivePIDs() {
			m.checkProcess(runID, pid)
		}
	}
}

func (m *Monitor) checkProcess(key string, pid int) {
	rss, err := m.readRSS(pid)
	if err != nil {
		m.logger.Printf("reading memory of pid %d: %v", pid, err)
		return
	}

	if rss <= m.memCeiling {
		delete(m.alerted, key)
		return
	}
	if m.alerted[key] {
		return
	}
	m.alerted[key] = true

	msg := fmt.Sprintf("process %d uses %s, ceiling is %s",
		pid, humanize.IBytes(rss), humanize.IBytes(m.memCeiling))
	m.logger.Printf("memory ceiling exceeded: %s", msg)
	if err := m.notifier.Send(notify.Notification{
		Title:   "Memory ceiling exceeded",
		Message: msg,
		Type:    notify.NotifyWarning,
	}); err != nil {
		m.logger.Printf("sending health notification: %v", err)
	}
}

// readProcRSS reads a process's resident set size from /proc.
func readProcRSS(pid int) (uint64, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, err
		}
		return kb * 1024, nil
	}
	return 0, fmt.Errorf("no VmRSS line for pid %d", pid)
}
