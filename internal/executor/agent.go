package executor

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/opsdeck/cos/internal/domain"
)

// maxOutputLines caps the in-memory output buffer per agent. Older lines
// are dropped; the full stream stays in the log file.
const maxOutputLines = 500

// Agent represents one external worker process executing a task.
type Agent struct {
	ID        string
	Task      *domain.Task
	PID       int
	Status    domain.RunStatus
	StartedAt time.Time

	Command string
	WorkDir string
	LogPath string

	output    []string
	cancelled bool

	cmd     *exec.Cmd
	cancel  context.CancelFunc
	logFile *os.File
	mu      sync.Mutex
}

// buildArgs assembles the worker invocation from the task's routing
// metadata. The worker receives the description and context as its prompt
// and provider/model/app bindings as flags.
func (a *Agent) buildArgs() []string {
	args := []string{"--print"}
	if a.Task.Metadata.ProviderID != "" {
		args = append(args, "--provider", a.Task.Metadata.ProviderID)
	}
	if a.Task.Metadata.Model != "" {
		args = append(args, "--model", a.Task.Metadata.Model)
	}
	if a.Task.Metadata.AppID != "" {
		args = append(args, "--app", a.Task.Metadata.AppID)
	}
	prompt := a.Task.Description
	if a.Task.Context != "" {
		prompt += "\n\n" + a.Task.Context
	}
	return append(args, "-p", prompt)
}

// start launches the worker process and begins streaming its output.
// It returns as soon as the process is running.
func (a *Agent) start(ctx context.Context, onExit func(a *Agent, err error)) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	logFile, err := os.Create(a.LogPath)
	if err != nil {
		return err
	}
	a.logFile = logFile

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.cmd = exec.CommandContext(ctx, a.Command, a.buildArgs()...)
	if a.WorkDir != "" {
		a.cmd.Dir = a.WorkDir
	}

	stdout, err := a.cmd.StdoutPipe()
	if err != nil {
		a.logFile.Close()
		return err
	}
	stderr, err := a.cmd.StderrPipe()
	if err != nil {
		a.logFile.Close()
		return err
	}

	if err := a.cmd.Start(); err != nil {
		a.logFile.Close()
		return err
	}

	a.PID = a.cmd.Process.Pid
	a.Status = domain.RunRunning

	go a.streamOutput(stdout, stderr, onExit)

	return nil
}

// streamOutput reads worker output until the process exits, then reports
// the exit to the manager.
func (a *Agent) streamOutput(stdout, stderr io.ReadCloser, onExit func(a *Agent, err error)) {
	var wg sync.WaitGroup
	wg.Add(2)

	readLines := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			a.mu.Lock()
			a.output = append(a.output, line)
			if len(a.output) > maxOutputLines {
				a.output = a.output[len(a.output)-maxOutputLines:]
			}
			if a.logFile != nil {
				a.logFile.WriteString(line + "\n")
			}
			a.mu.Unlock()
		}
	}

	go readLines(stdout)
	go readLines(stderr)
	wg.Wait()

	err := a.cmd.Wait()

	a.mu.Lock()
	if a.logFile != nil {
		a.logFile.Close()
		a.logFile = nil
	}
	a.mu.Unlock()

	onExit(a, err)
}

// Output returns a copy of the buffered output lines.
func (a *Agent) Output() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.output))
	copy(out, a.output)
	return out
}

// signal delivers sig to the worker process.
func (a *Agent) signal(sig syscall.Signal) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cmd == nil || a.cmd.Process == nil {
		return nil
	}
	return a.cmd.Process.Signal(sig)
}

// markCancelled flags the agent so its exit is settled as cancelled
// rather than failed.
func (a *Agent) markCancelled() {
	a.mu.Lock()
	a.cancelled = true
	a.mu.Unlock()
}

func (a *Agent) wasCancelled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancelled
}

// defaultLogPath places agent logs under dir, one file per run.
func defaultLogPath(dir, runID string) string {
	return filepath.Join(dir, runID+".log")
}
