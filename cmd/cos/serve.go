package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/opsdeck/cos/internal/autonomy"
	"github.com/opsdeck/cos/internal/config"
	"github.com/opsdeck/cos/internal/evaluator"
	"github.com/opsdeck/cos/internal/executor"
	"github.com/opsdeck/cos/internal/gate"
	"github.com/opsdeck/cos/internal/health"
	"github.com/opsdeck/cos/internal/learning"
	"github.com/opsdeck/cos/internal/notify"
	"github.com/opsdeck/cos/internal/schedule"
	"github.com/opsdeck/cos/internal/taskstore"
	"github.com/opsdeck/cos/web/api"
)

var servePort int

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestration daemon",
		Long: `Serve runs the full daemon: the evaluation loop, the agent manager,
the health monitor, and the HTTP API.`,
		RunE: runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "API port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

// notifierAdapter turns evaluator completion callbacks into notifications.
type notifierAdapter struct {
	notifier notify.Notifier
}

func (a *notifierAdapter) TaskCompleted(task string, success bool, errMsg string) {
	n := notify.Notification{
		Title:   "Task completed",
		Message: task,
		Type:    notify.NotifySuccess,
	}
	if !success {
		n.Title = "Task failed"
		n.Type = notify.NotifyError
		if errMsg != "" {
			n.Message = fmt.Sprintf("%s: %s", task, errMsg)
		}
	}
	a.notifier.Send(n)
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	var notifiers []notify.Notifier
	if cfg.Notifications.Desktop {
		notifiers = append(notifiers, notify.NewDesktopNotifier(true))
	}
	if cfg.Notifications.SlackWebhook != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.Notifications.SlackWebhook))
	}
	if len(notifiers) == 0 {
		return notify.NoopNotifier{}
	}
	return notify.NewMultiNotifier(notifiers...)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := log.New(os.Stderr, "[cos] ", log.LstdFlags)

	store, err := taskstore.New(cfg.General.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	policy, err := autonomy.NewController(cfg.General.AutonomyLevel)
	if err != nil {
		return err
	}

	registry := schedule.NewRegistry(store)
	approvalGate := gate.New(store)
	engine := learning.NewEngine(store)
	manager := executor.NewManager(store, cfg.General.WorkerCommand, cfg.General.AgentLogDir, nil)
	if n, err := manager.Reconcile(); err != nil {
		return fmt.Errorf("reconciling orphaned runs: %w", err)
	} else if n > 0 {
		logger.Printf("settled %d orphaned run(s) from a previous process", n)
	}
	notifier := buildNotifier(cfg)

	eval := evaluator.New(store, registry, approvalGate, manager, engine, policy,
		nil, cfg.General.Apps, nil)
	eval.Notify = &notifierAdapter{notifier: notifier}

	monitor := health.NewMonitor(
		time.Duration(cfg.Health.CheckIntervalMs)*time.Millisecond,
		uint64(cfg.Health.MemoryCeilingMB)*1024*1024,
		manager, notifier, nil)

	port := servePort
	if port == 0 {
		port = cfg.Web.Port
	}
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, port)
	server := api.NewServer(store, registry, approvalGate, manager, engine, policy, addr)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Autonomy level follows config edits without a restart. Other
	// settings still need one.
	cfgPath := configPath
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}
	watcher, err := config.NewWatcher(cfgPath, func(next *config.Config) {
		if next.General.AutonomyLevel == policy.Level() {
			return
		}
		if err := policy.SetLevel(next.General.AutonomyLevel); err != nil {
			logger.Printf("config reload: %v", err)
			return
		}
		logger.Printf("autonomy level changed to %s", next.General.AutonomyLevel)
	})
	if err != nil {
		logger.Printf("config watcher disabled: %v", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eval.Run(ctx) })
	g.Go(func() error { return monitor.Run(ctx) })
	if watcher != nil {
		g.Go(func() error { return watcher.Run(ctx) })
	}
	g.Go(func() error {
		logger.Printf("API listening on http://%s", addr)
		return server.Run(ctx)
	})

	logger.Printf("daemon started at autonomy level %s", policy.Level())
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
