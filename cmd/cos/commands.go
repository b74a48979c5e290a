package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/opsdeck/cos/internal/config"
	"github.com/opsdeck/cos/internal/domain"
	"github.com/opsdeck/cos/internal/gate"
	"github.com/opsdeck/cos/internal/learning"
	"github.com/opsdeck/cos/internal/schedule"
	"github.com/opsdeck/cos/internal/taskstore"
	"github.com/opsdeck/cos/tui"
)

var (
	addQueue    string
	addPriority string
	addContext  string
	addApp      string
	addTop      bool
	listQueue   string
	listStatus  string
	deleteQueue string
	triggerApp  string
	agentsAll   bool
)

func init() {
	// task command group
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Manage the task queues",
	}

	addCmd := &cobra.Command{
		Use:   "add DESCRIPTION",
		Short: "Add a task to a queue",
		Args:  cobra.ExactArgs(1),
		RunE:  runTaskAdd,
	}
	addCmd.Flags().StringVar(&addQueue, "queue", "user", "queue (user or system)")
	addCmd.Flags().StringVar(&addPriority, "priority", "MEDIUM", "priority (LOW, MEDIUM, HIGH, CRITICAL)")
	addCmd.Flags().StringVar(&addContext, "context", "", "extra context passed to the worker")
	addCmd.Flags().StringVar(&addApp, "app", "", "target application id")
	addCmd.Flags().BoolVar(&addTop, "top", false, "insert at the top of the queue")
	taskCmd.AddCommand(addCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE:  runTaskList,
	}
	listCmd.Flags().StringVar(&listQueue, "queue", "", "filter by queue")
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	taskCmd.AddCommand(listCmd)

	taskCmd.AddCommand(&cobra.Command{
		Use:   "approve TASK",
		Short: "Approve a held task",
		Args:  cobra.ExactArgs(1),
		RunE:  runTaskApprove,
	})

	deleteCmd := &cobra.Command{
		Use:   "delete TASK",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE:  runTaskDelete,
	}
	deleteCmd.Flags().StringVar(&deleteQueue, "queue", "user", "queue the task lives in")
	taskCmd.AddCommand(deleteCmd)

	taskCmd.AddCommand(&cobra.Command{
		Use:   "reorder QUEUE ID...",
		Short: "Reorder a queue's pending tasks",
		Long: `Reorder replaces the pending order of a queue. The id list must name
every pending task in the queue exactly once.`,
		Args: cobra.MinimumNArgs(2),
		RunE: runTaskReorder,
	})

	taskCmd.AddCommand(&cobra.Command{
		Use:   "export",
		Short: "Dump all tasks as JSON",
		RunE:  runTaskExport,
	})
	rootCmd.AddCommand(taskCmd)

	// agents command group
	agentsCmd := &cobra.Command{
		Use:   "agents",
		Short: "Inspect and control agent runs",
	}
	agentsListCmd := &cobra.Command{
		Use:   "list",
		Short: "List agent runs",
		RunE:  runAgentsList,
	}
	agentsListCmd.Flags().BoolVar(&agentsAll, "all", false, "include finished runs")
	agentsCmd.AddCommand(agentsListCmd)
	agentsCmd.AddCommand(&cobra.Command{
		Use:   "terminate RUN",
		Short: "Stop an agent gracefully",
		Args:  cobra.ExactArgs(1),
		RunE:  runAgentSignal("terminate"),
	})
	agentsCmd.AddCommand(&cobra.Command{
		Use:   "kill RUN",
		Short: "Stop an agent forcibly",
		Args:  cobra.ExactArgs(1),
		RunE:  runAgentSignal("kill"),
	})
	rootCmd.AddCommand(agentsCmd)

	// schedule command group
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage scheduled task types",
	}
	scheduleCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List task type configurations",
		RunE:  runScheduleList,
	})
	triggerCmd := &cobra.Command{
		Use:   "trigger TASKTYPE",
		Short: "Queue an on-demand run of a task type",
		Args:  cobra.ExactArgs(1),
		RunE:  runScheduleTrigger,
	}
	triggerCmd.Flags().StringVar(&triggerApp, "app", "", "restrict the run to one app")
	scheduleCmd.AddCommand(triggerCmd)
	scheduleCmd.AddCommand(&cobra.Command{
		Use:   "reset TASKTYPE",
		Short: "Clear a task type's run history",
		Args:  cobra.ExactArgs(1),
		RunE:  runScheduleReset,
	})
	rootCmd.AddCommand(scheduleCmd)

	// autonomy command
	autonomyCmd := &cobra.Command{
		Use:   "autonomy [LEVEL]",
		Short: "Show or set the running daemon's autonomy level",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runAutonomy,
	}
	rootCmd.AddCommand(autonomyCmd)

	// estimate command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "estimate DESCRIPTION",
		Short: "Estimate a task's duration from completion history",
		Args:  cobra.ExactArgs(1),
		RunE:  runEstimate,
	})

	// status command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show queue and agent counts",
		RunE:  runStatus,
	})

	// tui command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "tui",
		Short: "Launch the TUI dashboard",
		RunE:  runTUI,
	})
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func openStore() (*taskstore.Store, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := taskstore.New(cfg.General.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	task := &domain.Task{
		Queue:       domain.Queue(addQueue),
		Description: args[0],
		Context:     addContext,
		Priority:    domain.Priority(addPriority),
		Metadata:    domain.TaskMetadata{AppID: addApp},
	}
	pos := taskstore.PositionBottom
	if addTop {
		pos = taskstore.PositionTop
	}
	if err := store.AddTask(task, pos); err != nil {
		return err
	}
	fmt.Printf("Added task %s to %s queue\n", task.ID, task.Queue)
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	tasks, err := store.ListTasks(taskstore.ListOptions{
		Queue:  domain.Queue(listQueue),
		Status: domain.TaskStatus(listStatus),
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tQUEUE\tSTATUS\tPRIORITY\tGATE\tDESCRIPTION")
	for _, t := range tasks {
		gateState := "-"
		if t.Status == domain.StatusPending && !t.Metadata.AutoApproved && !t.Metadata.Approved {
			gateState = "held"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Queue, t.Status, t.Priority, gateState, t.Description)
	}
	w.Flush()
	return nil
}

func runTaskApprove(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := gate.New(store).Approve(args[0]); err != nil {
		return err
	}
	fmt.Printf("Approved task %s\n", args[0])
	return nil
}

func runTaskDelete(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteTask(args[0], domain.Queue(deleteQueue)); err != nil {
		return err
	}
	fmt.Printf("Deleted task %s\n", args[0])
	return nil
}

func runTaskReorder(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	queue := domain.Queue(args[0])
	if err := store.Reorder(queue, args[1:]); err != nil {
		return err
	}
	fmt.Printf("Reordered %d tasks in %s queue\n", len(args)-1, queue)
	return nil
}

func runTaskExport(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	tasks, err := store.ListTasks(taskstore.ListOptions{})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(tasks)
}

func runAgentsList(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	var runs []*domain.AgentRun
	if agentsAll {
		runs, err = store.ListRecentRuns(50)
	} else {
		runs, err = store.ListActiveRuns()
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tTASK\tSTATUS\tSTARTED\tDURATION")
	now := time.Now()
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.TaskID, r.Status, humanize.Time(r.StartedAt), r.Duration(now).Round(time.Second))
	}
	w.Flush()
	return nil
}

// runAgentSignal goes through the daemon's API: only the daemon owns the
// worker processes.
func runAgentSignal(action string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		url := fmt.Sprintf("http://%s:%d/api/agents/%s/%s", cfg.Web.Host, cfg.Web.Port, args[0], action)
		resp, err := http.Post(url, "application/json", nil)
		if err != nil {
			return fmt.Errorf("reaching daemon: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			var body struct {
				Error string `json:"error"`
			}
			json.NewDecoder(resp.Body).Decode(&body)
			return fmt.Errorf("daemon refused: %s", body.Error)
		}
		fmt.Printf("Sent %s to run %s\n", action, args[0])
		return nil
	}
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	configs, err := schedule.NewRegistry(store).List()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tCATEGORY\tENABLED\tINTERVAL\tLAST RUN\tRUNS")
	for _, c := range configs {
		interval := string(c.IntervalType)
		if c.IntervalType == domain.IntervalCustom && c.CronExpr != "" {
			interval = c.CronExpr
		}
		lastRun := "never"
		if c.LastRun != nil {
			lastRun = humanize.Time(*c.LastRun)
		}
		fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%s\t%d\n",
			c.TaskType, c.Category, c.Enabled, interval, lastRun, c.RunCount)
	}
	w.Flush()
	return nil
}

func runScheduleTrigger(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := schedule.NewRegistry(store).Trigger(args[0], triggerApp); err != nil {
		return err
	}
	fmt.Printf("Triggered %s\n", args[0])
	return nil
}

func runScheduleReset(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := schedule.NewRegistry(store).Reset(args[0]); err != nil {
		return err
	}
	fmt.Printf("Reset %s\n", args[0])
	return nil
}

func runAutonomy(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	url := fmt.Sprintf("http://%s:%d/api/autonomy", cfg.Web.Host, cfg.Web.Port)

	var resp *http.Response
	if len(args) == 0 {
		resp, err = http.Get(url)
	} else {
		body, _ := json.Marshal(map[string]string{"level": args[0]})
		var req *http.Request
		req, err = http.NewRequest(http.MethodPut, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err = http.DefaultClient.Do(req)
	}
	if err != nil {
		return fmt.Errorf("reaching daemon: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Level  string                `json:"level"`
		Config domain.AutonomyConfig `json:"config"`
		Error  string                `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("daemon refused: %s", out.Error)
	}
	fmt.Printf("Autonomy: %s (interval %dms, max %d agents)\n",
		out.Level, out.Config.EvaluationIntervalMs, out.Config.MaxConcurrentAgents)
	return nil
}

func runEstimate(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	est, err := learning.NewEngine(store).Estimate(args[0])
	if err != nil {
		return err
	}
	if est == nil {
		fmt.Println("No completion history yet")
		return nil
	}
	fmt.Printf("Estimate: %.1f min (avg %.1f min, %.0f%% success, based on %d runs in bucket %s)\n",
		est.EstimatedMin, est.AvgMin, est.SuccessRate*100, est.BasedOnCount, est.Bucket)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	tasks, err := store.ListTasks(taskstore.ListOptions{})
	if err != nil {
		return err
	}
	var pending, inProgress, completed, blocked int
	for _, t := range tasks {
		switch t.Status {
		case domain.StatusPending:
			pending++
		case domain.StatusInProgress:
			inProgress++
		case domain.StatusCompleted:
			completed++
		case domain.StatusBlocked:
			blocked++
		}
	}
	runs, err := store.ListActiveRuns()
	if err != nil {
		return err
	}

	fmt.Printf("Tasks: %d total | %d pending | %d in progress | %d completed | %d blocked\n",
		len(tasks), pending, inProgress, completed, blocked)
	fmt.Printf("Agents: %d active\n", len(runs))
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	store, cfg, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	level := cfg.General.AutonomyLevel
	maxAgents := 0
	if preset, ok := domain.AutonomyPreset(level); ok {
		maxAgents = preset.MaxConcurrentAgents
	}

	model := tui.NewModel(tui.ModelConfig{
		Source:        store,
		AutonomyLevel: level,
		MaxAgents:     maxAgents,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
