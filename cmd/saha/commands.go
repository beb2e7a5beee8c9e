package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/sahaidachny/saha/internal/config"
	"github.com/sahaidachny/saha/internal/history"
	"github.com/sahaidachny/saha/internal/logging"
	"github.com/sahaidachny/saha/internal/loop"
	"github.com/sahaidachny/saha/internal/observer"
	"github.com/sahaidachny/saha/internal/schedule"
	"github.com/sahaidachny/saha/internal/state"
	"github.com/sahaidachny/saha/internal/tools"
	"github.com/sahaidachny/saha/tui"
	"github.com/sahaidachny/saha/web/api"
	"github.com/spf13/cobra"
)

var (
	runMaxIterations int
	runTaskFile      string
	runTools         []string
	runDryRun        bool
	runNoHistory     bool
	runServeAPI      bool
	statusTUI        bool
	cleanAll         bool
	servePort        int
	scheduleFile     string
)

func init() {
	// run command
	runCmd := &cobra.Command{
		Use:   "run TASK",
		Short: "Run the agentic loop for a task",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "iteration ceiling (0 = config default)")
	runCmd.Flags().StringVar(&runTaskFile, "task-file", "", "task directory override")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "use the mock backend instead of real CLIs")
	runCmd.Flags().BoolVar(&runNoHistory, "no-history", false, "skip invocation recording")
	runCmd.Flags().StringSliceVar(&runTools, "tools", nil, "quality tools to enable (default: config)")
	runCmd.Flags().BoolVar(&runServeAPI, "serve", false, "serve the status API and event stream during the run")
	rootCmd.AddCommand(runCmd)

	// resume command
	resumeCmd := &cobra.Command{
		Use:   "resume TASK",
		Short: "Resume an interrupted task",
		Args:  cobra.ExactArgs(1),
		RunE:  runResume,
	}
	resumeCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "use the mock backend instead of real CLIs")
	resumeCmd.Flags().BoolVar(&runNoHistory, "no-history", false, "skip invocation recording")
	rootCmd.AddCommand(resumeCmd)

	// status command
	statusCmd := &cobra.Command{
		Use:   "status [TASK]",
		Short: "Show task states, or iteration details for one task",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runStatus,
	}
	statusCmd.Flags().BoolVar(&statusTUI, "tui", false, "live dashboard")
	rootCmd.AddCommand(statusCmd)

	// watch command
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Reprint task states whenever they change",
		RunE:  runWatch,
	}
	rootCmd.AddCommand(watchCmd)

	// clean command
	cleanCmd := &cobra.Command{
		Use:   "clean [TASK]",
		Short: "Delete task state and history",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runClean,
	}
	cleanCmd.Flags().BoolVar(&cleanAll, "all", false, "delete every task")
	rootCmd.AddCommand(cleanCmd)

	// tools command
	toolsCmd := &cobra.Command{
		Use:   "tools",
		Short: "List quality tools and their availability",
		RunE:  runToolsList,
	}
	toolsCmd.AddCommand(&cobra.Command{
		Use:   "check [TARGET]",
		Short: "Run the enabled quality tools against a target",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runToolsCheck,
	})
	rootCmd.AddCommand(toolsCmd)

	// history command
	historyCmd := &cobra.Command{
		Use:   "history [TASK]",
		Short: "Show recorded runner invocations",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHistory,
	}
	rootCmd.AddCommand(historyCmd)

	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the status API server",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (0 = config default)")
	rootCmd.AddCommand(serveCmd)

	// schedule command
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run task batches on their cron schedule",
		RunE:  runSchedule,
	}
	scheduleCmd.Flags().StringVar(&scheduleFile, "file", "schedule.toml", "schedule file path")
	rootCmd.AddCommand(scheduleCmd)

	// version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("saha", version)
		},
	})
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := logging.Setup(logging.Options{Verbose: verbose || cfg.General.Verbose})
	return cfg, logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func taskPath(cfg *config.Config, taskID string) string {
	if runTaskFile != "" {
		return runTaskFile
	}
	return filepath.Join(cfg.General.TaskBasePath, taskID)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	maxIterations := runMaxIterations
	if maxIterations <= 0 {
		maxIterations = cfg.General.MaxIterations
	}

	opts := loop.Options{
		DryRun:         runDryRun,
		DisableHistory: runNoHistory,
	}

	// --serve runs the status API next to the loop; the broadcast hook feeds
	// live loop events to /ws clients.
	var apiServer *api.Server
	if runServeAPI {
		var hist api.History
		if !runNoHistory {
			if store, err := history.New(cfg.General.HistoryDB); err == nil {
				defer store.Close()
				hist = store
			} else {
				logger.Warn("history store unavailable", "error", err)
			}
		}
		addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
		apiServer = api.NewServer(state.NewManager(cfg.General.StateDir), hist, addr, logger)
		opts.ExtraHooks = append(opts.ExtraHooks, api.NewBroadcastHook(apiServer.Hub()))
	}

	lp, cleanup, err := loop.FromConfig(cfg, logger, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	if apiServer != nil {
		go func() {
			if err := apiServer.Start(ctx); err != nil {
				logger.Warn("status API stopped", "error", err)
			}
		}()
	}

	enabledTools := runTools
	if len(enabledTools) == 0 {
		enabledTools = cfg.EnabledTools()
	}

	st, err := lp.Run(ctx, loop.RunConfig{
		TaskID:        args[0],
		TaskPath:      taskPath(cfg, args[0]),
		MaxIterations: maxIterations,
		EnabledTools:  enabledTools,
	})
	if err != nil {
		return err
	}
	return report(st)
}

func runResume(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	lp, cleanup, err := loop.FromConfig(cfg, logger, loop.Options{
		DryRun:         runDryRun,
		DisableHistory: runNoHistory,
	})
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	st, err := lp.Resume(ctx, args[0])
	if err != nil {
		return err
	}
	return report(st)
}

// report prints the run outcome and maps a failed task to a non-zero exit.
func report(st *state.ExecutionState) error {
	tokens := humanize.Comma(int64(st.TotalTokens()))
	switch st.Phase {
	case state.PhaseCompleted:
		fmt.Printf("Task %s completed in %d iteration(s), %s tokens\n",
			st.TaskID, len(st.Iterations), tokens)
		return nil
	case state.PhaseFailed:
		return fmt.Errorf("task %s failed after %d iteration(s): %s",
			st.TaskID, len(st.Iterations), st.FailureReason)
	default:
		return fmt.Errorf("task %s stopped in phase %s; resume with: saha resume %s",
			st.TaskID, st.Phase, st.TaskID)
	}
}

func printStates(states *state.Manager) error {
	ids, err := states.ListTasks()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No tasks")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tPHASE\tITER\tTOKENS\tUPDATED")
	for _, id := range ids {
		st, err := states.Load(id)
		if err != nil {
			fmt.Fprintf(w, "%s\t(unreadable: %v)\t\t\t\n", id, err)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\n",
			st.TaskID, st.Phase, st.CurrentIteration, st.MaxIterations,
			humanize.Comma(int64(st.TotalTokens())), humanize.Time(st.UpdatedAt))
	}
	return w.Flush()
}

func taskRows(states *state.Manager) ([]tui.TaskRow, error) {
	ids, err := states.ListTasks()
	if err != nil {
		return nil, err
	}
	rows := make([]tui.TaskRow, 0, len(ids))
	for _, id := range ids {
		st, err := states.Load(id)
		if err != nil {
			continue
		}
		rows = append(rows, tui.TaskRow{
			TaskID:        st.TaskID,
			Phase:         st.Phase,
			Iteration:     st.CurrentIteration,
			MaxIterations: st.MaxIterations,
			Tokens:        st.TotalTokens(),
			FixInfo:       st.FixInfo,
			FailureReason: st.FailureReason,
			UpdatedAt:     st.UpdatedAt,
		})
	}
	return rows, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	states := state.NewManager(cfg.General.StateDir)

	if statusTUI {
		model := tui.NewModel(func() ([]tui.TaskRow, error) {
			return taskRows(states)
		})
		p := tea.NewProgram(model, tea.WithAltScreen())
		_, err := p.Run()
		return err
	}

	if len(args) == 1 {
		return printTaskDetail(states, args[0])
	}
	return printStates(states)
}

// printTaskDetail shows the full iteration history for one task.
func printTaskDetail(states *state.Manager, taskID string) error {
	st, err := states.Load(taskID)
	if err != nil {
		return err
	}

	fmt.Printf("Task:       %s\n", st.TaskID)
	fmt.Printf("Phase:      %s\n", st.Phase)
	fmt.Printf("Iteration:  %d/%d\n", st.CurrentIteration, st.MaxIterations)
	fmt.Printf("Tokens:     %s\n", humanize.Comma(int64(st.TotalTokens())))
	fmt.Printf("Updated:    %s\n", humanize.Time(st.UpdatedAt))
	if st.FailureReason != "" {
		fmt.Printf("Failure:    %s\n", st.FailureReason)
	}
	if st.FixInfo != "" {
		fmt.Printf("Fix info:   %s\n", st.FixInfo)
	}

	for _, it := range st.Iterations {
		fmt.Printf("\nIteration %d (%s tokens)\n", it.Iteration, humanize.Comma(int64(it.TokensUsed())))
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, phase := range []state.Phase{
			state.PhaseImplementation, state.PhaseQA, state.PhaseCodeQuality,
			state.PhaseManager, state.PhaseCompletionCheck,
		} {
			res := it.ResultFor(phase)
			if res == nil {
				continue
			}
			outcome := "ok"
			if !res.Success {
				outcome = "failed"
				if res.Error != "" {
					outcome = "failed: " + res.Error
				}
			}
			fmt.Fprintf(w, "  %s\t%s\n", phase, outcome)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if it.FixInfo != "" {
			fmt.Printf("  fix: %s\n", it.FixInfo)
		}
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	states := state.NewManager(cfg.General.StateDir)

	if err := printStates(states); err != nil {
		return err
	}

	watcher, err := observer.NewWatcher(cfg.General.StateDir, func(taskIDs []string) {
		fmt.Println()
		if err := printStates(states); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	})
	if err != nil {
		return err
	}
	defer watcher.Stop()

	ctx, cancel := signalContext()
	defer cancel()
	watcher.Start(ctx)

	<-ctx.Done()
	return nil
}

func runClean(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !cleanAll {
		return fmt.Errorf("specify a task or --all")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	states := state.NewManager(cfg.General.StateDir)

	var ids []string
	if cleanAll {
		ids, err = states.ListTasks()
		if err != nil {
			return err
		}
	} else {
		ids = args
	}

	hist, err := history.New(cfg.General.HistoryDB)
	if err == nil {
		defer hist.Close()
	}

	for _, id := range ids {
		removed, err := states.Delete(id)
		if err != nil {
			return err
		}
		if !removed {
			fmt.Printf("No state for task %s\n", id)
			continue
		}
		if hist != nil {
			if err := hist.Purge(id); err != nil {
				fmt.Fprintf(os.Stderr, "purging history for %s: %v\n", id, err)
			}
		}
		fmt.Printf("Cleaned task %s\n", id)
	}
	return nil
}

func toolConfigs(cfg *config.Config) map[string]tools.Config {
	out := make(map[string]tools.Config, len(cfg.Tools))
	for name, tc := range cfg.Tools {
		out[name] = tools.Config{
			"config_path": tc.ConfigPath,
			"strict":      tc.Strict,
			"threshold":   tc.Threshold,
		}
	}
	return out
}

func runToolsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	registry := tools.DefaultRegistry()
	enabled := make(map[string]bool)
	for _, name := range cfg.EnabledTools() {
		enabled[name] = true
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tENABLED\tINSTALLED")
	available := make(map[string]bool)
	for _, name := range registry.ListAvailable() {
		available[name] = true
	}
	for _, name := range registry.ListAll() {
		fmt.Fprintf(w, "%s\t%v\t%v\n", name, enabled[name], available[name])
	}
	return w.Flush()
}

func runToolsCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	target := "."
	if len(args) > 0 {
		target = args[0]
	}

	ctx, cancel := signalContext()
	defer cancel()

	registry := tools.DefaultRegistry()
	results := registry.RunAll(ctx, target, cfg.EnabledTools(), toolConfigs(cfg))

	changes := tools.CollectChangedRanges(ctx, "")
	for _, res := range results {
		res.Issues = tools.FilterBlocking(res.Issues, changes)
	}
	rep := tools.Aggregate(results, changes == nil)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return err
	}
	if !rep.Passed {
		return fmt.Errorf("quality check failed: %d blocking issue(s)", len(rep.Blocking))
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	hist, err := history.New(cfg.General.HistoryDB)
	if err != nil {
		return err
	}
	defer hist.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	if len(args) == 0 {
		summaries, err := hist.Summaries()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "TASK\tINVOCATIONS\tFAILURES\tTOKENS")
		for _, s := range summaries {
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\n",
				s.TaskID, s.Invocations, s.Failures, humanize.Comma(int64(s.TokensTotal)))
		}
		return w.Flush()
	}

	invocations, err := hist.ForTask(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "WHEN\tITER\tPHASE\tRUNNER\tOK\tTOKENS\tDURATION")
	for _, inv := range invocations {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%v\t%s\t%s\n",
			humanize.Time(inv.CreatedAt), inv.Iteration, inv.Phase, inv.Runner,
			inv.Success, humanize.Comma(int64(inv.TokensTotal)),
			inv.Duration.Round(time.Millisecond))
	}
	return w.Flush()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	states := state.NewManager(cfg.General.StateDir)

	var hist api.History
	if store, err := history.New(cfg.General.HistoryDB); err == nil {
		defer store.Close()
		hist = store
	} else {
		logger.Warn("history store unavailable", "error", err)
	}

	port := servePort
	if port == 0 {
		port = cfg.Web.Port
	}
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, port)

	ctx, cancel := signalContext()
	defer cancel()

	server := api.NewServer(states, hist, addr, logger)
	fmt.Printf("Serving status API at http://%s\n", addr)
	return server.Start(ctx)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	schedCfg, err := schedule.LoadConfig(scheduleFile)
	if err != nil {
		return err
	}
	if len(schedCfg.Entries) == 0 {
		return fmt.Errorf("no schedule entries in %s", scheduleFile)
	}

	lp, cleanup, err := loop.FromConfig(cfg, logger, loop.Options{})
	if err != nil {
		return err
	}
	defer cleanup()

	sched, err := schedule.NewScheduler(schedCfg.Entries, logger)
	if err != nil {
		return err
	}

	for _, name := range sched.Entries() {
		fmt.Printf("Entry %s: next run %s\n", name, sched.NextRun(name).Format(time.RFC3339))
	}

	ctx, cancel := signalContext()
	defer cancel()

	sched.Run(ctx, func(runCtx context.Context, e schedule.Entry) error {
		maxIterations := e.MaxIterations
		if maxIterations <= 0 {
			maxIterations = cfg.General.MaxIterations
		}
		for _, taskID := range e.Tasks {
			st, err := lp.Run(runCtx, loop.RunConfig{
				TaskID:        taskID,
				TaskPath:      filepath.Join(cfg.General.TaskBasePath, taskID),
				MaxIterations: maxIterations,
				EnabledTools:  cfg.EnabledTools(),
			})
			if err != nil {
				return err
			}
			if st.Phase == state.PhaseFailed && e.StopOnFailure {
				return fmt.Errorf("task %s failed, stopping batch %s", taskID, e.Name)
			}
		}
		return nil
	})
	return nil
}
