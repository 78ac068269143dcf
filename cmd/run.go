package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"testrig/internal/config"
	"testrig/internal/environment"
	"testrig/internal/platform"
	"testrig/internal/platform/ready"
	"testrig/internal/reporting"
	"testrig/internal/scheduler"
	"testrig/internal/testplan"
	"testrig/pkg/logging"
)

var (
	runConcurrency int
	runTimeout     time.Duration
	runRetries     int
	runDeadline    time.Duration
	runTargets     string
	runDebug       bool
)

// runCmd executes a YAML test plan against the configured targets.
var runCmd = &cobra.Command{
	Use:   "run <plan.yaml>",
	Short: "Execute a test plan",
	Long: `Executes the given plan: each test's requirement is matched against the
configured targets, environments are provisioned and torn down around test
execution, and a per-test outcome summary is printed.

Plan entries carry a shell command to run over the environment's control
channel and an optional capability requirement:

  name: smoke
  tests:
    - id: kernel-version
      command: uname -r
      requirement:
        cores: {min: 2}

Targets default to the local machine; pass --targets to describe remote
ready targets and their capabilities.

Configuration is layered from ~/.config/testrig/config.yaml and
./.testrig/config.yaml; flags override both.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	level := logging.LevelInfo
	if runDebug {
		level = logging.LevelDebug
	}
	logging.Init(level, cmd.ErrOrStderr())

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	applyFlagOverrides(cmd, &cfg)

	source, err := loadPlanSource(args[0])
	if err != nil {
		return err
	}

	targets, err := loadTargets()
	if err != nil {
		return err
	}
	registry := platform.NewRegistry()
	if err := registry.Register(ready.New(targets)); err != nil {
		return err
	}

	bus := reporting.NewEventBus()
	defer bus.Close()
	store := reporting.NewRunStore()

	reporter := reporting.NewConsoleReporter(bus)
	minSeverity := reporting.SeverityInfo
	if runDebug {
		minSeverity = reporting.SeverityDebug
	}
	reporter.Start(minSeverity)
	defer reporter.Stop()

	sched, err := scheduler.New(cfg, registry, source, bus, store)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, runErr := sched.Run(ctx)
	printSummary(cmd, report)
	if runErr != nil {
		return fmt.Errorf("run aborted: %w", runErr)
	}

	_, _, failed, cancelled := report.Counts()
	if failed > 0 {
		return fmt.Errorf("%d test(s) failed", failed)
	}
	if cancelled > 0 {
		return fmt.Errorf("run cancelled with %d test(s) pending", cancelled)
	}
	return nil
}

// applyFlagOverrides lets explicit flags win over file configuration.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.RunConfig) {
	if cmd.Flags().Changed("concurrency") {
		cfg.MaxConcurrentEnvironments = runConcurrency
	}
	if cmd.Flags().Changed("timeout") {
		cfg.AdapterCallTimeout = runTimeout
	}
	if cmd.Flags().Changed("retries") {
		cfg.RetryAttempts = runRetries
	}
	if cmd.Flags().Changed("deadline") {
		cfg.RunDeadline = runDeadline
	}
}

// loadPlanSource reads the plan and registers each entry's command as a test
// case executed over the control channel.
func loadPlanSource(path string) (testplan.Source, error) {
	plan, err := testplan.ReadPlan(path)
	if err != nil {
		return nil, err
	}

	registry := testplan.NewRegistry()
	for _, entry := range plan.Tests {
		if entry.Command == "" {
			return nil, fmt.Errorf("plan entry %q has no command", entry.ID)
		}
		name := entry.Name
		if name == "" {
			name = entry.ID
		}
		if err := registry.Register(testplan.CommandTest(entry.ID, name, entry.Command)); err != nil {
			return nil, err
		}
	}
	return testplan.NewPlanSource(plan, registry)
}

// loadTargets reads the targets file, defaulting to the local machine when
// none was given.
func loadTargets() ([]ready.Target, error) {
	if runTargets == "" {
		return []ready.Target{ready.LocalTarget()}, nil
	}
	return ready.LoadTargets(runTargets)
}

func printSummary(cmd *cobra.Command, report scheduler.Report) {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out)
	for _, res := range report.Results {
		line := fmt.Sprintf("%-10s %s", res.Outcome, res.TestID)
		if res.EnvironmentID != "" {
			line += " on " + res.EnvironmentID
		}
		if res.Reason != "" {
			line += " (" + res.Reason + ")"
		}
		if res.Err != nil {
			line += ": " + res.Err.Error()
		}
		fmt.Fprintln(out, line)
	}

	completed, skipped, failed, cancelled := report.Counts()
	fmt.Fprintf(out, "\n%d completed, %d skipped, %d failed, %d cancelled\n",
		completed, skipped, failed, cancelled)

	for _, env := range report.Environments {
		if env.FinalState != environment.StateDeleted {
			fmt.Fprintf(out, "environment %s (%s) ended in %s: %v\n",
				env.ID, env.Platform, env.FinalState, env.LastError)
		}
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "Maximum environments provisioned at once")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Per-adapter-call timeout")
	runCmd.Flags().IntVar(&runRetries, "retries", 0, "Attempts per adapter call before the environment fails")
	runCmd.Flags().DurationVar(&runDeadline, "deadline", 0, "Wall-clock bound for the whole run (0 = none)")
	runCmd.Flags().StringVar(&runTargets, "targets", "", "YAML file describing ready targets (default: local machine)")
	runCmd.Flags().BoolVar(&runDebug, "debug", false, "Enable debug logging")
}
